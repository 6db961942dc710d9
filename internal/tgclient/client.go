// Package tgclient: MTProto-клиент одного бот-аккаунта поверх gotd/td.
// Реализует backend.Backend для пула сессий, descache.Archive для кэша
// дескрипторов и bot.Messenger для обработчиков команд.
package tgclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tgstream/internal/bot"
)

const (
	// offsetChannel: сдвиг идентификаторов каналов в форме -100XXXXXXXXXX.
	offsetChannel = 1_000_000_000_000

	defaultPoolSize  = 4
	maxUpdateWorkers = 32

	rateEvery = 100 * time.Millisecond
	rateBurst = 5
)

type Config struct {
	AppID             int
	AppHash           string
	BotToken          string
	Archive           int64 // канал-архив, -100XXXXXXXXXX или голый ID
	ArchiveAccessHash int64 // если 0, берётся у сервера
	PoolSize          int64 // соединений в пуле домашнего дата-центра
}

// Handler обрабатывает входящие личные сообщения.
type Handler interface {
	Handle(ctx context.Context, in bot.Incoming) error
}

type Client struct {
	cfg    Config
	client *telegram.Client
	api    *tg.Client
	waiter *floodwait.Waiter
	zlog   *zap.Logger
	log    *slog.Logger

	mu      sync.RWMutex
	handler Handler
	runCtx  context.Context // контекст Run, в нём живут обработчики сообщений

	updates chan struct{} // ограничивает число одновременных обработчиков

	ready   chan struct{}
	self    *tg.User
	archive *tg.InputChannel
}

// New создаёт клиента. Сессия хранится в storage и переживает перезапуск.
func New(cfg Config, storage session.Storage, zlog *zap.Logger, log *slog.Logger) *Client {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if zlog == nil {
		zlog = zap.NewNop()
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		cfg:   cfg,
		zlog:  zlog,
		log:   log,
		ready:   make(chan struct{}),
		updates: make(chan struct{}, maxUpdateWorkers),
	}
	c.waiter = newWaiter(zlog)

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(c.onNewMessage)

	c.client = telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		Logger:         zlog,
		SessionStorage: storage,
		UpdateHandler:  dispatcher,
		Middlewares: []telegram.Middleware{
			c.waiter,
			ratelimit.New(rate.Every(rateEvery), rateBurst),
		},
	})
	c.api = c.client.API()
	return c
}

func newWaiter(zlog *zap.Logger) *floodwait.Waiter {
	return floodwait.NewWaiter().WithCallback(func(ctx context.Context, wait floodwait.FloodWait) {
		zlog.Warn("flood wait", zap.Duration("wait", wait.Duration))
	})
}

// Bind направляет входящие сообщения в h. Пока обработчик не задан,
// сообщения пропускаются.
func (c *Client) Bind(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// boundHandler возвращает обработчик и контекст, в котором его запускать.
// До Run обработчика нет.
func (c *Client) boundHandler() (Handler, context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runCtx == nil {
		return nil, nil
	}
	return c.handler, c.runCtx
}

// Run подключается, авторизует бота и держит соединение до отмены ctx.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()
	return c.waiter.Run(ctx, func(ctx context.Context) error {
		return c.client.Run(ctx, func(ctx context.Context) error {
			if err := c.login(ctx); err != nil {
				return err
			}
			close(c.ready)
			c.log.Info("telegram client ready", "bot", c.self.Username, "dc", c.HomeDC())
			<-ctx.Done()
			return ctx.Err()
		})
	})
}

func (c *Client) login(ctx context.Context) error {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return errors.Wrap(err, "auth status")
	}
	if !status.Authorized {
		if _, err := c.client.Auth().Bot(ctx, c.cfg.BotToken); err != nil {
			return errors.Wrap(err, "bot login")
		}
	}

	self, err := c.client.Self(ctx)
	if err != nil {
		return errors.Wrap(err, "get self")
	}
	archive, err := c.resolveArchive(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve archive channel")
	}
	c.self = self
	c.archive = archive
	return nil
}

// Ready ждёт окончания авторизации.
func (c *Client) Ready(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Username: имя бота. Доступно после Ready.
func (c *Client) Username() string {
	return c.self.Username
}

func archiveChannelID(id int64) int64 {
	if id < 0 {
		return -id - offsetChannel
	}
	return id
}

// resolveArchive получает access hash канала-архива. Хэш свой у каждого
// аккаунта, поэтому заданный в настройках используется только как подсказка.
func (c *Client) resolveArchive(ctx context.Context) (*tg.InputChannel, error) {
	id := archiveChannelID(c.cfg.Archive)
	res, err := c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: id, AccessHash: c.cfg.ArchiveAccessHash},
	})
	if err != nil {
		return nil, err
	}

	var chats []tg.ChatClass
	switch r := res.(type) {
	case *tg.MessagesChats:
		chats = r.Chats
	case *tg.MessagesChatsSlice:
		chats = r.Chats
	}
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == id {
			return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, errors.Errorf("channel %d is not accessible", id)
}

func (c *Client) archivePeer() *tg.InputPeerChannel {
	return &tg.InputPeerChannel{ChannelID: c.archive.ChannelID, AccessHash: c.archive.AccessHash}
}
