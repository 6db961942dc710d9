// Package bot: обработчики команд чата: выдача файлов по ссылкам,
// генерация ссылок, подтверждение пользователей, рассылка.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"tgstream/internal/link"
	"tgstream/internal/logger"
	"tgstream/internal/relay"
	"tgstream/internal/users"
)

// User: собеседник бота.
type User struct {
	ID         int64
	AccessHash int64
	FirstName  string
	Username   string
}

// Incoming: входящее личное сообщение.
type Incoming struct {
	ID      int
	From    User
	Text    string
	ReplyTo int  // ID сообщения, на которое отвечают; 0: не ответ
	Media   bool // документ, видео или аудио
}

// Button: кнопка-ссылка под сообщением.
type Button struct {
	Text string
	URL  string
}

type Messenger interface {
	Send(ctx context.Context, to User, text string, buttons ...[]Button) error
	// Archive копирует сообщение из чата с пользователем в архивный канал
	// и возвращает ID копии.
	Archive(ctx context.Context, from User, messageID int) (int, error)
	// Deliver присылает пользователю копию сообщения архива со своей подписью.
	Deliver(ctx context.Context, to User, archivedID int, caption string, buttons ...[]Button) error
	// Copy пересылает сообщение без указания автора.
	Copy(ctx context.Context, from User, messageID int, to User) error
}

type Users interface {
	AddUser(ctx context.Context, id, accessHash int64, name string) (bool, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
	UpdateShortener(ctx context.Context, id int64, apiKey, baseSite string) error
	AllUsers(ctx context.Context) ([]users.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type Verifier interface {
	Issue(ctx context.Context, uid int64) (string, error)
	Redeem(ctx context.Context, uid int64, token string) (bool, error)
	Verified(ctx context.Context, uid int64) (bool, error)
}

type Shortener interface {
	Shorten(ctx context.Context, baseSite, apiKey, link string) string
}

// Files разрешает сообщения архива. Реализуется relay.Relay.
type Files interface {
	Describe(ctx context.Context, messageID int) (relay.File, error)
}

const (
	DefaultBroadcastAttempts = 3
	DefaultBroadcastBackoff  = time.Second
)

type Config struct {
	Admins          []int64
	PublicFileStore bool // ссылки может делать любой, а не только админ
	StreamMode      bool // добавлять к файлам кнопки скачивания и просмотра
	FileCaption     string
	Links           link.Builder

	Verify         bool
	VerifyShortURL string // сокращатель для ссылок подтверждения
	VerifyShortAPI string
	VerifyTutorial string

	BroadcastAttempts int
	BroadcastBackoff  time.Duration
}

type Deps struct {
	Messenger Messenger
	Users     Users
	Verifier  Verifier // может быть nil, если подтверждение выключено
	Shortener Shortener
	Files     Files
}

type Handler struct {
	cfg Config
	Deps
	log *slog.Logger

	broadcasting atomic.Bool // одновременно идёт не больше одной рассылки
}

func New(cfg Config, deps Deps, log *slog.Logger) (*Handler, error) {
	if cfg.Verify && deps.Verifier == nil {
		return nil, errors.New("verification is enabled but no verifier is given")
	}
	if cfg.BroadcastAttempts <= 0 {
		cfg.BroadcastAttempts = DefaultBroadcastAttempts
	}
	if cfg.BroadcastBackoff <= 0 {
		cfg.BroadcastBackoff = DefaultBroadcastBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{cfg: cfg, Deps: deps, log: log}, nil
}

// Handle обрабатывает одно входящее сообщение. Ошибки доставки ответа
// возвращаются вызывающему, ошибки пользователя превращаются в ответ.
func (h *Handler) Handle(ctx context.Context, in Incoming) error {
	ctx, log := logger.With(logger.Context(ctx, h.log), "user_id", in.From.ID, "message_id", in.ID)
	cmd, args := parseCommand(in.Text)

	var err error
	switch cmd {
	case "start":
		err = h.start(ctx, in, args)
	case "link":
		err = h.linkReply(ctx, in)
	case "api":
		err = h.setAPI(ctx, in, args)
	case "base_site":
		err = h.setBaseSite(ctx, in, args)
	case "broadcast":
		err = h.broadcast(ctx, in)
	case "":
		if in.Media && h.allowed(in.From) {
			err = h.share(ctx, in.From, in.ID)
		}
	}
	if err != nil {
		log.Error("handle message failed", "command", cmd, "error", err)
	}
	return err
}

// parseCommand выделяет команду без "/" и суффикса @bot и строку аргументов.
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, args, _ = strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

func (h *Handler) isAdmin(u User) bool {
	return slices.Contains(h.cfg.Admins, u.ID)
}

func (h *Handler) allowed(u User) bool {
	return h.cfg.PublicFileStore || h.isAdmin(u)
}
