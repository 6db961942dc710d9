package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tgstream/internal/api"
	"tgstream/internal/bot"
	"tgstream/internal/config"
	"tgstream/internal/link"
	"tgstream/internal/logger"
	"tgstream/internal/protect"
	"tgstream/internal/relay"
	"tgstream/internal/sessionstore"
	"tgstream/internal/shortener"
	"tgstream/internal/tgclient"
	"tgstream/internal/users"
	"tgstream/internal/verify"
)

const (
	shutdownTimeout  = 30 * time.Second
	shortenerTimeout = 15 * time.Second
)

// задаётся при сборке через -ldflags "-X main.version=..."
var version = "dev"

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger.SetupDefault(cfg.Logger)
	zlog := logger.NewProtocol(cfg.Logger)
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zlog); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, zlog *zap.Logger) error {
	sessions, err := sessionstore.Open(cfg.Telegram.SessionDB)
	if err != nil {
		return err
	}
	defer sessions.Close()

	db, err := users.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	userStore, err := users.New(db, cfg.Database.Driver)
	if err != nil {
		return err
	}
	if err := userStore.Migrate(ctx); err != nil {
		return err
	}

	verifier, closeVerifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeVerifier()

	tokens := append([]string{cfg.Telegram.BotToken}, cfg.Telegram.WorkerTokens...)
	clients := make([]*tgclient.Client, len(tokens))
	accounts := make([]relay.Account, len(tokens))
	for i, token := range tokens {
		name := "bot" + strconv.Itoa(i+1)
		tcfg := tgclient.Config{
			AppID:    cfg.Telegram.APIID,
			AppHash:  cfg.Telegram.APIHash,
			BotToken: token,
			Archive:  cfg.Telegram.LogChannel,
		}
		if i == 0 {
			tcfg.ArchiveAccessHash = cfg.Telegram.LogChannelAccessHash
		}
		storage := sessions.Storage(sessionstore.AccountKey(token))
		clients[i] = tgclient.New(tcfg, storage, zlog.Named(name), slog.With("account", name))
		accounts[i] = relay.Account{Backend: clients[i], Archive: clients[i]}
	}
	primary := clients[0]

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		g.Go(func() error { return c.Run(ctx) })
	}

	g.Go(func() error {
		for _, c := range clients {
			if err := c.Ready(ctx); err != nil {
				return err
			}
		}
		slog.Info("all telegram clients ready", "count", len(clients))

		rl, err := relay.New(accounts, relay.Config{
			ChunkSize:      cfg.Stream.ChunkSize,
			ChunkTimeout:   cfg.Stream.ChunkTimeout,
			ClearInterval:  cfg.Stream.CacheClearInterval,
			ImportAttempts: cfg.Stream.ImportAttempts,
		}, slog.Default())
		if err != nil {
			return err
		}
		defer rl.Close()

		username := cfg.Telegram.BotUsername
		if username == "" {
			username = primary.Username()
		}
		links := link.Builder{
			BaseURL:     cfg.Server.URL,
			BotUsername: username,
			WebsiteMode: cfg.Bot.WebsiteMode,
			WebsiteURL:  cfg.Bot.WebsiteURL,
		}

		h, err := bot.New(bot.Config{
			Admins:          cfg.Bot.Admins,
			PublicFileStore: cfg.Bot.PublicFileStore,
			StreamMode:      cfg.Bot.StreamMode,
			FileCaption:     cfg.Bot.FileCaption,
			Links:           links,
			Verify:          cfg.Verify.Enabled,
			VerifyShortURL:  cfg.Verify.ShortlinkURL,
			VerifyShortAPI:  cfg.Verify.ShortlinkAPI,
			VerifyTutorial:  cfg.Verify.Tutorial,
		}, bot.Deps{
			Messenger: primary,
			Users:     userStore,
			Verifier:  verifier,
			Shortener: shortener.New(protect.NewHTTPClient(shortenerTimeout)),
			Files:     rl,
		}, slog.With("component", "bot"))
		if err != nil {
			return err
		}
		primary.Bind(h)

		handler := logger.HTTPLogging(slog.Default(), api.New(rl, api.Info{
			BotUsername: username,
			Version:     version,
			Links:       links,
		}))
		return serve(ctx, newServer(cfg.Server.Addr, handler))
	})

	return g.Wait()
}

// newVerifier выбирает хранилище подтверждений: redis, если он настроен,
// иначе память процесса. При выключенном подтверждении возвращает nil.
func newVerifier(ctx context.Context, cfg config.Config) (bot.Verifier, func(), error) {
	if !cfg.Verify.Enabled {
		return nil, func() {}, nil
	}
	vcfg := verify.Config{TTL: cfg.Verify.TTL, TokenTTL: cfg.Verify.TokenTTL}

	if cfg.Redis.Addr == "" {
		store := verify.NewMemory()
		return verify.New(store, vcfg), store.Cancel, nil
	}
	client, err := verify.DialRedis(ctx, verify.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return verify.New(verify.NewRedis(client), vcfg), func() { client.Close() }, nil
}

func serve(ctx context.Context, server *http.Server) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("server startup", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-done
	return ctx.Err()
}

// newServer создаёт HTTP-сервер. Ограничения на запись нет: поток большого
// файла может идти часами.
func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: handler,

		ReadTimeout:       5 * time.Second, // сколько времени даём клиенту на отправку запроса
		ReadHeaderTimeout: 3 * time.Second, // сколько ждём только заголовки
		IdleTimeout:       1 * time.Minute, // для keep-alive соединений

		MaxHeaderBytes: 8192, // 8 KB
	}
}
