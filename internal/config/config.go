package config

import (
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/zap/zapcore"
)

type Logger struct {
	Level         slog.Level
	Plaintext     bool
	ProtocolLevel zapcore.Level // уровень логов MTProto-клиента
	ProtocolFile  string        // файл для логов MTProto-клиента, пусто = stderr
}

type Server struct {
	Addr string
	URL  string // публичный адрес, с которого строятся ссылки
}

type Telegram struct {
	APIID                int
	APIHash              string
	BotToken             string
	WorkerTokens         []string // дополнительные аккаунты для раздачи
	LogChannel           int64    // архивный канал в форме -100XXXXXXXXXX
	LogChannelAccessHash int64
	SessionDB            string
	BotUsername          string // если пусто, берётся из профиля бота
}

type Stream struct {
	ChunkSize          int
	ChunkTimeout       time.Duration
	CacheClearInterval time.Duration
	ImportAttempts     int
}

type Database struct {
	Driver string // sqlite3 или mysql
	DSN    string
}

type Redis struct {
	Addr     string // пусто = хранилище верификации в памяти
	Password string
	DB       int
}

type Verify struct {
	Enabled      bool
	TTL          time.Duration // сколько живёт подтверждение пользователя
	TokenTTL     time.Duration // сколько живёт выданный токен
	ShortlinkURL string
	ShortlinkAPI string
	Tutorial     string
}

type Bot struct {
	PublicFileStore bool
	Admins          []int64
	StreamMode      bool
	WebsiteMode     bool
	WebsiteURL      string
	FileCaption     string // шаблон подписи: {file_name}, {file_size}, {file_caption}
}

type Config struct {
	Logger   Logger
	Server   Server
	Telegram Telegram
	Stream   Stream
	Database Database
	Redis    Redis
	Verify   Verify
	Bot      Bot
}

func Load() (Config, error) {
	var ge getenv
	cfg := Config{
		Logger: Logger{
			Level:         ge.LogLevel("LOG_LEVEL", false, slog.LevelInfo),
			Plaintext:     ge.Bool("LOG_PLAINTEXT", false, false),
			ProtocolLevel: ge.ZapLevel("LOG_PROTOCOL_LEVEL", false, zapcore.WarnLevel),
			ProtocolFile:  ge.String("LOG_PROTOCOL_FILE", false, ""),
		},
		Server: Server{
			Addr: ge.String("SERVER_ADDR", false, ":8080"),
			URL:  ge.String("URL", false, "http://localhost:8080/"),
		},
		Telegram: Telegram{
			APIID:                ge.Int("API_ID", true, 0),
			APIHash:              ge.String("API_HASH", true, ""),
			BotToken:             ge.String("BOT_TOKEN", true, ""),
			WorkerTokens:         ge.Prefixed("MULTI_TOKEN"),
			LogChannel:           ge.Int64("LOG_CHANNEL", true, 0),
			LogChannelAccessHash: ge.Int64("LOG_CHANNEL_ACCESS_HASH", false, 0),
			SessionDB:            ge.String("SESSION_DB", false, "sessions.db"),
			BotUsername:          ge.String("BOT_USERNAME", false, ""),
		},
		Stream: Stream{
			ChunkSize:          ge.Int("STREAM_CHUNK_SIZE", false, 1024*1024),
			ChunkTimeout:       ge.Duration("STREAM_CHUNK_TIMEOUT", false, 30*time.Second),
			CacheClearInterval: ge.Duration("CACHE_CLEAR_INTERVAL", false, 30*time.Minute),
			ImportAttempts:     ge.Int("AUTH_IMPORT_ATTEMPTS", false, 6),
		},
		Database: Database{
			Driver: ge.String("DB_DRIVER", false, "sqlite3"),
			DSN:    ge.String("DB_DSN", false, "file:users.db?_foreign_keys=on"),
		},
		Redis: Redis{
			Addr:     ge.String("REDIS_ADDR", false, ""),
			Password: ge.String("REDIS_PASSWORD", false, ""),
			DB:       ge.Int("REDIS_DB", false, 0),
		},
		Verify: Verify{
			Enabled:      ge.Bool("VERIFY_MODE", false, false),
			TTL:          ge.Duration("VERIFY_TTL", false, 24*time.Hour),
			TokenTTL:     ge.Duration("VERIFY_TOKEN_TTL", false, time.Hour),
			ShortlinkURL: ge.String("SHORTLINK_URL", false, ""),
			ShortlinkAPI: ge.String("SHORTLINK_API", false, ""),
			Tutorial:     ge.String("VERIFY_TUTORIAL", false, ""),
		},
		Bot: Bot{
			PublicFileStore: ge.Bool("PUBLIC_FILE_STORE", false, true),
			Admins:          ge.Int64s("ADMINS", false, nil),
			StreamMode:      ge.Bool("STREAM_MODE", false, true),
			WebsiteMode:     ge.Bool("WEBSITE_URL_MODE", false, false),
			WebsiteURL:      ge.String("WEBSITE_URL", false, ""),
			FileCaption:     ge.String("CUSTOM_FILE_CAPTION", false, ""),
		},
	}
	if cfg.Bot.WebsiteMode && cfg.Bot.WebsiteURL == "" {
		ge.errs = append(ge.errs, fmt.Errorf("WEBSITE_URL %w when WEBSITE_URL_MODE is on", ErrEnvRequired))
	}
	return cfg, ge.Err()
}
