package logger

import (
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"tgstream/internal/config"
)

func SetupDefault(cfg config.Logger) {
	if cfg.Plaintext {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})))
	}
}

// NewProtocol создаёт логгер для MTProto-клиента: библиотека принимает только zap.
// При заданном ProtocolFile пишет в файл с ротацией, иначе в stderr.
func NewProtocol(cfg config.Logger) *zap.Logger {
	var out io.Writer = os.Stderr
	if cfg.ProtocolFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.ProtocolFile,
			MaxSize:    50, // мегабайт
			MaxBackups: 3,
			MaxAge:     7, // дней
			Compress:   true,
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(out),
		cfg.ProtocolLevel,
	)
	return zap.New(core)
}
