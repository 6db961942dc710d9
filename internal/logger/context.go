package logger

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// Context кладёт логгер в контекст: обработчики HTTP и чата достают его
// через FromContext и дописывают атрибуты своего запроса.
func Context(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// With дополняет логгер контекста атрибутами и возвращает новый контекст.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	log := FromContext(ctx).With(args...)
	return Context(ctx, log), log
}

func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return slog.Default()
}
