// Package relay связывает аккаунты-воркеры: у каждого свой кэш дескрипторов,
// пул сессий и стример. HTTP-слой и бот работают только через Relay.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tgstream/internal/backend"
	"tgstream/internal/balancer"
	"tgstream/internal/descache"
	"tgstream/internal/model"
	"tgstream/internal/sessionpool"
	"tgstream/internal/streamer"
)

var (
	ErrNotFound    = model.ErrNotFound
	ErrInvalidHash = model.ErrInvalidHash
	errNoAccounts  = errors.New("at least one account is required")
)

// Account: один аккаунт-воркер.
type Account struct {
	Backend backend.Backend
	Archive descache.Archive
}

type Config struct {
	ChunkSize      int
	ChunkTimeout   time.Duration
	ClearInterval  time.Duration
	ImportAttempts int
}

type worker struct {
	cache    *descache.Cache
	pool     *sessionpool.Pool
	streamer *streamer.Streamer
}

type Relay struct {
	chunkSize int
	workers   []*worker
	balancer  *balancer.Balancer
	startedAt time.Time
	log       *slog.Logger
}

func New(accounts []Account, cfg Config, log *slog.Logger) (*Relay, error) {
	if len(accounts) == 0 {
		return nil, errNoAccounts
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = streamer.DefaultChunkSize
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Relay{
		chunkSize: cfg.ChunkSize,
		workers:   make([]*worker, len(accounts)),
		balancer:  balancer.New(len(accounts)),
		startedAt: time.Now(),
		log:       log,
	}
	for i, acc := range accounts {
		wlog := log.With("worker", r.balancer.Name(i))
		pool := sessionpool.New(acc.Backend, sessionpool.Config{ImportAttempts: cfg.ImportAttempts}, wlog)
		r.workers[i] = &worker{
			cache:    descache.New(acc.Archive, descache.Config{ClearInterval: cfg.ClearInterval}, wlog),
			pool:     pool,
			streamer: streamer.New(pool, r.balancer.Counter(i), streamer.Config{ChunkTimeout: cfg.ChunkTimeout}, wlog),
		}
	}
	return r, nil
}

// File: дескриптор, привязанный к воркеру, который его разрешил.
// Поток по нему открывается на том же воркере.
type File struct {
	*model.FileDescriptor
	worker int
}

// Worker возвращает индекс воркера файла.
func (f File) Worker() int { return f.worker }

// Describe разрешает сообщение в дескриптор без проверки хэша.
func (r *Relay) Describe(ctx context.Context, messageID int) (File, error) {
	i := r.balancer.Pick()
	d, err := r.workers[i].cache.Get(ctx, messageID)
	if err != nil {
		return File{}, err
	}
	return File{FileDescriptor: d, worker: i}, nil
}

// Resolve разрешает сообщение и сверяет короткий хэш из ссылки.
func (r *Relay) Resolve(ctx context.Context, messageID int, hash string) (File, error) {
	f, err := r.Describe(ctx, messageID)
	if err != nil {
		return File{}, err
	}
	if f.Hash() != hash {
		return File{}, fmt.Errorf("message %d: %w", messageID, ErrInvalidHash)
	}
	return f, nil
}

// Open открывает поток диапазона [from, until] файла. Диапазон должен быть
// проверен, например через streamer.ParseRange.
func (r *Relay) Open(ctx context.Context, f File, from, until int64) (*streamer.Stream, error) {
	plan := streamer.NewPlan(from, until, r.chunkSize)
	return r.workers[f.worker].streamer.Open(ctx, *f.FileDescriptor, plan)
}

type Status struct {
	Uptime  time.Duration
	Workers int
	Loads   []balancer.Load
}

func (r *Relay) Status() Status {
	return Status{
		Uptime:  time.Since(r.startedAt),
		Workers: len(r.workers),
		Loads:   r.balancer.Loads(),
	}
}

// Close останавливает кэши и пулы сессий всех воркеров.
func (r *Relay) Close() error {
	var errs []error
	for i, w := range r.workers {
		w.cache.Cancel()
		if err := w.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("worker %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
