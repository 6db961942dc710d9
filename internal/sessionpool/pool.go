// Package sessionpool держит аутентифицированные сессии одного аккаунта,
// по одной на дата-центр, и лениво создаёт недостающие.
package sessionpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tgstream/internal/backend"
	"tgstream/internal/model"
)

const (
	DefaultImportAttempts = 6
	DefaultCreateTimeout  = time.Minute
)

var (
	ErrAuthorizationFailed = model.ErrAuthorizationFailed
	ErrPoolClosed          = model.ErrPoolClosed
)

type Config struct {
	ImportAttempts int           // попыток импорта авторизации в чужой дата-центр
	CreateTimeout  time.Duration // предельное время создания одной сессии
}

// Pool гарантирует не более одной живой сессии на дата-центр даже при
// конкурентных запросах: создание идёт через singleflight по ключу DC.
type Pool struct {
	backend  backend.Backend
	attempts int
	timeout  time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[int]backend.Session
	closed   bool

	group singleflight.Group
}

func New(b backend.Backend, cfg Config, log *slog.Logger) *Pool {
	attempts := cfg.ImportAttempts
	if attempts <= 0 {
		attempts = DefaultImportAttempts
	}
	timeout := cfg.CreateTimeout
	if timeout <= 0 {
		timeout = DefaultCreateTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		backend:  b,
		attempts: attempts,
		timeout:  timeout,
		log:      log,
		sessions: make(map[int]backend.Session),
	}
}

// SessionFor возвращает сессию для дата-центра dc, при необходимости создавая её.
// Создание общее для всех ждущих и не зависит от отмены ctx одного из них:
// отменённый вызов просто перестаёт ждать.
func (p *Pool) SessionFor(ctx context.Context, dc int) (backend.Session, error) {
	if s, ok, err := p.lookup(dc); ok || err != nil {
		return s, err
	}

	ch := p.group.DoChan(strconv.Itoa(dc), func() (any, error) {
		// пока ждали своей очереди, сессию мог создать предыдущий вызов
		if s, ok, err := p.lookup(dc); ok || err != nil {
			return s, err
		}

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		s, err := p.create(cctx, dc)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			_ = s.Stop()
			return nil, ErrPoolClosed
		}
		p.sessions[dc] = s
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(backend.Session), nil
	}
}

func (p *Pool) lookup(dc int) (backend.Session, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false, ErrPoolClosed
	}
	s, ok := p.sessions[dc]
	return s, ok, nil
}

func (p *Pool) create(ctx context.Context, dc int) (backend.Session, error) {
	log := p.log.With("dc", dc)

	if dc == p.backend.HomeDC() {
		s, err := p.backend.StartSession(ctx, dc, p.backend.HomeAuthKey())
		if err != nil {
			return nil, fmt.Errorf("start home session: %w", err)
		}
		log.Debug("created media session", "home", true)
		return s, nil
	}

	key, err := p.backend.CreateAuthKey(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("create auth key: %w", err)
	}

	s, err := p.backend.StartSession(ctx, dc, key)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	if err := p.importAuthorization(ctx, dc, s); err != nil {
		if stopErr := s.Stop(); stopErr != nil {
			log.Warn("stop session failed", "error", stopErr)
		}
		return nil, err
	}

	log.Debug("created media session", "home", false)
	return s, nil
}

// importAuthorization переносит авторизацию домашнего дата-центра в новую сессию.
// Повторяется только отказ по байтам авторизации, прочие ошибки возвращаются сразу.
func (p *Pool) importAuthorization(ctx context.Context, dc int, s backend.Session) error {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		auth, err := p.backend.ExportAuthorization(ctx, dc)
		if err != nil {
			return fmt.Errorf("export authorization: %w", err)
		}

		err = s.ImportAuthorization(ctx, auth)
		if err == nil {
			return nil
		}
		if !errors.Is(err, backend.ErrAuthBytesInvalid) {
			return fmt.Errorf("import authorization: %w", err)
		}

		p.log.Debug("invalid authorization bytes", "dc", dc, "attempt", attempt)
	}

	return fmt.Errorf("dc %d: %w after %d attempts", dc, ErrAuthorizationFailed, p.attempts)
}

// Len возвращает число живых сессий.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close останавливает все сессии. Дальнейшие вызовы SessionFor вернут ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for dc, s := range p.sessions {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop dc %d: %w", dc, err))
		}
	}
	clear(p.sessions)
	return errors.Join(errs...)
}
