package verify

import (
	"context"
	"sync"
	"time"

	"tgstream/internal/model"
)

const cleanInterval = time.Minute

var ErrStoreClosed = model.ErrVerifyClosed

type entry struct {
	token     string
	expiresAt time.Time
}

// Memory: хранилище в памяти процесса. Просроченные записи вычищаются в фоне.
type Memory struct {
	mu        sync.Mutex
	tokens    map[int64]entry
	verified  map[int64]time.Time
	now       func() time.Time
	cancel    context.CancelFunc
	cancelled bool
}

func NewMemory() *Memory {
	m := &Memory{
		tokens:   make(map[int64]entry),
		verified: make(map[int64]time.Time),
		now:      time.Now,
	}
	m.startCleaner()
	return m
}

func (m *Memory) SetToken(ctx context.Context, uid int64, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return ErrStoreClosed
	}
	m.tokens[uid] = entry{token: token, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) TakeToken(ctx context.Context, uid int64, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return false, ErrStoreClosed
	}
	e, ok := m.tokens[uid]
	if !ok || e.token != token || !m.now().Before(e.expiresAt) {
		return false, nil
	}
	delete(m.tokens, uid)
	return true, nil
}

func (m *Memory) SetVerified(ctx context.Context, uid int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return ErrStoreClosed
	}
	m.verified[uid] = m.now().Add(ttl)
	return nil
}

func (m *Memory) IsVerified(ctx context.Context, uid int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return false, ErrStoreClosed
	}
	until, ok := m.verified[uid]
	return ok && m.now().Before(until), nil
}

// Cancel останавливает чистильщика. После вызова все операции возвращают ошибку.
func (m *Memory) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return
	}
	m.cancelled = true
	m.cancel()
}

func (m *Memory) startCleaner() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go func() {
		timer := time.NewTimer(cleanInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				m.clean()
				timer.Reset(cleanInterval)
			}
		}
	}()
}

func (m *Memory) clean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for uid, e := range m.tokens {
		if !now.Before(e.expiresAt) {
			delete(m.tokens, uid)
		}
	}
	for uid, until := range m.verified {
		if !now.Before(until) {
			delete(m.verified, uid)
		}
	}
}
