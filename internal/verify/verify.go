// Package verify выдаёт одноразовые токены подтверждения и помнит,
// кто из пользователей подтверждён и до какого времени.
package verify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	DefaultTTL      = 24 * time.Hour
	DefaultTokenTTL = time.Hour

	tokenLen      = 7
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Store хранит токены и отметки о подтверждении. У пользователя не больше
// одного действующего токена: новый заменяет старый.
type Store interface {
	SetToken(ctx context.Context, uid int64, token string, ttl time.Duration) error
	// TakeToken удаляет токен, если он совпал, и сообщает о совпадении.
	TakeToken(ctx context.Context, uid int64, token string) (bool, error)
	SetVerified(ctx context.Context, uid int64, ttl time.Duration) error
	IsVerified(ctx context.Context, uid int64) (bool, error)
}

type Config struct {
	TTL      time.Duration // сколько действует подтверждение
	TokenTTL time.Duration // сколько действует выданный токен
}

type Verifier struct {
	store    Store
	ttl      time.Duration
	tokenTTL time.Duration
}

func New(store Store, cfg Config) *Verifier {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Verifier{store: store, ttl: cfg.TTL, tokenTTL: cfg.TokenTTL}
}

// Issue выдаёт пользователю новый токен.
func (v *Verifier) Issue(ctx context.Context, uid int64) (string, error) {
	token := newToken()
	if err := v.store.SetToken(ctx, uid, token, v.tokenTTL); err != nil {
		return "", fmt.Errorf("issue token for %d: %w", uid, err)
	}
	return token, nil
}

// Redeem гасит токен и отмечает пользователя подтверждённым.
// Повторное погашение того же токена возвращает false.
func (v *Verifier) Redeem(ctx context.Context, uid int64, token string) (bool, error) {
	ok, err := v.store.TakeToken(ctx, uid, token)
	if err != nil {
		return false, fmt.Errorf("redeem token for %d: %w", uid, err)
	}
	if !ok {
		return false, nil
	}
	if err := v.store.SetVerified(ctx, uid, v.ttl); err != nil {
		return false, fmt.Errorf("mark %d verified: %w", uid, err)
	}
	return true, nil
}

func (v *Verifier) Verified(ctx context.Context, uid int64) (bool, error) {
	ok, err := v.store.IsVerified(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("check verification of %d: %w", uid, err)
	}
	return ok, nil
}

func newToken() string {
	b := make([]byte, tokenLen)
	for i := range b {
		b[i] = tokenAlphabet[rand.IntN(len(tokenAlphabet))]
	}
	return string(b)
}
