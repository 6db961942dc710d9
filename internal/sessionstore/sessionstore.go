// Package sessionstore хранит сессии MTProto-клиентов в одном файле bbolt,
// по ключу на аккаунт.
package sessionstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("sessions")

type DB struct {
	bolt *bbolt.DB
}

func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &DB{bolt: db}, nil
}

func (d *DB) Close() error {
	return d.bolt.Close()
}

// Storage возвращает хранилище сессии аккаунта.
func (d *DB) Storage(key string) *Storage {
	return &Storage{db: d.bolt, key: []byte(key)}
}

// AccountKey: ключ сессии для токена бота. Секретная часть токена в ключ не попадает.
func AccountKey(botToken string) string {
	id, _, _ := strings.Cut(botToken, ":")
	return "bot" + id
}

// Storage реализует session.Storage.
type Storage struct {
	db  *bbolt.DB
	key []byte
}

var _ session.Storage = (*Storage)(nil)

func (s *Storage) LoadSession(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(s.key)
		if v == nil {
			return session.ErrNotFound
		}
		// значение живёт только внутри транзакции
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *Storage) StoreSession(ctx context.Context, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(s.key, data)
	})
}

// Delete забывает сессию: следующий запуск клиента пройдёт авторизацию заново.
func (s *Storage) Delete() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(s.key)
	})
}
