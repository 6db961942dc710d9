// Package fake: backend в памяти для тестов пула сессий, стримера и HTTP-слоя.
package fake

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"tgstream/internal/backend"
	"tgstream/internal/model"
)

// Key: ключ, выданный фейковым backend.
type Key struct {
	Dc   int
	Home bool
	Seq  int
}

func (k Key) DC() int { return k.Dc }

// Backend хранит файлы по media ID и считает все вызовы.
type Backend struct {
	Home int

	mu    sync.Mutex
	files map[int64][]byte

	// ImportFailures: сколько первых импортов завершатся ErrAuthBytesInvalid.
	ImportFailures int

	// ImportErr, если задан, возвращается вместо ErrAuthBytesInvalid.
	ImportErr error

	// StartDelay имитирует долгий запуск сессии.
	StartDelay time.Duration

	// StartErr: ошибка запуска сессии.
	StartErr error

	// GetFileHook позволяет подменить ответ GetFile; вызывается с номером вызова (с 1).
	GetFileHook func(call int, offset int64) (chunk []byte, handled bool, err error)

	keys     int
	starts   int
	stops    int
	exports  int
	imports  int
	calls    int
	offsets  []int64
	sessions []*Session
}

func New(home int) *Backend {
	return &Backend{
		Home:  home,
		files: make(map[int64][]byte),
	}
}

// Put кладёт содержимое файла с указанным media ID.
func (b *Backend) Put(mediaID int64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[mediaID] = data
}

func (b *Backend) HomeDC() int { return b.Home }

func (b *Backend) HomeAuthKey() backend.AuthKey {
	return Key{Dc: b.Home, Home: true}
}

func (b *Backend) CreateAuthKey(ctx context.Context, dc int) (backend.AuthKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys++
	return Key{Dc: dc, Seq: b.keys}, nil
}

func (b *Backend) StartSession(ctx context.Context, dc int, key backend.AuthKey) (backend.Session, error) {
	if b.StartDelay > 0 {
		select {
		case <-time.After(b.StartDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.StartErr != nil {
		return nil, b.StartErr
	}
	if key.DC() != dc {
		return nil, fmt.Errorf("key for dc %d used for dc %d", key.DC(), dc)
	}
	b.starts++
	s := &Session{backend: b, dc: dc, key: key.(Key)}
	b.sessions = append(b.sessions, s)
	return s, nil
}

func (b *Backend) ExportAuthorization(ctx context.Context, dc int) (backend.ExportedAuthorization, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exports++
	return backend.ExportedAuthorization{ID: int64(b.exports), Bytes: []byte{byte(dc)}}, nil
}

// Stats: снимок счётчиков.
type Stats struct {
	Keys, Starts, Stops, Exports, Imports, GetFile int
}

func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Keys:    b.keys,
		Starts:  b.starts,
		Stops:   b.stops,
		Exports: b.exports,
		Imports: b.imports,
		GetFile: b.calls,
	}
}

// Offsets возвращает смещения всех вызовов GetFile по порядку.
func (b *Backend) Offsets() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.offsets)
}

// Sessions возвращает все когда-либо запущенные сессии.
func (b *Backend) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.sessions)
}

type Session struct {
	backend *Backend
	dc      int
	key     Key
	stopped bool
}

func (s *Session) DC() int { return s.dc }

// Key возвращает ключ, с которым была запущена сессия.
func (s *Session) Key() Key { return s.key }

func (s *Session) Stopped() bool {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.stopped
}

func (s *Session) ImportAuthorization(ctx context.Context, auth backend.ExportedAuthorization) error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.imports++
	if b.imports <= b.ImportFailures {
		if b.ImportErr != nil {
			return b.ImportErr
		}
		return backend.ErrAuthBytesInvalid
	}
	return nil
}

func (s *Session) GetFile(ctx context.Context, loc model.Location, offset int64, limit int) ([]byte, error) {
	b := s.backend
	b.mu.Lock()
	b.calls++
	call := b.calls
	b.offsets = append(b.offsets, offset)
	hook := b.GetFileHook
	var id int64
	switch loc := loc.(type) {
	case model.DocumentLocation:
		id = loc.ID
	case model.PhotoLocation:
		id = loc.ID
	case model.PeerPhotoLocation:
		id = loc.PhotoID
	}
	data, ok := b.files[id]
	b.mu.Unlock()

	if hook != nil {
		if chunk, handled, err := hook(call, offset); handled {
			return chunk, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("file %d: %w", id, backend.ErrUnexpectedResponse)
	}
	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := min(offset+int64(limit), int64(len(data)))
	return slices.Clone(data[offset:end]), nil
}

func (s *Session) Stop() error {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		b.stops++
	}
	return nil
}
