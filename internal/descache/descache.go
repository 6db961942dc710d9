// Package descache разрешает ID сообщения архивного канала в дескриптор файла
// и держит найденные дескрипторы в памяти до очередной полной очистки.
package descache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tgstream/internal/fileid"
	"tgstream/internal/model"
)

const DefaultClearInterval = 30 * time.Minute

var (
	ErrNotFound    = model.ErrNotFound
	ErrCacheClosed = model.ErrCacheClosed
)

// Archive: источник сообщений. Отсутствующее сообщение даёт (nil, nil).
type Archive interface {
	GetMessage(ctx context.Context, id int) (*model.Message, error)
}

type Config struct {
	ClearInterval time.Duration // период полной очистки кэша
}

type Cache struct {
	archive  Archive
	interval time.Duration
	log      *slog.Logger

	mu        sync.RWMutex
	items     map[int]*model.FileDescriptor
	cancel    context.CancelFunc
	cancelled bool
}

func New(archive Archive, cfg Config, log *slog.Logger) *Cache {
	if cfg.ClearInterval <= 0 {
		cfg.ClearInterval = DefaultClearInterval
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		archive:  archive,
		interval: cfg.ClearInterval,
		log:      log,
		items:    make(map[int]*model.FileDescriptor),
	}
	c.startCleaner()
	return c
}

// Get возвращает дескриптор файла из сообщения messageID. Повторные вызовы
// до очистки возвращают тот же указатель, архив при этом не опрашивается.
func (c *Cache) Get(ctx context.Context, messageID int) (*model.FileDescriptor, error) {
	if d, ok, err := c.lookup(messageID); ok || err != nil {
		return d, err
	}

	// Два одновременных промаха по одному ключу оба сходят в архив,
	// в кэше останется дескриптор последнего.
	msg, err := c.archive.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", messageID, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}

	d, err := describe(msg)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", messageID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return nil, ErrCacheClosed
	}
	c.items[messageID] = d
	return d, nil
}

func (c *Cache) lookup(messageID int) (*model.FileDescriptor, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cancelled {
		return nil, false, ErrCacheClosed
	}
	d, ok := c.items[messageID]
	return d, ok, nil
}

func describe(msg *model.Message) (*model.FileDescriptor, error) {
	kind, media, ok := msg.FirstMedia()
	if !ok {
		return nil, ErrNotFound
	}

	f, err := fileid.Decode(media.FileID)
	if err != nil {
		return nil, fmt.Errorf("decode %s file id: %w", kind, err)
	}

	uniqueID := media.FileUniqueID
	if uniqueID == "" {
		uniqueID = fileid.UniqueID(f)
	}

	return &model.FileDescriptor{
		MessageID: msg.ID,
		Kind:      kind,
		File:      f,
		Size:      media.FileSize,
		MimeType:  media.MimeType,
		FileName:  media.FileName,
		UniqueID:  uniqueID,
	}, nil
}

// Len возвращает число закэшированных дескрипторов.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear удаляет все дескрипторы независимо от возраста.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.items)
	clear(c.items)
	c.mu.Unlock()

	c.log.Debug("descriptor cache cleared", "items", n)
}

func (c *Cache) startCleaner() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		tm := time.NewTimer(c.interval)
		defer tm.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-tm.C:
				c.Clear()
				tm.Reset(c.interval)
			}
		}
	}()
}

// Cancel останавливает очистку и освобождает кэш. Дальнейшие вызовы Get
// вернут ErrCacheClosed.
func (c *Cache) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cancelled {
		c.cancel()
		clear(c.items)
		c.cancelled = true
	}
}
