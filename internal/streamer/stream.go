// Package streamer превращает диапазон байт файла в последовательность
// выровненных запросов к backend и отдаёт куски, обрезанные точно по границам.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tgstream/internal/backend"
	"tgstream/internal/balancer"
	"tgstream/internal/fileid"
	"tgstream/internal/model"
)

const DefaultChunkTimeout = 30 * time.Second

// Reason: чем закончился поток.
type Reason int

const (
	ReasonNone      Reason = iota // поток ещё не дочитан
	ReasonCompleted               // отданы все запланированные куски
	ReasonExhausted               // backend вернул пустой кусок раньше плана
	ReasonTruncated               // таймаут куска или ответ не той формы
	ReasonAbandoned               // потребитель перестал читать
	ReasonCancelled               // отменён контекст запроса
	ReasonFailed                  // прочая ошибка backend
)

var reasonNames = [...]string{"none", "completed", "exhausted", "truncated", "abandoned", "cancelled", "failed"}

func (r Reason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Result: итог потока.
type Result struct {
	Reason Reason
	Chunks int   // сколько кусков отдано потребителю
	Bytes  int64 // сколько байт отдано потребителю
	Err    error // причина для Truncated, Cancelled и Failed
}

// Clean сообщает, что поток закончился без потери данных по вине backend.
func (r Result) Clean() bool {
	return r.Reason == ReasonCompleted || r.Reason == ReasonExhausted
}

// Sessions выдаёт сессию нужного дата-центра. Реализуется sessionpool.Pool.
type Sessions interface {
	SessionFor(ctx context.Context, dc int) (backend.Session, error)
}

type Config struct {
	ChunkTimeout time.Duration // предельное время запроса одного куска
}

// Streamer обслуживает потоки одного аккаунта.
type Streamer struct {
	sessions Sessions
	load     *balancer.Counter
	timeout  time.Duration
	log      *slog.Logger
}

func New(sessions Sessions, load *balancer.Counter, cfg Config, log *slog.Logger) *Streamer {
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = DefaultChunkTimeout
	}
	if load == nil {
		load = &balancer.Counter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{
		sessions: sessions,
		load:     load,
		timeout:  cfg.ChunkTimeout,
		log:      log,
	}
}

// Load возвращает счётчик нагрузки аккаунта.
func (s *Streamer) Load() *balancer.Counter { return s.load }

// Open занимает аккаунт, находит сессию дата-центра файла и готовит поток.
// План не проверяется: он должен быть построен через NewPlan.
//
// Вызывающий обязан либо вычитать Chunks, либо вызвать Close.
func (s *Streamer) Open(ctx context.Context, d model.FileDescriptor, plan Plan) (*Stream, error) {
	s.load.Inc()

	sess, err := s.sessions.SessionFor(ctx, d.File.DC)
	if err != nil {
		s.load.Dec()
		return nil, err
	}

	return &Stream{
		session: sess,
		loc:     Location(d.File),
		plan:    plan,
		timeout: s.timeout,
		load:    s.load,
		log:     s.log.With("message_id", d.MessageID, "dc", d.File.DC),
	}, nil
}

// Stream: одноразовая последовательность кусков одного диапазона.
type Stream struct {
	session backend.Session
	loc     model.Location
	plan    Plan
	timeout time.Duration
	load    *balancer.Counter
	log     *slog.Logger

	started atomic.Bool
	release sync.Once

	mu     sync.Mutex
	result Result
}

// Plan возвращает план потока.
func (st *Stream) Plan() Plan { return st.plan }

// Chunks возвращает последовательность кусков. Повторный вызов даёт пустую
// последовательность: поток не перезапускается. Куски запрашиваются строго
// по возрастанию смещения, следующий только после отдачи предыдущего.
func (st *Stream) Chunks(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if !st.started.CompareAndSwap(false, true) {
			return
		}
		defer st.Close()

		offset := st.plan.Offset
		for index := 1; index <= st.plan.Count; index++ {
			chunk, err := st.fetch(ctx, offset)
			if err != nil {
				st.finish(st.classify(ctx, err), err)
				return
			}
			if len(chunk) == 0 {
				st.finish(ReasonExhausted, nil)
				return
			}

			chunk = st.cut(chunk, index)
			if len(chunk) > 0 {
				st.account(chunk)
				if !yield(chunk) {
					st.finish(ReasonAbandoned, nil)
					return
				}
			}
			offset += int64(st.plan.ChunkSize)
		}
		st.finish(ReasonCompleted, nil)
	}
}

// Result возвращает итог потока. До окончания чтения Reason равен ReasonNone.
func (st *Stream) Result() Result {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.result
}

// Close освобождает аккаунт. Безопасен при повторном вызове.
func (st *Stream) Close() {
	st.release.Do(func() {
		st.load.Dec()
		st.mu.Lock()
		if st.result.Reason == ReasonNone {
			st.result.Reason = ReasonAbandoned
		}
		st.mu.Unlock()
	})
}

func (st *Stream) fetch(ctx context.Context, offset int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()
	return st.session.GetFile(ctx, st.loc, offset, st.plan.ChunkSize)
}

// cut обрезает кусок с номером index (с 1). Короткий кусок обрезается
// по своей длине.
func (st *Stream) cut(chunk []byte, index int) []byte {
	first, last := 0, len(chunk)
	if index == 1 {
		first = min(st.plan.FirstCut, len(chunk))
	}
	if index == st.plan.Count {
		last = min(st.plan.LastCut, len(chunk))
	}
	if first >= last {
		return chunk[:0]
	}
	return chunk[first:last]
}

func (st *Stream) classify(ctx context.Context, err error) Reason {
	switch {
	case ctx.Err() != nil:
		return ReasonCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, backend.ErrUnexpectedResponse):
		return ReasonTruncated
	default:
		return ReasonFailed
	}
}

func (st *Stream) account(chunk []byte) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.result.Chunks++
	st.result.Bytes += int64(len(chunk))
}

func (st *Stream) finish(reason Reason, err error) {
	st.mu.Lock()
	st.result.Reason = reason
	st.result.Err = err
	res := st.result
	st.mu.Unlock()

	switch reason {
	case ReasonCompleted, ReasonExhausted, ReasonAbandoned, ReasonCancelled:
		st.log.Debug("stream finished", "reason", reason, "chunks", res.Chunks, "bytes", res.Bytes)
	default:
		// обрыв посреди потока клиент увидит как недокачанный файл
		st.log.Warn("stream interrupted", "reason", reason, "chunks", res.Chunks, "bytes", res.Bytes, "error", err)
	}
}

// offsetChannel: смещение, на которое сдвинуты идентификаторы каналов
// в форме -100XXXXXXXXXX.
const offsetChannel = 1_000_000_000_000

// Location строит адрес файла на стороне backend.
func Location(f fileid.FileID) model.Location {
	switch f.Type {
	case fileid.TypeChatPhoto:
		var peer model.Peer
		switch {
		case f.ChatID > 0:
			peer = model.Peer{Kind: model.PeerUser, ID: f.ChatID, AccessHash: f.ChatAccessHash}
		case f.ChatAccessHash == 0:
			peer = model.Peer{Kind: model.PeerChat, ID: -f.ChatID}
		default:
			peer = model.Peer{Kind: model.PeerChannel, ID: -f.ChatID - offsetChannel, AccessHash: f.ChatAccessHash}
		}
		return model.PeerPhotoLocation{
			Peer:     peer,
			PhotoID:  f.MediaID,
			VolumeID: f.VolumeID,
			LocalID:  f.LocalID,
			Big:      f.ThumbnailSource == fileid.ThumbnailSourceChatPhotoBig,
		}

	case fileid.TypePhoto:
		return model.PhotoLocation{
			ID:            f.MediaID,
			AccessHash:    f.AccessHash,
			FileReference: f.FileReference,
			ThumbSize:     f.ThumbnailSize,
		}

	default:
		return model.DocumentLocation{
			ID:            f.MediaID,
			AccessHash:    f.AccessHash,
			FileReference: f.FileReference,
			ThumbSize:     f.ThumbnailSize,
		}
	}
}
