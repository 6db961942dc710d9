package tgclient

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/nalgeon/be"

	"tgstream/internal/bot"
)

type blockingHandler struct {
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
	release chan struct{}
	ctxs    chan context.Context
}

func (h *blockingHandler) Handle(ctx context.Context, in bot.Incoming) error {
	h.calls.Add(1)
	n := h.running.Add(1)
	defer h.running.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	h.ctxs <- ctx
	<-h.release
	return nil
}

func newUpdateClient(workers int) *Client {
	return &Client{log: slog.Default(), updates: make(chan struct{}, workers)}
}

func textUpdate(uid int64) *tg.UpdateNewMessage {
	return &tg.UpdateNewMessage{Message: &tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: uid}, Message: "/start"}}
}

func TestOnNewMessageBeforeRun(t *testing.T) {
	c := newUpdateClient(1)
	h := &blockingHandler{release: make(chan struct{}), ctxs: make(chan context.Context, 1)}
	c.Bind(h)

	be.Err(t, c.onNewMessage(context.Background(), tg.Entities{}, textUpdate(7)), nil)
	time.Sleep(10 * time.Millisecond)
	be.Equal(t, h.calls.Load(), int32(0))
}

func TestOnNewMessageUsesRunContext(t *testing.T) {
	c := newUpdateClient(2)
	h := &blockingHandler{release: make(chan struct{}), ctxs: make(chan context.Context, 4)}
	c.Bind(h)

	type key struct{}
	runCtx := context.WithValue(context.Background(), key{}, "run")
	c.mu.Lock()
	c.runCtx = runCtx
	c.mu.Unlock()

	be.Err(t, c.onNewMessage(context.Background(), tg.Entities{}, textUpdate(7)), nil)
	got := <-h.ctxs
	be.Equal(t, got.Value(key{}), "run")
	close(h.release)
}

func TestOnNewMessageBoundsWorkers(t *testing.T) {
	c := newUpdateClient(2)
	h := &blockingHandler{release: make(chan struct{}), ctxs: make(chan context.Context, 8)}
	c.Bind(h)
	c.mu.Lock()
	c.runCtx = context.Background()
	c.mu.Unlock()

	be.Err(t, c.onNewMessage(context.Background(), tg.Entities{}, textUpdate(7)), nil)
	be.Err(t, c.onNewMessage(context.Background(), tg.Entities{}, textUpdate(8)), nil)
	<-h.ctxs
	<-h.ctxs

	// третий ждёт свободного места и сдаётся по отмене диспетчера
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.onNewMessage(ctx, tg.Entities{}, textUpdate(9))
	be.Err(t, err, context.DeadlineExceeded)

	close(h.release)
	be.Equal(t, h.peak.Load(), int32(2))
	be.Equal(t, h.calls.Load(), int32(2))
}
