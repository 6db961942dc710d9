package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tgstream/internal/backend"
	"tgstream/internal/link"
)

const (
	textBroadcastNeedReply = "Reply to the message you want to broadcast."
	textBroadcastStarted   = "Broadcasting your message..."
	textBroadcastBusy      = "Another broadcast is still running, try again when it finishes."
	textBroadcastDone      = "Broadcast completed in %s.\n\nTotal users: %d\nSuccess: %d\nRemoved: %d\nFailed: %d"
)

// BroadcastStats: итог рассылки.
type BroadcastStats struct {
	Total   int
	Success int
	Removed int // получатель недоступен и удалён из базы
	Failed  int
}

func (h *Handler) broadcast(ctx context.Context, in Incoming) error {
	if !h.isAdmin(in.From) {
		return nil
	}
	if in.ReplyTo == 0 {
		return h.Messenger.Send(ctx, in.From, textBroadcastNeedReply)
	}
	if !h.broadcasting.CompareAndSwap(false, true) {
		return h.Messenger.Send(ctx, in.From, textBroadcastBusy)
	}
	defer h.broadcasting.Store(false)

	if err := h.Messenger.Send(ctx, in.From, textBroadcastStarted); err != nil {
		return err
	}

	started := time.Now()
	st, err := h.Broadcast(ctx, in.From, in.ReplyTo)
	if err != nil {
		return err
	}
	return h.Messenger.Send(ctx, in.From, fmt.Sprintf(textBroadcastDone,
		link.ReadableTime(time.Since(started)), st.Total, st.Success, st.Removed, st.Failed))
}

// Broadcast пересылает сообщение всем зарегистрированным пользователям.
// Недоступные получатели удаляются из базы, прочие ошибки повторяются
// не больше BroadcastAttempts раз с удваивающейся паузой.
func (h *Handler) Broadcast(ctx context.Context, from User, messageID int) (BroadcastStats, error) {
	all, err := h.Users.AllUsers(ctx)
	if err != nil {
		return BroadcastStats{}, err
	}

	st := BroadcastStats{Total: len(all)}
	for _, u := range all {
		to := User{ID: u.ID, AccessHash: u.AccessHash, FirstName: u.Name}
		err := h.copyWithRetry(ctx, from, messageID, to)
		switch {
		case err == nil:
			st.Success++
		case errors.Is(err, backend.ErrPeerGone):
			if err := h.Users.DeleteUser(ctx, u.ID); err != nil {
				return st, err
			}
			st.Removed++
		case ctx.Err() != nil:
			return st, ctx.Err()
		default:
			h.log.Warn("broadcast delivery failed", "user_id", u.ID, "error", err)
			st.Failed++
		}
	}

	h.log.Info("broadcast finished", "total", st.Total, "success", st.Success, "removed", st.Removed, "failed", st.Failed)
	return st, nil
}

func (h *Handler) copyWithRetry(ctx context.Context, from User, messageID int, to User) error {
	backoff := h.cfg.BroadcastBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = h.Messenger.Copy(ctx, from, messageID, to)
		if err == nil || errors.Is(err, backend.ErrPeerGone) || attempt >= h.cfg.BroadcastAttempts {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}
