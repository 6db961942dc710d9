package tgclient

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"tgstream/internal/backend"
	"tgstream/internal/bot"
	"tgstream/internal/model"
)

var _ bot.Messenger = (*Client)(nil)

// peerGoneErrors: ответы сервера, после которых писать пользователю бесполезно.
var peerGoneErrors = []string{
	"USER_IS_BLOCKED",
	"INPUT_USER_DEACTIVATED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
	"PEER_ID_INVALID",
}

func mapPeerError(err error) error {
	if err != nil && tgerr.Is(err, peerGoneErrors...) {
		return fmt.Errorf("%w: %w", backend.ErrPeerGone, err)
	}
	return err
}

func userPeer(u bot.User) *tg.InputPeerUser {
	return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
}

func markup(rows [][]bot.Button) tg.ReplyMarkupClass {
	if len(rows) == 0 {
		return nil
	}
	m := &tg.ReplyInlineMarkup{}
	for _, row := range rows {
		var buttons []tg.KeyboardButtonClass
		for _, b := range row {
			buttons = append(buttons, &tg.KeyboardButtonURL{Text: b.Text, URL: b.URL})
		}
		m.Rows = append(m.Rows, tg.KeyboardButtonRow{Buttons: buttons})
	}
	return m
}

func (c *Client) Send(ctx context.Context, to bot.User, text string, buttons ...[]bot.Button) error {
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:        userPeer(to),
		Message:     text,
		RandomID:    rand.Int64(),
		ReplyMarkup: markup(buttons),
		NoWebpage:   true,
	})
	return mapPeerError(err)
}

func (c *Client) Archive(ctx context.Context, from bot.User, messageID int) (int, error) {
	return c.forward(ctx, userPeer(from), messageID, c.archivePeer())
}

func (c *Client) Copy(ctx context.Context, from bot.User, messageID int, to bot.User) error {
	_, err := c.forward(ctx, userPeer(from), messageID, userPeer(to))
	return err
}

// forward пересылает сообщение без подписи автора и возвращает ID копии.
func (c *Client) forward(ctx context.Context, from tg.InputPeerClass, messageID int, to tg.InputPeerClass) (int, error) {
	randomID := rand.Int64()
	upd, err := c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer:   from,
		ID:         []int{messageID},
		RandomID:   []int64{randomID},
		ToPeer:     to,
		DropAuthor: true,
	})
	if err != nil {
		return 0, mapPeerError(err)
	}
	id, ok := sentMessageID(upd, randomID)
	if !ok {
		return 0, fmt.Errorf("%w: no message id in %T", backend.ErrUnexpectedResponse, upd)
	}
	return id, nil
}

// sentMessageID ищет в ответе ID нового сообщения по random_id запроса.
func sentMessageID(upd tg.UpdatesClass, randomID int64) (int, bool) {
	var list []tg.UpdateClass
	switch u := upd.(type) {
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	case *tg.UpdateShortSentMessage:
		return u.ID, true
	}
	for _, u := range list {
		if m, ok := u.(*tg.UpdateMessageID); ok && m.RandomID == randomID {
			return m.ID, true
		}
	}
	return 0, false
}

func (c *Client) Deliver(ctx context.Context, to bot.User, archivedID int, caption string, buttons ...[]bot.Button) error {
	msg, err := c.archived(ctx, archivedID)
	if err != nil {
		return err
	}
	if msg == nil {
		return model.ErrNotFound
	}

	media, ok := inputMedia(msg.Media)
	if !ok {
		// без вложения просто пересылаем копию
		_, err := c.forward(ctx, c.archivePeer(), archivedID, userPeer(to))
		return err
	}
	_, err = c.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:        userPeer(to),
		Media:       media,
		Message:     caption,
		RandomID:    rand.Int64(),
		ReplyMarkup: markup(buttons),
	})
	return mapPeerError(err)
}

func inputMedia(media tg.MessageMediaClass) (tg.InputMediaClass, bool) {
	switch m := media.(type) {
	case *tg.MessageMediaDocument:
		if doc, ok := m.Document.(*tg.Document); ok {
			return &tg.InputMediaDocument{ID: doc.AsInput()}, true
		}
	case *tg.MessageMediaPhoto:
		if photo, ok := m.Photo.(*tg.Photo); ok {
			return &tg.InputMediaPhoto{ID: photo.AsInput()}, true
		}
	}
	return nil, false
}

func (c *Client) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	h, runCtx := c.boundHandler()
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out || h == nil {
		return nil
	}
	in, ok := incoming(msg, e)
	if !ok {
		return nil
	}

	// обработка может быть долгой (рассылка), диспетчер ждёт только
	// свободного места среди обработчиков
	select {
	case c.updates <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	go func() {
		defer func() { <-c.updates }()
		if err := h.Handle(runCtx, in); err != nil {
			c.log.Debug("update handler failed", "user_id", in.From.ID, "error", err)
		}
	}()
	return nil
}

// incoming переводит личное сообщение пользователя в форму обработчика.
func incoming(msg *tg.Message, e tg.Entities) (bot.Incoming, bool) {
	peer, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return bot.Incoming{}, false
	}
	from := bot.User{ID: peer.UserID}
	if user, ok := e.Users[peer.UserID]; ok {
		if user.Bot {
			return bot.Incoming{}, false
		}
		from.AccessHash = user.AccessHash
		from.FirstName = user.FirstName
		from.Username = user.Username
	}

	in := bot.Incoming{ID: msg.ID, From: from, Text: msg.Message}
	if h, ok := msg.ReplyTo.(*tg.MessageReplyHeader); ok {
		in.ReplyTo = h.ReplyToMsgID
	}
	if m, ok := msg.Media.(*tg.MessageMediaDocument); ok {
		if doc, ok := m.Document.(*tg.Document); ok {
			kind, _, _ := describeDocument(doc)
			in.Media = kind == model.MediaDocument || kind == model.MediaVideo || kind == model.MediaAudio
		}
	}
	return in, true
}
