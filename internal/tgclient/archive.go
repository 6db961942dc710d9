package tgclient

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"

	"tgstream/internal/fileid"
	"tgstream/internal/model"
)

// GetMessage читает сообщение архивного канала. Отсутствующее или
// удалённое сообщение даёт nil без ошибки.
func (c *Client) GetMessage(ctx context.Context, id int) (*model.Message, error) {
	msg, err := c.archived(ctx, id)
	if err != nil || msg == nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

func (c *Client) archived(ctx context.Context, id int) (*tg.Message, error) {
	res, err := c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: c.archive,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: id}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get archived message %d", id)
	}

	var msgs []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesChannelMessages:
		msgs = r.Messages
	case *tg.MessagesMessages:
		msgs = r.Messages
	case *tg.MessagesMessagesSlice:
		msgs = r.Messages
	}
	for _, m := range msgs {
		if msg, ok := m.(*tg.Message); ok && msg.ID == id {
			return msg, nil
		}
	}
	return nil, nil
}

// convertMessage достаёт из сообщения вложение и кодирует его адрес
// в строковый file_id.
func convertMessage(msg *tg.Message) *model.Message {
	out := &model.Message{ID: msg.ID, Caption: msg.Message}

	switch m := msg.Media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			break
		}
		kind, typ, name := describeDocument(doc)
		f := fileid.FileID{
			Type:          typ,
			DC:            doc.DCID,
			FileReference: doc.FileReference,
			MediaID:       doc.ID,
			AccessHash:    doc.AccessHash,
		}
		out.Set(kind, &model.Media{
			FileID:       fileid.Encode(f),
			FileUniqueID: fileid.UniqueID(f),
			FileName:     name,
			MimeType:     doc.MimeType,
			FileSize:     doc.Size,
		})

	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			break
		}
		thumb, size := largestSize(photo.Sizes)
		f := fileid.FileID{
			Type:              fileid.TypePhoto,
			DC:                photo.DCID,
			FileReference:     photo.FileReference,
			MediaID:           photo.ID,
			AccessHash:        photo.AccessHash,
			ThumbnailSource:   fileid.ThumbnailSourceThumbnail,
			ThumbnailFileType: fileid.TypePhoto,
			ThumbnailSize:     thumb,
		}
		out.Photo = &model.Media{
			FileID:       fileid.Encode(f),
			FileUniqueID: fileid.UniqueID(f),
			MimeType:     "image/jpeg",
			FileSize:     int64(size),
		}
	}
	return out
}

// describeDocument определяет вид документа по его атрибутам.
func describeDocument(doc *tg.Document) (kind model.MediaKind, typ fileid.Type, name string) {
	kind, typ = model.MediaDocument, fileid.TypeDocument

	var video, round, animated, sticker, audio, voice bool
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			name = a.FileName
		case *tg.DocumentAttributeVideo:
			video, round = true, a.RoundMessage
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeSticker:
			sticker = true
		case *tg.DocumentAttributeAudio:
			audio, voice = true, a.Voice
		}
	}

	switch {
	case sticker:
		return model.MediaSticker, fileid.TypeSticker, name
	case animated:
		return model.MediaAnimation, fileid.TypeAnimation, name
	case round:
		return model.MediaVideoNote, fileid.TypeVideoNote, name
	case video:
		return model.MediaVideo, fileid.TypeVideo, name
	case voice:
		return model.MediaVoice, fileid.TypeVoice, name
	case audio:
		return model.MediaAudio, fileid.TypeAudio, name
	}
	return kind, typ, name
}

// largestSize возвращает тип и размер самой большой версии фото.
func largestSize(sizes []tg.PhotoSizeClass) (thumb string, size int) {
	for _, s := range sizes {
		switch p := s.(type) {
		case *tg.PhotoSize:
			if p.Size >= size {
				thumb, size = p.Type, p.Size
			}
		case *tg.PhotoSizeProgressive:
			if n := len(p.Sizes); n > 0 && p.Sizes[n-1] >= size {
				thumb, size = p.Type, p.Sizes[n-1]
			}
		}
	}
	return thumb, size
}
