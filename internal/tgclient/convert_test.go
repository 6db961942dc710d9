package tgclient

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/nalgeon/be"

	"tgstream/internal/backend"
	"tgstream/internal/bot"
	"tgstream/internal/fileid"
	"tgstream/internal/model"
	"tgstream/internal/streamer"
)

func TestInputLocation(t *testing.T) {
	tests := []struct {
		name string
		loc  model.Location
		want tg.InputFileLocationClass
	}{
		{
			name: "document",
			loc:  model.DocumentLocation{ID: 1, AccessHash: 2, FileReference: []byte{3}},
			want: &tg.InputDocumentFileLocation{ID: 1, AccessHash: 2, FileReference: []byte{3}},
		},
		{
			name: "photo",
			loc:  model.PhotoLocation{ID: 1, AccessHash: 2, FileReference: []byte{3}, ThumbSize: "y"},
			want: &tg.InputPhotoFileLocation{ID: 1, AccessHash: 2, FileReference: []byte{3}, ThumbSize: "y"},
		},
		{
			name: "user_photo",
			loc:  model.PeerPhotoLocation{Peer: model.Peer{Kind: model.PeerUser, ID: 5, AccessHash: 6}, PhotoID: 7, Big: true},
			want: &tg.InputPeerPhotoFileLocation{Big: true, Peer: &tg.InputPeerUser{UserID: 5, AccessHash: 6}, PhotoID: 7},
		},
		{
			name: "chat_photo",
			loc:  model.PeerPhotoLocation{Peer: model.Peer{Kind: model.PeerChat, ID: 5}, PhotoID: 7},
			want: &tg.InputPeerPhotoFileLocation{Peer: &tg.InputPeerChat{ChatID: 5}, PhotoID: 7},
		},
		{
			name: "channel_photo",
			loc:  model.PeerPhotoLocation{Peer: model.Peer{Kind: model.PeerChannel, ID: 5, AccessHash: 9}, PhotoID: 7},
			want: &tg.InputPeerPhotoFileLocation{Peer: &tg.InputPeerChannel{ChannelID: 5, AccessHash: 9}, PhotoID: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inputLocation(tt.loc)
			be.Err(t, err, nil)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("inputLocation mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := inputLocation(nil)
	be.Err(t, err)
}

func document(attrs ...tg.DocumentAttributeClass) *tg.Message {
	return &tg.Message{
		ID:      10,
		Message: "caption",
		Media: &tg.MessageMediaDocument{Document: &tg.Document{
			ID:            100,
			AccessHash:    200,
			FileReference: []byte{1, 2, 3},
			DCID:          4,
			Size:          12345,
			MimeType:      "video/mp4",
			Attributes:    attrs,
		}},
	}
}

func TestConvertDocument(t *testing.T) {
	tests := []struct {
		name  string
		attrs []tg.DocumentAttributeClass
		kind  model.MediaKind
		typ   fileid.Type
	}{
		{"plain", []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: "a.bin"}}, model.MediaDocument, fileid.TypeDocument},
		{"video", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{}}, model.MediaVideo, fileid.TypeVideo},
		{"video_note", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{RoundMessage: true}}, model.MediaVideoNote, fileid.TypeVideoNote},
		{"animation", []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{}, &tg.DocumentAttributeAnimated{}}, model.MediaAnimation, fileid.TypeAnimation},
		{"audio", []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{}}, model.MediaAudio, fileid.TypeAudio},
		{"voice", []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true}}, model.MediaVoice, fileid.TypeVoice},
		{"sticker", []tg.DocumentAttributeClass{&tg.DocumentAttributeSticker{}}, model.MediaSticker, fileid.TypeSticker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := convertMessage(document(tt.attrs...))
			be.Equal(t, m.ID, 10)
			be.Equal(t, m.Caption, "caption")

			kind, media, ok := m.FirstMedia()
			be.True(t, ok)
			be.Equal(t, kind, tt.kind)
			be.Equal(t, media.FileSize, int64(12345))
			be.Equal(t, media.MimeType, "video/mp4")

			f, err := fileid.Decode(media.FileID)
			be.Err(t, err, nil)
			be.Equal(t, f.Type, tt.typ)
			be.Equal(t, f.DC, 4)
			be.Equal(t, f.MediaID, int64(100))
			be.Equal(t, f.AccessHash, int64(200))
			be.Equal(t, f.FileReference, []byte{1, 2, 3})
			be.Equal(t, media.FileUniqueID, fileid.UniqueID(f))

			// адрес, который построит стример, указывает на исходный документ
			loc, err := inputLocation(streamer.Location(f))
			be.Err(t, err, nil)
			want := &tg.InputDocumentFileLocation{ID: 100, AccessHash: 200, FileReference: []byte{1, 2, 3}}
			if diff := cmp.Diff(tg.InputFileLocationClass(want), loc); diff != "" {
				t.Errorf("location mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvertPhoto(t *testing.T) {
	msg := &tg.Message{
		ID: 11,
		Media: &tg.MessageMediaPhoto{Photo: &tg.Photo{
			ID:            300,
			AccessHash:    400,
			FileReference: []byte{9},
			DCID:          2,
			Sizes: []tg.PhotoSizeClass{
				&tg.PhotoStrippedSize{Type: "i"},
				&tg.PhotoSize{Type: "m", Size: 1000},
				&tg.PhotoSizeProgressive{Type: "y", Sizes: []int{2000, 5000, 9000}},
				&tg.PhotoSize{Type: "x", Size: 4000},
			},
		}},
	}
	m := convertMessage(msg)
	be.True(t, m.Photo != nil)
	be.Equal(t, m.Photo.FileSize, int64(9000))

	f, err := fileid.Decode(m.Photo.FileID)
	be.Err(t, err, nil)
	be.Equal(t, f.Type, fileid.TypePhoto)
	be.Equal(t, f.ThumbnailSize, "y")

	loc, err := inputLocation(streamer.Location(f))
	be.Err(t, err, nil)
	want := &tg.InputPhotoFileLocation{ID: 300, AccessHash: 400, FileReference: []byte{9}, ThumbSize: "y"}
	if diff := cmp.Diff(tg.InputFileLocationClass(want), loc); diff != "" {
		t.Errorf("location mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertWithoutMedia(t *testing.T) {
	m := convertMessage(&tg.Message{ID: 3, Message: "text"})
	_, _, ok := m.FirstMedia()
	be.True(t, !ok)

	m = convertMessage(&tg.Message{ID: 3, Media: &tg.MessageMediaDocument{Document: &tg.DocumentEmpty{}}})
	_, _, ok = m.FirstMedia()
	be.True(t, !ok)
}

func TestIncoming(t *testing.T) {
	e := tg.Entities{Users: map[int64]*tg.User{
		7: {ID: 7, AccessHash: 70, FirstName: "Alice", Username: "alice"},
		8: {ID: 8, Bot: true},
	}}

	msg := document(&tg.DocumentAttributeVideo{})
	msg.PeerID = &tg.PeerUser{UserID: 7}
	msg.ReplyTo = &tg.MessageReplyHeader{ReplyToMsgID: 3}

	in, ok := incoming(msg, e)
	be.True(t, ok)
	be.Equal(t, in, bot.Incoming{
		ID:      10,
		From:    bot.User{ID: 7, AccessHash: 70, FirstName: "Alice", Username: "alice"},
		Text:    "caption",
		ReplyTo: 3,
		Media:   true,
	})

	// стикер не считается файлом для ссылки
	msg = document(&tg.DocumentAttributeSticker{})
	msg.PeerID = &tg.PeerUser{UserID: 7}
	in, ok = incoming(msg, e)
	be.True(t, ok)
	be.True(t, !in.Media)

	// боты и группы игнорируются
	msg.PeerID = &tg.PeerUser{UserID: 8}
	_, ok = incoming(msg, e)
	be.True(t, !ok)
	msg.PeerID = &tg.PeerChat{ChatID: 1}
	_, ok = incoming(msg, e)
	be.True(t, !ok)
}

func TestMarkup(t *testing.T) {
	be.True(t, markup(nil) == nil)

	got := markup([][]bot.Button{
		{{Text: "a", URL: "https://a"}, {Text: "b", URL: "https://b"}},
		{{Text: "c", URL: "https://c"}},
	})
	want := &tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{
		{Buttons: []tg.KeyboardButtonClass{
			&tg.KeyboardButtonURL{Text: "a", URL: "https://a"},
			&tg.KeyboardButtonURL{Text: "b", URL: "https://b"},
		}},
		{Buttons: []tg.KeyboardButtonClass{&tg.KeyboardButtonURL{Text: "c", URL: "https://c"}}},
	}}
	if diff := cmp.Diff(tg.ReplyMarkupClass(want), got); diff != "" {
		t.Errorf("markup mismatch (-want +got):\n%s", diff)
	}
}

func TestSentMessageID(t *testing.T) {
	upd := &tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateMessageID{ID: 5, RandomID: 1},
		&tg.UpdateMessageID{ID: 6, RandomID: 2},
	}}
	id, ok := sentMessageID(upd, 2)
	be.True(t, ok)
	be.Equal(t, id, 6)

	_, ok = sentMessageID(upd, 3)
	be.True(t, !ok)

	id, ok = sentMessageID(&tg.UpdateShortSentMessage{ID: 9}, 0)
	be.True(t, ok)
	be.Equal(t, id, 9)
}

func TestMapPeerError(t *testing.T) {
	be.Err(t, mapPeerError(nil), nil)

	blocked := tgerr.New(403, "USER_IS_BLOCKED")
	be.Err(t, mapPeerError(blocked), backend.ErrPeerGone)

	other := tgerr.New(400, "MESSAGE_EMPTY")
	err := mapPeerError(other)
	be.True(t, !errors.Is(err, backend.ErrPeerGone))
}

func TestArchiveChannelID(t *testing.T) {
	be.Equal(t, archiveChannelID(-1001234567890), int64(1234567890))
	be.Equal(t, archiveChannelID(1234567890), int64(1234567890))
}
