// Package fileid кодирует и декодирует непрозрачные идентификаторы файлов
// (формат file_id из Bot API) и их короткие уникальные идентификаторы.
package fileid

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// Type: тип медиа, закодированный в идентификаторе.
type Type int32

const (
	TypeThumbnail Type = iota
	TypeChatPhoto
	TypePhoto
	TypeVoice
	TypeVideo
	TypeDocument
	TypeEncrypted
	TypeTemp
	TypeSticker
	TypeAudio
	TypeAnimation
	TypeEncryptedThumbnail
	TypeWallpaper
	TypeVideoNote
	TypeSecureRaw
	TypeSecure
	TypeBackground
	TypeDocumentAsFile
)

var typeNames = [...]string{
	"thumbnail", "chat_photo", "photo", "voice", "video", "document", "encrypted",
	"temp", "sticker", "audio", "animation", "encrypted_thumbnail", "wallpaper",
	"video_note", "secure_raw", "secure", "background", "document_as_file",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", int32(t))
}

// IsPhoto сообщает, несёт ли идентификатор этого типа фото-хвост (volume_id и т.д.).
func (t Type) IsPhoto() bool {
	switch t {
	case TypeThumbnail, TypeChatPhoto, TypePhoto, TypeWallpaper, TypeEncryptedThumbnail:
		return true
	}
	return false
}

// ThumbnailSource: источник миниатюры для фото-типов.
type ThumbnailSource int32

const (
	ThumbnailSourceLegacy ThumbnailSource = iota
	ThumbnailSourceThumbnail
	ThumbnailSourceChatPhotoSmall
	ThumbnailSourceChatPhotoBig
	ThumbnailSourceStickerSetThumbnail
)

const (
	webLocationFlag   = 1 << 24
	fileReferenceFlag = 1 << 25

	// Актуальная версия формата, которую выпускает Encode по умолчанию.
	CurrentMajor = 4
	CurrentMinor = 30
)

var (
	ErrMalformed       = errors.New("malformed file id")
	ErrUnknownType     = errors.New("unknown file type")
	ErrUnknownSource   = errors.New("unknown thumbnail source")
	errShortBuffer     = fmt.Errorf("%w: unexpected end of data", ErrMalformed)
	errInvalidEncoding = fmt.Errorf("%w: invalid base64", ErrMalformed)
)

// FileID: декодированный идентификатор удалённого файла.
//
// Поля фото-хвоста заполнены только для фото-типов (см. Type.IsPhoto),
// причём набор заполненных полей зависит от ThumbnailSource.
type FileID struct {
	Major int
	Minor int

	Type          Type
	DC            int
	FileReference []byte
	URL           string // только для web-локаций
	MediaID       int64
	AccessHash    int64

	VolumeID             int64
	ThumbnailSource      ThumbnailSource
	ThumbnailFileType    Type
	ThumbnailSize        string
	Secret               int64
	LocalID              int32
	ChatID               int64
	ChatAccessHash       int64
	StickerSetID         int64
	StickerSetAccessHash int64
}

// Decode разбирает строковый идентификатор.
func Decode(s string) (FileID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return FileID{}, errInvalidEncoding
	}
	data := rleDecode(raw)
	if len(data) < 1 {
		return FileID{}, errShortBuffer
	}

	var f FileID
	f.Major = int(data[len(data)-1])
	if f.Major < 4 {
		data = data[:len(data)-1]
	} else {
		if len(data) < 2 {
			return FileID{}, errShortBuffer
		}
		f.Minor = int(data[len(data)-2])
		data = data[:len(data)-2]
	}

	r := &reader{buf: data}
	typeWithFlags := r.int32()
	f.DC = int(r.int32())

	hasWebLocation := typeWithFlags&webLocationFlag != 0
	hasFileReference := typeWithFlags&fileReferenceFlag != 0
	f.Type = Type(typeWithFlags &^ (webLocationFlag | fileReferenceFlag))
	if f.Type < 0 || int(f.Type) >= len(typeNames) {
		return FileID{}, fmt.Errorf("%w: %d", ErrUnknownType, int32(f.Type))
	}

	if hasWebLocation {
		f.URL = string(r.tlBytes())
		f.AccessHash = r.int64()
		return f, r.err
	}

	if hasFileReference {
		f.FileReference = r.tlBytes()
	}
	f.MediaID = r.int64()
	f.AccessHash = r.int64()

	if f.Type.IsPhoto() {
		f.VolumeID = r.int64()
		if f.Major >= 4 {
			f.ThumbnailSource = ThumbnailSource(r.int32())
		}

		switch f.ThumbnailSource {
		case ThumbnailSourceLegacy:
			f.Secret = r.int64()
			f.LocalID = r.int32()
		case ThumbnailSourceThumbnail:
			f.ThumbnailFileType = Type(r.int32())
			f.ThumbnailSize = string(rune(r.int32()))
			f.LocalID = r.int32()
		case ThumbnailSourceChatPhotoSmall, ThumbnailSourceChatPhotoBig:
			f.ChatID = r.int64()
			f.ChatAccessHash = r.int64()
			f.LocalID = r.int32()
		case ThumbnailSourceStickerSetThumbnail:
			f.StickerSetID = r.int64()
			f.StickerSetAccessHash = r.int64()
			f.LocalID = r.int32()
		default:
			return FileID{}, fmt.Errorf("%w: %d", ErrUnknownSource, int32(f.ThumbnailSource))
		}
	}

	return f, r.err
}

// Encode собирает строковый идентификатор. Нулевые Major/Minor заменяются
// на текущую версию формата.
func Encode(f FileID) string {
	major, minor := f.Major, f.Minor
	if major == 0 {
		major, minor = CurrentMajor, CurrentMinor
	}

	var w writer
	typeWithFlags := int32(f.Type)
	if f.URL != "" {
		typeWithFlags |= webLocationFlag
	}
	if len(f.FileReference) > 0 {
		typeWithFlags |= fileReferenceFlag
	}
	w.int32(typeWithFlags)
	w.int32(int32(f.DC))

	if f.URL != "" {
		w.tlBytes([]byte(f.URL))
		w.int64(f.AccessHash)
	} else {
		if len(f.FileReference) > 0 {
			w.tlBytes(f.FileReference)
		}
		w.int64(f.MediaID)
		w.int64(f.AccessHash)

		if f.Type.IsPhoto() {
			w.int64(f.VolumeID)
			if major >= 4 {
				w.int32(int32(f.ThumbnailSource))
			}
			switch f.ThumbnailSource {
			case ThumbnailSourceLegacy:
				w.int64(f.Secret)
				w.int32(f.LocalID)
			case ThumbnailSourceThumbnail:
				w.int32(int32(f.ThumbnailFileType))
				w.int32(int32(firstRune(f.ThumbnailSize)))
				w.int32(f.LocalID)
			case ThumbnailSourceChatPhotoSmall, ThumbnailSourceChatPhotoBig:
				w.int64(f.ChatID)
				w.int64(f.ChatAccessHash)
				w.int32(f.LocalID)
			case ThumbnailSourceStickerSetThumbnail:
				w.int64(f.StickerSetID)
				w.int64(f.StickerSetAccessHash)
				w.int32(f.LocalID)
			}
		}
	}

	if major >= 4 {
		w.buf.WriteByte(byte(minor))
	}
	w.buf.WriteByte(byte(major))

	return base64.RawURLEncoding.EncodeToString(rleEncode(w.buf.Bytes()))
}

// Типы уникальных идентификаторов.
const (
	uniqueTypeWeb      = 0
	uniqueTypeDocument = 2
)

// UniqueID возвращает короткий уникальный идентификатор содержимого:
// он не зависит от аккаунта и версии file reference.
func UniqueID(f FileID) string {
	var w writer
	if f.URL != "" {
		w.int32(uniqueTypeWeb)
		w.tlBytes([]byte(f.URL))
	} else {
		w.int32(uniqueTypeDocument)
		w.int64(f.MediaID)
	}
	return base64.RawURLEncoding.EncodeToString(rleEncode(w.buf.Bytes()))
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// rleEncode сжимает серии нулевых байт в пары (0, длина).
func rleEncode(s []byte) []byte {
	out := make([]byte, 0, len(s))
	n := 0
	for _, b := range s {
		if b == 0 {
			n++
			if n == 255 {
				out = append(out, 0, byte(n))
				n = 0
			}
			continue
		}
		if n > 0 {
			out = append(out, 0, byte(n))
			n = 0
		}
		out = append(out, b)
	}
	if n > 0 {
		out = append(out, 0, byte(n))
	}
	return out
}

func rleDecode(s []byte) []byte {
	out := make([]byte, 0, len(s)*2)
	zero := false
	for _, b := range s {
		if b == 0 {
			zero = true
			continue
		}
		if zero {
			out = append(out, make([]byte, b)...)
			zero = false
			continue
		}
		out = append(out, b)
	}
	return out
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if len(r.buf) < n {
		r.err = errShortBuffer
		r.buf = nil
		return make([]byte, n)
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) int32() int32 {
	return int32(binary.LittleEndian.Uint32(r.next(4)))
}

func (r *reader) int64() int64 {
	return int64(binary.LittleEndian.Uint64(r.next(8)))
}

// tlBytes читает строку байт в TL-сериализации (с выравниванием на 4).
func (r *reader) tlBytes() []byte {
	first := r.next(1)[0]
	var n, header int
	if first <= 253 {
		n, header = int(first), 1
	} else {
		l := r.next(3)
		n, header = int(l[0])|int(l[1])<<8|int(l[2])<<16, 4
	}
	data := bytes.Clone(r.next(n))
	if pad := (header + n) % 4; pad != 0 {
		r.next(4 - pad)
	}
	return data
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) int32(v int32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (w *writer) int64(v int64) {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (w *writer) tlBytes(b []byte) {
	header := 1
	if len(b) <= 253 {
		w.buf.WriteByte(byte(len(b)))
	} else {
		header = 4
		w.buf.Write([]byte{254, byte(len(b)), byte(len(b) >> 8), byte(len(b) >> 16)})
	}
	w.buf.Write(b)
	if pad := (header + len(b)) % 4; pad != 0 {
		w.buf.Write(make([]byte, 4-pad))
	}
}
