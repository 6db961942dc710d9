package model

// MediaKind: категория вложения сообщения.
type MediaKind int

const (
	MediaAudio MediaKind = iota + 1
	MediaDocument
	MediaPhoto
	MediaSticker
	MediaAnimation
	MediaVideo
	MediaVoice
	MediaVideoNote
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaDocument:
		return "document"
	case MediaPhoto:
		return "photo"
	case MediaSticker:
		return "sticker"
	case MediaAnimation:
		return "animation"
	case MediaVideo:
		return "video"
	case MediaVoice:
		return "voice"
	case MediaVideoNote:
		return "video_note"
	}
	return "unknown"
}

// Media: вложение сообщения в том виде, в каком его отдаёт архив.
type Media struct {
	FileID       string // непрозрачный идентификатор, см. пакет fileid
	FileUniqueID string
	FileName     string
	MimeType     string
	FileSize     int64
}

// Message: сообщение архивного канала. Заполнено не более одного вложения
// каждого вида; если заполнено несколько, действует порядок MediaPrecedence.
type Message struct {
	ID      int
	Caption string

	Audio     *Media
	Document  *Media
	Photo     *Media
	Sticker   *Media
	Animation *Media
	Video     *Media
	Voice     *Media
	VideoNote *Media
}

// MediaPrecedence: порядок, в котором ищется вложение.
var MediaPrecedence = []MediaKind{
	MediaAudio,
	MediaDocument,
	MediaPhoto,
	MediaSticker,
	MediaAnimation,
	MediaVideo,
	MediaVoice,
	MediaVideoNote,
}

// Get возвращает вложение указанного вида.
func (m *Message) Get(kind MediaKind) *Media {
	switch kind {
	case MediaAudio:
		return m.Audio
	case MediaDocument:
		return m.Document
	case MediaPhoto:
		return m.Photo
	case MediaSticker:
		return m.Sticker
	case MediaAnimation:
		return m.Animation
	case MediaVideo:
		return m.Video
	case MediaVoice:
		return m.Voice
	case MediaVideoNote:
		return m.VideoNote
	}
	return nil
}

// Set кладёт вложение в поле указанного вида.
func (m *Message) Set(kind MediaKind, media *Media) {
	switch kind {
	case MediaAudio:
		m.Audio = media
	case MediaDocument:
		m.Document = media
	case MediaPhoto:
		m.Photo = media
	case MediaSticker:
		m.Sticker = media
	case MediaAnimation:
		m.Animation = media
	case MediaVideo:
		m.Video = media
	case MediaVoice:
		m.Voice = media
	case MediaVideoNote:
		m.VideoNote = media
	}
}

// FirstMedia возвращает первое найденное вложение в порядке MediaPrecedence.
func (m *Message) FirstMedia() (MediaKind, *Media, bool) {
	for _, kind := range MediaPrecedence {
		if media := m.Get(kind); media != nil {
			return kind, media, true
		}
	}
	return 0, nil, false
}
