package model

// Location: адрес файла на стороне backend. Реализации: PeerPhotoLocation,
// PhotoLocation, DocumentLocation.
type Location interface {
	isLocation()
}

// PeerKind: вид владельца фото чата.
type PeerKind int

const (
	PeerUser PeerKind = iota + 1
	PeerChat
	PeerChannel
)

type Peer struct {
	Kind       PeerKind
	ID         int64
	AccessHash int64
}

// PeerPhotoLocation: аватар пользователя, группы или канала.
type PeerPhotoLocation struct {
	Peer     Peer
	PhotoID  int64
	VolumeID int64
	LocalID  int32
	Big      bool
}

// PhotoLocation: фото из сообщения.
type PhotoLocation struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string
}

// DocumentLocation: любой документ: видео, аудио, файлы, стикеры и т.д.
type DocumentLocation struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string
}

func (PeerPhotoLocation) isLocation() {}
func (PhotoLocation) isLocation()     {}
func (DocumentLocation) isLocation()  {}
