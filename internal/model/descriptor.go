package model

import "tgstream/internal/fileid"

// FileDescriptor: неизменяемое описание удалённого медиа.
//
// Дескриптор однозначно связан с одним сообщением архивного канала и ищется
// по его ID, а не по содержимому. После создания не меняется: кэш отдаёт
// один и тот же указатель всем запросам до очередной полной очистки.
type FileDescriptor struct {
	MessageID int
	Kind      MediaKind
	File      fileid.FileID

	Size     int64
	MimeType string
	FileName string
	UniqueID string
}

// Hash возвращает короткий хэш, которым подписываются ссылки на файл.
func (d *FileDescriptor) Hash() string {
	return ShortHash(d.UniqueID)
}

const shortHashLen = 6

// ShortHash: первые символы уникального ID.
func ShortHash(uniqueID string) string {
	if len(uniqueID) <= shortHashLen {
		return uniqueID
	}
	return uniqueID[:shortHashLen]
}
