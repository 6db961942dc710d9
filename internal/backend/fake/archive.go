package fake

import (
	"context"
	"sync"

	"tgstream/internal/fileid"
	"tgstream/internal/model"
)

// Archive: архивный канал в памяти.
type Archive struct {
	mu       sync.Mutex
	messages map[int]*model.Message
	calls    int

	// Err, если задан, возвращается из GetMessage.
	Err error
}

func NewArchive() *Archive {
	return &Archive{messages: make(map[int]*model.Message)}
}

func (a *Archive) Add(m *model.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages[m.ID] = m
}

func (a *Archive) GetMessage(ctx context.Context, id int) (*model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.Err != nil {
		return nil, a.Err
	}
	return a.messages[id], nil
}

// Calls возвращает число вызовов GetMessage.
func (a *Archive) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Document собирает сообщение с документом, содержимое которого лежит
// в backend под mediaID на дата-центре dc.
func Document(messageID int, mediaID int64, dc int, name, mimeType string, size int64) *model.Message {
	f := fileid.FileID{Type: fileid.TypeDocument, DC: dc, MediaID: mediaID, AccessHash: mediaID * 7}
	return &model.Message{
		ID: messageID,
		Document: &model.Media{
			FileID:       fileid.Encode(f),
			FileUniqueID: fileid.UniqueID(f),
			FileName:     name,
			MimeType:     mimeType,
			FileSize:     size,
		},
	}
}
