// Package backend описывает примитивы удалённого хранилища медиа, которыми
// пользуются пул сессий и стример. Реализация поверх MTProto живёт в tgclient.
package backend

import (
	"context"
	"errors"

	"tgstream/internal/model"
)

var (
	// ErrAuthBytesInvalid: сессия отвергла байты авторизации при импорте.
	// Такой импорт можно повторить с новым экспортом.
	ErrAuthBytesInvalid = errors.New("authorization bytes invalid")

	// ErrUnexpectedResponse: ответ пришёл, но не той формы (например, CDN-редирект
	// вместо куска файла).
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrPeerGone: получатель удалён, заблокировал бота или недоступен.
	ErrPeerGone = errors.New("peer is gone")
)

// AuthKey: ключ авторизации для одного дата-центра. Содержимое непрозрачно:
// его понимает только выдавшая ключ реализация Backend.
type AuthKey interface {
	DC() int
}

// ExportedAuthorization: токен, выпущенный домашним дата-центром для импорта в чужой.
type ExportedAuthorization struct {
	ID    int64
	Bytes []byte
}

// Backend: аккаунт на стороне сервиса хранения.
type Backend interface {
	// HomeDC: домашний дата-центр аккаунта.
	HomeDC() int
	// HomeAuthKey: долгоживущий ключ аккаунта для домашнего дата-центра.
	HomeAuthKey() AuthKey
	// CreateAuthKey создаёт новый ключ для указанного дата-центра.
	CreateAuthKey(ctx context.Context, dc int) (AuthKey, error)
	// StartSession поднимает сессию. ctx ограничивает только запуск:
	// сессия живёт до вызова Session.Stop.
	StartSession(ctx context.Context, dc int, key AuthKey) (Session, error)
	// ExportAuthorization выпускает через домашнее соединение токен для dc.
	ExportAuthorization(ctx context.Context, dc int) (ExportedAuthorization, error)
}

// Session: аутентифицированный канал к одному дата-центру.
// Допускает конкурентные вызовы из разных потоков.
type Session interface {
	DC() int
	ImportAuthorization(ctx context.Context, auth ExportedAuthorization) error
	// GetFile возвращает не более limit байт с позиции offset. Пустой результат
	// значит, что файл закончился.
	GetFile(ctx context.Context, loc model.Location, offset int64, limit int) ([]byte, error)
	Stop() error
}
