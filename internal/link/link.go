// Package link собирает и разбирает ссылки, которые бот выдаёт пользователям:
// deep-link payload, ссылки на скачивание и просмотр.
package link

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tgstream/internal/model"
)

const (
	filePrefix   = "file_"
	verifyPrefix = "verify-"
)

var ErrInvalidPayload = model.ErrInvalidPayload

type PayloadKind int

const (
	PayloadFile PayloadKind = iota + 1
	PayloadVerify
)

// Payload: разобранный параметр команды /start.
type Payload struct {
	Kind      PayloadKind
	MessageID int    // для PayloadFile
	UserID    int64  // для PayloadVerify
	Token     string // для PayloadVerify
}

// EncodeFile кодирует ID сообщения архива в payload.
func EncodeFile(messageID int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(filePrefix + strconv.Itoa(messageID)))
}

// EncodeVerify собирает payload подтверждения.
func EncodeVerify(userID int64, token string) string {
	return verifyPrefix + strconv.FormatInt(userID, 10) + "-" + token
}

// ParsePayload разбирает payload. Для файлов принимается base64 как с
// выравниванием '=', так и без.
func ParsePayload(s string) (Payload, error) {
	if rest, ok := strings.CutPrefix(s, verifyPrefix); ok {
		uid, token, ok := strings.Cut(rest, "-")
		if !ok || token == "" {
			return Payload{}, ErrInvalidPayload
		}
		id, err := strconv.ParseInt(uid, 10, 64)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: user id: %w", ErrInvalidPayload, err)
		}
		return Payload{Kind: PayloadVerify, UserID: id, Token: token}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	_, sid, ok := strings.Cut(string(raw), "_")
	if !ok {
		return Payload{}, ErrInvalidPayload
	}
	id, err := strconv.Atoi(sid)
	if err != nil || id <= 0 {
		return Payload{}, ErrInvalidPayload
	}
	return Payload{Kind: PayloadFile, MessageID: id}, nil
}

// Builder формирует абсолютные ссылки.
type Builder struct {
	BaseURL     string // публичный адрес HTTP-сервера
	BotUsername string
	WebsiteMode bool
	WebsiteURL  string
}

// Share: ссылка, открывающая бота с payload. В режиме сайта ведёт на сайт.
func (b Builder) Share(payload string) string {
	if b.WebsiteMode {
		return b.WebsiteURL + "?start=" + payload
	}
	return b.Bot(payload)
}

// Bot: ссылка на бота в обход режима сайта.
func (b Builder) Bot(payload string) string {
	return "https://t.me/" + b.BotUsername + "?start=" + payload
}

func (b Builder) Download(messageID int, name, hash string) string {
	return b.base() + strconv.Itoa(messageID) + "/" + url.QueryEscape(name) + "?hash=" + hash
}

func (b Builder) Watch(messageID int, name, hash string) string {
	return b.base() + "watch/" + strconv.Itoa(messageID) + "/" + url.QueryEscape(name) + "?hash=" + hash
}

func (b Builder) base() string {
	if strings.HasSuffix(b.BaseURL, "/") {
		return b.BaseURL
	}
	return b.BaseURL + "/"
}

// Size форматирует размер в двоичных единицах.
func Size(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// ReadableTime форматирует длительность: "5s", "1h: 2m: 3s", "2 days, 1h: 0m: 5s".
func ReadableTime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0s"
	}

	suffixes := [...]string{"s", "m", "h", " days"}
	var parts []string
	for i := range len(suffixes) {
		var v int64
		switch {
		case i == len(suffixes)-1:
			v, seconds = seconds, 0
		case i < 2:
			seconds, v = seconds/60, seconds%60
		default:
			seconds, v = seconds/24, seconds%24
		}
		parts = append(parts, strconv.FormatInt(v, 10)+suffixes[i])
		if seconds == 0 {
			break
		}
	}

	var sb strings.Builder
	if len(parts) == 4 {
		sb.WriteString(parts[3] + ", ")
		parts = parts[:3]
	}
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteString(parts[i])
		if i > 0 {
			sb.WriteString(": ")
		}
	}
	return sb.String()
}
