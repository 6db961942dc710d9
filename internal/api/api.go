package api

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"tgstream/internal/link"
	"tgstream/internal/model"
	"tgstream/internal/relay"
	"tgstream/internal/streamer"
)

type Relay interface {
	Resolve(ctx context.Context, messageID int, hash string) (relay.File, error)
	Open(ctx context.Context, f relay.File, from, until int64) (*streamer.Stream, error)
	Status() relay.Status
}

// Info: сведения для страницы статуса и ссылок.
type Info struct {
	BotUsername string
	Version     string
	Links       link.Builder
}

func New(rl Relay, info Info) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", Status(rl, info))
	mux.HandleFunc("GET /watch/{path...}", Watch(rl, info.Links))
	mux.HandleFunc("GET /{path...}", Stream(rl))
	return mux
}

type statusResponse struct {
	ServerStatus  string           `json:"server_status"`
	Uptime        string           `json:"uptime"`
	TelegramBot   string           `json:"telegram_bot"`
	ConnectedBots int              `json:"connected_bots"`
	Loads         map[string]int64 `json:"loads"`
	Version       string           `json:"version"`
}

func Status(rl Relay, info Info) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "Status")

		st := rl.Status()
		loads := make(map[string]int64, len(st.Loads))
		for _, l := range st.Loads {
			loads[l.Name] = l.Value
		}

		h.WriteResponse(statusResponse{
			ServerStatus:  "running",
			Uptime:        link.ReadableTime(st.Uptime),
			TelegramBot:   "@" + info.BotUsername,
			ConnectedBots: st.Workers,
			Loads:         loads,
			Version:       info.Version,
		}, http.StatusOK)
	}
}

var (
	// /AbCdEf123: старая форма, хэш склеен с ID
	legacyPath = regexp.MustCompile(`^([a-zA-Z0-9_-]{6})(\d+)$`)
	// /123/name?hash=AbCdEf
	filePath = regexp.MustCompile(`^(\d+)(?:/.*)?$`)
)

// parseFilePath достаёт ID сообщения и хэш из пути запроса.
// При наличии ?hash= сначала пробуется новая форма.
func parseFilePath(p, hash string) (int, string, error) {
	if hash != "" {
		if m := filePath.FindStringSubmatch(p); m != nil {
			id, err := strconv.Atoi(m[1])
			if err == nil {
				return id, hash, nil
			}
		}
	}
	if m := legacyPath.FindStringSubmatch(p); m != nil {
		id, err := strconv.Atoi(m[2])
		if err == nil {
			return id, m[1], nil
		}
	}
	if m := filePath.FindStringSubmatch(p); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			return id, hash, nil
		}
	}
	return 0, "", &httpError{http.StatusNotFound, "not found"}
}

func getFile(h *helper, rl Relay) (relay.File, bool) {
	id, hash, err := parseFilePath(h.r.PathValue("path"), h.r.URL.Query().Get("hash"))
	if err != nil {
		h.WriteError(err)
		return relay.File{}, false
	}

	f, err := rl.Resolve(h.Ctx(), id, hash)
	if err != nil {
		h.WriteError(err)
		return relay.File{}, false
	}
	return f, true
}

// FileName: имя, под которым файл отдаётся и попадает в ссылки.
func FileName(d *model.FileDescriptor) string {
	name, _ := fileMeta(d)
	return name
}

// fileMeta возвращает имя и MIME-тип для отдачи файла. Безымянный файл
// получает имя из вида медиа, короткого хэша и расширения по MIME-типу.

func fileMeta(d *model.FileDescriptor) (name, mimeType string) {
	mimeType = d.MimeType
	name = d.FileName

	var ext string
	if ft, ok := getFileTypeByMIME(mimeType); ok {
		ext = ft.Extension()
	}
	name = safeFileName(name, d.Kind.String()+"_"+d.Hash(), ext)

	if mimeType == "" {
		mimeType = defaultMIMEType
		if ft, ok := getFileTypeByExtension(path.Ext(name)); ok {
			mimeType = ft.MIMEType
		}
	}
	return name, mimeType
}

func disposition(mimeType string) string {
	if strings.HasPrefix(mimeType, "video/") || strings.HasPrefix(mimeType, "audio/") {
		return "inline"
	}
	return "attachment"
}

func Stream(rl Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := newHelper(w, r, "Stream")

		f, ok := getFile(h, rl)
		if !ok {
			return
		}
		h.log = h.log.With("message_id", f.MessageID, "worker", f.Worker())

		rangeHeader := r.Header.Get("Range")
		from, until, err := streamer.ParseRange(rangeHeader, f.Size)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", f.Size))
			h.WriteError(err)
			return
		}
		length := until - from + 1

		// поток открываем до заголовков, чтобы ошибка сессии ушла статусом
		var st *streamer.Stream
		if r.Method != http.MethodHead && length > 0 {
			st, err = rl.Open(h.Ctx(), f, from, until)
			if err != nil {
				h.WriteError(err)
				return
			}
			defer st.Close()
		}

		name, mimeType := fileMeta(f.FileDescriptor)
		header := w.Header()
		header.Set("Content-Type", mimeType)
		header.Set("Content-Length", strconv.FormatInt(length, 10))
		header.Set("Accept-Ranges", "bytes")
		header.Set("Content-Disposition", mime.FormatMediaType(disposition(mimeType), map[string]string{"filename": name}))

		status := http.StatusOK
		if rangeHeader != "" {
			status = http.StatusPartialContent
			header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, until, f.Size))
		}
		w.WriteHeader(status)

		if st == nil {
			return
		}

		rc := http.NewResponseController(w)
		for chunk := range st.Chunks(h.Ctx()) {
			if _, err := w.Write(chunk); err != nil {
				h.log.Debug("client gone", "error", err)
				break
			}
			_ = rc.Flush()
		}

		res := st.Result()
		h.log.Debug("stream done", "reason", res.Reason, "bytes", res.Bytes, "want", length)
		if res.Reason == streamer.ReasonFailed {
			// обрываем соединение, чтобы клиент не принял обрезанный ответ за полный
			panic(http.ErrAbortHandler)
		}
	}
}
