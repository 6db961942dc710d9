package logger

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"runtime/debug"
	"time"
)

// HTTPLogging оборачивает обработчик: даёт каждому запросу свой логгер в
// контексте, ловит паники и по завершении пишет статус, отданные байты и
// длительность. Для потоков это основной след в логах.
func HTTPLogging(log *slog.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := log.With("reqID", rand.Uint64(), "from", r.RemoteAddr, "method", r.Method, "url", r.URL.String())
		if rng := r.Header.Get("Range"); rng != "" {
			log = log.With("range", rng)
		}
		log.Debug("request received")

		si := &statusInterceptor{ResponseWriter: w, log: log}
		r = r.WithContext(Context(r.Context(), log))

		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				// штатный обрыв потока: отдаём серверу, чтобы он закрыл соединение
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					log.Info("response aborted", "bytes", si.bytes, "duration", time.Since(start))
					panic(p)
				}
				log.Error("*** panic recovered ***",
					"panic", p,
					"stack", debug.Stack())
				http.Error(si, "internal error", 500)
				return
			}
			log.Info("request served", "status", si.Status(), "bytes", si.bytes, "duration", time.Since(start))
		}()

		h.ServeHTTP(si, r)
	})
}

// statusInterceptor запоминает статус и считает байты тела ответа.
type statusInterceptor struct {
	http.ResponseWriter
	log    *slog.Logger
	status int // 0 = не установлен, 1xx = информационные, 2xx-5xx = основной статус
	bytes  int64
}

// Status возвращает отправленный статус. Без явного WriteHeader сервер
// отвечает 200.
func (si *statusInterceptor) Status() int {
	if si.status == 0 {
		return http.StatusOK
	}
	return si.status
}

func (si *statusInterceptor) WriteHeader(status int) {
	switch {
	case status >= 100 && status < 200:
		si.ResponseWriter.WriteHeader(status)

	case si.status == 0:
		si.status = status
		si.ResponseWriter.WriteHeader(status)

	case si.status != status:
		si.log.Warn("status code conflict", "origStatus", si.status, "newStatus", status)

	default:
		si.log.Warn("redundant WriteHeader call", "status", status)
	}
}

func (si *statusInterceptor) Write(b []byte) (int, error) {
	n, err := si.ResponseWriter.Write(b)
	si.bytes += int64(n)
	if err != nil {
		// для потоков это обычно ушедший клиент
		si.log.Debug("write failed", "error", err)
	}
	return n, err
}

// Unwrap нужен http.ResponseController.
func (si *statusInterceptor) Unwrap() http.ResponseWriter {
	return si.ResponseWriter
}
