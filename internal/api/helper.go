package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"tgstream/internal/logger"
	"tgstream/internal/model"
)

type httpError struct {
	StatusCode int
	StatusMsg  string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.StatusMsg)
}

type helper struct {
	ctx context.Context
	log *slog.Logger
	r   *http.Request
	w   http.ResponseWriter
}

func newHelper(w http.ResponseWriter, r *http.Request, op string) *helper {
	ctx := r.Context()
	return &helper{
		ctx: ctx,
		log: logger.FromContext(ctx).With("op", op),
		w:   w,
		r:   r,
	}
}

func (h *helper) Ctx() context.Context {
	return h.ctx
}

func (h *helper) Logger() *slog.Logger {
	return h.log
}

func (h *helper) WriteError(err error) {
	httpErr := h.mapError(err)
	http.Error(h.w, httpErr.StatusMsg, httpErr.StatusCode)
}

func (h *helper) mapError(err error) *httpError {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return &httpError{http.StatusNotFound, "file not found"}
	case errors.Is(err, model.ErrInvalidHash):
		return &httpError{http.StatusForbidden, "invalid hash"}
	case errors.Is(err, model.ErrRangeNotSatisfiable):
		return &httpError{http.StatusRequestedRangeNotSatisfiable, "range not satisfiable"}
	case errors.Is(err, model.ErrAuthorizationFailed):
		h.log.Error("media session unavailable", "error", err)
		return &httpError{http.StatusBadGateway, "upstream authorization failed"}
	case errors.Is(err, model.ErrPoolClosed), errors.Is(err, model.ErrCacheClosed):
		return &httpError{http.StatusServiceUnavailable, "server is shutting down"}
	case errors.Is(err, context.Canceled):
		// клиент ушёл, отвечать некому
		h.log.Debug("request cancelled", "error", err)
		return &httpError{499, "client closed request"}
	}

	h.log.Warn("unhandled error has been detected", "error", err)
	return &httpError{500, "internal error"}
}

func (h *helper) WriteResponse(resp any, statusCode int) {
	h.w.Header().Add("content-type", "application/json")
	h.w.WriteHeader(statusCode)
	err := json.NewEncoder(h.w).Encode(resp)
	if err != nil {
		h.log.Error("write respose failed", "error", err)
	}
}
