package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, envelope{"data": data})
}

// Error writes {"error":{"message","code"[,"meta"]}}.
func Error(ctx context.Context, w http.ResponseWriter, status int, code, msg string, meta map[string]any) {
	body := envelope{
		"message": msg,
		"code":    code,
	}
	if reqID := RequestID(ctx); reqID != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["request_id"] = reqID
	}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	JSON(w, status, envelope{"error": body})
}

// FromError maps a service error onto the envelope. Internal details of
// store failures are logged, never returned.
func FromError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := Status(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "http request failed", "req_id", RequestID(ctx), slog.Any("err", err))
		msg = http.StatusText(status)
	}
	Error(ctx, w, status, code, msg, nil)
}
