package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cwrk-planet/chat-service/internal/transport/http/httputil"
)

// Pinger is a dependency probed by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func readyz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]any{}
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "unavailable", "not ready", failed)
			return
		}
		httputil.OK(w, map[string]string{"status": "ready"})
	}
}
