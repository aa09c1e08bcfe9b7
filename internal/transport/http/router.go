package http

import (
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-service/internal/transport/http/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig, h *Handler, verifier httpmw.Verifier, ws http.HandlerFunc, ready map[string]Pinger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareLogging)
	r.Use(httpmw.Metrics)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// The websocket authenticates from its query string; browsers cannot set headers on it.
	r.Get("/ws/rooms/{roomId}", ws)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(verifier))
		pr.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/", h.ListRooms)
			rm.Get("/{roomId}", h.GetRoom)
		})
		pr.Route("/messages", func(mr chi.Router) {
			mr.Get("/", h.ListMessages)
			mr.Post("/", h.SendMessage)
		})
	})

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(ready))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
