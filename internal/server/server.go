package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"webhook-gateway/internal/config"
	"webhook-gateway/internal/metrics"
	"webhook-gateway/internal/service"
)

type WebhookHandler interface {
	Handle(ctx context.Context, req service.Request) service.Response
}

// NewRouter wires the inbound webhook endpoint and the operational endpoints.
func NewRouter(gateway WebhookHandler, cfg config.Server, logger *slog.Logger) http.Handler {
	h := &webhookHandler{gateway: gateway, maxBodyBytes: cfg.MaxBodyBytes, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(cors)
		r.Use(middleware.Timeout(time.Duration(cfg.RequestTimeoutMs) * time.Millisecond))

		r.Post("/webhook", h.receive)
		r.Post("/webhook/", h.receive)
		r.Post("/webhook/{token}", h.receive)
		r.Options("/webhook", preflight)
		r.Options("/webhook/*", preflight)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	return r
}

// New returns an http.Server whose write deadline leaves room for the forward step.
func New(cfg config.Server, handler http.Handler) *http.Server {
	timeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout + time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
