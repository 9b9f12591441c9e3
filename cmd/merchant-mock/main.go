package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const addr = ":8085"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "merchant-mock")

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(newDeliveryTracker(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("Starting merchant mock", "addr", addr)
	log.Fatal(srv.ListenAndServe())
}

func newRouter(tracker *deliveryTracker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(tracker, logger))

	r.Post("/always-success", alwaysSuccessHandler)
	r.Post("/success-delayed", successDelayedHandler)
	r.Post("/always-fail", alwaysFailHandler)
	r.Post("/random-fail", randomFailHandler)
	r.Get("/deliveries", tracker.handler)

	return r
}
