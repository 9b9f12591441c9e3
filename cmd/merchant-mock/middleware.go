package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
)

// deliveryTracker counts deliveries per payment status transition, so repeated forwards of the
// same T-Bank notification show up as duplicates.
type deliveryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newDeliveryTracker() *deliveryTracker {
	return &deliveryTracker{counts: make(map[string]int)}
}

func (t *deliveryTracker) record(body []byte) (string, int) {
	var notification struct {
		PaymentID json.RawMessage `json:"PaymentId"`
		Status    string          `json:"Status"`
	}
	if err := json.Unmarshal(body, &notification); err != nil || len(notification.PaymentID) == 0 {
		return "", 0
	}

	key := string(bytes.Trim(notification.PaymentID, `"`)) + "/" + notification.Status

	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return key, t.counts[key]
}

func (t *deliveryTracker) handler(w http.ResponseWriter, _ *http.Request) {
	t.mu.Lock()
	snapshot := make(map[string]int, len(t.counts))
	for key, count := range t.counts {
		snapshot[key] = count
	}
	t.mu.Unlock()

	writeJSON(w, http.StatusOK, snapshot)
}

func loggingMiddleware(tracker *deliveryTracker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				logger.Error("Error reading request body", "error", err)
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if key, count := tracker.record(body); count > 1 {
				logger.Warn("Duplicate delivery", "delivery", key, "count", count)
			}

			var response bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&response)
			next.ServeHTTP(ww, r)

			logger.Info("Received callback",
				"path", r.URL.Path,
				"contentType", r.Header.Get("Content-Type"),
				"requestBody", string(body),
				"status", ww.Status(),
				"responseBody", response.String())
		})
	}
}
