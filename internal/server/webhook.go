package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"webhook-gateway/internal/service"
)

type webhookHandler struct {
	gateway      WebhookHandler
	maxBodyBytes int64
	logger       *slog.Logger
}

func (h *webhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WarnContext(r.Context(), "Rejected oversized webhook body", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		h.logger.WarnContext(r.Context(), "Error reading webhook body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp := h.gateway.Handle(r.Context(), service.Request{Token: token(r), Body: body})

	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// token prefers the path segment over the query parameter.
func token(r *http.Request) string {
	if t := trimToken(chi.URLParam(r, "token")); t != "" {
		return t
	}
	return trimToken(r.URL.Query().Get("token"))
}

func trimToken(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "/"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
