package callback

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"

	"webhook-gateway/internal/config"
)

const maxResponseBodyBytes = 64 << 10

var (
	forwardDeliveredCounter = metrics.GetOrCreateCounter(`webhook_forward_total{result="delivered"}`)
	forwardRejectedCounter  = metrics.GetOrCreateCounter(`webhook_forward_total{result="rejected"}`)
	forwardFailedCounter    = metrics.GetOrCreateCounter(`webhook_forward_total{result="failed"}`)

	forwardDurationHistogram = metrics.GetOrCreateHistogram(`webhook_forward_duration_milliseconds`)
)

// Outcome is the result of one forward attempt. StatusCode is 0 when no HTTP response was received.
type Outcome struct {
	StatusCode int
	Err        error
	Elapsed    time.Duration
}

func (o Outcome) Delivered() bool {
	return o.Err == nil
}

// ErrorMessage is the text stored in the forward log, nil on success.
func (o Outcome) ErrorMessage() *string {
	if o.Err == nil {
		return nil
	}
	msg := o.Err.Error()
	return &msg
}

type Sender struct {
	client *http.Client
	logger *slog.Logger
}

func NewSender(cfg config.CallbackSender, logger *slog.Logger) *Sender {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	return &Sender{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Forward posts payload unchanged to url. Failures are reported in the Outcome, never returned.
func (s *Sender) Forward(ctx context.Context, url string, payload []byte) Outcome {
	start := time.Now()
	outcome := s.send(ctx, url, payload)
	outcome.Elapsed = time.Since(start)

	forwardDurationHistogram.Update(float64(outcome.Elapsed.Milliseconds()))

	switch {
	case outcome.Err == nil:
		forwardDeliveredCounter.Inc()
		s.logger.InfoContext(ctx, "Forwarded webhook", "url", url, "status", outcome.StatusCode,
			"elapsedMs", outcome.Elapsed.Milliseconds())
	case outcome.StatusCode != 0:
		forwardRejectedCounter.Inc()
		s.logger.WarnContext(ctx, "Forward target returned error status", "url", url, "status", outcome.StatusCode,
			"elapsedMs", outcome.Elapsed.Milliseconds(), "error", outcome.Err)
	default:
		forwardFailedCounter.Inc()
		s.logger.WarnContext(ctx, "Error forwarding webhook", "url", url,
			"elapsedMs", outcome.Elapsed.Milliseconds(), "error", outcome.Err)
	}

	return outcome
}

func (s *Sender) send(ctx context.Context, url string, payload []byte) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Err: errors.Wrap(err, "create request")}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{Err: errors.Wrap(err, "send request")}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		s.logger.DebugContext(ctx, "Error reading forward response body", "error", err)
	}
	s.logger.DebugContext(ctx, "Forward response", "status", resp.Status, "body", string(respBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return Outcome{
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	return Outcome{StatusCode: resp.StatusCode}
}
