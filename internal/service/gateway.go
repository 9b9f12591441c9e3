package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"webhook-gateway/internal/callback"
	"webhook-gateway/internal/db"
	"webhook-gateway/internal/filter"
	"webhook-gateway/internal/logcontext"
	"webhook-gateway/internal/payload"
	"webhook-gateway/internal/provider"
)

var (
	requestAcceptedCounter         = metrics.GetOrCreateCounter(`webhook_requests_total{result="accepted"}`)
	requestSuppressedCounter       = metrics.GetOrCreateCounter(`webhook_requests_total{result="suppressed"}`)
	requestInvalidBodyCounter      = metrics.GetOrCreateCounter(`webhook_requests_total{result="invalid_body"}`)
	requestMissingTokenCounter     = metrics.GetOrCreateCounter(`webhook_requests_total{result="missing_token"}`)
	requestNotFoundCounter         = metrics.GetOrCreateCounter(`webhook_requests_total{result="not_found"}`)
	requestInvalidSignatureCounter = metrics.GetOrCreateCounter(`webhook_requests_total{result="invalid_signature"}`)
	requestInternalErrorCounter    = metrics.GetOrCreateCounter(`webhook_requests_total{result="internal_error"}`)

	paymentCreatedCounter   = metrics.GetOrCreateCounter(`webhook_payments_total{result="created"}`)
	paymentDuplicateCounter = metrics.GetOrCreateCounter(`webhook_payments_total{result="duplicate"}`)

	forwardLogErrorCounter = metrics.GetOrCreateCounter(`webhook_forward_log_errors_total`)

	requestDurationHistogram = metrics.GetOrCreateHistogram(`webhook_request_duration_milliseconds`)
)

type IntegrationDirectory interface {
	Resolve(ctx context.Context, token string) (*db.IntegrationContext, error)
}

type PaymentLedger interface {
	Commit(ctx context.Context, integration *db.IntegrationContext, payment *db.PaymentEntity) (*uuid.UUID, error)
}

type ForwardLogStore interface {
	Create(ctx context.Context, entity *db.ForwardLogEntity) error
}

type Forwarder interface {
	Forward(ctx context.Context, url string, payload []byte) callback.Outcome
}

type Request struct {
	Token string
	Body  []byte
}

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func acknowledged() Response {
	return Response{StatusCode: http.StatusOK, ContentType: "text/plain", Body: []byte("OK")}
}

func failure(status int, message string) Response {
	body, _ := json.Marshal(map[string]string{"error": message})
	return Response{StatusCode: status, ContentType: "application/json", Body: body}
}

// Gateway turns an authenticated provider callback into a ledger row and relays it to the merchant.
type Gateway struct {
	directory   IntegrationDirectory
	ledger      PaymentLedger
	forwardLogs ForwardLogStore
	forwarder   Forwarder
	providers   *provider.Registry
	logger      *slog.Logger
}

func NewGateway(directory IntegrationDirectory, ledger PaymentLedger, forwardLogs ForwardLogStore, forwarder Forwarder,
	providers *provider.Registry, logger *slog.Logger) *Gateway {
	return &Gateway{
		directory:   directory,
		ledger:      ledger,
		forwardLogs: forwardLogs,
		forwarder:   forwarder,
		providers:   providers,
		logger:      logger,
	}
}

// Handle runs one callback through the gateway. Once a callback is authenticated and
// committed the response is 200 whatever happens to the forward.
func (g *Gateway) Handle(ctx context.Context, req Request) Response {
	startTime := time.Now()
	defer func() {
		requestDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	notification, err := payload.Parse(req.Body)
	if err != nil {
		g.logger.WarnContext(ctx, "Rejected webhook with invalid body", "error", err)
		requestInvalidBodyCounter.Inc()
		return failure(http.StatusBadRequest, "Invalid JSON")
	}

	if req.Token == "" {
		g.logger.WarnContext(ctx, "Rejected webhook without token")
		requestMissingTokenCounter.Inc()
		return failure(http.StatusBadRequest, "Token required")
	}

	integration, err := g.directory.Resolve(ctx, req.Token)
	if errors.Is(err, db.ErrIntegrationNotFound) {
		g.logger.WarnContext(ctx, "Rejected webhook for unknown integration")
		requestNotFoundCounter.Inc()
		return failure(http.StatusNotFound, "Integration not found")
	}
	if err != nil {
		g.logger.ErrorContext(ctx, "Error resolving integration", "error", err)
		requestInternalErrorCounter.Inc()
		return failure(http.StatusInternalServerError, "Internal error")
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("integrationId", integration.ID.String()))
	ctx = logcontext.AppendCtx(ctx, slog.String("provider", integration.ProviderSlug))

	p, err := g.providers.Lookup(integration.ProviderSlug)
	if err != nil {
		g.logger.ErrorContext(ctx, "Rejected webhook for provider without signature scheme", "error", err)
		requestInvalidSignatureCounter.Inc()
		return failure(http.StatusForbidden, "Invalid signature")
	}

	if !p.Verify(notification, integration.Config) {
		g.logger.WarnContext(ctx, "Rejected webhook with invalid signature")
		requestInvalidSignatureCounter.Inc()
		return failure(http.StatusForbidden, "Invalid signature")
	}

	status := p.Status(notification)
	var payment *db.PaymentEntity
	if filter.ShouldPersist(status, p.NotificationToggles(), integration.WebhookSettings) {
		payment = newPaymentEntity(integration, p, notification)
	} else {
		g.logger.InfoContext(ctx, "Notification suppressed by integration settings", "status", status)
		requestSuppressedCounter.Inc()
	}

	paymentID, err := g.ledger.Commit(ctx, integration, payment)
	if err != nil {
		g.logger.ErrorContext(ctx, "Error committing webhook", "error", err)
		requestInternalErrorCounter.Inc()
		return failure(http.StatusInternalServerError, "Internal error")
	}

	switch {
	case paymentID != nil:
		paymentCreatedCounter.Inc()
		g.logger.InfoContext(ctx, "Payment recorded", "paymentId", paymentID.String(), "status", status)
	case payment != nil:
		paymentDuplicateCounter.Inc()
		g.logger.InfoContext(ctx, "Payment already recorded", "providerPaymentId", payment.PaymentID, "status", status)
	}

	if integration.ForwardURL != "" {
		g.forward(ctx, integration.ForwardURL, paymentID, notification.Raw())
	}

	requestAcceptedCounter.Inc()
	return acknowledged()
}

// forward relays body and logs the attempt. It runs on a context that outlives the inbound
// request's cancellation; the sender's own timeout bounds it.
func (g *Gateway) forward(ctx context.Context, url string, paymentID *uuid.UUID, body []byte) {
	ctx = context.WithoutCancel(ctx)

	outcome := g.forwarder.Forward(ctx, url, body)

	entity := &db.ForwardLogEntity{
		WebhookPaymentID: paymentID,
		ForwardURL:       url,
		StatusCode:       outcome.StatusCode,
		ErrorMessage:     outcome.ErrorMessage(),
		ResponseTimeMs:   outcome.Elapsed.Milliseconds(),
	}
	if err := g.forwardLogs.Create(ctx, entity); err != nil {
		g.logger.ErrorContext(ctx, "Error writing forward log", "error", err, "url", url)
		forwardLogErrorCounter.Inc()
	}
}

func newPaymentEntity(integration *db.IntegrationContext, p provider.Provider, n *payload.Notification) *db.PaymentEntity {
	projection, ok := p.Payment(n)
	if !ok {
		return nil
	}

	return &db.PaymentEntity{
		IntegrationID: integration.ID,
		OwnerID:       integration.OwnerID,
		PaymentID:     projection.PaymentID,
		TerminalKey:   projection.TerminalKey,
		AmountMinor:   projection.AmountMinor,
		OrderID:       projection.OrderID,
		Status:        projection.Status,
		PaymentStatus: projection.PaymentStatus,
		ErrorCode:     projection.ErrorCode,
		CustomerEmail: projection.CustomerEmail,
		CustomerPhone: projection.CustomerPhone,
		Pan:           projection.Pan,
		CardType:      projection.CardType,
		ExpDate:       projection.ExpDate,
		RawData:       n.Raw(),
	}
}
