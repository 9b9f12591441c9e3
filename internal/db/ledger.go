package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"webhook-gateway/internal/message"
	"webhook-gateway/internal/money"
)

// Ledger commits the durable part of an accepted callback in one transaction.
type Ledger struct {
	pool          *pgxpool.Pool
	integrations  *IntegrationRepository
	payments      *PaymentRepository
	outbox        *OutboxRepository
	publishEvents bool
}

// NewLedger returns a Ledger. With publishEvents set, each created payment row is
// also queued in the outbox for Kafka.
func NewLedger(pool *pgxpool.Pool, integrations *IntegrationRepository, payments *PaymentRepository,
	outbox *OutboxRepository, publishEvents bool) *Ledger {
	return &Ledger{
		pool:          pool,
		integrations:  integrations,
		payments:      payments,
		outbox:        outbox,
		publishEvents: publishEvents,
	}
}

// Commit records payment (which may be nil) and bumps the integration counters. It returns the
// created payment row id, or nil when nothing new was written.
func (l *Ledger) Commit(ctx context.Context, integration *IntegrationContext, payment *PaymentEntity) (*uuid.UUID, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin ledger transaction")
	}
	defer tx.Rollback(ctx)

	var paymentID *uuid.UUID
	if payment != nil {
		paymentID, err = l.payments.Insert(ctx, tx, payment)
		if err != nil {
			return nil, err
		}

		if paymentID != nil && l.publishEvents {
			entity, err := newOutboxEntity(integration, payment)
			if err != nil {
				return nil, err
			}
			if err := l.outbox.Create(ctx, tx, entity); err != nil {
				return nil, err
			}
		}
	}

	if err := l.integrations.Touch(ctx, tx, integration.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit ledger transaction")
	}
	return paymentID, nil
}

func newOutboxEntity(integration *IntegrationContext, payment *PaymentEntity) (*OutboxEntity, error) {
	event := message.PaymentRecorded{
		ID:                uuid.New(),
		Event:             message.PaymentRecordedEvent,
		PaymentID:         payment.ID,
		IntegrationID:     integration.ID,
		OwnerID:           integration.OwnerID,
		Provider:          integration.ProviderSlug,
		ProviderPaymentID: payment.PaymentID,
		OrderID:           payment.OrderID,
		Status:            payment.Status,
		Amount:            money.Format(payment.AmountMinor),
		RecordedAt:        payment.CreatedAt,
	}

	payloadBytes, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payment event")
	}

	now := time.Now()
	return &OutboxEntity{
		ID:          event.ID,
		PaymentID:   payment.ID,
		Key:         payment.PaymentID,
		Payload:     string(payloadBytes),
		ScheduledAt: &now,
	}, nil
}
