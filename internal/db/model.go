package db

import (
	"time"

	"github.com/google/uuid"
)

const (
	IntegrationStatusActive   = "active"
	IntegrationStatusInactive = "inactive"
)

// IntegrationContext is what the gateway needs to validate and process a callback.
type IntegrationContext struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	ProviderSlug    string
	Config          map[string]any
	WebhookSettings map[string]bool
	ForwardURL      string
}

// IntegrationEntity is a user_integrations row as written by provisioning.
type IntegrationEntity struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	ProviderSlug    string
	Name            string
	WebhookToken    string
	Config          map[string]any
	WebhookSettings map[string]any
	ForwardURL      *string
	Status          string
	WebhookCount    int64
	LastWebhookAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PaymentEntity struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	OwnerID       uuid.UUID
	PaymentID     string
	TerminalKey   *string
	AmountMinor   int64
	OrderID       *string
	Status        string
	PaymentStatus *string
	ErrorCode     *string
	CustomerEmail *string
	CustomerPhone *string
	Pan           *string
	CardType      *string
	ExpDate       *string
	RawData       []byte
	CreatedAt     time.Time
}

type ForwardLogEntity struct {
	ID               uuid.UUID
	WebhookPaymentID *uuid.UUID
	ForwardURL       string
	StatusCode       int
	ErrorMessage     *string
	ResponseTimeMs   int64
	CreatedAt        time.Time
}

type OutboxEntity struct {
	ID              uuid.UUID
	PaymentID       uuid.UUID
	Key             string
	Payload         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ScheduledAt     *time.Time
	PublishedAt     *time.Time
	PublishAttempts int
	Error           *string
}
