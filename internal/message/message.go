package message

import (
	"time"

	"github.com/google/uuid"
)

const PaymentRecordedEvent = "payment.recorded"

// PaymentRecorded is published to Kafka for every ledger row created by the gateway.
type PaymentRecorded struct {
	ID                uuid.UUID `json:"id"`
	Event             string    `json:"event"`
	PaymentID         uuid.UUID `json:"paymentId"`
	IntegrationID     uuid.UUID `json:"integrationId"`
	OwnerID           uuid.UUID `json:"ownerId"`
	Provider          string    `json:"provider"`
	ProviderPaymentID string    `json:"providerPaymentId"`
	OrderID           *string   `json:"orderId,omitempty"`
	Status            string    `json:"status"`
	Amount            string    `json:"amount"`
	RecordedAt        time.Time `json:"recordedAt"`
}
