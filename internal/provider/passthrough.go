package provider

import "webhook-gateway/internal/payload"

// Passthrough accepts every notification unverified. Callbacks are counted and forwarded,
// never written to the ledger.
type Passthrough struct {
	slug string
}

func (p Passthrough) Slug() string {
	return p.slug
}

func (Passthrough) Verify(*payload.Notification, map[string]any) bool {
	return true
}

func (Passthrough) Status(*payload.Notification) string {
	return ""
}

func (Passthrough) NotificationToggles() map[string]string {
	return nil
}

func (Passthrough) Payment(*payload.Notification) (*Payment, bool) {
	return nil, false
}
