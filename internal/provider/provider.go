package provider

import (
	"github.com/pkg/errors"

	"webhook-gateway/internal/payload"
)

var ErrUnsupportedProvider = errors.New("no signature scheme for provider")

// Provider is the per-processor part of webhook handling.
type Provider interface {
	Slug() string
	// Verify reports whether n was signed by the processor for an integration with the given config.
	Verify(n *payload.Notification, config map[string]any) bool
	// Status is the coarse payment status carried by n.
	Status(n *payload.Notification) string
	// NotificationToggles maps statuses to notification settings keys. Nil when the
	// provider has no status vocabulary.
	NotificationToggles() map[string]string
	// Payment projects n onto a ledger row. False when n has nothing to record.
	Payment(n *payload.Notification) (*Payment, bool)
}

// Payment is the provider-neutral projection of a notification.
type Payment struct {
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
}

type Registry struct {
	providers map[string]Provider
	unsigned  map[string]bool
}

// NewRegistry registers providers by slug. Slugs listed in unsigned are served by a
// Passthrough provider when nothing else is registered for them.
func NewRegistry(unsigned []string, providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		unsigned:  make(map[string]bool, len(unsigned)),
	}
	for _, p := range providers {
		r.providers[p.Slug()] = p
	}
	for _, slug := range unsigned {
		r.unsigned[slug] = true
	}
	return r
}

func (r *Registry) Lookup(slug string) (Provider, error) {
	if p, ok := r.providers[slug]; ok {
		return p, nil
	}
	if r.unsigned[slug] {
		return Passthrough{slug: slug}, nil
	}
	return nil, errors.Wrapf(ErrUnsupportedProvider, "provider %q", slug)
}
