package provider

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"

	"webhook-gateway/internal/config"
	"webhook-gateway/internal/payload"
)

const (
	TBankSlug = "tbank"

	tbankTokenField    = "Token"
	tbankPasswordField = "Password"
	tbankPasswordKey   = "terminal_password"
)

var tbankToggles = map[string]string{
	"AUTHORIZED": "notify_on_authorized",
	"CONFIRMED":  "notify_on_confirmed",
	"REJECTED":   "notify_on_rejected",
	"REFUNDED":   "notify_on_refunded",
}

// TBank handles T-Bank acquiring notifications, signed with the terminal password.
type TBank struct {
	defaultPassword string
}

func NewTBank(cfg config.TBank) *TBank {
	return &TBank{defaultPassword: cfg.TerminalPassword}
}

func (*TBank) Slug() string {
	return TBankSlug
}

func (t *TBank) Verify(n *payload.Notification, config map[string]any) bool {
	password, _ := config[tbankPasswordKey].(string)
	if password == "" {
		password = t.defaultPassword
	}
	if password == "" {
		return false
	}
	return VerifyTBankToken(n.Fields, password)
}

func (*TBank) Status(n *payload.Notification) string {
	status, _ := n.String("Status")
	return status
}

func (*TBank) NotificationToggles() map[string]string {
	return tbankToggles
}

func (*TBank) Payment(n *payload.Notification) (*Payment, bool) {
	paymentID, ok := n.String("PaymentId")
	if !ok || paymentID == "" {
		return nil, false
	}

	amount, _ := n.Int64("Amount")
	status, _ := n.String("Status")

	return &Payment{
		PaymentID:     paymentID,
		TerminalKey:   n.Optional("TerminalKey"),
		AmountMinor:   amount,
		OrderID:       n.Optional("OrderId"),
		Status:        status,
		PaymentStatus: n.Optional("PaymentStatus"),
		ErrorCode:     n.Optional("ErrorCode"),
		CustomerEmail: n.Object("CardData").Optional("Email"),
		CustomerPhone: n.Optional("Phone"),
		Pan:           n.Optional("Pan"),
		CardType:      n.Optional("CardType"),
		ExpDate:       n.Optional("ExpDate"),
	}, true
}

// VerifyTBankToken checks the Token field of fields against the digest computed with password.
// A missing or empty Token never verifies.
func VerifyTBankToken(fields payload.Fields, password string) bool {
	received, ok := fields[tbankTokenField].(string)
	if !ok || received == "" {
		return false
	}

	expected := TBankToken(fields, password)
	return subtle.ConstantTimeCompare([]byte(received), []byte(expected)) == 1
}

// TBankToken is the lowercase hex SHA-256 of TBankTokenSource.
func TBankToken(fields payload.Fields, password string) string {
	sum := sha256.Sum256([]byte(TBankTokenSource(fields, password)))
	return hex.EncodeToString(sum[:])
}

// TBankTokenSource builds the string T-Bank signs: root-level scalar values plus the
// password under "Password", ordered by key and joined without a separator. Token,
// null and nested values are left out.
func TBankTokenSource(fields payload.Fields, password string) string {
	values := make(map[string]string, len(fields)+1)
	for key, value := range fields {
		if key == tbankTokenField {
			continue
		}
		if s, ok := payload.Scalar(value); ok {
			values[key] = s
		}
	}
	values[tbankPasswordField] = password

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(values[key])
	}
	return sb.String()
}
