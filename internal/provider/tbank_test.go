package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webhook-gateway/internal/config"
	"webhook-gateway/internal/payload"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func parse(t *testing.T, body string) *payload.Notification {
	t.Helper()

	n, err := payload.Parse([]byte(body))
	require.NoError(t, err)
	return n
}

// signed returns body with a Token computed for password.
func signed(t *testing.T, body, password string) *payload.Notification {
	t.Helper()

	n := parse(t, body)
	n.Fields["Token"] = TBankToken(n.Fields, password)

	raw, err := json.Marshal(n.Fields)
	require.NoError(t, err)
	return parse(t, string(raw))
}

func TestTBankTokenSource(t *testing.T) {
	n := parse(t, `{"PaymentId":"P1","Status":"CONFIRMED","Amount":10000,"Token":"ignored"}`)

	assert.Equal(t, "10000pw1P1CONFIRMED", TBankTokenSource(n.Fields, "pw1"))
	assert.Equal(t, sha256Hex("10000pw1P1CONFIRMED"), TBankToken(n.Fields, "pw1"))
}

func TestTBankTokenSource_Canonicalization(t *testing.T) {
	n := parse(t, `{
		"TerminalKey": "TK",
		"Success": true,
		"Amount": 19200,
		"ErrorCode": "0",
		"Data": {"Email": "a@b.c"},
		"Receipt": [1, 2],
		"Nothing": null,
		"Ratio": 1.50,
		"Token": "x"
	}`)

	// Amount, ErrorCode, Password, Ratio, Success, TerminalKey
	assert.Equal(t, "192000secret1.50trueTK", TBankTokenSource(n.Fields, "secret"))
}

func TestTBankTokenSource_SortsByRawKey(t *testing.T) {
	n := parse(t, `{"b":"2","B":"1","a":"3","Pas":"4"}`)

	// B < Pas < Password < a < b in byte order
	assert.Equal(t, "14pw32", TBankTokenSource(n.Fields, "pw"))
}

func TestTBankToken_Deterministic(t *testing.T) {
	body := `{"OrderId":"o-1","Amount":500,"Success":false,"Status":"AUTHORIZED"}`

	first := TBankToken(parse(t, body).Fields, "pw")
	second := TBankToken(parse(t, `{"Status":"AUTHORIZED","Success":false,"Amount":500,"OrderId":"o-1"}`).Fields, "pw")

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, TBankToken(parse(t, body).Fields, "other"))
}

func TestVerifyTBankToken(t *testing.T) {
	body := `{"PaymentId":"P1","Status":"CONFIRMED","Amount":10000}`

	tests := []struct {
		name         string
		notification func(t *testing.T) *payload.Notification
		expected     bool
	}{
		{
			name:         "Valid",
			notification: func(t *testing.T) *payload.Notification { return signed(t, body, "pw1") },
			expected:     true,
		},
		{
			name:         "WrongPassword",
			notification: func(t *testing.T) *payload.Notification { return signed(t, body, "pw2") },
			expected:     false,
		},
		{
			name: "WrongToken",
			notification: func(t *testing.T) *payload.Notification {
				return parse(t, `{"PaymentId":"P1","Status":"CONFIRMED","Amount":10000,"Token":"deadbeef"}`)
			},
			expected: false,
		},
		{
			name:         "MissingToken",
			notification: func(t *testing.T) *payload.Notification { return parse(t, body) },
			expected:     false,
		},
		{
			name: "EmptyToken",
			notification: func(t *testing.T) *payload.Notification {
				return parse(t, `{"PaymentId":"P1","Token":""}`)
			},
			expected: false,
		},
		{
			name: "NonStringToken",
			notification: func(t *testing.T) *payload.Notification {
				return parse(t, `{"PaymentId":"P1","Token":123}`)
			},
			expected: false,
		},
		{
			name: "TamperedAmount",
			notification: func(t *testing.T) *payload.Notification {
				n := signed(t, body, "pw1")
				n.Fields["Amount"] = json.Number("1")
				return n
			},
			expected: false,
		},
		{
			name: "UppercaseHexIsRejected",
			notification: func(t *testing.T) *payload.Notification {
				n := parse(t, body)
				n.Fields["Token"] = strings.ToUpper(TBankToken(n.Fields, "pw1"))
				return n
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, VerifyTBankToken(tt.notification(t).Fields, "pw1"))
		})
	}
}

func TestTBank_Verify_PasswordSource(t *testing.T) {
	body := `{"PaymentId":"P1","Status":"CONFIRMED","Amount":10000}`

	t.Run("IntegrationConfig", func(t *testing.T) {
		tbank := NewTBank(config.TBank{})
		assert.True(t, tbank.Verify(signed(t, body, "pw1"), map[string]any{"terminal_password": "pw1"}))
	})

	t.Run("IntegrationConfigWinsOverDefault", func(t *testing.T) {
		tbank := NewTBank(config.TBank{TerminalPassword: "fallback"})
		assert.False(t, tbank.Verify(signed(t, body, "fallback"), map[string]any{"terminal_password": "pw1"}))
	})

	t.Run("DefaultPassword", func(t *testing.T) {
		tbank := NewTBank(config.TBank{TerminalPassword: "fallback"})
		assert.True(t, tbank.Verify(signed(t, body, "fallback"), map[string]any{}))
	})

	t.Run("NoPasswordFailsClosed", func(t *testing.T) {
		tbank := NewTBank(config.TBank{})
		assert.False(t, tbank.Verify(signed(t, body, ""), nil))
	})
}

func TestTBank_Payment(t *testing.T) {
	tbank := NewTBank(config.TBank{})

	n := parse(t, `{
		"TerminalKey": "TK",
		"PaymentId": 8742591,
		"OrderId": "order-1",
		"Amount": 12345,
		"Status": "CONFIRMED",
		"ErrorCode": "0",
		"Pan": "430000******0777",
		"ExpDate": "1122",
		"Phone": "+79001234567",
		"CardData": {"Email": "buyer@example.com"}
	}`)

	p, ok := tbank.Payment(n)
	require.True(t, ok)

	assert.Equal(t, "8742591", p.PaymentID)
	assert.Equal(t, int64(12345), p.AmountMinor)
	assert.Equal(t, "CONFIRMED", p.Status)
	assert.Equal(t, "TK", *p.TerminalKey)
	assert.Equal(t, "order-1", *p.OrderID)
	assert.Equal(t, "0", *p.ErrorCode)
	assert.Equal(t, "buyer@example.com", *p.CustomerEmail)
	assert.Equal(t, "+79001234567", *p.CustomerPhone)
	assert.Nil(t, p.PaymentStatus)
	assert.Nil(t, p.CardType)
}

func TestTBank_Payment_MissingFields(t *testing.T) {
	tbank := NewTBank(config.TBank{})

	_, ok := tbank.Payment(parse(t, `{"Status":"CONFIRMED"}`))
	assert.False(t, ok)

	p, ok := tbank.Payment(parse(t, `{"PaymentId":"P1","CardData":"oops"}`))
	require.True(t, ok)
	assert.Nil(t, p.CustomerEmail)
	assert.Zero(t, p.AmountMinor)
	assert.Empty(t, p.Status)
}

func TestTBank_Status(t *testing.T) {
	tbank := NewTBank(config.TBank{})

	assert.Equal(t, "REJECTED", tbank.Status(parse(t, `{"Status":"REJECTED"}`)))
	assert.Equal(t, "", tbank.Status(parse(t, `{}`)))
	assert.Equal(t, "notify_on_rejected", tbank.NotificationToggles()["REJECTED"])
}
