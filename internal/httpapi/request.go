package httpapi

import (
	"strings"

	"payment-platform/internal/apperr"
	"payment-platform/internal/auth"
	"payment-platform/internal/money"
	"payment-platform/internal/payment"
	"payment-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the caller's key on side-effecting requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// moneyInput accepts either a decimal string ("300.00") or minor units.
type moneyInput struct {
	Amount      string `json:"amount"`
	AmountMinor *int64 `json:"amount_minor"`
	Currency    string `json:"currency"`
}

func (in moneyInput) money() (money.Money, error) {
	switch {
	case in.AmountMinor != nil && in.Amount != "":
		return money.Money{}, apperr.Validation("send amount or amount_minor, not both")
	case in.AmountMinor != nil:
		cur, err := money.NormalizeCurrency(in.Currency)
		if err != nil {
			return money.Money{}, apperr.Validation("%v", err)
		}
		return money.New(*in.AmountMinor, cur), nil
	case in.Amount != "":
		m, err := money.Parse(in.Amount, in.Currency)
		if err != nil {
			return money.Money{}, apperr.Validation("%v", err)
		}
		return m, nil
	default:
		return money.Money{}, apperr.Validation("amount is required")
	}
}

// optionalMinor is moneyInput for a known currency where the amount may be absent.
func (in moneyInput) optionalMinor(currency string) (*int64, error) {
	if in.Amount == "" && in.AmountMinor == nil {
		return nil, nil
	}
	if in.Currency == "" {
		in.Currency = currency
	}
	m, err := in.money()
	if err != nil {
		return nil, err
	}
	if cur, _ := money.NormalizeCurrency(currency); cur != m.Currency {
		return nil, apperr.Validation("amount currency %s does not match %s", m.Currency, currency)
	}
	return &m.Amount, nil
}

type caller struct {
	UserID string
	Role   string
}

func (c caller) privileged() bool {
	return c.Role == rbac.RoleAdmin || c.Role == rbac.RoleFinance
}

func callerOf(c *gin.Context) caller {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return caller{UserID: uid, Role: role}
}

// idempotencyKey namespaces the caller's key by operation and caller so keys
// chosen by different users never collide.
func idempotencyKey(c *gin.Context, scope, userID string) (string, error) {
	raw := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if raw == "" {
		return "", apperr.Validation("%s header is required", HeaderIdempotencyKey)
	}
	if len(raw) > 255 {
		return "", apperr.Validation("%s header is too long", HeaderIdempotencyKey)
	}
	return scope + ":" + userID + ":" + raw, nil
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return apperr.Validation("invalid json: %v", err)
	}
	return nil
}

// paymentView is the payment as returned over HTTP. The confirmation code is
// delivered out of band and never echoed in API responses.
type paymentView struct {
	payment.Payment
	ConfirmationCode string `json:"confirmation_code,omitempty"`
}

func view(p payment.Payment) paymentView {
	return paymentView{Payment: p}
}
