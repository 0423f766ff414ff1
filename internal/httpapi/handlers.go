package httpapi

import (
	"context"
	"net/http"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/audit"
	"payment-platform/internal/paylink"
	"payment-platform/internal/payment"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Payments *payment.Orchestrator
	Links    *paylink.Issuer
	// Audit is optional; privileged actions are recorded best-effort.
	Audit *audit.Service
}

// --- Payments ---

type createPaymentRequest struct {
	moneyInput
	Type        payment.Type `json:"type"`
	ReceiverID  string       `json:"receiver_id"`
	Description string       `json:"description"`
	Metadata    attrs.Map    `json:"metadata"`
	ExpiresAt   *time.Time   `json:"expires_at"`
}

// CreatePayment registers a payment sent by the caller.
// A repeated Idempotency-Key returns the first result unchanged.
func (h Handlers) CreatePayment(c *gin.Context) {
	who := callerOf(c)
	var req createPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	switch req.Type {
	case "", payment.TypeDirect, payment.TypeWithdrawal:
	default:
		respondError(c, apperr.Validation("type must be %s or %s", payment.TypeDirect, payment.TypeWithdrawal))
		return
	}
	amount, err := req.money()
	if err != nil {
		respondError(c, err)
		return
	}
	key, err := idempotencyKey(c, "payment", who.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := h.Payments.Create(c.Request.Context(), payment.CreateRequest{
		Type:           req.Type,
		Amount:         amount,
		SenderID:       who.UserID,
		ReceiverID:     req.ReceiverID,
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		respondPaymentError(c, p, err)
		return
	}
	c.JSON(http.StatusCreated, view(p))
}

// GetPayment is visible to both parties and to finance.
func (h Handlers) GetPayment(c *gin.Context) {
	p, ok := h.load(c, canView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view(p))
}

func canView(p payment.Payment, who caller) bool {
	return who.privileged() || who.UserID == p.SenderID || who.UserID == p.ReceiverID
}

func isSender(p payment.Payment, who caller) bool {
	return who.privileged() || who.UserID == p.SenderID
}

func isReceiver(p payment.Payment, who caller) bool {
	return who.privileged() || (p.ReceiverID != "" && who.UserID == p.ReceiverID)
}

// load fetches the :id payment. Payments the caller may not act on are
// reported as not found.
func (h Handlers) load(c *gin.Context, allowed func(payment.Payment, caller) bool) (payment.Payment, bool) {
	p, err := h.Payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return payment.Payment{}, false
	}
	if !allowed(p, callerOf(c)) {
		respondError(c, apperr.New(apperr.CodeNotFound, "payment %s not found", p.ID))
		return payment.Payment{}, false
	}
	return p, true
}

type paymentAction func(ctx context.Context, id string) (payment.Payment, error)

func (h Handlers) act(c *gin.Context, allowed func(payment.Payment, caller) bool, run paymentAction) {
	p, ok := h.load(c, allowed)
	if !ok {
		return
	}
	out, err := run(c.Request.Context(), p.ID)
	if err != nil {
		respondPaymentError(c, out, err)
		return
	}
	c.JSON(http.StatusOK, view(out))
}

func (h Handlers) ProcessPayment(c *gin.Context) {
	h.act(c, isSender, h.Payments.Process)
}

func (h Handlers) AuthorizePayment(c *gin.Context) {
	h.act(c, isSender, h.Payments.Authorize)
}

func (h Handlers) CapturePayment(c *gin.Context) {
	h.act(c, isSender, h.Payments.Capture)
}

func (h Handlers) RetryPayment(c *gin.Context) {
	h.act(c, isSender, h.Payments.Retry)
}

type confirmRequest struct {
	Code string `json:"code"`
}

func (h Handlers) ConfirmPayment(c *gin.Context) {
	var req confirmRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if req.Code == "" {
		respondError(c, apperr.Validation("code is required"))
		return
	}
	h.act(c, isSender, func(ctx context.Context, id string) (payment.Payment, error) {
		return h.Payments.Confirm(ctx, id, req.Code)
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) CancelPayment(c *gin.Context) {
	var req reasonRequest
	// The reason is optional; an empty body is fine.
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}
	h.act(c, isSender, func(ctx context.Context, id string) (payment.Payment, error) {
		return h.Payments.Cancel(ctx, id, req.Reason)
	})
}

// RefundPayment is initiated by the receiving side or finance.
func (h Handlers) RefundPayment(c *gin.Context) {
	h.act(c, isReceiver, h.Payments.Refund)
}
