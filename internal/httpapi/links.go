package httpapi

import (
	"net/http"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/audit"
	"payment-platform/internal/paylink"
	"payment-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// --- Payment links ---

type createLinkRequest struct {
	moneyInput
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at"`
	MaxUses     *int       `json:"max_uses"`
	SingleUse   bool       `json:"single_use"`
}

// CreateLink issues a link owned by the calling merchant. Amount is optional.
func (h Handlers) CreateLink(c *gin.Context) {
	who := callerOf(c)
	var req createLinkRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	amount, err := req.optionalMinor(req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	l, err := h.Links.Create(c.Request.Context(), paylink.CreateRequest{
		MerchantID:  who.UserID,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
		MaxUses:     req.MaxUses,
		SingleUse:   req.SingleUse,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h Handlers) GetLink(c *gin.Context) {
	l, err := h.Links.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

type payLinkRequest struct {
	moneyInput
	Description string    `json:"description"`
	Metadata    attrs.Map `json:"metadata"`
}

// PayLink redeems a link as the caller. The Idempotency-Key is scoped to
// the link and payer by the issuer.
func (h Handlers) PayLink(c *gin.Context) {
	who := callerOf(c)
	var req payLinkRequest
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
	}
	callerKey := c.GetHeader(HeaderIdempotencyKey)
	if callerKey == "" {
		respondError(c, apperr.Validation("%s header is required", HeaderIdempotencyKey))
		return
	}

	var amount *int64
	if req.Amount != "" || req.AmountMinor != nil {
		l, err := h.Links.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if amount, err = req.optionalMinor(l.Currency); err != nil {
			respondError(c, err)
			return
		}
	}

	p, err := h.Links.Pay(c.Request.Context(), c.Param("id"), paylink.PayRequest{
		PayerID:     who.UserID,
		Amount:      amount,
		CallerKey:   callerKey,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondPaymentError(c, p, err)
		return
	}
	c.JSON(http.StatusCreated, view(p))
}

// DeactivateLink is allowed to the owning merchant, or to admin on its behalf.
func (h Handlers) DeactivateLink(c *gin.Context) {
	who := callerOf(c)
	merchantID := who.UserID
	if rbac.IsAdmin(who.Role) {
		l, err := h.Links.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		merchantID = l.MerchantID
	}
	l, err := h.Links.Deactivate(c.Request.Context(), c.Param("id"), merchantID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.record(c, audit.Event{
		Type:         audit.EventTypeLinkDeactivated,
		LinkID:       l.ID,
		TargetUserID: l.MerchantID,
	})
	c.JSON(http.StatusOK, l)
}
