package httpapi

import (
	"context"
	"net/http"

	"payment-platform/internal/apperr"
	"payment-platform/internal/attrs"
	"payment-platform/internal/audit"
	"payment-platform/internal/payment"

	"github.com/gin-gonic/gin"
)

// Privileged endpoints. Route groups restrict them to finance, admin or the
// hidden service role; every successful call is audited.

func (h Handlers) record(c *gin.Context, e audit.Event) {
	who := callerOf(c)
	e.ActorUserID = who.UserID
	e.ActorRole = who.Role
	e.IPAddress = c.ClientIP()
	h.Audit.Record(c.Request.Context(), e)
}

// ChargebackPayment reverses a completed payment after a dispute.
func (h Handlers) ChargebackPayment(c *gin.Context) {
	var req reasonRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if req.Reason == "" {
		respondError(c, apperr.Validation("reason is required"))
		return
	}
	h.act(c, canView, func(ctx context.Context, id string) (payment.Payment, error) {
		p, err := h.Payments.Chargeback(ctx, id, req.Reason)
		if err == nil {
			h.record(c, audit.Event{
				Type:         audit.EventTypeChargeback,
				PaymentID:    p.ID,
				TargetUserID: p.ReceiverID,
				Message:      req.Reason,
				Metadata:     attrs.Map{"amount": p.Amount.String()},
			})
		}
		return p, err
	})
}

type depositRequest struct {
	moneyInput
	UserID    string    `json:"user_id"`
	Reference string    `json:"reference"`
	Metadata  attrs.Map `json:"metadata"`
}

// StageDeposit records inbound funds as pending until the rail confirms them.
func (h Handlers) StageDeposit(c *gin.Context) {
	who := callerOf(c)
	var req depositRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	amount, err := req.money()
	if err != nil {
		respondError(c, err)
		return
	}
	key, err := idempotencyKey(c, "deposit", who.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := h.Payments.StageDeposit(c.Request.Context(), payment.DepositRequest{
		UserID:         req.UserID,
		Amount:         amount,
		Reference:      req.Reference,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
	})
	if err != nil {
		respondPaymentError(c, p, err)
		return
	}
	c.JSON(http.StatusCreated, view(p))
}

func (h Handlers) SettleDeposit(c *gin.Context) {
	p, err := h.Payments.SettleDeposit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondPaymentError(c, p, err)
		return
	}
	h.record(c, audit.Event{
		Type:         audit.EventTypeDepositSettled,
		PaymentID:    p.ID,
		TargetUserID: p.ReceiverID,
		Metadata:     attrs.Map{"amount": p.Amount.String()},
	})
	c.JSON(http.StatusOK, view(p))
}

type adjustmentRequest struct {
	moneyInput
	UserID    string `json:"user_id"`
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
}

// Adjust credits or debits a wallet by hand.
func (h Handlers) Adjust(c *gin.Context) {
	who := callerOf(c)
	var req adjustmentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if req.Direction != "credit" && req.Direction != "debit" {
		respondError(c, apperr.Validation("direction must be credit or debit"))
		return
	}
	amount, err := req.money()
	if err != nil {
		respondError(c, err)
		return
	}
	key, err := idempotencyKey(c, "adjustment", who.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := h.Payments.Adjust(c.Request.Context(), payment.AdjustRequest{
		UserID:         req.UserID,
		Amount:         amount,
		Credit:         req.Direction == "credit",
		Reason:         req.Reason,
		AdminID:        who.UserID,
		IdempotencyKey: key,
	})
	if err != nil {
		respondPaymentError(c, p, err)
		return
	}
	h.record(c, audit.Event{
		Type:         audit.EventTypeAdjustment,
		PaymentID:    p.ID,
		TargetUserID: req.UserID,
		Message:      req.Reason,
		Metadata:     attrs.Map{"amount": amount.String(), "direction": req.Direction},
	})
	c.JSON(http.StatusCreated, view(p))
}
