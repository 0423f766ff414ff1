package httpapi

import (
	"errors"
	"net/http"

	"payment-platform/internal/apperr"
	"payment-platform/internal/payment"
	"payment-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusOf maps an error code to the HTTP status returned to callers.
func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict, apperr.CodeInvalidStateTransition, apperr.CodePaymentExpired, apperr.CodeRefundWindowClosed:
		return http.StatusConflict
	case apperr.CodeInsufficientFunds, apperr.CodeFraudRejected, apperr.CodeConfirmationMismatch:
		return http.StatusUnprocessableEntity
	case apperr.CodeLinkExpired, apperr.CodeLinkInactive, apperr.CodeLinkMaxUses:
		return http.StatusGone
	case apperr.CodeLedgerWriteFailure, apperr.CodeIdempotencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured failure body. Internal causes are
// logged, never returned.
func respondError(c *gin.Context, err error) {
	respondFailure(c, err, nil)
}

// respondPaymentError is respondError plus the payment snapshot, when the
// failure was recorded on a payment (e.g. Failed with InsufficientFunds).
func respondPaymentError(c *gin.Context, p payment.Payment, err error) {
	if p.ID == "" {
		respondFailure(c, err, nil)
		return
	}
	v := view(p)
	respondFailure(c, err, &v)
}

func respondFailure(c *gin.Context, err error, p *paymentView) {
	code := apperr.CodeOf(err)
	status := statusOf(code)

	message := "internal error"
	corr := logger.CorrelationID(c.Request.Context())
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.CorrelationID != "" {
			corr = ae.CorrelationID
		}
		if code != apperr.CodeInternal {
			message = ae.Message
		}
	}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "code", string(code), "err", err)
	}

	body := gin.H{
		"success":        false,
		"code":           code,
		"message":        message,
		"correlation_id": corr,
	}
	if p != nil {
		body["payment"] = p
	}
	c.AbortWithStatusJSON(status, body)
}
