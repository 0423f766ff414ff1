package apperr

import (
	"errors"
	"fmt"
)

// Code is the stable, machine-readable error category returned to callers.
// Keep these stable; they are part of the API contract.
type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodeFraudRejected          Code = "FRAUD_REJECTED"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodePaymentExpired         Code = "PAYMENT_EXPIRED"
	CodeRefundWindowClosed     Code = "REFUND_WINDOW_CLOSED"
	CodeLinkExpired            Code = "LINK_EXPIRED"
	CodeLinkInactive           Code = "LINK_INACTIVE"
	CodeLinkMaxUses            Code = "LINK_MAX_USES"
	CodeConfirmationMismatch   Code = "CONFIRMATION_MISMATCH"
	CodeLedgerWriteFailure     Code = "LEDGER_WRITE_FAILURE"
	CodeUnbalancedTransaction  Code = "UNBALANCED_TRANSACTION"
	CodeIdempotencyUnavailable Code = "IDEMPOTENCY_STORE_UNAVAILABLE"
	CodeInternal               Code = "INTERNAL"
)

// Error is the single error shape crossing service boundaries.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Code          Code
	Message       string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrValidation             = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict               = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInsufficientFunds      = &Error{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrFraudRejected          = &Error{Code: CodeFraudRejected, Message: "payment rejected by fraud screening"}
	ErrInvalidStateTransition = &Error{Code: CodeInvalidStateTransition, Message: "invalid state transition"}
	ErrPaymentExpired         = &Error{Code: CodePaymentExpired, Message: "payment expired"}
	ErrRefundWindowClosed     = &Error{Code: CodeRefundWindowClosed, Message: "refund window closed"}
	ErrLinkExpired            = &Error{Code: CodeLinkExpired, Message: "payment link expired"}
	ErrLinkInactive           = &Error{Code: CodeLinkInactive, Message: "payment link inactive"}
	ErrLinkMaxUses            = &Error{Code: CodeLinkMaxUses, Message: "payment link reached max uses"}
	ErrConfirmationMismatch   = &Error{Code: CodeConfirmationMismatch, Message: "confirmation code mismatch"}
	ErrLedgerWriteFailure     = &Error{Code: CodeLedgerWriteFailure, Message: "ledger write failed"}
	ErrUnbalancedTransaction  = &Error{Code: CodeUnbalancedTransaction, Message: "journal transaction is not balanced"}
	ErrIdempotencyUnavailable = &Error{Code: CodeIdempotencyUnavailable, Message: "idempotency store unavailable"}
)

// New builds an error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Validation is shorthand for a ValidationError with a message.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// FromCode rebuilds an error from a persisted code and message.
func FromCode(code Code, msg string) error {
	if code == "" {
		return nil
	}
	return &Error{Code: code, Message: msg}
}

// WithCorrelation returns a copy of err carrying the correlation id.
// Errors that are not *Error are wrapped as CodeInternal.
func WithCorrelation(err error, correlationID string) error {
	if err == nil || correlationID == "" {
		return err
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.CorrelationID == "" {
			cp.CorrelationID = correlationID
		}
		return &cp
	}
	return &Error{Code: CodeInternal, Message: "internal error", CorrelationID: correlationID, Err: err}
}

// Retryable reports whether the caller may retry the same request.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeLedgerWriteFailure, CodeInternal, CodeIdempotencyUnavailable, CodeConflict:
		return true
	default:
		return false
	}
}
