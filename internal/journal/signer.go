package journal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"payment-platform/internal/attrs"
)

// Signer produces tamper-evidence for journal entries.
//
// The scheme is symmetric: sha256(hex(sha256(canonical entry)) || secret).
// Anyone holding the secret can forge a signature, so this detects edits by
// parties without the secret only. It is not a public non-repudiation scheme.
type Signer struct {
	secret []byte
}

var ErrEmptySecret = errors.New("journal: signing secret is required")

func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &Signer{secret: cp}, nil
}

// canonicalEntry fixes field order for serialization. Signature is excluded.
type canonicalEntry struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	Side          Side      `json:"side"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	AccountID     string    `json:"account_id"`
	PaymentID     string    `json:"payment_id"`
	ReferenceID   string    `json:"reference_id"`
	Timestamp     string    `json:"timestamp"`
	Metadata      attrs.Map `json:"metadata"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id"`
	RequestID     string    `json:"request_id"`
}

func canonical(e Entry) ([]byte, error) {
	md := e.Metadata
	if md == nil {
		md = attrs.Map{}
	}
	// encoding/json sorts map keys, so metadata serializes deterministically.
	return json.Marshal(canonicalEntry{
		ID:            e.ID,
		Kind:          e.Kind,
		Side:          e.Side,
		Amount:        e.Amount,
		Currency:      e.Currency,
		AccountID:     e.AccountID,
		PaymentID:     e.PaymentID,
		ReferenceID:   e.ReferenceID,
		Timestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
		Metadata:      md,
		Version:       e.Version,
		CorrelationID: e.CorrelationID,
		RequestID:     e.RequestID,
	})
}

// Sign returns the signature for e, ignoring any existing e.Signature.
func (s *Signer) Sign(e Entry) (string, error) {
	payload, err := canonical(e)
	if err != nil {
		return "", err
	}
	inner := sha256.Sum256(payload)
	h := sha256.New()
	h.Write([]byte(hex.EncodeToString(inner[:])))
	h.Write(s.secret)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the signature and compares in constant time.
func (s *Signer) Verify(e Entry) bool {
	want, err := s.Sign(e)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(e.Signature)) == 1
}
