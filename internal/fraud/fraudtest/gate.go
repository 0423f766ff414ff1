// Package fraudtest provides a scripted fraud gate for tests.
package fraudtest

import (
	"context"
	"sync"

	"payment-platform/internal/fraud"
)

// Gate returns Decision (or Err) for every request and records what it saw.
type Gate struct {
	mu sync.Mutex

	Decision fraud.Decision
	Err      error
	// Block, when set, makes Evaluate wait for ctx cancellation.
	Block bool

	Requests            []fraud.Request
	FailedConfirmations []string
}

func Approve() *Gate {
	return &Gate{Decision: fraud.Decision{Action: fraud.ActionApprove, RiskLevel: fraud.RiskLow, Confidence: 0.9}}
}

func WithAction(a fraud.Action, reason string) *Gate {
	return &Gate{Decision: fraud.Decision{Action: a, Reason: reason, Score: 0.6, RiskLevel: fraud.RiskHigh, Confidence: 0.8}}
}

func (g *Gate) Evaluate(ctx context.Context, req fraud.Request) (fraud.Decision, error) {
	g.mu.Lock()
	g.Requests = append(g.Requests, req)
	block, d, err := g.Block, g.Decision, g.Err
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return fraud.Decision{}, ctx.Err()
	}
	return d, err
}

func (g *Gate) ReportFailedConfirmation(ctx context.Context, payerID, paymentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FailedConfirmations = append(g.FailedConfirmations, paymentID)
	return nil
}

func (g *Gate) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

func (g *Gate) SetDecision(d fraud.Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Decision = d
}
