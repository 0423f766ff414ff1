// Package store binds the domain repositories to one Postgres transaction.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"payment-platform/internal/audit"
	"payment-platform/internal/journal"
	"payment-platform/internal/paylink"
	"payment-platform/internal/payment"
	"payment-platform/internal/wallet"
	"payment-platform/pkg/utils"
)

//go:embed schema.sql
var schema string

type (
	walletRepo  = wallet.SQLRepository
	journalRepo = journal.SQLRepository
	paymentRepo = payment.SQLRepository
	linkRepo    = paylink.SQLRepository
)

// Tx exposes every repository over the same *sql.Tx, so row locks taken by
// one repository hold for the others until commit.
type Tx struct {
	*walletRepo
	*journalRepo
	*paymentRepo
	*linkRepo
}

func newTx(tx *sql.Tx) *Tx {
	return &Tx{
		walletRepo:  wallet.NewSQLRepository(tx),
		journalRepo: journal.NewSQLRepository(tx),
		paymentRepo: payment.NewSQLRepository(tx),
		linkRepo:    paylink.NewSQLRepository(tx),
	}
}

type Store struct {
	db *sql.DB
	// timeout bounds each transaction; zero means no extra bound.
	timeout time.Duration
}

func New(db *sql.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// WithTx runs fn in a read-committed transaction. Serialization comes from
// the FOR UPDATE locks and version checks in the repositories.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx paylink.Tx) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return utils.WithTx(ctx, s.db, opts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, newTx(tx))
	})
}

// Payments adapts the store to the payment orchestrator's runner.
func (s *Store) Payments() payment.TxRunner { return paymentRunner{s} }

// Links adapts the store to the link issuer's runner.
func (s *Store) Links() paylink.TxRunner { return s }

type paymentRunner struct{ s *Store }

func (r paymentRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	return r.s.WithTx(ctx, func(ctx context.Context, tx paylink.Tx) error { return fn(ctx, tx) })
}

// Audit appends audit events outside any payment transaction, so a failed
// payment still leaves its audit trail.
func (s *Store) Audit() audit.Repository { return audit.NewSQLRepository(s.db) }

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return utils.HealthCheck(ctx, s.db, 2*time.Second)
}

var (
	_ paylink.Tx       = (*Tx)(nil)
	_ payment.TxRunner = paymentRunner{}
	_ paylink.TxRunner = (*Store)(nil)
)
