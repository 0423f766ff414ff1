// Package storetest provides an in-memory transactional store for tests.
package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"payment-platform/internal/apperr"
	"payment-platform/internal/journal"
	"payment-platform/internal/paylink"
	"payment-platform/internal/payment"
	"payment-platform/internal/wallet"

	"github.com/google/uuid"
)

type state struct {
	payments map[string]payment.Payment
	keys     map[string]string
	holds    map[string][]payment.Hold
	wallets  map[string]wallet.Wallet
	balances map[string]wallet.Balance
	entries  []journal.Entry
	links    map[string]paylink.Link
}

func newState() state {
	return state{
		payments: map[string]payment.Payment{},
		keys:     map[string]string{},
		holds:    map[string][]payment.Hold{},
		wallets:  map[string]wallet.Wallet{},
		balances: map[string]wallet.Balance{},
		links:    map[string]paylink.Link{},
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	for k, v := range s.holds {
		out.holds[k] = append([]payment.Hold(nil), v...)
	}
	for k, v := range s.wallets {
		out.wallets[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	out.entries = append([]journal.Entry(nil), s.entries...)
	for k, v := range s.links {
		out.links[k] = v
	}
	return out
}

// Store is a serializable in-memory store. Each WithTx works on a copy of
// the state and swaps it in only when fn succeeds.
type Store struct {
	mu sync.Mutex
	st state

	// JournalErr, when set, fails every journal insert.
	JournalErr error

	// locks holds the balance lock sequence of each committed transaction.
	locks [][]string
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx paylink.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	tx := &memTx{st: &work, journalErr: s.JournalErr}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = work
	if len(tx.locks) > 0 {
		s.locks = append(s.locks, tx.locks)
	}
	return nil
}

// Payments adapts the store to the payment orchestrator's runner.
func (s *Store) Payments() payment.TxRunner { return paymentRunner{s} }

// Links adapts the store to the link issuer's runner.
func (s *Store) Links() paylink.TxRunner { return s }

type paymentRunner struct{ s *Store }

func (r paymentRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx payment.Tx) error) error {
	return r.s.WithTx(ctx, func(ctx context.Context, tx paylink.Tx) error { return fn(ctx, tx) })
}

// SetJournalErr toggles journal write failures.
func (s *Store) SetJournalErr(err error) {
	s.mu.Lock()
	s.JournalErr = err
	s.mu.Unlock()
}

// Balance returns the committed balance, zero if absent.
func (s *Store) Balance(userID, currency string) wallet.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.balances[balanceKey(userID, currency)]
}

// Fund credits available funds directly, bypassing the journal.
func (s *Store) Fund(userID, currency string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{st: &s.st}
	b, _ := tx.LockBalance(context.Background(), userID, currency)
	b.Available += amount
	b.Version++
	s.st.balances[balanceKey(userID, currency)] = b
}

// SetWalletActive flips a wallet's active flag, creating it if needed.
func (s *Store) SetWalletActive(userID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{st: &s.st}
	w := tx.ensureWallet(userID)
	w.IsActive = active
	s.st.wallets[userID] = w
}

// Entries returns all committed journal entries in commit order.
func (s *Store) Entries() []journal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]journal.Entry(nil), s.st.entries...)
}

// PaymentCount returns the number of committed payments.
func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.payments)
}

// LockOrders returns, per committed transaction, the users whose balances
// were locked, in lock order.
func (s *Store) LockOrders() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.locks))
	for i, l := range s.locks {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// Link returns a committed link.
func (s *Store) Link(id string) (paylink.Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.links[id]
	return l, ok
}

// PutLink stores a link as-is.
func (s *Store) PutLink(l paylink.Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.links[l.ID] = l
}

func balanceKey(userID, currency string) string { return userID + "|" + currency }

type memTx struct {
	st         *state
	journalErr error
	locks      []string
}

func (t *memTx) InsertPayment(ctx context.Context, p *payment.Payment) error {
	if _, taken := t.st.keys[p.IdempotencyKey]; taken {
		return payment.ErrDuplicateKey
	}
	if _, taken := t.st.payments[p.ID]; taken {
		return payment.ErrDuplicateKey
	}
	row := *p
	row.Holds = nil
	t.st.payments[p.ID] = row
	t.st.keys[p.IdempotencyKey] = p.ID
	return nil
}

func (t *memTx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	cur, ok := t.st.payments[p.ID]
	if !ok || cur.Version != p.Version {
		return payment.ErrStaleVersion
	}
	row := *p
	row.Holds = nil
	row.Version++
	t.st.payments[p.ID] = row
	p.Version++
	return nil
}

func (t *memTx) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	p.Holds = append([]payment.Hold(nil), t.st.holds[id]...)
	return p, nil
}

func (t *memTx) GetPaymentForUpdate(ctx context.Context, id string) (payment.Payment, error) {
	return t.GetPayment(ctx, id)
}

func (t *memTx) GetPaymentByKey(ctx context.Context, key string) (payment.Payment, error) {
	id, ok := t.st.keys[key]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	return t.GetPayment(ctx, id)
}

func (t *memTx) ListExpirable(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var due []payment.Payment
	for _, p := range t.st.payments {
		if p.Expired(now) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	var ids []string
	for _, p := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (t *memTx) InsertHold(ctx context.Context, h payment.Hold) error {
	t.st.holds[h.PaymentID] = append(t.st.holds[h.PaymentID], h)
	return nil
}

func (t *memTx) UpdateHold(ctx context.Context, h payment.Hold) error {
	holds := t.st.holds[h.PaymentID]
	for i := range holds {
		if holds[i].ID != h.ID {
			continue
		}
		if holds[i].IsReleased {
			return apperr.New(apperr.CodeConflict, "hold %s already released", h.ID)
		}
		holds[i].IsReleased = h.IsReleased
		holds[i].ReleasedAt = h.ReleasedAt
		return nil
	}
	return apperr.New(apperr.CodeNotFound, "hold %s not found", h.ID)
}

func (t *memTx) ensureWallet(userID string) wallet.Wallet {
	w, ok := t.st.wallets[userID]
	if !ok {
		now := time.Now().UTC()
		w = wallet.Wallet{ID: uuid.NewString(), UserID: userID, IsActive: true, CreatedAt: now, UpdatedAt: now}
		t.st.wallets[userID] = w
	}
	return w
}

func (t *memTx) LockBalance(ctx context.Context, userID, currency string) (wallet.Balance, error) {
	t.locks = append(t.locks, userID)
	w := t.ensureWallet(userID)
	k := balanceKey(userID, currency)
	b, ok := t.st.balances[k]
	if !ok {
		b = wallet.Balance{WalletID: w.ID, UserID: userID, Currency: currency, UpdatedAt: time.Now().UTC()}
		t.st.balances[k] = b
	}
	if !w.IsActive {
		return wallet.Balance{}, wallet.ErrWalletInactive
	}
	return b, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, b wallet.Balance) error {
	k := balanceKey(b.UserID, b.Currency)
	cur, ok := t.st.balances[k]
	if !ok || cur.Version != b.Version-1 {
		return wallet.ErrVersionConflict
	}
	if b.Available < 0 || b.Held < 0 || b.Pending < 0 {
		return errors.New("storetest: balance check constraint violated")
	}
	t.st.balances[k] = b
	w := t.st.wallets[b.UserID]
	w.Version++
	w.UpdatedAt = b.UpdatedAt
	t.st.wallets[b.UserID] = w
	return nil
}

func (t *memTx) GetWallet(ctx context.Context, userID string) (wallet.Wallet, []wallet.Balance, error) {
	w, ok := t.st.wallets[userID]
	if !ok {
		return wallet.Wallet{}, nil, apperr.New(apperr.CodeNotFound, "wallet not found")
	}
	var out []wallet.Balance
	for _, b := range t.st.balances {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return w, out, nil
}

func (t *memTx) InsertEntries(ctx context.Context, entries []journal.Entry) error {
	if t.journalErr != nil {
		return t.journalErr
	}
	t.st.entries = append(t.st.entries, entries...)
	return nil
}

func (t *memTx) ListEntries(ctx context.Context, accountID, currency string, asOf time.Time) ([]journal.Entry, error) {
	var out []journal.Entry
	for _, e := range t.st.entries {
		if e.AccountID == accountID && e.Currency == currency && !e.Timestamp.After(asOf) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) InsertLink(ctx context.Context, l paylink.Link) error {
	if _, ok := t.st.links[l.ID]; ok {
		return apperr.New(apperr.CodeConflict, "link %s exists", l.ID)
	}
	t.st.links[l.ID] = l
	return nil
}

func (t *memTx) GetLink(ctx context.Context, id string) (paylink.Link, error) {
	l, ok := t.st.links[id]
	if !ok {
		return paylink.Link{}, paylink.ErrNotFound
	}
	return l, nil
}

func (t *memTx) GetLinkForUpdate(ctx context.Context, id string) (paylink.Link, error) {
	return t.GetLink(ctx, id)
}

func (t *memTx) UpdateLink(ctx context.Context, l paylink.Link) error {
	if _, ok := t.st.links[l.ID]; !ok {
		return paylink.ErrNotFound
	}
	t.st.links[l.ID] = l
	return nil
}
