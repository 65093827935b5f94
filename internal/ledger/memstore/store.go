// Package memstore is an in-memory ledger.Store. Transactions are serialized
// by a single mutex and roll back by restoring a snapshot, so a unit of work
// is all-or-nothing. It backs tests and the memory store mode.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

type periodKey struct{ year, month int }

type state struct {
	entries      map[uuid.UUID]ledger.JournalEntry
	sequences    map[int]int
	accounts     map[uuid.UUID]ledger.Account
	rules        map[uuid.UUID]ledger.AllocationRule
	budgets      map[uuid.UUID]ledger.GLBudget
	locks        map[periodKey]ledger.PeriodLock
	references   map[uuid.UUID]ledger.ReferenceBalance
	payments     map[uuid.UUID]ledger.Payment
	templates    map[uuid.UUID]ledger.JournalTemplate
	claims       map[string]uuid.UUID
	manualRefSeq int
}

func newState() state {
	return state{
		entries:    map[uuid.UUID]ledger.JournalEntry{},
		sequences:  map[int]int{},
		accounts:   map[uuid.UUID]ledger.Account{},
		rules:      map[uuid.UUID]ledger.AllocationRule{},
		budgets:    map[uuid.UUID]ledger.GLBudget{},
		locks:      map[periodKey]ledger.PeriodLock{},
		references: map[uuid.UUID]ledger.ReferenceBalance{},
		payments:   map[uuid.UUID]ledger.Payment{},
		templates:  map[uuid.UUID]ledger.JournalTemplate{},
		claims:     map[string]uuid.UUID{},
	}
}

// Stored values are never mutated in place, so copying the maps is a
// complete snapshot.
func (s state) snapshot() state {
	return state{
		entries:      copyMap(s.entries),
		sequences:    copyMap(s.sequences),
		accounts:     copyMap(s.accounts),
		rules:        copyMap(s.rules),
		budgets:      copyMap(s.budgets),
		locks:        copyMap(s.locks),
		references:   copyMap(s.references),
		payments:     copyMap(s.payments),
		templates:    copyMap(s.templates),
		claims:       copyMap(s.claims),
		manualRefSeq: s.manualRefSeq,
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is the in-memory implementation of ledger.Store.
type Store struct {
	mu    sync.Mutex
	state state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// WithTx runs fn with exclusive access. Any error restores the state seen
// before fn started. Calls must not nest.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.state.snapshot()
	if err := fn(ctx, &tx{st: &s.state}); err != nil {
		s.state = saved
		return err
	}
	return nil
}

// AddAccount seeds an account.
func (s *Store) AddAccount(acct ledger.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.accounts[acct.ID] = acct
}

// Account returns a seeded account with its current balance.
func (s *Store) Account(id uuid.UUID) (ledger.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.state.accounts[id]
	return acct, ok
}

// AddPayment seeds a payment document. Unapplied is derived from the totals.
func (s *Store) AddPayment(p ledger.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UnappliedAmount = p.TotalAmount.Sub(p.AllocatedAmount)
	s.state.payments[p.ID] = clonePayment(p)
}

// AddRule seeds an allocation rule without validation.
func (s *Store) AddRule(rule ledger.AllocationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rules[rule.ID] = cloneRule(rule)
}

// Balance is a convenience for tests.
func (s *Store) Balance(id uuid.UUID) decimal.Decimal {
	acct, _ := s.Account(id)
	return acct.Balance
}

type tx struct {
	st *state
}

var _ ledger.Tx = (*tx)(nil)
