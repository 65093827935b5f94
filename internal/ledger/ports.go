package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store runs units of work atomically.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes every repository inside one transaction.
type Tx interface {
	EntryRepository
	AccountRepository
	RuleRepository
	BudgetRepository
	PeriodRepository
	ReferenceRepository
	PaymentRepository
	TemplateRepository
}

// EntryRepository persists journal entries. Lookups return ErrEntryNotFound.
type EntryRepository interface {
	NextEntrySequence(ctx context.Context, fiscalYear int) (int, error)
	InsertEntry(ctx context.Context, entry JournalEntry) error
	UpdateEntry(ctx context.Context, entry JournalEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, error)
	EntryStats(ctx context.Context) (EntryStats, error)
	ListDueRecurring(ctx context.Context, asOf time.Time) ([]JournalEntry, error)
	ListDueReversals(ctx context.Context, asOf time.Time) ([]JournalEntry, error)
	// ClaimRecurrence records a spawn key; a repeated key returns ErrDuplicate.
	ClaimRecurrence(ctx context.Context, key string, parentID, childID uuid.UUID) error
}

// AccountRepository reads accounts and applies atomic balance deltas.
type AccountRepository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
}

// RuleRepository persists allocation rules.
type RuleRepository interface {
	FindActiveRule(ctx context.Context, sourceAccountID uuid.UUID) (AllocationRule, bool, error)
	InsertRule(ctx context.Context, rule AllocationRule) error
	UpdateRule(ctx context.Context, rule AllocationRule) error
	GetRule(ctx context.Context, id uuid.UUID) (AllocationRule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]AllocationRule, error)
}

// BudgetRepository persists GL budgets and aggregates posted actuals.
type BudgetRepository interface {
	FindApprovedBudget(ctx context.Context, accountID uuid.UUID, fiscalYear int) (GLBudget, bool, error)
	// PostedNet sums debit minus credit of every posted line for the account and year.
	PostedNet(ctx context.Context, accountID uuid.UUID, fiscalYear int) (decimal.Decimal, error)
	InsertBudget(ctx context.Context, budget GLBudget) error
	UpdateBudget(ctx context.Context, budget GLBudget) error
	GetBudget(ctx context.Context, id uuid.UUID) (GLBudget, error)
	GetBudgetForUpdate(ctx context.Context, id uuid.UUID) (GLBudget, error)
	ListBudgets(ctx context.Context, filter BudgetFilter) ([]GLBudget, error)
	DeleteBudget(ctx context.Context, id uuid.UUID) error
}

// PeriodRepository stores keyed period locks and the per-entry lock flags.
type PeriodRepository interface {
	GetPeriodLock(ctx context.Context, year, month int) (PeriodLock, bool, error)
	InsertPeriodLock(ctx context.Context, lock PeriodLock) error
	DeletePeriodLock(ctx context.Context, year, month int) error
	SetEntriesLocked(ctx context.Context, year, month int, locked bool, actor string, at time.Time) (int64, error)
	ListPeriodLocks(ctx context.Context, year int) ([]PeriodLock, error)
}

// ReferenceRepository persists reference balances.
type ReferenceRepository interface {
	InsertReference(ctx context.Context, ref ReferenceBalance) error
	UpdateReference(ctx context.Context, ref ReferenceBalance) error
	GetReference(ctx context.Context, id uuid.UUID) (ReferenceBalance, error)
	GetReferenceForUpdate(ctx context.Context, id uuid.UUID) (ReferenceBalance, error)
	DeleteReference(ctx context.Context, id uuid.UUID) error
	ReferenceExists(ctx context.Context, entryID, accountID uuid.UUID) (bool, error)
	ListReferences(ctx context.Context, filter ReferenceFilter) ([]ReferenceBalance, error)
	NextManualReferenceSequence(ctx context.Context) (int, error)
}

// PaymentRepository reads and updates external payment documents.
type PaymentRepository interface {
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (Payment, error)
	UpdatePayment(ctx context.Context, payment Payment) error
}

// TemplateRepository persists journal templates.
type TemplateRepository interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (JournalTemplate, error)
	InsertTemplate(ctx context.Context, tpl JournalTemplate) error
	IncrementTemplateUsage(ctx context.Context, id uuid.UUID) error
}
