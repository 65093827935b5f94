package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// Entries.

func (t *tx) NextEntrySequence(_ context.Context, fiscalYear int) (int, error) {
	t.st.sequences[fiscalYear]++
	return t.st.sequences[fiscalYear], nil
}

func (t *tx) InsertEntry(_ context.Context, entry ledger.JournalEntry) error {
	if _, ok := t.st.entries[entry.ID]; ok {
		return ledger.ErrDuplicate
	}
	for _, existing := range t.st.entries {
		if existing.EntryNumber == entry.EntryNumber {
			return ledger.ErrDuplicate
		}
	}
	t.st.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (t *tx) UpdateEntry(_ context.Context, entry ledger.JournalEntry) error {
	if _, ok := t.st.entries[entry.ID]; !ok {
		return ledger.ErrEntryNotFound
	}
	t.st.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (t *tx) GetEntry(_ context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	entry, ok := t.st.entries[id]
	if !ok {
		return ledger.JournalEntry{}, ledger.ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

func (t *tx) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return t.GetEntry(ctx, id)
}

func (t *tx) DeleteEntry(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.entries[id]; !ok {
		return ledger.ErrEntryNotFound
	}
	delete(t.st.entries, id)
	return nil
}

func (t *tx) ListEntries(_ context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, e := range t.st.entries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Type != "" && e.EntryType != filter.Type {
			continue
		}
		if filter.Year != 0 && e.PeriodYear != filter.Year {
			continue
		}
		if filter.Month != 0 && e.PeriodMonth != filter.Month {
			continue
		}
		if filter.From != nil && e.EntryDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.EntryDate.After(*filter.To) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.After(out[j].EntryDate)
		}
		return out[i].EntryNumber > out[j].EntryNumber
	})
	return page(out, filter.Offset, filter.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (t *tx) EntryStats(_ context.Context) (ledger.EntryStats, error) {
	stats := ledger.EntryStats{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, e := range t.st.entries {
		stats.Total++
		switch e.Status {
		case ledger.StatusDraft:
			stats.Draft++
		case ledger.StatusApproved:
			stats.Approved++
		case ledger.StatusPosted:
			stats.Posted++
			stats.TotalDebit = stats.TotalDebit.Add(e.TotalDebit)
			stats.TotalCredit = stats.TotalCredit.Add(e.TotalCredit)
		case ledger.StatusReversed:
			stats.Reversed++
		}
		if e.IsRecurring {
			stats.Recurring++
		}
	}
	return stats, nil
}

func (t *tx) ListDueRecurring(_ context.Context, asOf time.Time) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, e := range t.st.entries {
		if !e.IsRecurring || e.NextRecurringDate == nil || e.NextRecurringDate.After(asOf) {
			continue
		}
		if e.Status != ledger.StatusPosted && e.Status != ledger.StatusApproved {
			continue
		}
		if e.RecurringEndDate != nil && e.RecurringEndDate.Before(asOf) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRecurringDate.Before(*out[j].NextRecurringDate) })
	return out, nil
}

func (t *tx) ListDueReversals(_ context.Context, asOf time.Time) ([]ledger.JournalEntry, error) {
	var out []ledger.JournalEntry
	for _, e := range t.st.entries {
		if !e.IsReversing || e.Status != ledger.StatusPosted || e.ReversedByID != nil {
			continue
		}
		if e.ReverseDate == nil || e.ReverseDate.After(asOf) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReverseDate.Before(*out[j].ReverseDate) })
	return out, nil
}

func (t *tx) ClaimRecurrence(_ context.Context, key string, _, childID uuid.UUID) error {
	if _, ok := t.st.claims[key]; ok {
		return ledger.ErrDuplicate
	}
	t.st.claims[key] = childID
	return nil
}

// Accounts.

func (t *tx) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	acct, ok := t.st.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acct, nil
}

func (t *tx) ApplyBalanceDelta(_ context.Context, id uuid.UUID, delta decimal.Decimal) error {
	acct, ok := t.st.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	acct.Balance = acct.Balance.Add(delta)
	t.st.accounts[id] = acct
	return nil
}

// Allocation rules.

func (t *tx) FindActiveRule(_ context.Context, source uuid.UUID) (ledger.AllocationRule, bool, error) {
	for _, r := range t.st.rules {
		if r.IsActive && r.SourceAccountID == source {
			return cloneRule(r), true, nil
		}
	}
	return ledger.AllocationRule{}, false, nil
}

func (t *tx) InsertRule(_ context.Context, rule ledger.AllocationRule) error {
	t.st.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (t *tx) UpdateRule(_ context.Context, rule ledger.AllocationRule) error {
	if _, ok := t.st.rules[rule.ID]; !ok {
		return ledger.ErrRuleNotFound
	}
	t.st.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (t *tx) GetRule(_ context.Context, id uuid.UUID) (ledger.AllocationRule, error) {
	r, ok := t.st.rules[id]
	if !ok {
		return ledger.AllocationRule{}, ledger.ErrRuleNotFound
	}
	return cloneRule(r), nil
}

func (t *tx) ListRules(_ context.Context, activeOnly bool) ([]ledger.AllocationRule, error) {
	var out []ledger.AllocationRule
	for _, r := range t.st.rules {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Budgets.

func (t *tx) FindApprovedBudget(_ context.Context, accountID uuid.UUID, fiscalYear int) (ledger.GLBudget, bool, error) {
	for _, b := range t.st.budgets {
		if b.AccountID == accountID && b.FiscalYear == fiscalYear && b.Status == ledger.BudgetApproved {
			return cloneBudget(b), true, nil
		}
	}
	return ledger.GLBudget{}, false, nil
}

func (t *tx) PostedNet(_ context.Context, accountID uuid.UUID, fiscalYear int) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range t.st.entries {
		if e.PeriodYear != fiscalYear {
			continue
		}
		if e.Status != ledger.StatusPosted && e.Status != ledger.StatusReversed {
			continue
		}
		for _, line := range e.Lines {
			if line.AccountID == accountID {
				total = total.Add(line.Net())
			}
		}
	}
	return total, nil
}

func (t *tx) InsertBudget(_ context.Context, b ledger.GLBudget) error {
	for _, existing := range t.st.budgets {
		if existing.AccountID == b.AccountID && existing.FiscalYear == b.FiscalYear && existing.Period == b.Period {
			return ledger.ErrDuplicate
		}
	}
	t.st.budgets[b.ID] = cloneBudget(b)
	return nil
}

func (t *tx) UpdateBudget(_ context.Context, b ledger.GLBudget) error {
	if _, ok := t.st.budgets[b.ID]; !ok {
		return ledger.ErrBudgetNotFound
	}
	t.st.budgets[b.ID] = cloneBudget(b)
	return nil
}

func (t *tx) GetBudget(_ context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	b, ok := t.st.budgets[id]
	if !ok {
		return ledger.GLBudget{}, ledger.ErrBudgetNotFound
	}
	return cloneBudget(b), nil
}

func (t *tx) GetBudgetForUpdate(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	return t.GetBudget(ctx, id)
}

func (t *tx) ListBudgets(_ context.Context, filter ledger.BudgetFilter) ([]ledger.GLBudget, error) {
	var out []ledger.GLBudget
	for _, b := range t.st.budgets {
		if filter.FiscalYear != 0 && b.FiscalYear != filter.FiscalYear {
			continue
		}
		if filter.AccountID != nil && b.AccountID != *filter.AccountID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.AlertsOnly && !b.Alerts.Any() {
			continue
		}
		out = append(out, cloneBudget(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FiscalYear != out[j].FiscalYear {
			return out[i].FiscalYear > out[j].FiscalYear
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) DeleteBudget(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.budgets[id]; !ok {
		return ledger.ErrBudgetNotFound
	}
	delete(t.st.budgets, id)
	return nil
}

// Periods.

func (t *tx) GetPeriodLock(_ context.Context, year, month int) (ledger.PeriodLock, bool, error) {
	lock, ok := t.st.locks[periodKey{year, month}]
	return lock, ok, nil
}

func (t *tx) InsertPeriodLock(_ context.Context, lock ledger.PeriodLock) error {
	key := periodKey{lock.Year, lock.Month}
	if _, ok := t.st.locks[key]; ok {
		return ledger.ErrDuplicate
	}
	t.st.locks[key] = lock
	return nil
}

func (t *tx) DeletePeriodLock(_ context.Context, year, month int) error {
	delete(t.st.locks, periodKey{year, month})
	return nil
}

func (t *tx) SetEntriesLocked(_ context.Context, year, month int, locked bool, actor string, at time.Time) (int64, error) {
	var n int64
	for id, e := range t.st.entries {
		if e.PeriodYear != year || e.PeriodMonth != month {
			continue
		}
		e = cloneEntry(e)
		e.IsLocked = locked
		if locked {
			stamp := at
			e.LockedBy, e.LockedAt = actor, &stamp
		} else {
			e.LockedBy, e.LockedAt = "", nil
		}
		t.st.entries[id] = e
		n++
	}
	return n, nil
}

func (t *tx) ListPeriodLocks(_ context.Context, year int) ([]ledger.PeriodLock, error) {
	var out []ledger.PeriodLock
	for key, lock := range t.st.locks {
		if year != 0 && key.year != year {
			continue
		}
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

// References.

func (t *tx) InsertReference(_ context.Context, ref ledger.ReferenceBalance) error {
	t.st.references[ref.ID] = cloneReference(ref)
	return nil
}

func (t *tx) UpdateReference(_ context.Context, ref ledger.ReferenceBalance) error {
	if _, ok := t.st.references[ref.ID]; !ok {
		return ledger.ErrReferenceNotFound
	}
	t.st.references[ref.ID] = cloneReference(ref)
	return nil
}

func (t *tx) GetReference(_ context.Context, id uuid.UUID) (ledger.ReferenceBalance, error) {
	ref, ok := t.st.references[id]
	if !ok {
		return ledger.ReferenceBalance{}, ledger.ErrReferenceNotFound
	}
	return cloneReference(ref), nil
}

func (t *tx) GetReferenceForUpdate(ctx context.Context, id uuid.UUID) (ledger.ReferenceBalance, error) {
	return t.GetReference(ctx, id)
}

func (t *tx) DeleteReference(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.references[id]; !ok {
		return ledger.ErrReferenceNotFound
	}
	delete(t.st.references, id)
	return nil
}

func (t *tx) ReferenceExists(_ context.Context, entryID, accountID uuid.UUID) (bool, error) {
	for _, ref := range t.st.references {
		if ref.JournalEntryID != nil && *ref.JournalEntryID == entryID && ref.AccountID == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) ListReferences(_ context.Context, filter ledger.ReferenceFilter) ([]ledger.ReferenceBalance, error) {
	var out []ledger.ReferenceBalance
	for _, ref := range t.st.references {
		if filter.AccountID != nil && ref.AccountID != *filter.AccountID {
			continue
		}
		if filter.JournalEntryID != nil && (ref.JournalEntryID == nil || *ref.JournalEntryID != *filter.JournalEntryID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ref.Status) {
			continue
		}
		out = append(out, cloneReference(ref))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].EntryNumber < out[j].EntryNumber
	})
	return page(out, 0, filter.Limit), nil
}

func containsStatus(statuses []ledger.ReferenceStatus, s ledger.ReferenceStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (t *tx) NextManualReferenceSequence(_ context.Context) (int, error) {
	t.st.manualRefSeq++
	return t.st.manualRefSeq, nil
}

// Payments.

func (t *tx) GetPaymentForUpdate(_ context.Context, id uuid.UUID) (ledger.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return ledger.Payment{}, ledger.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (t *tx) UpdatePayment(_ context.Context, p ledger.Payment) error {
	if _, ok := t.st.payments[p.ID]; !ok {
		return ledger.ErrPaymentNotFound
	}
	t.st.payments[p.ID] = clonePayment(p)
	return nil
}

// Templates.

func (t *tx) GetTemplate(_ context.Context, id uuid.UUID) (ledger.JournalTemplate, error) {
	tpl, ok := t.st.templates[id]
	if !ok {
		return ledger.JournalTemplate{}, ledger.ErrTemplateNotFound
	}
	return cloneTemplate(tpl), nil
}

func (t *tx) InsertTemplate(_ context.Context, tpl ledger.JournalTemplate) error {
	t.st.templates[tpl.ID] = cloneTemplate(tpl)
	return nil
}

func (t *tx) IncrementTemplateUsage(_ context.Context, id uuid.UUID) error {
	tpl, ok := t.st.templates[id]
	if !ok {
		return ledger.ErrTemplateNotFound
	}
	tpl = cloneTemplate(tpl)
	tpl.UsageCount++
	t.st.templates[id] = tpl
	return nil
}
