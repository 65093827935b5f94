package memstore

import (
	"slices"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func cloneEntry(e ledger.JournalEntry) ledger.JournalEntry {
	e.Lines = slices.Clone(e.Lines)
	e.ApprovalLevels = slices.Clone(e.ApprovalLevels)
	e.BudgetWarnings = slices.Clone(e.BudgetWarnings)
	e.Attachments = slices.Clone(e.Attachments)
	e.ChangeHistory = slices.Clone(e.ChangeHistory)
	return e
}

func cloneRule(r ledger.AllocationRule) ledger.AllocationRule {
	r.Targets = slices.Clone(r.Targets)
	return r
}

func cloneBudget(b ledger.GLBudget) ledger.GLBudget {
	b.Revisions = slices.Clone(b.Revisions)
	b.ApprovalLevels = slices.Clone(b.ApprovalLevels)
	return b
}

func cloneReference(r ledger.ReferenceBalance) ledger.ReferenceBalance {
	r.Payments = slices.Clone(r.Payments)
	return r
}

func clonePayment(p ledger.Payment) ledger.Payment {
	p.Allocations = slices.Clone(p.Allocations)
	return p
}

func cloneTemplate(t ledger.JournalTemplate) ledger.JournalTemplate {
	t.Lines = slices.Clone(t.Lines)
	return t
}
