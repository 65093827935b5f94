package references

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// SpawnRepository is the subset of the store used while posting.
type SpawnRepository interface {
	ReferenceExists(ctx context.Context, entryID, accountID uuid.UUID) (bool, error)
	InsertReference(ctx context.Context, ref ledger.ReferenceBalance) error
	GetReferenceForUpdate(ctx context.Context, id uuid.UUID) (ledger.ReferenceBalance, error)
	UpdateReference(ctx context.Context, ref ledger.ReferenceBalance) error
}

// SpawnResult lists what posting did to the reference ledger.
type SpawnResult struct {
	Created []ledger.ReferenceBalance
	Settled []ledger.ReferenceBalance
}

// SpawnForEntry runs inside the posting transaction. For each nonzero line:
// new-ref lines open a reference named by the line, against-ref lines settle
// an existing reference, and any other line opens a reference named by the
// entry's reference when it has one. At most one reference is created per
// (entry, account).
func SpawnForEntry(ctx context.Context, repo SpawnRepository, entry ledger.JournalEntry, now time.Time) (SpawnResult, error) {
	var res SpawnResult
	for idx, line := range entry.Lines {
		amount := line.Amount()
		if !amount.IsPositive() {
			continue
		}
		switch {
		case line.RefType == ledger.RefAgainst:
			settled, err := settle(ctx, repo, entry, idx, line, amount, now)
			if err != nil {
				return SpawnResult{}, err
			}
			res.Settled = append(res.Settled, settled)
		case line.RefType == ledger.RefNew:
			ref, ok, err := open(ctx, repo, entry, line, line.RefID, amount, now)
			if err != nil {
				return SpawnResult{}, err
			}
			if ok {
				res.Created = append(res.Created, ref)
			}
		case entry.Reference != "":
			ref, ok, err := open(ctx, repo, entry, line, entry.Reference, amount, now)
			if err != nil {
				return SpawnResult{}, err
			}
			if ok {
				res.Created = append(res.Created, ref)
			}
		}
	}
	return res, nil
}

func open(ctx context.Context, repo SpawnRepository, entry ledger.JournalEntry, line ledger.Line, reference string, amount decimal.Decimal, now time.Time) (ledger.ReferenceBalance, bool, error) {
	exists, err := repo.ReferenceExists(ctx, entry.ID, line.AccountID)
	if err != nil {
		return ledger.ReferenceBalance{}, false, fmt.Errorf("references: lookup: %w", err)
	}
	if exists {
		return ledger.ReferenceBalance{}, false, nil
	}
	entryID := entry.ID
	desc := line.Description
	if desc == "" {
		desc = entry.Description
	}
	ref := ledger.ReferenceBalance{
		ID:             uuid.New(),
		JournalEntryID: &entryID,
		EntryNumber:    entry.EntryNumber,
		Reference:      reference,
		AccountID:      line.AccountID,
		Description:    desc,
		Date:           entry.EntryDate,
		TotalAmount:    amount,
		PaidAmount:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ref.Normalize()
	if err := repo.InsertReference(ctx, ref); err != nil {
		return ledger.ReferenceBalance{}, false, err
	}
	return ref, true, nil
}

func settle(ctx context.Context, repo SpawnRepository, entry ledger.JournalEntry, idx int, line ledger.Line, amount decimal.Decimal, now time.Time) (ledger.ReferenceBalance, error) {
	refID, err := uuid.Parse(line.RefID)
	if err != nil {
		return ledger.ReferenceBalance{}, ledger.Validation(fmt.Sprintf("lines[%d].refId", idx), "must be a reference id")
	}
	ref, err := repo.GetReferenceForUpdate(ctx, refID)
	if err != nil {
		return ledger.ReferenceBalance{}, err
	}
	if amount.GreaterThan(ref.OutstandingAmount) {
		return ledger.ReferenceBalance{}, ledger.Insufficient(fmt.Sprintf("lines[%d]", idx), ref.OutstandingAmount, amount)
	}
	ref.PaidAmount = ref.PaidAmount.Add(amount)
	ref.Payments = append(ref.Payments, ledger.ReferencePayment{
		PaymentID:     entry.ID,
		PaymentNumber: entry.EntryNumber,
		Amount:        amount,
		Date:          now,
	})
	ref.Normalize()
	ref.UpdatedAt = now
	if err := repo.UpdateReference(ctx, ref); err != nil {
		return ledger.ReferenceBalance{}, err
	}
	return ref, nil
}

// UnwindRepository is the subset of the store used while reversing.
type UnwindRepository interface {
	GetReferenceForUpdate(ctx context.Context, id uuid.UUID) (ledger.ReferenceBalance, error)
	UpdateReference(ctx context.Context, ref ledger.ReferenceBalance) error
	DeleteReference(ctx context.Context, id uuid.UUID) error
	ListReferences(ctx context.Context, filter ledger.ReferenceFilter) ([]ledger.ReferenceBalance, error)
}

// UnwindResult lists what reversing did to the reference ledger.
type UnwindResult struct {
	Removed  []ledger.ReferenceBalance
	Restored []ledger.ReferenceBalance
}

// UnwindForEntry undoes SpawnForEntry for a posted entry that is being
// reversed. References the entry opened are removed; settlements it made
// against other references are taken back out. A reference the entry opened
// that already carries payments blocks the reversal.
func UnwindForEntry(ctx context.Context, repo UnwindRepository, entry ledger.JournalEntry, now time.Time) (UnwindResult, error) {
	var res UnwindResult
	entryID := entry.ID
	opened, err := repo.ListReferences(ctx, ledger.ReferenceFilter{JournalEntryID: &entryID})
	if err != nil {
		return UnwindResult{}, fmt.Errorf("references: list opened: %w", err)
	}
	for _, ref := range opened {
		if ref.PaidAmount.IsPositive() {
			return UnwindResult{}, ledger.Conflict("reference",
				fmt.Sprintf("reference %s has %s paid; deallocate before reversing", ref.Reference, ref.PaidAmount.StringFixed(2)))
		}
	}

	seen := make(map[uuid.UUID]bool)
	for idx, line := range entry.Lines {
		if line.RefType != ledger.RefAgainst || !line.Amount().IsPositive() {
			continue
		}
		refID, err := uuid.Parse(line.RefID)
		if err != nil {
			return UnwindResult{}, ledger.Validation(fmt.Sprintf("lines[%d].refId", idx), "must be a reference id")
		}
		if seen[refID] {
			continue
		}
		seen[refID] = true
		ref, changed, err := unsettle(ctx, repo, refID, entry.ID, now)
		if err != nil {
			return UnwindResult{}, err
		}
		if changed {
			res.Restored = append(res.Restored, ref)
		}
	}

	for _, ref := range opened {
		if err := repo.DeleteReference(ctx, ref.ID); err != nil {
			return UnwindResult{}, err
		}
		res.Removed = append(res.Removed, ref)
	}
	return res, nil
}

func unsettle(ctx context.Context, repo UnwindRepository, refID, paymentID uuid.UUID, now time.Time) (ledger.ReferenceBalance, bool, error) {
	ref, err := repo.GetReferenceForUpdate(ctx, refID)
	if errors.Is(err, ledger.ErrReferenceNotFound) {
		return ledger.ReferenceBalance{}, false, nil
	}
	if err != nil {
		return ledger.ReferenceBalance{}, false, err
	}
	kept := ref.Payments[:0]
	removed := decimal.Zero
	for _, p := range ref.Payments {
		if p.PaymentID == paymentID {
			removed = removed.Add(p.Amount)
			continue
		}
		kept = append(kept, p)
	}
	if removed.IsZero() {
		return ledger.ReferenceBalance{}, false, nil
	}
	ref.Payments = kept
	ref.PaidAmount = ref.PaidAmount.Sub(removed)
	ref.Normalize()
	ref.UpdatedAt = now
	if err := repo.UpdateReference(ctx, ref); err != nil {
		return ledger.ReferenceBalance{}, false, err
	}
	return ref, true, nil
}
