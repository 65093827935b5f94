// Package references tracks outstanding balances tied to posted entries and
// reconciles external payments against them.
package references

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// AllocateInput applies part of a payment to a reference.
type AllocateInput struct {
	PaymentID   uuid.UUID
	ReferenceID uuid.UUID
	Amount      decimal.Decimal
}

// Validate checks required fields.
func (in AllocateInput) Validate() error {
	if in.PaymentID == uuid.Nil {
		return ledger.Validation("paymentId", "required")
	}
	if in.ReferenceID == uuid.Nil {
		return ledger.Validation("referenceId", "required")
	}
	if !in.Amount.IsPositive() {
		return ledger.Validation("amount", "must be greater than zero")
	}
	return nil
}

// ManualInput creates a reference that is not backed by a journal entry.
type ManualInput struct {
	AccountID   uuid.UUID
	Reference   string
	Description string
	Amount      decimal.Decimal
	Date        time.Time
}

// UpdateInput patches a reference. Nil fields are left unchanged.
type UpdateInput struct {
	TotalAmount *decimal.Decimal
	Description *string
}

// Allocation is the outcome of an allocate or deallocate.
type Allocation struct {
	Payment   ledger.Payment          `json:"payment"`
	Reference ledger.ReferenceBalance `json:"reference"`
}

// Service is the reference reconciliation ledger.
type Service struct {
	store  ledger.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the reference service.
func NewService(store ledger.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Allocate moves amount from the payment's unapplied balance onto the
// reference and cross-links both documents.
func (s *Service) Allocate(ctx context.Context, in AllocateInput) (Allocation, error) {
	if err := in.Validate(); err != nil {
		return Allocation{}, err
	}
	var out Allocation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		payment, err := tx.GetPaymentForUpdate(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		ref, err := tx.GetReferenceForUpdate(ctx, in.ReferenceID)
		if err != nil {
			return err
		}
		if in.Amount.GreaterThan(payment.UnappliedAmount) {
			return ledger.Insufficient("payment.unappliedAmount", payment.UnappliedAmount, in.Amount)
		}
		if in.Amount.GreaterThan(ref.OutstandingAmount) {
			return ledger.Insufficient("reference.outstandingAmount", ref.OutstandingAmount, in.Amount)
		}
		now := s.now()
		payment.Allocations = append(payment.Allocations, ledger.PaymentAllocation{
			ReferenceID:    ref.ID,
			JournalEntryID: ref.JournalEntryID,
			EntryNumber:    ref.EntryNumber,
			Reference:      ref.Reference,
			Amount:         in.Amount,
			Date:           now,
		})
		payment.AllocatedAmount = payment.AllocatedAmount.Add(in.Amount)
		payment.UnappliedAmount = payment.TotalAmount.Sub(payment.AllocatedAmount)
		ref.PaidAmount = ref.PaidAmount.Add(in.Amount)
		ref.Payments = append(ref.Payments, ledger.ReferencePayment{
			PaymentID:     payment.ID,
			PaymentNumber: payment.Number,
			Amount:        in.Amount,
			Date:          now,
		})
		ref.Normalize()
		ref.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		if err := tx.UpdateReference(ctx, ref); err != nil {
			return err
		}
		out = Allocation{Payment: payment, Reference: ref}
		return nil
	})
	if err != nil {
		return Allocation{}, err
	}
	s.logger.Info("payment allocated",
		slog.String("payment_id", in.PaymentID.String()),
		slog.String("reference_id", in.ReferenceID.String()),
		slog.String("amount", in.Amount.StringFixed(2)))
	return out, nil
}

var errLinkNotFound = &ledger.DetailError{Kind: ledger.ErrNotFound, Field: "allocation", Msg: "payment allocation not found"}

// Deallocate undoes an allocation. Both cross links must exist.
func (s *Service) Deallocate(ctx context.Context, referenceID, paymentID uuid.UUID) (Allocation, error) {
	var out Allocation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ref, err := tx.GetReferenceForUpdate(ctx, referenceID)
		if err != nil {
			return err
		}
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		refIdx := -1
		for idx, p := range ref.Payments {
			if p.PaymentID == paymentID {
				refIdx = idx
				break
			}
		}
		payIdx := -1
		for idx, a := range payment.Allocations {
			if a.ReferenceID == referenceID {
				payIdx = idx
				break
			}
		}
		if refIdx < 0 || payIdx < 0 {
			return errLinkNotFound
		}
		refAmount := ref.Payments[refIdx].Amount
		payAmount := payment.Allocations[payIdx].Amount
		if !refAmount.Equal(payAmount) {
			return ledger.Integrity("allocation", "cross links disagree on amount", refAmount, payAmount)
		}
		ref.Payments = append(ref.Payments[:refIdx:refIdx], ref.Payments[refIdx+1:]...)
		ref.PaidAmount = ref.PaidAmount.Sub(refAmount)
		ref.Normalize()
		ref.UpdatedAt = s.now()
		payment.Allocations = append(payment.Allocations[:payIdx:payIdx], payment.Allocations[payIdx+1:]...)
		payment.AllocatedAmount = payment.AllocatedAmount.Sub(payAmount)
		payment.UnappliedAmount = payment.TotalAmount.Sub(payment.AllocatedAmount)
		if err := tx.UpdateReference(ctx, ref); err != nil {
			return err
		}
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		out = Allocation{Payment: payment, Reference: ref}
		return nil
	})
	return out, err
}

// CreateManual stores a reference that has no backing entry.
func (s *Service) CreateManual(ctx context.Context, in ManualInput) (ledger.ReferenceBalance, error) {
	if in.AccountID == uuid.Nil {
		return ledger.ReferenceBalance{}, ledger.Validation("accountId", "required")
	}
	if strings.TrimSpace(in.Reference) == "" {
		return ledger.ReferenceBalance{}, ledger.Validation("reference", "reference number is required for manual references")
	}
	if !in.Amount.IsPositive() {
		return ledger.ReferenceBalance{}, ledger.Validation("amount", "must be greater than zero")
	}
	var ref ledger.ReferenceBalance
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		account, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}
		seq, err := tx.NextManualReferenceSequence(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		date := in.Date
		if date.IsZero() {
			date = now
		}
		desc := in.Description
		if desc == "" {
			desc = "Manual reference for " + account.Name
		}
		ref = ledger.ReferenceBalance{
			ID:          uuid.New(),
			EntryNumber: ledger.FormatManualReferenceNumber(seq),
			Reference:   strings.TrimSpace(in.Reference),
			AccountID:   in.AccountID,
			Description: desc,
			Date:        date,
			TotalAmount: in.Amount,
			PaidAmount:  decimal.Zero,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		ref.Normalize()
		return tx.InsertReference(ctx, ref)
	})
	return ref, err
}

// Update changes the total or description. The total may not drop below the
// amount already paid.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (ledger.ReferenceBalance, error) {
	var ref ledger.ReferenceBalance
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetReferenceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.TotalAmount != nil {
			if in.TotalAmount.LessThan(current.PaidAmount) {
				return &ledger.DetailError{
					Kind:     ledger.ErrValidation,
					Field:    "totalAmount",
					Msg:      "total amount cannot be less than paid amount",
					Expected: ">= " + current.PaidAmount.StringFixed(2),
					Actual:   in.TotalAmount.StringFixed(2),
				}
			}
			current.TotalAmount = *in.TotalAmount
		}
		if in.Description != nil && *in.Description != "" {
			current.Description = *in.Description
		}
		current.Normalize()
		current.UpdatedAt = s.now()
		ref = current
		return tx.UpdateReference(ctx, current)
	})
	return ref, err
}

// Delete removes a reference that has no payments applied.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ref, err := tx.GetReferenceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ref.PaidAmount.IsPositive() {
			return ledger.Conflict("reference", fmt.Sprintf("cannot delete reference with payments (%s paid)", ref.PaidAmount.StringFixed(2)))
		}
		return tx.DeleteReference(ctx, id)
	})
}

// Get returns one reference.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.ReferenceBalance, error) {
	var ref ledger.ReferenceBalance
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		ref, err = tx.GetReference(ctx, id)
		return err
	})
	return ref, err
}

// ListOutstanding lists references; without statuses it returns unpaid ones.
func (s *Service) ListOutstanding(ctx context.Context, filter ledger.ReferenceFilter) ([]ledger.ReferenceBalance, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []ledger.ReferenceStatus{ledger.RefOutstanding, ledger.RefPartiallyPaid}
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	var refs []ledger.ReferenceBalance
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		refs, err = tx.ListReferences(ctx, filter)
		return err
	})
	return refs, err
}
