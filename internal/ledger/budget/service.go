package budget

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/approval"
)

var (
	hundred = decimal.NewFromInt(100)
	pct80   = decimal.NewFromInt(80)
	pct90   = decimal.NewFromInt(90)
)

// CreateInput describes a new GL budget.
type CreateInput struct {
	AccountID    uuid.UUID
	FiscalYear   int
	Period       string
	BudgetAmount decimal.Decimal
	ActorID      string
}

// Validate checks required fields.
func (in CreateInput) Validate() error {
	if in.AccountID == uuid.Nil {
		return ledger.Validation("accountId", "required")
	}
	if in.FiscalYear < 1900 || in.FiscalYear > 9999 {
		return ledger.Validation("fiscalYear", "out of range")
	}
	if in.BudgetAmount.IsNegative() {
		return ledger.Validation("budgetAmount", "must not be negative")
	}
	return nil
}

// TransferInput moves budget amount between two budgets.
type TransferInput struct {
	FromID  uuid.UUID
	ToID    uuid.UUID
	Amount  decimal.Decimal
	Reason  string
	ActorID string
}

// Service manages GL budgets.
type Service struct {
	store  ledger.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the budget service.
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

// Recompute refreshes variance, utilization and alert flags.
func Recompute(b *ledger.GLBudget) {
	b.Variance = b.BudgetAmount.Sub(b.ActualAmount)
	if b.BudgetAmount.IsPositive() {
		b.UtilizationPercent = b.ActualAmount.Div(b.BudgetAmount).Mul(hundred).Round(2)
	} else {
		b.UtilizationPercent = decimal.Zero
	}
	u := b.UtilizationPercent
	b.Alerts = ledger.BudgetAlerts{
		Threshold80:  u.GreaterThanOrEqual(pct80),
		Threshold90:  u.GreaterThanOrEqual(pct90),
		Threshold100: u.GreaterThanOrEqual(hundred),
		Overspending: u.GreaterThan(hundred),
	}
}

// Create stores a DRAFT budget; (account, year, period) must be unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.GLBudget, error) {
	if err := in.Validate(); err != nil {
		return ledger.GLBudget{}, err
	}
	period := strings.TrimSpace(in.Period)
	if period == "" {
		period = ledger.DefaultBudgetPeriod
	}
	now := s.now()
	b := ledger.GLBudget{
		ID:           uuid.New(),
		AccountID:    in.AccountID,
		FiscalYear:   in.FiscalYear,
		Period:       period,
		BudgetAmount: in.BudgetAmount,
		ActualAmount: decimal.Zero,
		Status:       ledger.BudgetDraft,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	Recompute(&b)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := tx.GetAccount(ctx, in.AccountID); err != nil {
			return err
		}
		return tx.InsertBudget(ctx, b)
	})
	if errors.Is(err, ledger.ErrDuplicate) {
		return ledger.GLBudget{}, ledger.Conflict("budget", "budget already exists for this account and period")
	}
	if err != nil {
		return ledger.GLBudget{}, err
	}
	return b, nil
}

// Get returns one budget.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	var b ledger.GLBudget
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		b, err = tx.GetBudget(ctx, id)
		return err
	})
	return b, err
}

// List returns budgets matching the filter.
func (s *Service) List(ctx context.Context, filter ledger.BudgetFilter) ([]ledger.GLBudget, error) {
	var out []ledger.GLBudget
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = tx.ListBudgets(ctx, filter)
		return err
	})
	return out, err
}

// Alerts returns budgets with any threshold raised.
func (s *Service) Alerts(ctx context.Context, fiscalYear int) ([]ledger.GLBudget, error) {
	return s.List(ctx, ledger.BudgetFilter{FiscalYear: fiscalYear, AlertsOnly: true})
}

// mutate loads a budget for update, applies fn and saves it.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn func(*ledger.GLBudget) error) (ledger.GLBudget, error) {
	var out ledger.GLBudget
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.GetBudgetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&b); err != nil {
			return err
		}
		Recompute(&b)
		b.UpdatedAt = s.now()
		out = b
		return tx.UpdateBudget(ctx, b)
	})
	return out, err
}

func ensureNotFrozen(b *ledger.GLBudget) error {
	if b.Status == ledger.BudgetFrozen {
		return ledger.Conflict("budget", "budget is frozen")
	}
	return nil
}

// Revise changes the budget amount and appends a revision record.
func (s *Service) Revise(ctx context.Context, id uuid.UUID, newAmount decimal.Decimal, reason, actor string) (ledger.GLBudget, error) {
	if newAmount.IsNegative() {
		return ledger.GLBudget{}, ledger.Validation("newAmount", "must not be negative")
	}
	return s.mutate(ctx, id, func(b *ledger.GLBudget) error {
		if err := ensureNotFrozen(b); err != nil {
			return err
		}
		b.Revisions = append(b.Revisions, ledger.BudgetRevision{
			Number:         len(b.Revisions) + 1,
			PreviousAmount: b.BudgetAmount,
			NewAmount:      newAmount,
			Reason:         reason,
			RevisedBy:      actor,
			RevisedAt:      s.now(),
		})
		b.BudgetAmount = newAmount
		return nil
	})
}

// Submit opens an approval workflow with one level per approver.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, approvers []string) (ledger.GLBudget, error) {
	levels, err := approval.NewLevels(approvers)
	if err != nil {
		return ledger.GLBudget{}, err
	}
	if len(levels) == 0 {
		return ledger.GLBudget{}, ledger.Validation("approvers", "at least one approver is required")
	}
	return s.mutate(ctx, id, func(b *ledger.GLBudget) error {
		if b.Status != ledger.BudgetDraft && b.Status != ledger.BudgetRejected {
			return ledger.Conflict("status", "only draft or rejected budgets can be submitted")
		}
		b.ApprovalLevels = levels
		b.Status = ledger.BudgetPendingApproval
		return nil
	})
}

// Approve signs a level; the budget turns APPROVED once every level is signed.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, level int, comments string) (ledger.GLBudget, error) {
	return s.mutate(ctx, id, func(b *ledger.GLBudget) error {
		if b.Status != ledger.BudgetPendingApproval {
			return ledger.Conflict("status", "budget is not pending approval")
		}
		outcome, err := approval.ApproveLevel(b.ApprovalLevels, level, comments, s.now())
		if err != nil {
			return err
		}
		b.ApprovalLevels = outcome.Levels
		if outcome.AllApproved {
			b.Status = ledger.BudgetApproved
		}
		return nil
	})
}

// Reject marks a level rejected and the budget REJECTED.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, level int, comments string) (ledger.GLBudget, error) {
	return s.mutate(ctx, id, func(b *ledger.GLBudget) error {
		if b.Status != ledger.BudgetPendingApproval {
			return ledger.Conflict("status", "budget is not pending approval")
		}
		outcome, err := approval.RejectLevel(b.ApprovalLevels, level, comments, s.now())
		if err != nil {
			return err
		}
		b.ApprovalLevels = outcome.Levels
		b.Status = ledger.BudgetRejected
		return nil
	})
}

// Freeze makes the budget read-only.
func (s *Service) Freeze(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	return s.mutate(ctx, id, func(b *ledger.GLBudget) error {
		b.Status = ledger.BudgetFrozen
		return nil
	})
}

// UpdateActuals sets the actual amount and refreshes the alerts.
func (s *Service) UpdateActuals(ctx context.Context, id uuid.UUID, actual decimal.Decimal) (ledger.GLBudget, error) {
	b, err := s.mutate(ctx, id, func(b *ledger.GLBudget) error {
		b.ActualAmount = actual
		return nil
	})
	if err == nil && b.Alerts.Any() {
		s.logger.Warn("budget threshold reached",
			slog.String("budget_id", b.ID.String()),
			slog.String("utilization", b.UtilizationPercent.StringFixed(2)))
	}
	return b, err
}

// RefreshActuals sets the actual amount from the posted ledger.
func (s *Service) RefreshActuals(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	var out ledger.GLBudget
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.GetBudgetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		net, err := tx.PostedNet(ctx, b.AccountID, b.FiscalYear)
		if err != nil {
			return err
		}
		b.ActualAmount = net
		Recompute(&b)
		b.UpdatedAt = s.now()
		out = b
		return tx.UpdateBudget(ctx, b)
	})
	return out, err
}

// Transfer moves amount from one budget to another atomically. The source
// must have at least amount unspent.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (from, to ledger.GLBudget, err error) {
	if !in.Amount.IsPositive() {
		return from, to, ledger.Validation("amount", "must be greater than zero")
	}
	if in.FromID == in.ToID {
		return from, to, ledger.Validation("toId", "source and target must differ")
	}
	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		// Lock in id order so opposite transfers cannot deadlock.
		first, second := in.FromID, in.ToID
		if strings.Compare(first.String(), second.String()) > 0 {
			first, second = second, first
		}
		a, err := tx.GetBudgetForUpdate(ctx, first)
		if err != nil {
			return err
		}
		b, err := tx.GetBudgetForUpdate(ctx, second)
		if err != nil {
			return err
		}
		src, dst := a, b
		if a.ID != in.FromID {
			src, dst = b, a
		}
		if err := ensureNotFrozen(&src); err != nil {
			return err
		}
		if err := ensureNotFrozen(&dst); err != nil {
			return err
		}
		if src.Available().LessThan(in.Amount) {
			return ledger.Insufficient("amount", src.Available(), in.Amount)
		}
		reason := in.Reason
		if reason == "" {
			reason = "transfer"
		}
		src.Revisions = append(src.Revisions, ledger.BudgetRevision{
			Number: len(src.Revisions) + 1, PreviousAmount: src.BudgetAmount,
			NewAmount: src.BudgetAmount.Sub(in.Amount), Reason: reason, RevisedBy: in.ActorID, RevisedAt: now,
		})
		src.BudgetAmount = src.BudgetAmount.Sub(in.Amount)
		dst.Revisions = append(dst.Revisions, ledger.BudgetRevision{
			Number: len(dst.Revisions) + 1, PreviousAmount: dst.BudgetAmount,
			NewAmount: dst.BudgetAmount.Add(in.Amount), Reason: reason, RevisedBy: in.ActorID, RevisedAt: now,
		})
		dst.BudgetAmount = dst.BudgetAmount.Add(in.Amount)
		Recompute(&src)
		Recompute(&dst)
		src.UpdatedAt, dst.UpdatedAt = now, now
		if err := tx.UpdateBudget(ctx, src); err != nil {
			return err
		}
		if err := tx.UpdateBudget(ctx, dst); err != nil {
			return err
		}
		from, to = src, dst
		return nil
	})
	return from, to, err
}

// CopyYear clones every budget of fromYear into toYear, scaled by adjustPct.
// Budgets that already exist in the target year are skipped.
func (s *Service) CopyYear(ctx context.Context, fromYear, toYear int, adjustPct decimal.Decimal, actor string) ([]ledger.GLBudget, error) {
	if fromYear == toYear {
		return nil, ledger.Validation("toYear", "must differ from fromYear")
	}
	factor := decimal.NewFromInt(1).Add(adjustPct.Div(hundred))
	now := s.now()
	var created []ledger.GLBudget
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		previous, err := tx.ListBudgets(ctx, ledger.BudgetFilter{FiscalYear: fromYear})
		if err != nil {
			return err
		}
		for _, prev := range previous {
			b := ledger.GLBudget{
				ID:           uuid.New(),
				AccountID:    prev.AccountID,
				FiscalYear:   toYear,
				Period:       prev.Period,
				BudgetAmount: prev.BudgetAmount.Mul(factor).Round(2),
				ActualAmount: decimal.Zero,
				Status:       ledger.BudgetDraft,
				CreatedBy:    actor,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			Recompute(&b)
			if err := tx.InsertBudget(ctx, b); err != nil {
				if errors.Is(err, ledger.ErrDuplicate) {
					continue
				}
				return err
			}
			created = append(created, b)
		}
		return nil
	})
	return created, err
}

// Delete removes a budget unless it is frozen.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.GetBudgetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureNotFrozen(&b); err != nil {
			return err
		}
		return tx.DeleteBudget(ctx, id)
	})
}
