// Package allocation expands posting lines across allocation rule targets.
package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.RequireFromString("0.01")
)

// RuleFinder resolves the active rule for a source account.
type RuleFinder interface {
	FindActiveRule(ctx context.Context, sourceAccountID uuid.UUID) (ledger.AllocationRule, bool, error)
}

// ValidateTargets enforces the 100 percent invariant on a rule's targets.
func ValidateTargets(targets []ledger.AllocationTarget) error {
	if len(targets) == 0 {
		return ledger.Validation("targets", "at least one target is required")
	}
	sum := decimal.Zero
	for idx, target := range targets {
		if target.AccountID == uuid.Nil {
			return ledger.Validation(fmt.Sprintf("targets[%d]", idx), "account required")
		}
		if !target.Percentage.IsPositive() || target.Percentage.GreaterThan(hundred) {
			return ledger.Validation(fmt.Sprintf("targets[%d]", idx), "percentage must be within (0, 100]")
		}
		sum = sum.Add(target.Percentage)
	}
	if sum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return ledger.Integrity("targets", "allocation percentages must sum to 100", hundred, sum)
	}
	return nil
}

// Expand replaces every line whose account has an active rule with one line
// per target. Expanded lines are never expanded again.
func Expand(ctx context.Context, finder RuleFinder, lines []ledger.Line) ([]ledger.Line, error) {
	out := make([]ledger.Line, 0, len(lines))
	for _, line := range lines {
		rule, ok, err := finder.FindActiveRule(ctx, line.AccountID)
		if err != nil {
			return nil, fmt.Errorf("allocation: find rule: %w", err)
		}
		if !ok {
			out = append(out, line)
			continue
		}
		// Rule targets can be edited out of band after creation.
		if err := ValidateTargets(rule.Targets); err != nil {
			return nil, err
		}
		out = append(out, Split(line, rule.Targets)...)
	}
	return out, nil
}

// Split scales a line by each target percentage. The last target takes the
// rounding remainder so the split amounts add back to the original exactly.
func Split(line ledger.Line, targets []ledger.AllocationTarget) []ledger.Line {
	out := make([]ledger.Line, 0, len(targets))
	debitLeft, creditLeft := line.Debit, line.Credit
	for idx, target := range targets {
		split := line
		split.AccountID = target.AccountID
		if target.CostCenter != "" {
			split.CostCenter = target.CostCenter
		}
		if idx == len(targets)-1 {
			split.Debit, split.Credit = debitLeft, creditLeft
		} else {
			split.Debit = share(line.Debit, target.Percentage)
			split.Credit = share(line.Credit, target.Percentage)
			debitLeft = debitLeft.Sub(split.Debit)
			creditLeft = creditLeft.Sub(split.Credit)
		}
		split.Description = fmt.Sprintf("%s - Allocated %s%%", line.Description, target.Percentage.String())
		out = append(out, split)
	}
	return out
}

func share(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(2)
}
