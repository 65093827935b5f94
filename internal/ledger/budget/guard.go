// Package budget checks postings against GL budgets and manages those budgets.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// Reader is the data the guard needs.
type Reader interface {
	FindApprovedBudget(ctx context.Context, accountID uuid.UUID, fiscalYear int) (ledger.GLBudget, bool, error)
	PostedNet(ctx context.Context, accountID uuid.UUID, fiscalYear int) (decimal.Decimal, error)
}

var printer = message.NewPrinter(language.English)

// Check returns a warning for each line that would push its account past the
// approved budget for the entry's fiscal year. Warnings never block a posting.
func Check(ctx context.Context, reader Reader, date time.Time, lines []ledger.Line) ([]ledger.BudgetWarning, error) {
	year, _ := ledger.FiscalPeriod(date)
	var warnings []ledger.BudgetWarning
	for _, line := range lines {
		budget, ok, err := reader.FindApprovedBudget(ctx, line.AccountID, year)
		if err != nil {
			return nil, fmt.Errorf("budget: find budget: %w", err)
		}
		if !ok {
			continue
		}
		posted, err := reader.PostedNet(ctx, line.AccountID, year)
		if err != nil {
			return nil, fmt.Errorf("budget: posted net: %w", err)
		}
		projected := posted.Add(line.Net())
		if !projected.GreaterThan(budget.BudgetAmount) {
			continue
		}
		variance := projected.Sub(budget.BudgetAmount)
		warnings = append(warnings, ledger.BudgetWarning{
			AccountID:    line.AccountID,
			BudgetAmount: budget.BudgetAmount,
			ActualAmount: projected,
			Variance:     variance,
			Message:      printer.Sprintf("Exceeds budget by %.2f", variance.InexactFloat64()),
		})
	}
	return warnings, nil
}
