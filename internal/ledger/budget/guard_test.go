package budget

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

type stubReader struct {
	budgets map[uuid.UUID]ledger.GLBudget
	posted  map[uuid.UUID]decimal.Decimal
}

func (r stubReader) FindApprovedBudget(_ context.Context, accountID uuid.UUID, fiscalYear int) (ledger.GLBudget, bool, error) {
	b, ok := r.budgets[accountID]
	if !ok || b.FiscalYear != fiscalYear {
		return ledger.GLBudget{}, false, nil
	}
	return b, true, nil
}

func (r stubReader) PostedNet(_ context.Context, accountID uuid.UUID, _ int) (decimal.Decimal, error) {
	return r.posted[accountID], nil
}

func TestCheckWarnsWhenProjectionExceedsBudget(t *testing.T) {
	expense, cash := uuid.New(), uuid.New()
	reader := stubReader{
		budgets: map[uuid.UUID]ledger.GLBudget{
			expense: {AccountID: expense, FiscalYear: 2024, BudgetAmount: decimal.NewFromInt(5000)},
		},
		posted: map[uuid.UUID]decimal.Decimal{expense: decimal.NewFromInt(4800)},
	}
	lines := []ledger.Line{
		{AccountID: expense, Debit: decimal.NewFromInt(500)},
		{AccountID: cash, Credit: decimal.NewFromInt(500)},
	}

	warnings, err := Check(context.Background(), reader, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), lines)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	w := warnings[0]
	require.Equal(t, expense, w.AccountID)
	require.True(t, w.ActualAmount.Equal(decimal.NewFromInt(5300)))
	require.True(t, w.Variance.Equal(decimal.NewFromInt(300)))
	require.Equal(t, "Exceeds budget by 300.00", w.Message)
}

func TestCheckIgnoresOtherYearsAndHeadroom(t *testing.T) {
	expense := uuid.New()
	reader := stubReader{
		budgets: map[uuid.UUID]ledger.GLBudget{
			expense: {AccountID: expense, FiscalYear: 2024, BudgetAmount: decimal.NewFromInt(5000)},
		},
		posted: map[uuid.UUID]decimal.Decimal{expense: decimal.NewFromInt(4500)},
	}
	lines := []ledger.Line{
		{AccountID: expense, Debit: decimal.NewFromInt(500)},
		{AccountID: uuid.New(), Credit: decimal.NewFromInt(500)},
	}

	warnings, err := Check(context.Background(), reader, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), lines)
	require.NoError(t, err)
	require.Empty(t, warnings, "exactly reaching the budget is not a breach")

	warnings, err = Check(context.Background(), reader, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), lines)
	require.NoError(t, err)
	require.Empty(t, warnings)
}
