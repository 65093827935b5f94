package allocation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/memstore"
)

func pct(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type stubFinder map[uuid.UUID]ledger.AllocationRule

func (f stubFinder) FindActiveRule(_ context.Context, source uuid.UUID) (ledger.AllocationRule, bool, error) {
	rule, ok := f[source]
	return rule, ok, nil
}

func TestValidateTargets(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	require.NoError(t, ValidateTargets([]ledger.AllocationTarget{
		{AccountID: a, Percentage: pct("33.33")},
		{AccountID: b, Percentage: pct("66.665")},
	}), "sums within a cent of 100 are accepted")

	err := ValidateTargets([]ledger.AllocationTarget{
		{AccountID: a, Percentage: pct("60")},
		{AccountID: b, Percentage: pct("30")},
	})
	require.ErrorIs(t, err, ledger.ErrIntegrity)

	require.ErrorIs(t, ValidateTargets(nil), ledger.ErrValidation)
	require.ErrorIs(t, ValidateTargets([]ledger.AllocationTarget{{AccountID: a, Percentage: pct("0")}}), ledger.ErrValidation)
	require.ErrorIs(t, ValidateTargets([]ledger.AllocationTarget{{Percentage: pct("100")}}), ledger.ErrValidation)
}

func TestSplitGivesRemainderToLastTarget(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	line := ledger.Line{AccountID: uuid.New(), Debit: pct("100"), Description: "Rent", CostCenter: "HQ"}

	out := Split(line, []ledger.AllocationTarget{
		{AccountID: a, Percentage: pct("33.33")},
		{AccountID: b, Percentage: pct("33.33"), CostCenter: "OPS"},
		{AccountID: c, Percentage: pct("33.34")},
	})

	require.Len(t, out, 3)
	require.True(t, out[0].Debit.Equal(pct("33.33")))
	require.True(t, out[1].Debit.Equal(pct("33.33")))
	require.True(t, out[2].Debit.Equal(pct("33.34")))
	require.Equal(t, "HQ", out[0].CostCenter)
	require.Equal(t, "OPS", out[1].CostCenter)
	require.Equal(t, "Rent - Allocated 33.33%", out[0].Description)

	total := decimal.Zero
	for _, l := range out {
		total = total.Add(l.Debit)
		require.True(t, l.Credit.IsZero())
	}
	require.True(t, total.Equal(line.Debit))
}

func TestExpandReplacesRuleLinesOnly(t *testing.T) {
	source, other := uuid.New(), uuid.New()
	a, b := uuid.New(), uuid.New()
	finder := stubFinder{source: {
		SourceAccountID: source,
		IsActive:        true,
		Targets: []ledger.AllocationTarget{
			{AccountID: a, Percentage: pct("60")},
			{AccountID: b, Percentage: pct("40")},
		},
	}}

	lines, err := Expand(context.Background(), finder, []ledger.Line{
		{AccountID: source, Debit: pct("1000"), Description: "Utilities"},
		{AccountID: other, Credit: pct("1000")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	require.Equal(t, a, lines[0].AccountID)
	require.True(t, lines[0].Debit.Equal(pct("600")))
	require.Equal(t, "Utilities - Allocated 60%", lines[0].Description)
	require.Equal(t, b, lines[1].AccountID)
	require.True(t, lines[1].Debit.Equal(pct("400")))
	require.Equal(t, other, lines[2].AccountID)
	require.NoError(t, ledger.CheckBalanced(lines))
}

func TestExpandRejectsDriftedRule(t *testing.T) {
	source := uuid.New()
	finder := stubFinder{source: {
		SourceAccountID: source,
		Targets:         []ledger.AllocationTarget{{AccountID: uuid.New(), Percentage: pct("90")}},
	}}
	_, err := Expand(context.Background(), finder, []ledger.Line{
		{AccountID: source, Debit: pct("10")},
		{AccountID: uuid.New(), Credit: pct("10")},
	})
	require.ErrorIs(t, err, ledger.ErrIntegrity)
}

func TestServiceEnforcesSingleActiveRule(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memstore.New())
	source := uuid.New()
	in := RuleInput{
		Name:            "Overheads",
		SourceAccountID: source,
		Targets: []ledger.AllocationTarget{
			{AccountID: uuid.New(), Percentage: pct("50")},
			{AccountID: uuid.New(), Percentage: pct("50")},
		},
		ActorID: "controller",
	}

	first, err := svc.CreateRule(ctx, in)
	require.NoError(t, err)
	require.True(t, first.IsActive)

	_, err = svc.CreateRule(ctx, in)
	require.ErrorIs(t, err, ledger.ErrStateConflict)

	_, err = svc.SetActive(ctx, first.ID, false)
	require.NoError(t, err)
	second, err := svc.CreateRule(ctx, in)
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, first.ID, true)
	require.ErrorIs(t, err, ledger.ErrStateConflict)

	active, err := svc.ListRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, second.ID, active[0].ID)
}

func TestRuleInputRejectsSelfTarget(t *testing.T) {
	source := uuid.New()
	err := RuleInput{
		Name:            "Loop",
		SourceAccountID: source,
		Targets:         []ledger.AllocationTarget{{AccountID: source, Percentage: pct("100")}},
	}.Validate()
	require.ErrorIs(t, err, ledger.ErrValidation)
}
