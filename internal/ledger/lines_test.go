package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balancedPair() []Line {
	return []Line{
		{AccountID: uuid.New(), Debit: dec("1000")},
		{AccountID: uuid.New(), Credit: dec("1000")},
	}
}

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name  string
		lines func() []Line
		field string
	}{
		{"single line", func() []Line { return balancedPair()[:1] }, "lines"},
		{"missing account", func() []Line {
			l := balancedPair()
			l[1].AccountID = uuid.Nil
			return l
		}, "lines[1]"},
		{"negative amount", func() []Line {
			l := balancedPair()
			l[0].Debit = dec("-5")
			return l
		}, "lines[0]"},
		{"both sides", func() []Line {
			l := balancedPair()
			l[0].Credit = dec("1")
			return l
		}, "lines[0]"},
		{"new ref without id", func() []Line {
			l := balancedPair()
			l[0].RefType = RefNew
			return l
		}, "lines[0]"},
		{"unknown ref type", func() []Line {
			l := balancedPair()
			l[1].RefType = "bogus"
			return l
		}, "lines[1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLines(tc.lines())
			require.ErrorIs(t, err, ErrValidation)
			var detail *DetailError
			require.True(t, errors.As(err, &detail))
			require.Equal(t, tc.field, detail.Field)
		})
	}

	require.NoError(t, ValidateLines(balancedPair()))
}

func TestCheckBalancedRoundsToCents(t *testing.T) {
	lines := balancedPair()
	lines[0].Debit = dec("1000.004")
	require.NoError(t, CheckBalanced(lines))

	lines[0].Debit = dec("1000.01")
	err := CheckBalanced(lines)
	require.ErrorIs(t, err, ErrIntegrity)
	var detail *DetailError
	require.True(t, errors.As(err, &detail))
	require.Equal(t, "1000.01", detail.Expected)
	require.Equal(t, "1000.00", detail.Actual)
}

func TestReverseLinesSwapsSidesAndDropsReferences(t *testing.T) {
	lines := balancedPair()
	lines[0].RefType, lines[0].RefID = RefNew, "INV-1"

	reversed := ReverseLines(lines)
	require.Len(t, reversed, 2)
	require.True(t, reversed[0].Credit.Equal(dec("1000")))
	require.True(t, reversed[0].Debit.IsZero())
	require.True(t, reversed[1].Debit.Equal(dec("1000")))
	require.Equal(t, RefNone, reversed[0].RefType)
	require.Empty(t, reversed[0].RefID)
	require.Equal(t, RefNew, lines[0].RefType, "input must not be mutated")
}

func TestFormatNumbers(t *testing.T) {
	require.Equal(t, "JE/2024-25/00001", FormatEntryNumber(2024, 1))
	require.Equal(t, "JE/2099-00/00042", FormatEntryNumber(2099, 42))
	require.Equal(t, "MAN-00007", FormatManualReferenceNumber(7))
}

func TestRecomputeDerivesTotalsAndPeriod(t *testing.T) {
	entry := JournalEntry{
		EntryDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Lines:     balancedPair(),
	}
	entry.Recompute()
	require.Equal(t, 2024, entry.PeriodYear)
	require.Equal(t, 3, entry.PeriodMonth)
	require.True(t, entry.TotalDebit.Equal(dec("1000")))
	require.True(t, entry.TotalCredit.Equal(dec("1000")))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, ErrNotFound, KindOf(ErrEntryNotFound))
	require.Equal(t, ErrStateConflict, KindOf(ErrPeriodLocked))
	require.Equal(t, ErrInsufficientBalance, KindOf(Insufficient("amount", dec("10"), dec("20"))))
	require.Nil(t, KindOf(errors.New("boom")))
}

func TestReferenceNormalize(t *testing.T) {
	ref := ReferenceBalance{TotalAmount: dec("500"), PaidAmount: decimal.Zero}
	ref.Normalize()
	require.Equal(t, RefOutstanding, ref.Status)

	ref.PaidAmount = dec("200")
	ref.Normalize()
	require.Equal(t, RefPartiallyPaid, ref.Status)
	require.True(t, ref.OutstandingAmount.Equal(dec("300")))

	ref.PaidAmount = dec("500")
	ref.Normalize()
	require.Equal(t, RefFullyPaid, ref.Status)
}
