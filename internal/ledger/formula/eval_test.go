package formula

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func TestEval(t *testing.T) {
	vars := map[string]decimal.Decimal{
		"amount":   decimal.RequireFromString("1000"),
		"tax_rate": decimal.RequireFromString("0.11"),
	}
	cases := map[string]string{
		"1 + 2 * 3":                  "7",
		"(1 + 2) * 3":                "9",
		"{{amount}} * {{tax_rate}}":  "110",
		"amount - amount * tax_rate": "890",
		"-{{ amount }} + 1500":       "500",
		"10 / 3":                     "3.33",
		"2 - -2":                     "4",
	}
	for expr, want := range cases {
		got, err := Eval(expr, vars)
		require.NoError(t, err, expr)
		require.True(t, got.Equal(decimal.RequireFromString(want)), "%s = %s, want %s", expr, got, want)
	}
}

func TestEvalRejectsBadInput(t *testing.T) {
	for _, expr := range []string{
		"",
		"1 +",
		"(1 + 2",
		"1 / 0",
		"{{missing}}",
		"{{amount",
		"{amount}",
		"1 ^ 2",
		"os.Exit(1)",
		"1 2",
		strings.Repeat("(", 40) + "1" + strings.Repeat(")", 40),
		strings.Repeat("1+", 300) + "1",
	} {
		_, err := Eval(expr, map[string]decimal.Decimal{"amount": decimal.NewFromInt(1)})
		require.ErrorIs(t, err, ledger.ErrValidation, "expr %q", expr)
	}
}
