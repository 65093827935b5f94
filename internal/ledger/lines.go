package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Totals sums debits and credits.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// ValidateLines checks line shape. Balance is checked separately by CheckBalanced.
func ValidateLines(lines []Line) error {
	if len(lines) < 2 {
		return Validation("lines", "at least two lines are required")
	}
	for idx, line := range lines {
		field := fmt.Sprintf("lines[%d]", idx)
		if line.AccountID == uuid.Nil {
			return Validation(field, "account required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return Validation(field, "amounts must not be negative")
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return Validation(field, "line cannot carry both debit and credit")
		}
		switch line.RefType {
		case RefNone, RefNew, RefAgainst, RefOnAccount:
		default:
			return Validation(field, "unknown reference type "+string(line.RefType))
		}
		if (line.RefType == RefNew || line.RefType == RefAgainst) && line.RefID == "" {
			return Validation(field, "reference id required for "+string(line.RefType))
		}
	}
	return nil
}

// CheckBalanced rejects lines whose debits and credits differ at cent precision.
func CheckBalanced(lines []Line) error {
	debit, credit := Totals(lines)
	if !debit.Round(2).Equal(credit.Round(2)) {
		return Integrity("lines", "debits must equal credits", debit, credit)
	}
	return nil
}

// ReverseLines swaps the debit and credit of every line.
func ReverseLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		mirrored := line
		mirrored.Debit, mirrored.Credit = line.Credit, line.Debit
		mirrored.RefType, mirrored.RefID = RefNone, ""
		out = append(out, mirrored)
	}
	return out
}

// FiscalPeriod returns the fiscal year and month a date falls in.
func FiscalPeriod(date time.Time) (year, month int) {
	return date.Year(), int(date.Month())
}

// FormatEntryNumber renders JE/{FY}-{FY+1 last two digits}/{seq:05d}.
func FormatEntryNumber(fiscalYear, seq int) string {
	return fmt.Sprintf("JE/%d-%02d/%05d", fiscalYear, (fiscalYear+1)%100, seq)
}

// FormatManualReferenceNumber renders MAN-{seq:05d}.
func FormatManualReferenceNumber(seq int) string {
	return fmt.Sprintf("MAN-%05d", seq)
}
