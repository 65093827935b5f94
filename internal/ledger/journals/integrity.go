package journals

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

const integrityPage = 500

// IntegrityViolation names a recorded entry whose lines no longer balance or
// no longer match its stored totals.
type IntegrityViolation struct {
	EntryID     uuid.UUID
	EntryNumber string
	Err         error
}

// IntegrityReport summarises one integrity scan.
type IntegrityReport struct {
	FiscalYear int
	Checked    int
	Violations []IntegrityViolation
}

// CheckIntegrity scans every POSTED and REVERSED entry of the fiscal year.
func (s *Service) CheckIntegrity(ctx context.Context, fiscalYear int) (IntegrityReport, error) {
	report := IntegrityReport{FiscalYear: fiscalYear}
	for _, status := range []ledger.EntryStatus{ledger.StatusPosted, ledger.StatusReversed} {
		for offset := 0; ; offset += integrityPage {
			page, err := s.List(ctx, ledger.EntryFilter{Status: status, Year: fiscalYear, Limit: integrityPage, Offset: offset})
			if err != nil {
				return report, err
			}
			for _, entry := range page {
				report.Checked++
				if err := verifyEntry(entry); err != nil {
					report.Violations = append(report.Violations, IntegrityViolation{
						EntryID:     entry.ID,
						EntryNumber: entry.EntryNumber,
						Err:         err,
					})
				}
			}
			if len(page) < integrityPage {
				break
			}
		}
	}
	if len(report.Violations) > 0 {
		s.logger.Error("ledger integrity violations",
			slog.Int("fiscal_year", fiscalYear),
			slog.Int("violations", len(report.Violations)))
	}
	return report, nil
}

func verifyEntry(entry ledger.JournalEntry) error {
	if err := ledger.CheckBalanced(entry.Lines); err != nil {
		return err
	}
	debit, credit := ledger.Totals(entry.Lines)
	if !debit.Equal(entry.TotalDebit) {
		return ledger.Integrity("totalDebit", "stored total differs from lines", debit, entry.TotalDebit)
	}
	if !credit.Equal(entry.TotalCredit) {
		return ledger.Integrity("totalCredit", "stored total differs from lines", credit, entry.TotalCredit)
	}
	return nil
}
