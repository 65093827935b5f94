package journals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func TestCheckIntegrityFlagsTamperedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	clean := f.post(t, f.create(t, f.sale(100)).ID)
	tampered := f.post(t, f.create(t, f.sale(200)).ID)
	_, err := f.svc.Reverse(ctx, ReverseInput{EntryID: clean.ID, ActorID: "controller"})
	require.NoError(t, err)
	f.create(t, f.sale(300))

	report, err := f.svc.CheckIntegrity(ctx, 2024)
	require.NoError(t, err)
	require.Equal(t, 3, report.Checked, "posted, reversed and the mirror; drafts are skipped")
	require.Empty(t, report.Violations)

	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		entry, err := tx.GetEntry(ctx, tampered.ID)
		if err != nil {
			return err
		}
		entry.Lines[1].Credit = money(150)
		return tx.UpdateEntry(ctx, entry)
	}))

	report, err = f.svc.CheckIntegrity(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	require.Equal(t, tampered.EntryNumber, report.Violations[0].EntryNumber)
	require.ErrorIs(t, report.Violations[0].Err, ledger.ErrIntegrity)

	report, err = f.svc.CheckIntegrity(ctx, 2023)
	require.NoError(t, err)
	require.Zero(t, report.Checked)
}
