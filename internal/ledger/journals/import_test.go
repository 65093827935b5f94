package journals

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func importCSV(t *testing.T, rows ...[]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(importHeader))
	require.NoError(t, w.WriteAll(rows))
	return &buf
}

func linesJSON(t *testing.T, lines ...importLine) string {
	t.Helper()
	raw, err := json.Marshal(lines)
	require.NoError(t, err)
	return string(raw)
}

func TestImportReportsEachRow(t *testing.T) {
	f := newFixture(t)
	body := importCSV(t,
		[]string{"2024-03-01", "Opening cash", linesJSON(t,
			importLine{AccountID: f.cash, Debit: money(500)},
			importLine{AccountID: f.revenue, Credit: money(500)},
		)},
		[]string{"2024-03-02", "Unbalanced", linesJSON(t,
			importLine{AccountID: f.cash, Debit: money(500)},
			importLine{AccountID: f.revenue, Credit: money(400)},
		)},
		[]string{"03/02/2024", "Bad date", "[]"},
		[]string{"2024-03-03", "Bad json", "{"},
	)

	result, err := f.svc.Import(context.Background(), body, "importer")
	require.NoError(t, err)
	require.Len(t, result.Items, 4)
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 3, result.Failed)

	require.True(t, result.Items[0].OK)
	require.Equal(t, "JE/2024-25/00001", result.Items[0].EntryNumber)
	require.ErrorIs(t, result.Items[1].Err, ledger.ErrIntegrity)
	require.ErrorIs(t, result.Items[2].Err, ledger.ErrValidation)
	require.ErrorIs(t, result.Items[3].Err, ledger.ErrValidation)

	entry, err := f.svc.Get(context.Background(), result.Items[0].EntryID)
	require.NoError(t, err)
	require.Equal(t, "importer", entry.CreatedBy)
	require.Equal(t, ledger.StatusDraft, entry.Status)
}

func TestImportRejectsBadHeader(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Import(context.Background(), strings.NewReader("date,desc,lines\n"), "importer")
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = f.svc.Import(context.Background(), strings.NewReader(""), "importer")
	require.ErrorIs(t, err, ledger.ErrValidation)
}
