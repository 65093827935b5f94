package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/shared"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()
	account := uuid.New()
	store.AddAccount(ledger.Account{ID: account})

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		require.NoError(t, tx.ApplyBalanceDelta(ctx, account, decimal.NewFromInt(50)))
		seq, err := tx.NextEntrySequence(ctx, 2024)
		require.NoError(t, err)
		require.Equal(t, 1, seq)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, store.Balance(account).IsZero())

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		seq, err := tx.NextEntrySequence(ctx, 2024)
		require.Equal(t, 1, seq, "sequence increments roll back too")
		return err
	}))
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().WithTx(ctx, func(context.Context, ledger.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestStoredEntriesAreIsolatedFromCallers(t *testing.T) {
	ctx := context.Background()
	store := New()
	entry := ledger.JournalEntry{
		ID:          uuid.New(),
		EntryNumber: "JE/2024-25/00001",
		Lines:       []ledger.Line{{Description: "original"}},
	}
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertEntry(ctx, entry)
	}))
	entry.Lines[0].Description = "mutated"

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		got, err := tx.GetEntry(ctx, entry.ID)
		require.NoError(t, err)
		require.Equal(t, "original", got.Lines[0].Description)

		dup := got
		dup.ID = uuid.New()
		require.ErrorIs(t, tx.InsertEntry(ctx, dup), ledger.ErrStateConflict, "entry numbers are unique")
		return nil
	}))
}

func TestAuditLogFiltersByEntity(t *testing.T) {
	ctx := context.Background()
	audit := &AuditLog{}
	require.NoError(t, audit.Record(ctx, shared.AuditLog{Action: "period.lock", Entity: "period", EntityID: "2024-01"}))
	require.NoError(t, audit.Record(ctx, shared.AuditLog{Action: "journal.post", Entity: "journal_entry", EntityID: "x"}))
	require.Error(t, audit.Record(ctx, shared.AuditLog{Action: "journal.post"}))

	require.Len(t, audit.Records(""), 2)
	require.Len(t, audit.Records("period"), 1)
}
