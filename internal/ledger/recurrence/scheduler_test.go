package recurrence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/memstore"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/periods"
)

type stubLock struct {
	held     bool
	err      error
	acquired int
	released int
	names    []string
}

func (l *stubLock) TryLock(_ context.Context, name string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.names = append(l.names, name)
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, true, nil
}

type harness struct {
	store   *memstore.Store
	js      *journals.Service
	sched   *Scheduler
	lock    *stubLock
	cash    uuid.UUID
	expense uuid.UUID
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{store: memstore.New(), lock: &stubLock{}, cash: uuid.New(), expense: uuid.New()}
	h.store.AddAccount(ledger.Account{ID: h.cash, Code: "1000"})
	h.store.AddAccount(ledger.Account{ID: h.expense, Code: "6000"})
	h.js = journals.NewService(h.store, nil, nil)
	h.sched = NewScheduler(h.store, h.js, h.lock, Config{Deadline: time.Minute}, nil)
	h.setNow(now)
	return h
}

func (h *harness) setNow(now time.Time) {
	h.js.WithNow(func() time.Time { return now })
	h.sched.WithNow(func() time.Time { return now })
}

func (h *harness) postedParent(t *testing.T, mutate func(*journals.CreateInput)) ledger.JournalEntry {
	t.Helper()
	in := journals.CreateInput{
		EntryDate:   time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC),
		Description: "Office rent",
		ActorID:     "clerk",
		IsRecurring: true,
		Frequency:   ledger.FrequencyMonthly,
		Lines: []ledger.Line{
			{AccountID: h.expense, Debit: decimal.NewFromInt(1200)},
			{AccountID: h.cash, Credit: decimal.NewFromInt(1200)},
		},
	}
	if mutate != nil {
		mutate(&in)
	}
	ctx := context.Background()
	entry, err := h.js.Create(ctx, in)
	require.NoError(t, err)
	entry, err = h.js.Post(ctx, journals.PostInput{EntryID: entry.ID, ActorID: "clerk"})
	require.NoError(t, err)
	return entry
}

func TestTickSpawnsDueChildAndAdvancesParent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 20, 6, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	parent := h.postedParent(t, nil)
	require.True(t, parent.NextRecurringDate.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))

	report, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.True(t, report.LockHeld)
	require.Equal(t, 1, report.Spawned)
	require.Len(t, report.Recurring, 1)
	item := report.Recurring[0]
	require.Equal(t, OutcomeSpawned, item.Outcome)
	require.Equal(t, "JE/2024-25/00001", item.ChildNumber)
	require.Equal(t, 1, h.lock.acquired)
	require.Equal(t, 1, h.lock.released)
	require.Equal(t, []string{"ledger:recurrence:tick"}, h.lock.names)

	child, err := h.js.Get(ctx, item.ChildID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, child.Status)
	require.Equal(t, ledger.TypeRecurring, child.EntryType)
	require.Equal(t, parent.ID, *child.ParentEntryID)
	require.False(t, child.IsRecurring)
	require.True(t, child.EntryDate.Equal(now))
	require.True(t, child.TotalDebit.Equal(decimal.NewFromInt(1200)))

	reloaded, err := h.js.Get(ctx, parent.ID)
	require.NoError(t, err)
	require.True(t, reloaded.NextRecurringDate.Equal(time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)))

	again, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Spawned, "nothing is due until February 15")
}

func TestTickAutoPostsChildren(t *testing.T) {
	now := time.Date(2024, 1, 20, 6, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	h.postedParent(t, func(in *journals.CreateInput) { in.AutoPost = true })

	report, err := h.sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomePosted, report.Recurring[0].Outcome)
	require.True(t, h.store.Balance(h.expense).Equal(decimal.NewFromInt(2400)))
}

func TestTickSkipsWhenLockContended(t *testing.T) {
	h := newHarness(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	h.postedParent(t, nil)
	h.lock.held = true

	report, err := h.sched.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, report.LockHeld)
	require.Zero(t, report.Spawned)
	require.Empty(t, report.Recurring)

	h.lock.held, h.lock.err = false, errors.New("redis down")
	_, err = h.sched.Tick(context.Background())
	require.Error(t, err)
}

func TestGenerateNowSharesRunLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	h.postedParent(t, nil)
	h.lock.held = true

	report, err := h.sched.GenerateNow(ctx)
	require.NoError(t, err)
	require.False(t, report.LockHeld)
	require.Empty(t, report.Recurring)
	require.Equal(t, []string{"ledger:recurrence:tick"}, h.lock.names)

	h.lock.held = false
	report, err = h.sched.GenerateNow(ctx)
	require.NoError(t, err)
	require.True(t, report.LockHeld)
	require.Equal(t, 1, report.Spawned)
	require.Equal(t, 1, h.lock.acquired)
	require.Equal(t, 1, h.lock.released)

	h.lock.err = errors.New("redis down")
	_, err = h.sched.GenerateNow(ctx)
	require.ErrorContains(t, err, "run lock")
}

func TestSpawnIsIdempotentPerOccurrence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	parent := h.postedParent(t, nil)

	require.NoError(t, h.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.ClaimRecurrence(ctx, SpawnKey(parent.ID, *parent.NextRecurringDate), parent.ID, uuid.New())
	}))

	report, err := h.sched.GenerateNow(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, report.Recurring[0].Outcome)
	require.Zero(t, report.Spawned)
}

func TestSpawnFailsInLockedPeriod(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
	parent := h.postedParent(t, nil)
	_, err := periods.NewRegistry(h.store, nil, nil).Lock(ctx, 2024, 1, "controller")
	require.NoError(t, err)

	report, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.ErrorIs(t, report.Recurring[0].Err, ledger.ErrStateConflict)

	reloaded, err := h.js.Get(ctx, parent.ID)
	require.NoError(t, err)
	require.True(t, reloaded.NextRecurringDate.Equal(*parent.NextRecurringDate), "failed spawn leaves the schedule untouched")
}

func TestTickReversesDueEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	reverseOn := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	accrual := h.postedParent(t, func(in *journals.CreateInput) {
		in.IsRecurring = false
		in.Frequency = ""
		in.EntryDate = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
		in.IsReversing = true
		in.ReverseDate = &reverseOn
	})

	report, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Reversed)
	require.Len(t, report.Reversals, 1)

	mirror, err := h.js.Get(ctx, report.Reversals[0].ChildID)
	require.NoError(t, err)
	require.True(t, mirror.EntryDate.Equal(reverseOn))
	require.Equal(t, "REVERSAL: Office rent - Auto-reversal", mirror.Description)

	original, err := h.js.Get(ctx, accrual.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusReversed, original.Status)
	require.True(t, h.store.Balance(h.expense).IsZero())

	again, err := h.sched.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, again.Reversed)
}

func TestEligible(t *testing.T) {
	asOf := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	next := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	parent := ledger.JournalEntry{
		IsRecurring:       true,
		Frequency:         ledger.FrequencyQuarterly,
		Status:            ledger.StatusApproved,
		NextRecurringDate: &next,
		RecurringEndDate:  &end,
	}
	require.True(t, Eligible(parent, asOf), "end date is inclusive")

	draft := parent
	draft.Status = ledger.StatusDraft
	require.False(t, Eligible(draft, asOf))

	ended := parent
	earlier := end.AddDate(0, 0, -1)
	ended.RecurringEndDate = &earlier
	require.False(t, Eligible(ended, asOf))

	require.False(t, Eligible(parent, asOf.AddDate(0, 0, -1)))
	require.NotEqual(t, SpawnKey(uuid.New(), next), SpawnKey(uuid.New(), next))
}
