package journals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/memstore"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/periods"
)

var (
	clock     = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)
	entryDate = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc     *Service
	store   *memstore.Store
	audit   *memstore.AuditLog
	cash    uuid.UUID
	revenue uuid.UUID
	expense uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.New(),
		audit:   &memstore.AuditLog{},
		cash:    uuid.New(),
		revenue: uuid.New(),
		expense: uuid.New(),
	}
	f.store.AddAccount(ledger.Account{ID: f.cash, Code: "1000", Name: "Cash"})
	f.store.AddAccount(ledger.Account{ID: f.revenue, Code: "4000", Name: "Revenue"})
	f.store.AddAccount(ledger.Account{ID: f.expense, Code: "6000", Name: "Expenses"})
	f.svc = NewService(f.store, f.audit, nil)
	f.svc.WithNow(func() time.Time { return clock })
	return f
}

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func (f *fixture) sale(amount int64) CreateInput {
	return CreateInput{
		EntryDate:   entryDate,
		Description: "Sale",
		ActorID:     "clerk",
		Lines: []ledger.Line{
			{AccountID: f.cash, Debit: money(amount)},
			{AccountID: f.revenue, Credit: money(amount)},
		},
	}
}

func (f *fixture) create(t *testing.T, in CreateInput) ledger.JournalEntry {
	t.Helper()
	entry, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return entry
}

func (f *fixture) post(t *testing.T, id uuid.UUID) ledger.JournalEntry {
	t.Helper()
	entry, err := f.svc.Post(context.Background(), PostInput{EntryID: id, ActorID: "clerk"})
	require.NoError(t, err)
	return entry
}

func TestCreateAndPostMovesBalances(t *testing.T) {
	f := newFixture(t)
	entry := f.create(t, f.sale(1000))
	require.Equal(t, "JE/2024-25/00001", entry.EntryNumber)
	require.Equal(t, ledger.StatusDraft, entry.Status)
	require.Equal(t, ledger.TypeManual, entry.EntryType)
	require.Equal(t, 2024, entry.PeriodYear)
	require.Equal(t, 3, entry.PeriodMonth)
	require.True(t, entry.TotalDebit.Equal(money(1000)))
	require.Len(t, entry.ChangeHistory, 1)
	require.True(t, f.store.Balance(f.cash).IsZero(), "drafts do not move balances")

	posted := f.post(t, entry.ID)
	require.Equal(t, ledger.StatusPosted, posted.Status)
	require.Equal(t, "clerk", posted.PostedBy)
	require.NotNil(t, posted.PostingDate)
	require.True(t, f.store.Balance(f.cash).Equal(money(1000)))
	require.True(t, f.store.Balance(f.revenue).Equal(money(-1000)))

	_, err := f.svc.Post(context.Background(), PostInput{EntryID: entry.ID, ActorID: "clerk"})
	require.ErrorIs(t, err, ledger.ErrStateConflict)
	require.True(t, f.store.Balance(f.cash).Equal(money(1000)), "second post must not apply twice")

	second := f.create(t, f.sale(5))
	require.Equal(t, "JE/2024-25/00002", second.EntryNumber)

	actions := []string{}
	for _, r := range f.audit.Records("journal_entry") {
		actions = append(actions, r.Action)
	}
	require.Equal(t, []string{"journal.create", "journal.post", "journal.create"}, actions)
}

func TestCreateRejectsUnbalancedEntry(t *testing.T) {
	f := newFixture(t)
	in := f.sale(1000)
	in.Lines[1].Credit = money(900)

	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ledger.ErrIntegrity)

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Total)
}

func TestCreateValidatesRecurringAndReversing(t *testing.T) {
	f := newFixture(t)

	in := f.sale(10)
	in.IsRecurring = true
	_, err := f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ledger.ErrValidation)

	in.Frequency = ledger.FrequencyMonthly
	entry := f.create(t, in)
	require.NotNil(t, entry.NextRecurringDate)
	require.True(t, entry.NextRecurringDate.Equal(time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)))

	in = f.sale(10)
	in.IsReversing = true
	_, err = f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ledger.ErrValidation)
	before := entryDate.AddDate(0, 0, -1)
	in.ReverseDate = &before
	_, err = f.svc.Create(context.Background(), in)
	require.ErrorIs(t, err, ledger.ErrValidation)
}

func TestApprovalGatesPosting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := f.sale(250)
	in.Approvers = []string{"alice", "bob"}
	entry := f.create(t, in)
	require.Equal(t, ledger.ApprovalPending, entry.ApprovalStatus)

	_, err := f.svc.Post(ctx, PostInput{EntryID: entry.ID, ActorID: "clerk"})
	require.ErrorIs(t, err, ledger.ErrStateConflict)

	_, err = f.svc.Approve(ctx, ApproveInput{EntryID: entry.ID, ApproverID: "bob"})
	require.ErrorIs(t, err, ledger.ErrStateConflict, "bob must wait for alice")

	_, err = f.svc.Approve(ctx, ApproveInput{EntryID: entry.ID, ApproverID: "mallory"})
	require.ErrorIs(t, err, ledger.ErrAuthorization)

	entry, err = f.svc.Approve(ctx, ApproveInput{EntryID: entry.ID, ApproverID: "alice"})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, entry.Status)

	entry, err = f.svc.Approve(ctx, ApproveInput{EntryID: entry.ID, ApproverID: "bob", Comments: "ok"})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApproved, entry.Status)
	require.Equal(t, ledger.ApprovalApproved, entry.ApprovalStatus)

	posted := f.post(t, entry.ID)
	require.Equal(t, ledger.StatusPosted, posted.Status)
}

func TestRejectKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := f.sale(250)
	in.Approvers = []string{"alice"}
	entry := f.create(t, in)

	entry, err := f.svc.Reject(ctx, ApproveInput{EntryID: entry.ID, ApproverID: "alice", Comments: "wrong account"})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, entry.Status)
	require.Equal(t, ledger.ApprovalRejected, entry.ApprovalStatus)
	require.Equal(t, "wrong account", entry.ApprovalLevels[0].Comments)

	_, err = f.svc.Post(ctx, PostInput{EntryID: entry.ID})
	require.ErrorIs(t, err, ledger.ErrStateConflict)
}

func TestReverseMirrorsPostedEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	original := f.post(t, f.create(t, f.sale(1000)).ID)

	mirror, err := f.svc.Reverse(ctx, ReverseInput{EntryID: original.ID, ActorID: "controller", Reason: "customer returned"})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPosted, mirror.Status)
	require.Equal(t, ledger.TypeReversing, mirror.EntryType)
	require.Equal(t, "REVERSAL: Sale - customer returned", mirror.Description)
	require.Equal(t, original.EntryNumber, mirror.Reference)
	require.Equal(t, original.ID, *mirror.OriginalEntryID)
	require.True(t, mirror.EntryDate.Equal(clock))
	require.True(t, mirror.TotalDebit.Equal(original.TotalCredit))
	require.True(t, mirror.Lines[0].Credit.Equal(money(1000)))

	require.True(t, f.store.Balance(f.cash).IsZero())
	require.True(t, f.store.Balance(f.revenue).IsZero())

	reloaded, err := f.svc.Get(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusReversed, reloaded.Status)
	require.Equal(t, mirror.ID, *reloaded.ReversedByID)

	_, err = f.svc.Reverse(ctx, ReverseInput{EntryID: original.ID, ActorID: "controller"})
	require.ErrorIs(t, err, ledger.ErrStateConflict)

	_, err = f.svc.Reverse(ctx, ReverseInput{EntryID: f.create(t, f.sale(1)).ID})
	require.ErrorIs(t, err, ledger.ErrStateConflict, "drafts cannot be reversed")
}

func TestLockedPeriodBlocksWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	draft := f.create(t, f.sale(100))
	posted := f.post(t, f.create(t, f.sale(50)).ID)

	registry := periods.NewRegistry(f.store, f.audit, nil)
	_, err := registry.Lock(ctx, 2024, 3, "controller")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.sale(10))
	require.ErrorIs(t, err, ledger.ErrStateConflict)
	_, err = f.svc.Post(ctx, PostInput{EntryID: draft.ID})
	require.ErrorIs(t, err, ledger.ErrStateConflict)
	require.ErrorIs(t, f.svc.Delete(ctx, draft.ID, "clerk"), ledger.ErrStateConflict)

	_, err = f.svc.Reverse(ctx, ReverseInput{EntryID: posted.ID, ActorID: "controller"})
	require.ErrorIs(t, err, ledger.ErrStateConflict, "default reversal date falls in March")

	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.Reverse(ctx, ReverseInput{EntryID: posted.ID, ActorID: "controller", Date: &april})
	require.ErrorIs(t, err, ledger.ErrStateConflict, "the original still sits in March")
	require.ErrorContains(t, err, "2024-03 is locked")
	unchanged, err := f.svc.Get(ctx, posted.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPosted, unchanged.Status)
	require.Nil(t, unchanged.ReversedByID)
	require.True(t, f.store.Balance(f.cash).Equal(money(50)))

	require.NoError(t, registry.Unlock(ctx, 2024, 3, "controller"))
	mirror, err := f.svc.Reverse(ctx, ReverseInput{EntryID: posted.ID, ActorID: "controller", Date: &april})
	require.NoError(t, err)
	require.Equal(t, 4, mirror.PeriodMonth)
	f.post(t, draft.ID)
}

func TestBatchPostReportsEachItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.WithBatchLimit(2)

	approved := f.create(t, f.sale(100))
	_, err := f.svc.Approve(ctx, ApproveInput{EntryID: approved.ID, ApproverID: "lead"})
	require.NoError(t, err)
	draft := f.create(t, f.sale(200))
	missing := uuid.New()

	result := f.svc.BatchPost(ctx, []uuid.UUID{approved.ID, draft.ID, missing}, "clerk")
	require.Equal(t, 1, result.Succeeded)
	require.Equal(t, 2, result.Failed)
	require.Len(t, result.Items, 3)

	require.True(t, result.Items[0].OK)
	require.Equal(t, approved.EntryNumber, result.Items[0].EntryNumber)
	require.ErrorIs(t, result.Items[1].Err, ledger.ErrStateConflict)
	require.ErrorIs(t, result.Items[2].Err, ledger.ErrNotFound)
	require.Equal(t, 2, result.Items[2].Index)

	require.True(t, f.store.Balance(f.cash).Equal(money(100)))
}

func TestCopyCreatesFreshDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	original := f.post(t, f.create(t, f.sale(300)).ID)
	mirror, err := f.svc.Reverse(ctx, ReverseInput{EntryID: original.ID, ActorID: "controller"})
	require.NoError(t, err)

	date := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	cp, err := f.svc.Copy(ctx, CopyInput{EntryID: mirror.ID, ActorID: "clerk", Date: &date})
	require.NoError(t, err)
	require.NotEqual(t, mirror.ID, cp.ID)
	require.NotEqual(t, mirror.EntryNumber, cp.EntryNumber)
	require.Equal(t, ledger.StatusDraft, cp.Status)
	require.Equal(t, ledger.TypeManual, cp.EntryType)
	require.True(t, cp.EntryDate.Equal(date))
	require.True(t, cp.TotalDebit.Equal(money(300)))
	require.Equal(t, "Copied from "+mirror.EntryNumber, cp.ChangeHistory[0].NewValue)
}

func TestUpdateRecordsChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.create(t, f.sale(100))

	desc := "Cash sale"
	updated, err := f.svc.Update(ctx, UpdateInput{
		EntryID:     entry.ID,
		ActorID:     "clerk",
		Description: &desc,
		Lines: []ledger.Line{
			{AccountID: f.cash, Debit: money(150)},
			{AccountID: f.revenue, Credit: money(150)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Cash sale", updated.Description)
	require.True(t, updated.TotalDebit.Equal(money(150)))

	fields := []string{}
	for _, c := range updated.ChangeHistory {
		fields = append(fields, c.Field)
	}
	require.Equal(t, []string{"created", "description", "lines"}, fields)

	_, err = f.svc.Update(ctx, UpdateInput{EntryID: entry.ID, Lines: []ledger.Line{
		{AccountID: f.cash, Debit: money(1)},
		{AccountID: f.revenue, Credit: money(2)},
	}})
	require.ErrorIs(t, err, ledger.ErrIntegrity)

	f.post(t, entry.ID)
	_, err = f.svc.Update(ctx, UpdateInput{EntryID: entry.ID, Description: &desc})
	require.ErrorIs(t, err, ledger.ErrStateConflict)
}

func TestDeleteOnlyDrafts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	draft := f.create(t, f.sale(10))
	posted := f.post(t, f.create(t, f.sale(20)).ID)

	require.NoError(t, f.svc.Delete(ctx, draft.ID, "clerk"))
	_, err := f.svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, posted.ID, "clerk"), ledger.ErrStateConflict)
}

func TestCreateExpandsAllocationRules(t *testing.T) {
	f := newFixture(t)
	marketing, sales := uuid.New(), uuid.New()
	f.store.AddAccount(ledger.Account{ID: marketing, Code: "6100"})
	f.store.AddAccount(ledger.Account{ID: sales, Code: "6200"})
	f.store.AddRule(ledger.AllocationRule{
		ID:              uuid.New(),
		Name:            "Shared rent",
		SourceAccountID: f.expense,
		IsActive:        true,
		Targets: []ledger.AllocationTarget{
			{AccountID: marketing, Percentage: money(60)},
			{AccountID: sales, Percentage: money(40)},
		},
	})

	entry := f.create(t, CreateInput{
		EntryDate:   entryDate,
		Description: "Rent",
		Lines: []ledger.Line{
			{AccountID: f.expense, Debit: money(1000), Description: "Rent"},
			{AccountID: f.cash, Credit: money(1000)},
		},
	})
	require.Len(t, entry.Lines, 3)
	require.Equal(t, marketing, entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(money(600)))
	require.True(t, entry.Lines[1].Debit.Equal(money(400)))

	f.post(t, entry.ID)
	require.True(t, f.store.Balance(marketing).Equal(money(600)))
	require.True(t, f.store.Balance(f.expense).IsZero())
}

func TestCreateAttachesBudgetWarnings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertBudget(ctx, ledger.GLBudget{
			ID:           uuid.New(),
			AccountID:    f.expense,
			FiscalYear:   2024,
			Period:       ledger.DefaultBudgetPeriod,
			BudgetAmount: money(5000),
			Status:       ledger.BudgetApproved,
		})
	}))
	f.post(t, f.create(t, CreateInput{EntryDate: entryDate, Lines: []ledger.Line{
		{AccountID: f.expense, Debit: money(4800)},
		{AccountID: f.cash, Credit: money(4800)},
	}}).ID)

	lines := []ledger.Line{
		{AccountID: f.expense, Debit: money(500)},
		{AccountID: f.cash, Credit: money(500)},
	}
	preview, err := f.svc.Validate(ctx, lines, entryDate)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	require.True(t, preview[0].Variance.Equal(money(300)))

	entry := f.create(t, CreateInput{EntryDate: entryDate, Lines: lines})
	require.Len(t, entry.BudgetWarnings, 1)
	require.Equal(t, "Exceeds budget by 300.00", entry.BudgetWarnings[0].Message)
}

func TestPostSpawnsReferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := f.sale(700)
	in.Reference = "SO-12"
	entry := f.post(t, f.create(t, in).ID)

	var refs []ledger.ReferenceBalance
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		refs, err = tx.ListReferences(ctx, ledger.ReferenceFilter{})
		return err
	}))
	require.Len(t, refs, 2)
	for _, ref := range refs {
		require.Equal(t, entry.ID, *ref.JournalEntryID)
		require.Equal(t, "SO-12", ref.Reference)
	}

	skip := false
	other := f.create(t, in)
	_, err := f.svc.Post(ctx, PostInput{EntryID: other.ID, CreateReferences: &skip})
	require.NoError(t, err)
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		refs, err = tx.ListReferences(ctx, ledger.ReferenceFilter{})
		return err
	}))
	require.Len(t, refs, 2)
}

func (f *fixture) referencesOf(t *testing.T, entryID *uuid.UUID) []ledger.ReferenceBalance {
	t.Helper()
	var refs []ledger.ReferenceBalance
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		refs, err = tx.ListReferences(ctx, ledger.ReferenceFilter{JournalEntryID: entryID})
		return err
	}))
	return refs
}

func TestReverseUnwindsReferenceSettlements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoice := f.post(t, f.create(t, CreateInput{
		EntryDate:   entryDate,
		Description: "Invoice INV-1",
		ActorID:     "clerk",
		Lines: []ledger.Line{
			{AccountID: f.cash, Debit: money(700), RefType: ledger.RefNew, RefID: "INV-1"},
			{AccountID: f.revenue, Credit: money(700)},
		},
	}).ID)
	opened := f.referencesOf(t, &invoice.ID)
	require.Len(t, opened, 1)
	ref := opened[0]
	require.Equal(t, "INV-1", ref.Reference)

	receipt := f.post(t, f.create(t, CreateInput{
		EntryDate:   entryDate,
		Description: "Receipt for INV-1",
		ActorID:     "clerk",
		Lines: []ledger.Line{
			{AccountID: f.expense, Debit: money(700)},
			{AccountID: f.cash, Credit: money(700), RefType: ledger.RefAgainst, RefID: ref.ID.String()},
		},
	}).ID)
	settled := f.referencesOf(t, &invoice.ID)[0]
	require.Equal(t, ledger.RefFullyPaid, settled.Status)
	require.Len(t, settled.Payments, 1)
	require.Equal(t, receipt.ID, settled.Payments[0].PaymentID)

	_, err := f.svc.Reverse(ctx, ReverseInput{EntryID: invoice.ID, ActorID: "controller"})
	require.ErrorIs(t, err, ledger.ErrStateConflict, "a paid invoice cannot be reversed")
	stillPosted, err := f.svc.Get(ctx, invoice.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPosted, stillPosted.Status)

	_, err = f.svc.Reverse(ctx, ReverseInput{EntryID: receipt.ID, ActorID: "controller"})
	require.NoError(t, err)
	restored := f.referencesOf(t, &invoice.ID)
	require.Len(t, restored, 1)
	require.Equal(t, ledger.RefOutstanding, restored[0].Status)
	require.True(t, restored[0].PaidAmount.IsZero())
	require.True(t, restored[0].OutstandingAmount.Equal(money(700)))
	require.Empty(t, restored[0].Payments)

	_, err = f.svc.Reverse(ctx, ReverseInput{EntryID: invoice.ID, ActorID: "controller"})
	require.NoError(t, err)
	require.Empty(t, f.referencesOf(t, &invoice.ID), "references opened by a reversed entry are removed")
	require.Empty(t, f.referencesOf(t, nil))
	require.True(t, f.store.Balance(f.cash).IsZero())
}

func TestAddAttachmentAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.create(t, f.sale(1))
	later := f.sale(2)
	later.EntryDate = entryDate.AddDate(0, 0, 1)
	second := f.create(t, later)

	entry, err := f.svc.AddAttachment(ctx, first.ID, "s3://receipts/1.pdf", "clerk")
	require.NoError(t, err)
	require.Equal(t, []string{"s3://receipts/1.pdf"}, entry.Attachments)
	_, err = f.svc.AddAttachment(ctx, first.ID, " ", "clerk")
	require.ErrorIs(t, err, ledger.ErrValidation)

	listed, err := f.svc.List(ctx, ledger.EntryFilter{Year: 2024, Month: 3})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, second.ID, listed[0].ID, "newest first")

	listed, err = f.svc.List(ctx, ledger.EntryFilter{Status: ledger.StatusPosted})
	require.NoError(t, err)
	require.Empty(t, listed)
}
