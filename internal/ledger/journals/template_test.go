package journals

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func TestCreateFromTemplateEvaluatesFormulas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tpl, err := f.svc.CreateTemplate(ctx, TemplateInput{
		Name: "Monthly retainer",
		Lines: []ledger.TemplateLine{
			{AccountVariable: "bank", DebitFormula: "{{amount}} * 1.1"},
			{AccountID: f.revenue, CreditFormula: "amount + amount / 10", Description: "Retainer"},
		},
	})
	require.NoError(t, err)

	entry, err := f.svc.CreateFromTemplate(ctx, FromTemplateInput{
		TemplateID: tpl.ID,
		EntryDate:  entryDate,
		ActorID:    "clerk",
		Variables:  map[string]string{"amount": "1000", "bank": f.cash.String()},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.TypeTemplate, entry.EntryType)
	require.Equal(t, tpl.ID, *entry.TemplateID)
	require.Equal(t, "Monthly retainer", entry.Description)
	require.Equal(t, f.cash, entry.Lines[0].AccountID)
	require.True(t, entry.Lines[0].Debit.Equal(money(1100)))
	require.True(t, entry.Lines[1].Credit.Equal(money(1100)))

	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		stored, err := tx.GetTemplate(ctx, tpl.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.UsageCount)
		return nil
	}))
}

func TestCreateFromTemplateErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tpl, err := f.svc.CreateTemplate(ctx, TemplateInput{
		Name: "Accrual",
		Lines: []ledger.TemplateLine{
			{AccountVariable: "bank", DebitFormula: "amount"},
			{AccountID: f.revenue, CreditFormula: "amount"},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateFromTemplate(ctx, FromTemplateInput{TemplateID: tpl.ID, EntryDate: entryDate, Variables: map[string]string{"amount": "5"}})
	require.ErrorIs(t, err, ledger.ErrValidation, "unset account variable")

	_, err = f.svc.CreateFromTemplate(ctx, FromTemplateInput{TemplateID: tpl.ID, EntryDate: entryDate, Variables: map[string]string{"bank": "cash"}})
	require.ErrorIs(t, err, ledger.ErrValidation, "account variable must be an id")

	_, err = f.svc.CreateFromTemplate(ctx, FromTemplateInput{TemplateID: tpl.ID, EntryDate: entryDate, Variables: map[string]string{"bank": f.cash.String()}})
	require.ErrorIs(t, err, ledger.ErrValidation, "formula variable missing")

	_, err = f.svc.CreateFromTemplate(ctx, FromTemplateInput{TemplateID: uuid.New(), EntryDate: entryDate})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.CreateTemplate(ctx, TemplateInput{Name: "Short", Lines: []ledger.TemplateLine{{AccountID: f.cash}}})
	require.ErrorIs(t, err, ledger.ErrValidation)
}
