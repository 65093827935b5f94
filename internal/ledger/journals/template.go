package journals

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/formula"
)

// CreateTemplate stores a reusable entry template.
func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (ledger.JournalTemplate, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalTemplate{}, err
	}
	tpl := ledger.JournalTemplate{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Lines:       in.Lines,
		IsRecurring: in.IsRecurring,
		Frequency:   in.Frequency,
		AutoPost:    in.AutoPost,
		CreatedAt:   s.now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertTemplate(ctx, tpl)
	})
	if err != nil {
		return ledger.JournalTemplate{}, err
	}
	return tpl, nil
}

// CreateFromTemplate instantiates a template as a DRAFT TEMPLATE entry.
// Numeric variables feed the line formulas; account variables must hold an
// account id.
func (s *Service) CreateFromTemplate(ctx context.Context, in FromTemplateInput) (ledger.JournalEntry, error) {
	if in.TemplateID == uuid.Nil {
		return ledger.JournalEntry{}, ledger.Validation("templateId", "required")
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		tpl, err := tx.GetTemplate(ctx, in.TemplateID)
		if err != nil {
			return err
		}
		lines, err := instantiate(tpl, in.Variables)
		if err != nil {
			return err
		}
		date := in.EntryDate
		if date.IsZero() {
			date = s.now()
		}
		create := CreateInput{
			EntryDate:   date,
			Description: tpl.Description,
			Lines:       lines,
			ActorID:     in.ActorID,
			IsRecurring: tpl.IsRecurring,
			Frequency:   tpl.Frequency,
			AutoPost:    tpl.AutoPost,
		}
		if create.Description == "" {
			create.Description = tpl.Name
		}
		templateID := tpl.ID
		entry, err = s.createTx(ctx, tx, create, ledger.TypeTemplate, &templateID)
		if err != nil {
			return err
		}
		return tx.IncrementTemplateUsage(ctx, tpl.ID)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.create_from_template", entry, map[string]any{"template_id": in.TemplateID.String()})
	return entry, nil
}

func instantiate(tpl ledger.JournalTemplate, variables map[string]string) ([]ledger.Line, error) {
	numeric := make(map[string]decimal.Decimal, len(variables))
	for name, raw := range variables {
		if v, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
			numeric[name] = v
		}
	}
	lines := make([]ledger.Line, 0, len(tpl.Lines))
	for idx, tl := range tpl.Lines {
		field := fmt.Sprintf("lines[%d]", idx)
		account := tl.AccountID
		if tl.AccountVariable != "" {
			raw, ok := variables[tl.AccountVariable]
			if !ok {
				return nil, ledger.Validation(field+".account", fmt.Sprintf("variable %q is not set", tl.AccountVariable))
			}
			parsed, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil {
				return nil, ledger.Validation(field+".account", fmt.Sprintf("variable %q is not an account id", tl.AccountVariable))
			}
			account = parsed
		}
		debit, err := amount(tl.Debit, tl.DebitFormula, numeric)
		if err != nil {
			return nil, err
		}
		credit, err := amount(tl.Credit, tl.CreditFormula, numeric)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.Line{
			AccountID:   account,
			Debit:       debit,
			Credit:      credit,
			Description: tl.Description,
			CostCenter:  tl.CostCenter,
		})
	}
	return lines, nil
}

func amount(fixed decimal.Decimal, expr string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(expr) == "" {
		return fixed, nil
	}
	return formula.Eval(expr, vars)
}
