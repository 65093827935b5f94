package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

const referenceColumns = `id, journal_entry_id, entry_number, reference, account_id, description, date, total_amount,
paid_amount, outstanding_amount, status, payments, created_at, updated_at`

func scanReference(row pgx.Row) (ledger.ReferenceBalance, error) {
	var (
		ref      ledger.ReferenceBalance
		status   string
		payments []byte
	)
	err := row.Scan(&ref.ID, &ref.JournalEntryID, &ref.EntryNumber, &ref.Reference, &ref.AccountID, &ref.Description, &ref.Date,
		&ref.TotalAmount, &ref.PaidAmount, &ref.OutstandingAmount, &status, &payments, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		return ledger.ReferenceBalance{}, err
	}
	ref.Status = ledger.ReferenceStatus(status)
	if err := decodeJSON(payments, &ref.Payments); err != nil {
		return ledger.ReferenceBalance{}, err
	}
	return ref, nil
}

func (r *txRepository) InsertReference(ctx context.Context, ref ledger.ReferenceBalance) error {
	payments, err := encodeJSON(ref.Payments)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `INSERT INTO reference_balances (`+referenceColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT ON CONSTRAINT uq_reference_balances_entry_account DO NOTHING`,
		ref.ID, ref.JournalEntryID, ref.EntryNumber, ref.Reference, ref.AccountID, ref.Description, ref.Date,
		ref.TotalAmount, ref.PaidAmount, ref.OutstandingAmount, string(ref.Status), payments, ref.CreatedAt, ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

func (r *txRepository) UpdateReference(ctx context.Context, ref ledger.ReferenceBalance) error {
	payments, err := encodeJSON(ref.Payments)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `UPDATE reference_balances SET description=$2, total_amount=$3, paid_amount=$4,
outstanding_amount=$5, status=$6, payments=$7, updated_at=$8 WHERE id=$1`,
		ref.ID, ref.Description, ref.TotalAmount, ref.PaidAmount, ref.OutstandingAmount, string(ref.Status), payments, ref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrReferenceNotFound
	}
	return nil
}

func (r *txRepository) GetReference(ctx context.Context, id uuid.UUID) (ledger.ReferenceBalance, error) {
	ref, err := scanReference(r.tx.QueryRow(ctx, `SELECT `+referenceColumns+` FROM reference_balances WHERE id=$1`, id))
	if err != nil {
		return ledger.ReferenceBalance{}, notFound(err, ledger.ErrReferenceNotFound)
	}
	return ref, nil
}

func (r *txRepository) GetReferenceForUpdate(ctx context.Context, id uuid.UUID) (ledger.ReferenceBalance, error) {
	ref, err := scanReference(r.tx.QueryRow(ctx, `SELECT `+referenceColumns+` FROM reference_balances WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return ledger.ReferenceBalance{}, notFound(err, ledger.ErrReferenceNotFound)
	}
	return ref, nil
}

func (r *txRepository) DeleteReference(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM reference_balances WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrReferenceNotFound
	}
	return nil
}

func (r *txRepository) ReferenceExists(ctx context.Context, entryID, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reference_balances WHERE journal_entry_id=$1 AND account_id=$2)`,
		entryID, accountID).Scan(&exists)
	return exists, err
}

func (r *txRepository) ListReferences(ctx context.Context, filter ledger.ReferenceFilter) ([]ledger.ReferenceBalance, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.tx.Query(ctx, `SELECT `+referenceColumns+` FROM reference_balances
WHERE ($1::uuid IS NULL OR account_id = $1) AND (cardinality($2::text[]) = 0 OR status = ANY($2))
  AND ($4::uuid IS NULL OR journal_entry_id = $4)
ORDER BY date, entry_number LIMIT $3`, filter.AccountID, statuses, limit, filter.JournalEntryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []ledger.ReferenceBalance
	for rows.Next() {
		ref, err := scanReference(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *txRepository) NextManualReferenceSequence(ctx context.Context) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `SELECT nextval('manual_reference_seq')`).Scan(&seq)
	return seq, err
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (ledger.Payment, error) {
	var (
		p           ledger.Payment
		allocations []byte
	)
	err := r.tx.QueryRow(ctx, `SELECT id, number, total_amount, allocated_amount, unapplied_amount, allocations
FROM payments WHERE id=$1 FOR UPDATE`, id).Scan(&p.ID, &p.Number, &p.TotalAmount, &p.AllocatedAmount, &p.UnappliedAmount, &allocations)
	if err != nil {
		return ledger.Payment{}, notFound(err, ledger.ErrPaymentNotFound)
	}
	if err := decodeJSON(allocations, &p.Allocations); err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

func (r *txRepository) UpdatePayment(ctx context.Context, p ledger.Payment) error {
	allocations, err := encodeJSON(p.Allocations)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `UPDATE payments SET allocated_amount=$2, unapplied_amount=$3, allocations=$4 WHERE id=$1`,
		p.ID, p.AllocatedAmount, p.UnappliedAmount, allocations)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrPaymentNotFound
	}
	return nil
}

func (r *txRepository) GetTemplate(ctx context.Context, id uuid.UUID) (ledger.JournalTemplate, error) {
	var (
		tpl       ledger.JournalTemplate
		lines     []byte
		frequency string
	)
	err := r.tx.QueryRow(ctx, `SELECT id, name, description, lines, is_recurring, frequency, auto_post, usage_count, created_at
FROM journal_templates WHERE id=$1`, id).Scan(&tpl.ID, &tpl.Name, &tpl.Description, &lines, &tpl.IsRecurring, &frequency,
		&tpl.AutoPost, &tpl.UsageCount, &tpl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.JournalTemplate{}, ledger.ErrTemplateNotFound
		}
		return ledger.JournalTemplate{}, err
	}
	tpl.Frequency = ledger.Frequency(frequency)
	if err := decodeJSON(lines, &tpl.Lines); err != nil {
		return ledger.JournalTemplate{}, err
	}
	return tpl, nil
}

func (r *txRepository) InsertTemplate(ctx context.Context, tpl ledger.JournalTemplate) error {
	lines, err := encodeJSON(tpl.Lines)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO journal_templates (id, name, description, lines, is_recurring, frequency, auto_post, usage_count, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, tpl.ID, tpl.Name, tpl.Description, lines, tpl.IsRecurring, string(tpl.Frequency),
		tpl.AutoPost, tpl.UsageCount, tpl.CreatedAt)
	return err
}

func (r *txRepository) IncrementTemplateUsage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_templates SET usage_count = usage_count + 1 WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrTemplateNotFound
	}
	return nil
}
