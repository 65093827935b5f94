package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/platform/db"
)

const entryColumns = `id, entry_number, entry_date, period_year, period_month, description, reference, status, entry_type,
total_debit, total_credit, approval_status, approval_levels, is_recurring, frequency, next_recurring_date,
recurring_end_date, auto_post, parent_entry_id, is_reversing, reverse_date, original_entry_id, reversed_by_id,
template_id, budget_warnings, attachments, change_history, is_locked, locked_by, locked_at, created_by, posted_by,
posting_date, created_at, updated_at`

func (r *txRepository) NextEntrySequence(ctx context.Context, fiscalYear int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_sequences (fiscal_year, last_value) VALUES ($1, 1)
ON CONFLICT (fiscal_year) DO UPDATE SET last_value = entry_sequences.last_value + 1
RETURNING last_value`, fiscalYear).Scan(&seq)
	return seq, err
}

type entryBlobs struct {
	levels, warnings, attachments, history []byte
}

func encodeEntry(e ledger.JournalEntry) (entryBlobs, error) {
	var b entryBlobs
	var err error
	if b.levels, err = encodeJSON(e.ApprovalLevels); err != nil {
		return b, err
	}
	if b.warnings, err = encodeJSON(e.BudgetWarnings); err != nil {
		return b, err
	}
	if b.attachments, err = encodeJSON(e.Attachments); err != nil {
		return b, err
	}
	b.history, err = encodeJSON(e.ChangeHistory)
	return b, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e ledger.JournalEntry) error {
	blobs, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO journal_entries (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35)`,
		e.ID, e.EntryNumber, e.EntryDate, e.PeriodYear, e.PeriodMonth, e.Description, e.Reference, string(e.Status), string(e.EntryType),
		e.TotalDebit, e.TotalCredit, string(e.ApprovalStatus), blobs.levels, e.IsRecurring, string(e.Frequency), e.NextRecurringDate,
		e.RecurringEndDate, e.AutoPost, e.ParentEntryID, e.IsReversing, e.ReverseDate, e.OriginalEntryID, e.ReversedByID,
		e.TemplateID, blobs.warnings, blobs.attachments, blobs.history, e.IsLocked, e.LockedBy, e.LockedAt, e.CreatedBy, e.PostedBy,
		e.PostingDate, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return r.insertLines(ctx, e.ID, e.Lines)
}

func (r *txRepository) insertLines(ctx context.Context, entryID uuid.UUID, lines []ledger.Line) error {
	batch := &pgx.Batch{}
	for idx, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, description, cost_center, department, project, ref_type, ref_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			entryID, idx+1, line.AccountID, line.Debit, line.Credit, line.Description, line.CostCenter, line.Department, line.Project, string(line.RefType), line.RefID)
	}
	results := r.tx.SendBatch(ctx, batch)
	for range lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert journal line: %w", err)
		}
	}
	return results.Close()
}

func (r *txRepository) UpdateEntry(ctx context.Context, e ledger.JournalEntry) error {
	blobs, err := encodeEntry(e)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$2, period_year=$3, period_month=$4, description=$5, reference=$6,
status=$7, total_debit=$8, total_credit=$9, approval_status=$10, approval_levels=$11, is_recurring=$12, frequency=$13,
next_recurring_date=$14, recurring_end_date=$15, auto_post=$16, reverse_date=$17, reversed_by_id=$18, budget_warnings=$19,
attachments=$20, change_history=$21, is_locked=$22, locked_by=$23, locked_at=$24, posted_by=$25, posting_date=$26, updated_at=$27
WHERE id=$1`,
		e.ID, e.EntryDate, e.PeriodYear, e.PeriodMonth, e.Description, e.Reference,
		string(e.Status), e.TotalDebit, e.TotalCredit, string(e.ApprovalStatus), blobs.levels, e.IsRecurring, string(e.Frequency),
		e.NextRecurringDate, e.RecurringEndDate, e.AutoPost, e.ReverseDate, e.ReversedByID, blobs.warnings,
		blobs.attachments, blobs.history, e.IsLocked, e.LockedBy, e.LockedAt, e.PostedBy, e.PostingDate, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, e.ID); err != nil {
		return fmt.Errorf("replace journal lines: %w", err)
	}
	return r.insertLines(ctx, e.ID, e.Lines)
}

func (r *txRepository) GetEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return r.getEntry(ctx, id, "")
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return r.getEntry(ctx, id, " FOR UPDATE")
}

func (r *txRepository) getEntry(ctx context.Context, id uuid.UUID, suffix string) (ledger.JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`+suffix, id)
	e, err := scanEntry(row)
	if err != nil {
		return ledger.JournalEntry{}, notFound(err, ledger.ErrEntryNotFound)
	}
	if err := r.attachLines(ctx, []*ledger.JournalEntry{&e}); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

func scanEntry(row pgx.Row) (ledger.JournalEntry, error) {
	var (
		e                                   ledger.JournalEntry
		status, typ, approval, frequency    string
		levels, warnings, attachments, hist []byte
	)
	err := row.Scan(&e.ID, &e.EntryNumber, &e.EntryDate, &e.PeriodYear, &e.PeriodMonth, &e.Description, &e.Reference, &status, &typ,
		&e.TotalDebit, &e.TotalCredit, &approval, &levels, &e.IsRecurring, &frequency, &e.NextRecurringDate,
		&e.RecurringEndDate, &e.AutoPost, &e.ParentEntryID, &e.IsReversing, &e.ReverseDate, &e.OriginalEntryID, &e.ReversedByID,
		&e.TemplateID, &warnings, &attachments, &hist, &e.IsLocked, &e.LockedBy, &e.LockedAt, &e.CreatedBy, &e.PostedBy,
		&e.PostingDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.Status = ledger.EntryStatus(status)
	e.EntryType = ledger.EntryType(typ)
	e.ApprovalStatus = ledger.ApprovalStatus(approval)
	e.Frequency = ledger.Frequency(frequency)
	for _, blob := range []struct {
		data []byte
		dst  any
	}{{levels, &e.ApprovalLevels}, {warnings, &e.BudgetWarnings}, {attachments, &e.Attachments}, {hist, &e.ChangeHistory}} {
		if err := decodeJSON(blob.data, blob.dst); err != nil {
			return ledger.JournalEntry{}, err
		}
	}
	return e, nil
}

func (r *txRepository) attachLines(ctx context.Context, entries []*ledger.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(entries))
	byID := make(map[uuid.UUID]*ledger.JournalEntry, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		byID[e.ID] = e
		e.Lines = nil
	}
	rows, err := r.tx.Query(ctx, `SELECT entry_id, account_id, debit, credit, description, cost_center, department, project, ref_type, ref_id
FROM journal_lines WHERE entry_id = ANY($1) ORDER BY entry_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("load journal lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entryID uuid.UUID
			line    ledger.Line
			refType string
		)
		if err := rows.Scan(&entryID, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &line.CostCenter,
			&line.Department, &line.Project, &refType, &line.RefID); err != nil {
			return err
		}
		line.RefType = ledger.RefType(refType)
		if e, ok := byID[entryID]; ok {
			e.Lines = append(e.Lines, line)
		}
	}
	return rows.Err()
}

func (r *txRepository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.JournalEntry, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var entries []ledger.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ptrs := make([]*ledger.JournalEntry, len(entries))
	for i := range entries {
		ptrs[i] = &entries[i]
	}
	if err := r.attachLines(ctx, ptrs); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *txRepository) ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("entry_type = $%d", string(filter.Type))
	}
	if filter.Year != 0 {
		add("period_year = $%d", filter.Year)
	}
	if filter.Month != 0 {
		add("period_month = $%d", filter.Month)
	}
	if filter.From != nil {
		add("entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("entry_date <= $%d", *filter.To)
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY entry_date DESC, entry_number DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return r.queryEntries(ctx, query, args...)
}

func (r *txRepository) EntryStats(ctx context.Context) (ledger.EntryStats, error) {
	var s ledger.EntryStats
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*),
COUNT(*) FILTER (WHERE status='DRAFT'),
COUNT(*) FILTER (WHERE status='APPROVED'),
COUNT(*) FILTER (WHERE status='POSTED'),
COUNT(*) FILTER (WHERE status='REVERSED'),
COUNT(*) FILTER (WHERE is_recurring),
COALESCE(SUM(total_debit) FILTER (WHERE status='POSTED'), 0),
COALESCE(SUM(total_credit) FILTER (WHERE status='POSTED'), 0)
FROM journal_entries`).Scan(&s.Total, &s.Draft, &s.Approved, &s.Posted, &s.Reversed, &s.Recurring, &s.TotalDebit, &s.TotalCredit)
	return s, err
}

func (r *txRepository) ListDueRecurring(ctx context.Context, asOf time.Time) ([]ledger.JournalEntry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE is_recurring AND status IN ('POSTED','APPROVED') AND next_recurring_date <= $1
AND (recurring_end_date IS NULL OR recurring_end_date >= $1)
ORDER BY next_recurring_date`, asOf)
}

func (r *txRepository) ListDueReversals(ctx context.Context, asOf time.Time) ([]ledger.JournalEntry, error) {
	return r.queryEntries(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE is_reversing AND status = 'POSTED' AND reversed_by_id IS NULL AND reverse_date <= $1
ORDER BY reverse_date`, asOf)
}

func (r *txRepository) ClaimRecurrence(ctx context.Context, key string, parentID, childID uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `INSERT INTO recurrence_claims (key, parent_id, child_id) VALUES ($1,$2,$3)
ON CONFLICT (key) DO NOTHING`, key, parentID, childID)
	if err != nil {
		return fmt.Errorf("claim recurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

// PostedNet counts reversed entries too; each one is offset by its posted mirror.
func (r *txRepository) PostedNet(ctx context.Context, accountID uuid.UUID, fiscalYear int) (decimal.Decimal, error) {
	var net decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit - l.credit), 0)
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id=$1 AND e.period_year=$2 AND e.status IN ('POSTED','REVERSED')`, accountID, fiscalYear).Scan(&net)
	return net, err
}
