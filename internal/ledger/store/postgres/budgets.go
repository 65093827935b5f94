package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

const budgetColumns = `id, account_id, fiscal_year, period, budget_amount, actual_amount, variance, utilization_percent,
status, revisions, approval_levels, alerts, created_by, created_at, updated_at`

func scanBudget(row pgx.Row) (ledger.GLBudget, error) {
	var (
		b                         ledger.GLBudget
		status                    string
		revisions, levels, alerts []byte
	)
	err := row.Scan(&b.ID, &b.AccountID, &b.FiscalYear, &b.Period, &b.BudgetAmount, &b.ActualAmount, &b.Variance, &b.UtilizationPercent,
		&status, &revisions, &levels, &alerts, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return ledger.GLBudget{}, err
	}
	b.Status = ledger.BudgetStatus(status)
	if err := decodeJSON(revisions, &b.Revisions); err != nil {
		return ledger.GLBudget{}, err
	}
	if err := decodeJSON(levels, &b.ApprovalLevels); err != nil {
		return ledger.GLBudget{}, err
	}
	if err := decodeJSON(alerts, &b.Alerts); err != nil {
		return ledger.GLBudget{}, err
	}
	return b, nil
}

func (r *txRepository) FindApprovedBudget(ctx context.Context, accountID uuid.UUID, fiscalYear int) (ledger.GLBudget, bool, error) {
	b, err := scanBudget(r.tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM gl_budgets
WHERE account_id=$1 AND fiscal_year=$2 AND status='APPROVED' ORDER BY created_at LIMIT 1`, accountID, fiscalYear))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.GLBudget{}, false, nil
	}
	if err != nil {
		return ledger.GLBudget{}, false, err
	}
	return b, true, nil
}

// InsertBudget skips rows that collide with an existing (account, year,
// period) so the surrounding transaction stays usable.
func (r *txRepository) InsertBudget(ctx context.Context, b ledger.GLBudget) error {
	revisions, err := encodeJSON(b.Revisions)
	if err != nil {
		return err
	}
	levels, err := encodeJSON(b.ApprovalLevels)
	if err != nil {
		return err
	}
	alerts, err := encodeJSON(b.Alerts)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `INSERT INTO gl_budgets (`+budgetColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT ON CONSTRAINT uq_gl_budgets_account_year_period DO NOTHING`,
		b.ID, b.AccountID, b.FiscalYear, b.Period, b.BudgetAmount, b.ActualAmount, b.Variance, b.UtilizationPercent,
		string(b.Status), revisions, levels, alerts, b.CreatedBy, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

func (r *txRepository) UpdateBudget(ctx context.Context, b ledger.GLBudget) error {
	revisions, err := encodeJSON(b.Revisions)
	if err != nil {
		return err
	}
	levels, err := encodeJSON(b.ApprovalLevels)
	if err != nil {
		return err
	}
	alerts, err := encodeJSON(b.Alerts)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `UPDATE gl_budgets SET budget_amount=$2, actual_amount=$3, variance=$4, utilization_percent=$5,
status=$6, revisions=$7, approval_levels=$8, alerts=$9, updated_at=$10 WHERE id=$1`,
		b.ID, b.BudgetAmount, b.ActualAmount, b.Variance, b.UtilizationPercent, string(b.Status), revisions, levels, alerts, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrBudgetNotFound
	}
	return nil
}

func (r *txRepository) GetBudget(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	b, err := scanBudget(r.tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM gl_budgets WHERE id=$1`, id))
	if err != nil {
		return ledger.GLBudget{}, notFound(err, ledger.ErrBudgetNotFound)
	}
	return b, nil
}

func (r *txRepository) GetBudgetForUpdate(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	b, err := scanBudget(r.tx.QueryRow(ctx, `SELECT `+budgetColumns+` FROM gl_budgets WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return ledger.GLBudget{}, notFound(err, ledger.ErrBudgetNotFound)
	}
	return b, nil
}

func (r *txRepository) ListBudgets(ctx context.Context, filter ledger.BudgetFilter) ([]ledger.GLBudget, error) {
	var (
		where []string
		args  []any
	)
	if filter.FiscalYear != 0 {
		args = append(args, filter.FiscalYear)
		where = append(where, fmt.Sprintf("fiscal_year=$%d", len(args)))
	}
	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		where = append(where, fmt.Sprintf("account_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.AlertsOnly {
		where = append(where, `((alerts->>'threshold80')::boolean OR (alerts->>'threshold90')::boolean OR (alerts->>'threshold100')::boolean OR (alerts->>'overspending')::boolean)`)
	}
	query := `SELECT ` + budgetColumns + ` FROM gl_budgets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY fiscal_year DESC, created_at`
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var budgets []ledger.GLBudget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *txRepository) DeleteBudget(ctx context.Context, id uuid.UUID) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM gl_budgets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrBudgetNotFound
	}
	return nil
}
