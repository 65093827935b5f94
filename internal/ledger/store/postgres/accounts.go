package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/platform/db"
)

func (r *txRepository) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	var a ledger.Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, balance FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance)
	if err != nil {
		return ledger.Account{}, notFound(err, ledger.ErrAccountNotFound)
	}
	return a, nil
}

// ApplyBalanceDelta adjusts the balance in place so concurrent posts never
// overwrite each other.
func (r *txRepository) ApplyBalanceDelta(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id=$1`, id, delta)
	if err != nil {
		return fmt.Errorf("apply balance delta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

const ruleColumns = `id, name, source_account_id, targets, is_active, created_by, created_at, updated_at`

func scanRule(row pgx.Row) (ledger.AllocationRule, error) {
	var (
		rule    ledger.AllocationRule
		targets []byte
	)
	if err := row.Scan(&rule.ID, &rule.Name, &rule.SourceAccountID, &targets, &rule.IsActive, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return ledger.AllocationRule{}, err
	}
	if err := decodeJSON(targets, &rule.Targets); err != nil {
		return ledger.AllocationRule{}, err
	}
	return rule, nil
}

func (r *txRepository) FindActiveRule(ctx context.Context, source uuid.UUID) (ledger.AllocationRule, bool, error) {
	rule, err := scanRule(r.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE source_account_id=$1 AND is_active`, source))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AllocationRule{}, false, nil
	}
	if err != nil {
		return ledger.AllocationRule{}, false, err
	}
	return rule, true, nil
}

func (r *txRepository) InsertRule(ctx context.Context, rule ledger.AllocationRule) error {
	targets, err := encodeJSON(rule.Targets)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO allocation_rules (`+ruleColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rule.ID, rule.Name, rule.SourceAccountID, targets, rule.IsActive, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ledger.ErrDuplicate
	}
	return err
}

func (r *txRepository) UpdateRule(ctx context.Context, rule ledger.AllocationRule) error {
	targets, err := encodeJSON(rule.Targets)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `UPDATE allocation_rules SET name=$2, targets=$3, is_active=$4, updated_at=$5 WHERE id=$1`,
		rule.ID, rule.Name, targets, rule.IsActive, rule.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ledger.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrRuleNotFound
	}
	return nil
}

func (r *txRepository) GetRule(ctx context.Context, id uuid.UUID) (ledger.AllocationRule, error) {
	rule, err := scanRule(r.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE id=$1`, id))
	if err != nil {
		return ledger.AllocationRule{}, notFound(err, ledger.ErrRuleNotFound)
	}
	return rule, nil
}

func (r *txRepository) ListRules(ctx context.Context, activeOnly bool) ([]ledger.AllocationRule, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+ruleColumns+` FROM allocation_rules WHERE NOT $1 OR is_active ORDER BY name`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []ledger.AllocationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
