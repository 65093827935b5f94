package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

func (r *txRepository) GetPeriodLock(ctx context.Context, year, month int) (ledger.PeriodLock, bool, error) {
	lock := ledger.PeriodLock{Year: year, Month: month}
	err := r.tx.QueryRow(ctx, `SELECT locked_by, locked_at FROM period_locks WHERE year=$1 AND month=$2`, year, month).
		Scan(&lock.LockedBy, &lock.LockedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.PeriodLock{}, false, nil
	}
	if err != nil {
		return ledger.PeriodLock{}, false, err
	}
	return lock, true, nil
}

func (r *txRepository) InsertPeriodLock(ctx context.Context, lock ledger.PeriodLock) error {
	tag, err := r.tx.Exec(ctx, `INSERT INTO period_locks (year, month, locked_by, locked_at) VALUES ($1,$2,$3,$4)
ON CONFLICT (year, month) DO NOTHING`, lock.Year, lock.Month, lock.LockedBy, lock.LockedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}

func (r *txRepository) DeletePeriodLock(ctx context.Context, year, month int) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM period_locks WHERE year=$1 AND month=$2`, year, month)
	return err
}

func (r *txRepository) SetEntriesLocked(ctx context.Context, year, month int, locked bool, actor string, at time.Time) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if locked {
		tag, err = r.tx.Exec(ctx, `UPDATE journal_entries SET is_locked=TRUE, locked_by=$3, locked_at=$4
WHERE period_year=$1 AND period_month=$2`, year, month, actor, at)
	} else {
		tag, err = r.tx.Exec(ctx, `UPDATE journal_entries SET is_locked=FALSE, locked_by='', locked_at=NULL
WHERE period_year=$1 AND period_month=$2`, year, month)
	}
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) ListPeriodLocks(ctx context.Context, year int) ([]ledger.PeriodLock, error) {
	rows, err := r.tx.Query(ctx, `SELECT year, month, locked_by, locked_at FROM period_locks
WHERE $1 = 0 OR year = $1 ORDER BY year, month`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locks []ledger.PeriodLock
	for rows.Next() {
		var lock ledger.PeriodLock
		if err := rows.Scan(&lock.Year, &lock.Month, &lock.LockedBy, &lock.LockedAt); err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
