// Package periods keeps the fiscal month lock registry.
package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/shared"
)

// LockReader is the read side needed to gate writes.
type LockReader interface {
	GetPeriodLock(ctx context.Context, year, month int) (ledger.PeriodLock, bool, error)
}

// EnsureOpen fails with ErrPeriodLocked when the date's fiscal month is locked.
func EnsureOpen(ctx context.Context, reader LockReader, date time.Time) error {
	year, month := ledger.FiscalPeriod(date)
	_, locked, err := reader.GetPeriodLock(ctx, year, month)
	if err != nil {
		return fmt.Errorf("periods: read lock: %w", err)
	}
	if locked {
		return &ledger.DetailError{
			Kind:  ledger.ErrStateConflict,
			Field: "period",
			Msg:   fmt.Sprintf("period %04d-%02d is locked", year, month),
		}
	}
	return nil
}

// AuditPort records lock changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Registry locks and unlocks fiscal months.
type Registry struct {
	store  ledger.Store
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry constructs the registry.
func NewRegistry(store ledger.Store, audit AuditPort, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (r *Registry) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

func validatePeriod(year, month int) error {
	if year < 1900 || year > 9999 {
		return ledger.Validation("year", "out of range")
	}
	if month < 1 || month > 12 {
		return ledger.Validation("month", "must be 1-12")
	}
	return nil
}

// Lock writes the keyed lock record and flags every entry of the month in the
// same transaction. Locking an already locked month is a no-op.
func (r *Registry) Lock(ctx context.Context, year, month int, actor string) (ledger.PeriodLock, error) {
	if err := validatePeriod(year, month); err != nil {
		return ledger.PeriodLock{}, err
	}
	lock := ledger.PeriodLock{Year: year, Month: month, LockedBy: actor, LockedAt: r.now()}
	var flagged int64
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		existing, ok, err := tx.GetPeriodLock(ctx, year, month)
		if err != nil {
			return err
		}
		if ok {
			lock = existing
			return nil
		}
		if err := tx.InsertPeriodLock(ctx, lock); err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				return ledger.Conflict("period", "period is being locked concurrently")
			}
			return err
		}
		flagged, err = tx.SetEntriesLocked(ctx, year, month, true, actor, lock.LockedAt)
		return err
	})
	if err != nil {
		return ledger.PeriodLock{}, err
	}
	r.logger.Info("period locked", slog.Int("year", year), slog.Int("month", month), slog.Int64("entries", flagged))
	r.record(ctx, actor, "period.lock", year, month, flagged)
	return lock, nil
}

// Unlock removes the lock record and clears the entry flags.
func (r *Registry) Unlock(ctx context.Context, year, month int, actor string) error {
	if err := validatePeriod(year, month); err != nil {
		return err
	}
	var cleared int64
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, ok, err := tx.GetPeriodLock(ctx, year, month)
		if err != nil {
			return err
		}
		if !ok {
			return &ledger.DetailError{Kind: ledger.ErrNotFound, Field: "period", Msg: "period is not locked"}
		}
		if err := tx.DeletePeriodLock(ctx, year, month); err != nil {
			return err
		}
		cleared, err = tx.SetEntriesLocked(ctx, year, month, false, "", r.now())
		return err
	})
	if err != nil {
		return err
	}
	r.logger.Info("period unlocked", slog.Int("year", year), slog.Int("month", month), slog.Int64("entries", cleared))
	r.record(ctx, actor, "period.unlock", year, month, cleared)
	return nil
}

// IsLocked reports whether the month is locked.
func (r *Registry) IsLocked(ctx context.Context, year, month int) (bool, error) {
	var locked bool
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		_, ok, err := tx.GetPeriodLock(ctx, year, month)
		locked = ok
		return err
	})
	return locked, err
}

// List returns the locks for a fiscal year.
func (r *Registry) List(ctx context.Context, year int) ([]ledger.PeriodLock, error) {
	var locks []ledger.PeriodLock
	err := r.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		locks, err = tx.ListPeriodLocks(ctx, year)
		return err
	})
	return locks, err
}

func (r *Registry) record(ctx context.Context, actor, action string, year, month int, entries int64) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "period",
		EntityID: fmt.Sprintf("%04d-%02d", year, month),
		Meta:     map[string]any{"entries": entries},
		At:       r.now(),
	}); err != nil {
		r.logger.Warn("audit period lock", slog.Any("error", err))
	}
}
