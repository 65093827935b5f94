// Package recurrence spawns children of due recurring entries and reverses
// entries whose scheduled reversal date has arrived.
package recurrence

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/periods"
)

const runLockName = "ledger:recurrence:tick"

// RunLock provides a cluster wide mutual exclusion for scheduler ticks.
// TryLock returns ok=false without error when another node holds the lock.
type RunLock interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Config tunes a Scheduler.
type Config struct {
	Deadline time.Duration
	LockTTL  time.Duration
}

// Outcome classifies a per-item result.
type Outcome string

const (
	OutcomeSpawned  Outcome = "spawned"
	OutcomePosted   Outcome = "posted"
	OutcomeReversed Outcome = "reversed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// ItemResult records what happened to one due entry.
type ItemResult struct {
	EntryID     uuid.UUID
	EntryNumber string
	ChildID     uuid.UUID
	ChildNumber string
	Outcome     Outcome
	Err         error
}

// TickReport summarises one scheduler run.
type TickReport struct {
	StartedAt time.Time
	LockHeld  bool
	Recurring []ItemResult
	Reversals []ItemResult
	Spawned   int
	Reversed  int
	Failed    int
}

func (r *TickReport) add(item ItemResult, reversal bool) {
	if reversal {
		r.Reversals = append(r.Reversals, item)
	} else {
		r.Recurring = append(r.Recurring, item)
	}
	switch item.Outcome {
	case OutcomeSpawned, OutcomePosted:
		r.Spawned++
	case OutcomeReversed:
		r.Reversed++
	case OutcomeFailed:
		r.Failed++
	}
}

// Scheduler generates recurring children and runs the auto-reversal sweep.
type Scheduler struct {
	store    ledger.Store
	journals *journals.Service
	lock     RunLock
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler wires a scheduler. lock may be nil for single-node setups.
func NewScheduler(store ledger.Store, js *journals.Service, lock RunLock, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Deadline + 30*time.Second
	}
	return &Scheduler{store: store, journals: js, lock: lock, cfg: cfg, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Scheduler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Tick runs one scheduler pass: recurring children first, then reversals.
// When another node holds the run lock the report has LockHeld=false and
// nothing is done.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	report := TickReport{StartedAt: s.now()}
	err := s.withRunLock(ctx, &report, func(ctx context.Context) error {
		if err := s.generate(ctx, &report); err != nil {
			return err
		}
		return s.sweepReversals(ctx, &report)
	})
	if err != nil || !report.LockHeld {
		return report, err
	}
	s.logger.Info("recurrence tick finished",
		slog.Int("spawned", report.Spawned),
		slog.Int("reversed", report.Reversed),
		slog.Int("failed", report.Failed))
	return report, nil
}

// GenerateNow spawns due recurring children without the reversal sweep. It
// takes the same run lock as Tick.
func (s *Scheduler) GenerateNow(ctx context.Context) (TickReport, error) {
	report := TickReport{StartedAt: s.now()}
	err := s.withRunLock(ctx, &report, func(ctx context.Context) error {
		return s.generate(ctx, &report)
	})
	return report, err
}

// withRunLock runs fn under the cluster run lock and the pass deadline.
func (s *Scheduler) withRunLock(ctx context.Context, report *TickReport, fn func(context.Context) error) error {
	if s.lock != nil {
		release, ok, err := s.lock.TryLock(ctx, runLockName, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("recurrence: run lock: %w", err)
		}
		if !ok {
			s.logger.Info("recurrence run skipped, lock held elsewhere")
			return nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release recurrence lock", slog.Any("error", err))
			}
		}()
	}
	report.LockHeld = true

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()
	return fn(ctx)
}

func (s *Scheduler) generate(ctx context.Context, report *TickReport) error {
	asOf := s.now()
	var due []ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		due, err = tx.ListDueRecurring(ctx, asOf)
		return err
	})
	if err != nil {
		return fmt.Errorf("recurrence: list due: %w", err)
	}
	for _, parent := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.add(s.spawn(ctx, parent.ID, asOf), false)
	}
	return nil
}

// Eligible reports whether parent should spawn a child at asOf.
func Eligible(parent ledger.JournalEntry, asOf time.Time) bool {
	if !parent.IsRecurring || parent.NextRecurringDate == nil || parent.Frequency.Months() == 0 {
		return false
	}
	if parent.Status != ledger.StatusPosted && parent.Status != ledger.StatusApproved {
		return false
	}
	if parent.NextRecurringDate.After(asOf) {
		return false
	}
	if parent.RecurringEndDate != nil && parent.RecurringEndDate.Before(asOf) {
		return false
	}
	return true
}

// SpawnKey identifies one occurrence of a parent so it is generated once.
func SpawnKey(parentID uuid.UUID, scheduled time.Time) string {
	sum := blake2b.Sum256([]byte(parentID.String() + "|" + scheduled.UTC().Format(time.DateOnly)))
	return hex.EncodeToString(sum[:16])
}

func (s *Scheduler) spawn(ctx context.Context, parentID uuid.UUID, asOf time.Time) ItemResult {
	item := ItemResult{EntryID: parentID}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		parent, err := tx.GetEntryForUpdate(ctx, parentID)
		if err != nil {
			return err
		}
		item.EntryNumber = parent.EntryNumber
		if !Eligible(parent, asOf) {
			item.Outcome = OutcomeSkipped
			return nil
		}
		if err := periods.EnsureOpen(ctx, tx, asOf); err != nil {
			return err
		}
		scheduled := *parent.NextRecurringDate
		child := childOf(parent, asOf)
		if err := tx.ClaimRecurrence(ctx, SpawnKey(parent.ID, scheduled), parent.ID, child.ID); err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				item.Outcome = OutcomeSkipped
				return nil
			}
			return err
		}
		if err := s.journals.InsertTx(ctx, tx, &child); err != nil {
			return err
		}
		item.Outcome = OutcomeSpawned
		if parent.AutoPost {
			if err := s.journals.PostTx(ctx, tx, &child, "system", false); err != nil {
				return err
			}
			item.Outcome = OutcomePosted
		}
		next := ledger.NextOccurrence(scheduled, parent.Frequency)
		parent.NextRecurringDate = &next
		parent.UpdatedAt = asOf
		parent.ChangeHistory = append(parent.ChangeHistory, ledger.ChangeRecord{
			Field:     "nextRecurringDate",
			OldValue:  scheduled.Format(time.DateOnly),
			NewValue:  next.Format(time.DateOnly),
			ChangedBy: "system",
			ChangedAt: asOf,
		})
		item.ChildID = child.ID
		item.ChildNumber = child.EntryNumber
		return tx.UpdateEntry(ctx, parent)
	})
	if err != nil {
		item.Outcome = OutcomeFailed
		item.Err = err
		item.ChildID = uuid.Nil
		item.ChildNumber = ""
		s.logger.Error("spawn recurring entry",
			slog.String("parent_id", parentID.String()),
			slog.Any("error", err))
	}
	return item
}

func childOf(parent ledger.JournalEntry, asOf time.Time) ledger.JournalEntry {
	parentID := parent.ID
	lines := make([]ledger.Line, len(parent.Lines))
	for i, line := range parent.Lines {
		line.RefType = ledger.RefNone
		line.RefID = ""
		lines[i] = line
	}
	return ledger.JournalEntry{
		ID:            uuid.New(),
		EntryDate:     asOf,
		Description:   parent.Description,
		Reference:     parent.Reference,
		Status:        ledger.StatusDraft,
		EntryType:     ledger.TypeRecurring,
		Lines:         lines,
		ParentEntryID: &parentID,
		TemplateID:    parent.TemplateID,
		CreatedBy:     "system",
		ChangeHistory: []ledger.ChangeRecord{{
			Field:     "created",
			NewValue:  "Generated from " + parent.EntryNumber,
			ChangedBy: "system",
			ChangedAt: asOf,
		}},
	}
}

func (s *Scheduler) sweepReversals(ctx context.Context, report *TickReport) error {
	asOf := s.now()
	var due []ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		due, err = tx.ListDueReversals(ctx, asOf)
		return err
	})
	if err != nil {
		return fmt.Errorf("recurrence: list due reversals: %w", err)
	}
	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := ItemResult{EntryID: entry.ID, EntryNumber: entry.EntryNumber}
		date := asOf
		if entry.ReverseDate != nil {
			date = *entry.ReverseDate
		}
		mirror, err := s.journals.Reverse(ctx, journals.ReverseInput{
			EntryID: entry.ID,
			ActorID: "system",
			Reason:  "Auto-reversal",
			Date:    &date,
		})
		if err != nil {
			item.Outcome = OutcomeFailed
			item.Err = err
			s.logger.Error("auto reverse entry",
				slog.String("entry", entry.EntryNumber),
				slog.Any("error", err))
		} else {
			item.Outcome = OutcomeReversed
			item.ChildID = mirror.ID
			item.ChildNumber = mirror.EntryNumber
		}
		report.add(item, true)
	}
	return nil
}
