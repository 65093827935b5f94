// Package journals owns the journal entry lifecycle: create, approve, post,
// reverse, copy, update and delete.
package journals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/allocation"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/approval"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/budget"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/periods"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/references"
	"github.com/odyssey-erp/ledger-engine/internal/shared"
)

// AuditPort records lifecycle events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the journal entry lifecycle manager.
type Service struct {
	store      ledger.Store
	audit      AuditPort
	logger     *slog.Logger
	now        func() time.Time
	batchLimit int
}

// NewService constructs the lifecycle manager.
func NewService(store ledger.Store, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, logger: logger, now: time.Now, batchLimit: 4}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithBatchLimit bounds the number of entries posted concurrently by BatchPost.
func (s *Service) WithBatchLimit(n int) {
	if n > 0 {
		s.batchLimit = n
	}
}

// Create validates, expands and stores a new DRAFT entry.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		entry, err = s.createTx(ctx, tx, in, ledger.TypeManual, nil)
		return err
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if len(entry.BudgetWarnings) > 0 {
		s.logger.Warn("entry exceeds budget",
			slog.String("entry", entry.EntryNumber),
			slog.Int("warnings", len(entry.BudgetWarnings)))
	}
	s.record(ctx, in.ActorID, "journal.create", entry, map[string]any{"number": entry.EntryNumber})
	return entry, nil
}

func (s *Service) createTx(ctx context.Context, tx ledger.Tx, in CreateInput, typ ledger.EntryType, templateID *uuid.UUID) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := ledger.CheckBalanced(in.Lines); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := periods.EnsureOpen(ctx, tx, in.EntryDate); err != nil {
		return ledger.JournalEntry{}, err
	}
	lines, err := allocation.Expand(ctx, tx, in.Lines)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	warnings, err := budget.Check(ctx, tx, in.EntryDate, lines)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	levels, err := approval.NewLevels(in.Approvers)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	entry := ledger.JournalEntry{
		ID:             uuid.New(),
		EntryDate:      in.EntryDate,
		Description:    strings.TrimSpace(in.Description),
		Reference:      strings.TrimSpace(in.Reference),
		Status:         ledger.StatusDraft,
		EntryType:      typ,
		Lines:          lines,
		ApprovalLevels: levels,
		TemplateID:     templateID,
		BudgetWarnings: warnings,
		Attachments:    in.Attachments,
		IsRecurring:    in.IsRecurring,
		AutoPost:       in.AutoPost,
		IsReversing:    in.IsReversing,
		ReverseDate:    in.ReverseDate,
		CreatedBy:      in.ActorID,
	}
	if len(levels) > 0 {
		entry.ApprovalStatus = ledger.ApprovalPending
	}
	if in.IsRecurring {
		entry.Frequency = in.Frequency
		entry.RecurringEndDate = in.RecurringEndDate
		next := ledger.NextOccurrence(in.EntryDate, in.Frequency)
		if in.NextRecurringDate != nil {
			next = *in.NextRecurringDate
		}
		entry.NextRecurringDate = &next
	}
	entry.ChangeHistory = []ledger.ChangeRecord{{
		Field:     "created",
		NewValue:  "Entry created",
		ChangedBy: in.ActorID,
		ChangedAt: s.now(),
	}}
	if err := s.InsertTx(ctx, tx, &entry); err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

// InsertTx numbers and stores a new entry inside an existing transaction.
func (s *Service) InsertTx(ctx context.Context, tx ledger.Tx, entry *ledger.JournalEntry) error {
	entry.Recompute()
	if !entry.TotalDebit.Round(2).Equal(entry.TotalCredit.Round(2)) {
		return ledger.Integrity("lines", "debits must equal credits", entry.TotalDebit, entry.TotalCredit)
	}
	seq, err := tx.NextEntrySequence(ctx, entry.PeriodYear)
	if err != nil {
		return fmt.Errorf("journals: next sequence: %w", err)
	}
	now := s.now()
	entry.EntryNumber = ledger.FormatEntryNumber(entry.PeriodYear, seq)
	entry.CreatedAt, entry.UpdatedAt = now, now
	return tx.InsertEntry(ctx, *entry)
}

// Validate previews the budget warnings a candidate would produce.
func (s *Service) Validate(ctx context.Context, lines []ledger.Line, date time.Time) ([]ledger.BudgetWarning, error) {
	if date.IsZero() {
		return nil, ledger.Validation("date", "required")
	}
	var warnings []ledger.BudgetWarning
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		expanded, err := allocation.Expand(ctx, tx, lines)
		if err != nil {
			return err
		}
		warnings, err = budget.Check(ctx, tx, date, expanded)
		return err
	})
	return warnings, err
}

// Approve signs the caller's pending level. The entry becomes APPROVED once
// every level has signed; entries without levels approve directly.
func (s *Service) Approve(ctx context.Context, in ApproveInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if current.Status != ledger.StatusDraft {
			return ledger.Conflict("status", "only draft entries can be approved")
		}
		now := s.now()
		level := 0
		if len(current.ApprovalLevels) == 0 {
			current.ApprovalStatus = ledger.ApprovalApproved
			current.Status = ledger.StatusApproved
		} else {
			outcome, err := approval.Approve(current.ApprovalLevels, in.ApproverID, in.Comments, now)
			if err != nil {
				return err
			}
			current.ApprovalLevels = outcome.Levels
			level = outcome.Level
			if outcome.AllApproved {
				current.ApprovalStatus = ledger.ApprovalApproved
				current.Status = ledger.StatusApproved
			}
		}
		current.ChangeHistory = append(current.ChangeHistory, ledger.ChangeRecord{
			Field:     "approval",
			OldValue:  fmt.Sprintf("level %d pending", level),
			NewValue:  fmt.Sprintf("level %d approved", level),
			ChangedBy: in.ApproverID,
			ChangedAt: now,
		})
		current.UpdatedAt = now
		entry = current
		return tx.UpdateEntry(ctx, current)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ApproverID, "journal.approve", entry, map[string]any{"status": string(entry.Status)})
	return entry, nil
}

// Reject marks the caller's pending level rejected. The entry stays DRAFT.
func (s *Service) Reject(ctx context.Context, in ApproveInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if current.Status != ledger.StatusDraft {
			return ledger.Conflict("status", "only draft entries can be rejected")
		}
		now := s.now()
		outcome, err := approval.Reject(current.ApprovalLevels, in.ApproverID, in.Comments, now)
		if err != nil {
			return err
		}
		current.ApprovalLevels = outcome.Levels
		current.ApprovalStatus = ledger.ApprovalRejected
		current.ChangeHistory = append(current.ChangeHistory, ledger.ChangeRecord{
			Field:     "approval",
			OldValue:  fmt.Sprintf("level %d pending", outcome.Level),
			NewValue:  fmt.Sprintf("level %d rejected", outcome.Level),
			ChangedBy: in.ApproverID,
			ChangedAt: now,
		})
		current.UpdatedAt = now
		entry = current
		return tx.UpdateEntry(ctx, current)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ApproverID, "journal.reject", entry, map[string]any{"comments": in.Comments})
	return entry, nil
}

// Post applies the entry's balance effects. Entries that carry approval
// levels must be fully approved first.
func (s *Service) Post(ctx context.Context, in PostInput) (ledger.JournalEntry, error) {
	return s.post(ctx, in, false)
}

func (s *Service) post(ctx context.Context, in PostInput, approvedOnly bool) (ledger.JournalEntry, error) {
	if in.EntryID == uuid.Nil {
		return ledger.JournalEntry{}, ledger.Validation("entryId", "required")
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		switch current.Status {
		case ledger.StatusPosted:
			return ledger.Conflict("status", "entry is already posted")
		case ledger.StatusReversed:
			return ledger.Conflict("status", "entry has been reversed")
		}
		if approvedOnly && current.Status != ledger.StatusApproved {
			return ledger.Conflict("status", "entry is not approved")
		}
		if len(current.ApprovalLevels) > 0 && current.Status != ledger.StatusApproved {
			return ledger.Conflict("status", "entry is awaiting approval")
		}
		if err := periods.EnsureOpen(ctx, tx, current.EntryDate); err != nil {
			return err
		}
		if err := s.PostTx(ctx, tx, &current, in.ActorID, in.createReferences()); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.post", entry, map[string]any{
		"total_debit":  entry.TotalDebit.StringFixed(2),
		"total_credit": entry.TotalCredit.StringFixed(2),
	})
	return entry, nil
}

// PostTx applies balances, marks the entry POSTED and optionally spawns
// reference balances, all inside the caller's transaction.
func (s *Service) PostTx(ctx context.Context, tx ledger.Tx, entry *ledger.JournalEntry, actor string, createReferences bool) error {
	for _, line := range entry.Lines {
		delta := line.Net()
		if delta.IsZero() {
			continue
		}
		if err := tx.ApplyBalanceDelta(ctx, line.AccountID, delta); err != nil {
			return fmt.Errorf("journals: apply balance: %w", err)
		}
	}
	now := s.now()
	entry.Status = ledger.StatusPosted
	entry.PostedBy = actor
	entry.PostingDate = &now
	entry.UpdatedAt = now
	entry.ChangeHistory = append(entry.ChangeHistory, ledger.ChangeRecord{
		Field:     "status",
		OldValue:  "",
		NewValue:  string(ledger.StatusPosted),
		ChangedBy: actor,
		ChangedAt: now,
	})
	if err := tx.UpdateEntry(ctx, *entry); err != nil {
		return err
	}
	if !createReferences {
		return nil
	}
	res, err := references.SpawnForEntry(ctx, tx, *entry, now)
	if err != nil {
		return err
	}
	if n := len(res.Created) + len(res.Settled); n > 0 {
		s.logger.Debug("references updated on post",
			slog.String("entry", entry.EntryNumber),
			slog.Int("created", len(res.Created)),
			slog.Int("settled", len(res.Settled)))
	}
	return nil
}

// BatchPost posts every APPROVED entry among ids. Items are independent: a
// failing item is reported and the batch continues.
func (s *Service) BatchPost(ctx context.Context, ids []uuid.UUID, actor string) BatchResult {
	result := BatchResult{Items: make([]ItemResult, len(ids))}
	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for idx, id := range ids {
		idx, id := idx, id
		g.Go(func() error {
			item := ItemResult{Index: idx, EntryID: id}
			if err := ctx.Err(); err != nil {
				item.Err = err
				result.Items[idx] = item
				return nil
			}
			entry, err := s.post(ctx, PostInput{EntryID: id, ActorID: actor}, true)
			item.EntryNumber = entry.EntryNumber
			item.OK = err == nil
			item.Err = err
			result.Items[idx] = item
			return nil
		})
	}
	_ = g.Wait()
	result.tally()
	if result.Failed > 0 {
		s.logger.Warn("batch post finished with failures",
			slog.Int("posted", result.Succeeded),
			slog.Int("failed", result.Failed))
	}
	return result
}

// Reverse creates and posts the mirror of a posted entry and marks the
// original REVERSED.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (ledger.JournalEntry, error) {
	if in.EntryID == uuid.Nil {
		return ledger.JournalEntry{}, ledger.Validation("entryId", "required")
	}
	var mirror ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		mirror, err = s.ReverseTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.reverse", mirror, map[string]any{
		"original_id": in.EntryID.String(),
		"reason":      in.Reason,
	})
	return mirror, nil
}

// ReverseTx performs Reverse inside the caller's transaction.
func (s *Service) ReverseTx(ctx context.Context, tx ledger.Tx, in ReverseInput) (ledger.JournalEntry, error) {
	original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if original.Status != ledger.StatusPosted {
		return ledger.JournalEntry{}, ledger.Conflict("status", "only posted entries can be reversed")
	}
	// The original is rewritten too, so its own period must be open.
	if err := periods.EnsureOpen(ctx, tx, original.EntryDate); err != nil {
		return ledger.JournalEntry{}, err
	}
	now := s.now()
	date := now
	if in.Date != nil {
		date = *in.Date
	}
	if err := periods.EnsureOpen(ctx, tx, date); err != nil {
		return ledger.JournalEntry{}, err
	}
	unwound, err := references.UnwindForEntry(ctx, tx, original, now)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if n := len(unwound.Removed) + len(unwound.Restored); n > 0 {
		s.logger.Debug("references unwound on reverse",
			slog.String("entry", original.EntryNumber),
			slog.Int("removed", len(unwound.Removed)),
			slog.Int("restored", len(unwound.Restored)))
	}
	description := "REVERSAL: " + original.Description
	if in.Reason != "" {
		description += " - " + in.Reason
	}
	originalID := original.ID
	mirror := ledger.JournalEntry{
		ID:              uuid.New(),
		EntryDate:       date,
		Description:     description,
		Reference:       original.EntryNumber,
		Status:          ledger.StatusDraft,
		EntryType:       ledger.TypeReversing,
		Lines:           ledger.ReverseLines(original.Lines),
		OriginalEntryID: &originalID,
		CreatedBy:       in.ActorID,
		ChangeHistory: []ledger.ChangeRecord{{
			Field:     "created",
			NewValue:  "Reversal of " + original.EntryNumber,
			ChangedBy: in.ActorID,
			ChangedAt: now,
		}},
	}
	if err := s.InsertTx(ctx, tx, &mirror); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := s.PostTx(ctx, tx, &mirror, in.ActorID, false); err != nil {
		return ledger.JournalEntry{}, err
	}
	mirrorID := mirror.ID
	original.Status = ledger.StatusReversed
	original.ReversedByID = &mirrorID
	original.UpdatedAt = now
	original.ChangeHistory = append(original.ChangeHistory, ledger.ChangeRecord{
		Field:     "status",
		OldValue:  string(ledger.StatusPosted),
		NewValue:  string(ledger.StatusReversed),
		ChangedBy: in.ActorID,
		ChangedAt: now,
	})
	if err := tx.UpdateEntry(ctx, original); err != nil {
		return ledger.JournalEntry{}, err
	}
	return mirror, nil
}

// Copy clones an entry as a new DRAFT with a fresh number.
func (s *Service) Copy(ctx context.Context, in CopyInput) (ledger.JournalEntry, error) {
	if in.EntryID == uuid.Nil {
		return ledger.JournalEntry{}, ledger.Validation("entryId", "required")
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		source, err := tx.GetEntry(ctx, in.EntryID)
		if err != nil {
			return err
		}
		now := s.now()
		date := now
		if in.Date != nil {
			date = *in.Date
		}
		if err := periods.EnsureOpen(ctx, tx, date); err != nil {
			return err
		}
		warnings, err := budget.Check(ctx, tx, date, source.Lines)
		if err != nil {
			return err
		}
		typ := source.EntryType
		if typ == ledger.TypeReversing || typ == ledger.TypeRecurring {
			typ = ledger.TypeManual
		}
		approvers := make([]string, 0, len(source.ApprovalLevels))
		for _, level := range source.ApprovalLevels {
			approvers = append(approvers, level.ApproverID)
		}
		levels, err := approval.NewLevels(approvers)
		if err != nil {
			return err
		}
		entry = ledger.JournalEntry{
			ID:             uuid.New(),
			EntryDate:      date,
			Description:    source.Description,
			Reference:      source.Reference,
			Status:         ledger.StatusDraft,
			EntryType:      typ,
			Lines:          append([]ledger.Line(nil), source.Lines...),
			ApprovalLevels: levels,
			TemplateID:     source.TemplateID,
			BudgetWarnings: warnings,
			CreatedBy:      in.ActorID,
			ChangeHistory: []ledger.ChangeRecord{{
				Field:     "created",
				NewValue:  "Copied from " + source.EntryNumber,
				ChangedBy: in.ActorID,
				ChangedAt: now,
			}},
		}
		if len(levels) > 0 {
			entry.ApprovalStatus = ledger.ApprovalPending
		}
		return s.InsertTx(ctx, tx, &entry)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.copy", entry, map[string]any{"source_id": in.EntryID.String()})
	return entry, nil
}

// Update patches a DRAFT entry, recording one change per modified field.
func (s *Service) Update(ctx context.Context, in UpdateInput) (ledger.JournalEntry, error) {
	if in.EntryID == uuid.Nil {
		return ledger.JournalEntry{}, ledger.Validation("entryId", "required")
	}
	if in.Lines != nil {
		if err := ledger.ValidateLines(in.Lines); err != nil {
			return ledger.JournalEntry{}, err
		}
		if err := ledger.CheckBalanced(in.Lines); err != nil {
			return ledger.JournalEntry{}, err
		}
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if current.Status != ledger.StatusDraft {
			return ledger.Conflict("status", "only draft entries can be edited")
		}
		if err := periods.EnsureOpen(ctx, tx, current.EntryDate); err != nil {
			return err
		}
		now := s.now()
		var changes []ledger.ChangeRecord
		change := func(field, oldValue, newValue string) {
			changes = append(changes, ledger.ChangeRecord{
				Field: field, OldValue: oldValue, NewValue: newValue,
				ChangedBy: in.ActorID, ChangedAt: now,
			})
		}
		if in.Description != nil && strings.TrimSpace(*in.Description) != current.Description {
			change("description", current.Description, strings.TrimSpace(*in.Description))
			current.Description = strings.TrimSpace(*in.Description)
		}
		if in.Reference != nil && strings.TrimSpace(*in.Reference) != current.Reference {
			change("reference", current.Reference, strings.TrimSpace(*in.Reference))
			current.Reference = strings.TrimSpace(*in.Reference)
		}
		recheck := false
		if in.EntryDate != nil && !in.EntryDate.Equal(current.EntryDate) {
			if err := periods.EnsureOpen(ctx, tx, *in.EntryDate); err != nil {
				return err
			}
			change("entryDate", current.EntryDate.Format(time.DateOnly), in.EntryDate.Format(time.DateOnly))
			current.EntryDate = *in.EntryDate
			recheck = true
		}
		if in.Lines != nil {
			expanded, err := allocation.Expand(ctx, tx, in.Lines)
			if err != nil {
				return err
			}
			change("lines", summarize(current.Lines), summarize(expanded))
			current.Lines = expanded
			recheck = true
		}
		if len(changes) == 0 {
			entry = current
			return nil
		}
		if recheck {
			current.BudgetWarnings, err = budget.Check(ctx, tx, current.EntryDate, current.Lines)
			if err != nil {
				return err
			}
		}
		current.Recompute()
		current.ChangeHistory = append(current.ChangeHistory, changes...)
		current.UpdatedAt = now
		entry = current
		return tx.UpdateEntry(ctx, current)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	s.record(ctx, in.ActorID, "journal.update", entry, nil)
	return entry, nil
}

func summarize(lines []ledger.Line) string {
	debit, _ := ledger.Totals(lines)
	return fmt.Sprintf("%d lines, %s", len(lines), debit.StringFixed(2))
}

// Delete removes a DRAFT entry.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != ledger.StatusDraft {
			return ledger.Conflict("status", "only draft entries can be deleted")
		}
		if err := periods.EnsureOpen(ctx, tx, current.EntryDate); err != nil {
			return err
		}
		entry = current
		return tx.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "journal.delete", entry, nil)
	return nil
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		entry, err = tx.GetEntry(ctx, id)
		return err
	})
	return entry, err
}

// List returns entries matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	var entries []ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		entries, err = tx.ListEntries(ctx, filter)
		return err
	})
	return entries, err
}

// Stats summarises the journal.
func (s *Service) Stats(ctx context.Context) (ledger.EntryStats, error) {
	var stats ledger.EntryStats
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		stats, err = tx.EntryStats(ctx)
		return err
	})
	return stats, err
}

// AddAttachment stores an opaque attachment path on the entry.
func (s *Service) AddAttachment(ctx context.Context, id uuid.UUID, path, actor string) (ledger.JournalEntry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ledger.JournalEntry{}, ledger.Validation("path", "required")
	}
	var entry ledger.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		current.Attachments = append(current.Attachments, path)
		current.ChangeHistory = append(current.ChangeHistory, ledger.ChangeRecord{
			Field: "attachments", NewValue: path, ChangedBy: actor, ChangedAt: now,
		})
		current.UpdatedAt = now
		entry = current
		return tx.UpdateEntry(ctx, current)
	})
	return entry, err
}

func (s *Service) record(ctx context.Context, actor, action string, entry ledger.JournalEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = entry.EntryNumber
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: entry.ID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit journal event", slog.String("action", action), slog.Any("error", err))
	}
}
