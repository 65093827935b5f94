package allocation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// RuleInput describes an allocation rule to create or replace.
type RuleInput struct {
	Name            string
	SourceAccountID uuid.UUID
	Targets         []ledger.AllocationTarget
	ActorID         string
}

// Validate checks the rule shape and the percentage invariant.
func (in RuleInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ledger.Validation("name", "required")
	}
	if in.SourceAccountID == uuid.Nil {
		return ledger.Validation("sourceAccountId", "required")
	}
	for _, target := range in.Targets {
		if target.AccountID == in.SourceAccountID {
			return ledger.Validation("targets", "a target cannot be the source account")
		}
	}
	return ValidateTargets(in.Targets)
}

// Service manages allocation rules.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

// NewService constructs the rule service.
func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateRule stores a new active rule. Only one active rule may exist per source.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (ledger.AllocationRule, error) {
	if err := in.Validate(); err != nil {
		return ledger.AllocationRule{}, err
	}
	now := s.now()
	rule := ledger.AllocationRule{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(in.Name),
		SourceAccountID: in.SourceAccountID,
		Targets:         in.Targets,
		IsActive:        true,
		CreatedBy:       in.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, ok, err := tx.FindActiveRule(ctx, in.SourceAccountID); err != nil {
			return err
		} else if ok {
			return ledger.Conflict("sourceAccountId", "an active rule already exists for this account")
		}
		return tx.InsertRule(ctx, rule)
	})
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	return rule, nil
}

// UpdateRule replaces the name and targets of an existing rule.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (ledger.AllocationRule, error) {
	if err := in.Validate(); err != nil {
		return ledger.AllocationRule{}, err
	}
	var rule ledger.AllocationRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if current.SourceAccountID != in.SourceAccountID {
			return ledger.Validation("sourceAccountId", "source account cannot change")
		}
		current.Name = strings.TrimSpace(in.Name)
		current.Targets = in.Targets
		current.UpdatedAt = s.now()
		rule = current
		return tx.UpdateRule(ctx, current)
	})
	return rule, err
}

// SetActive toggles a rule on or off.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (ledger.AllocationRule, error) {
	var rule ledger.AllocationRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if active && !current.IsActive {
			if other, ok, err := tx.FindActiveRule(ctx, current.SourceAccountID); err != nil {
				return err
			} else if ok && other.ID != current.ID {
				return ledger.Conflict("sourceAccountId", "an active rule already exists for this account")
			}
		}
		current.IsActive = active
		current.UpdatedAt = s.now()
		rule = current
		return tx.UpdateRule(ctx, current)
	})
	return rule, err
}

// GetRule returns one rule.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (ledger.AllocationRule, error) {
	var rule ledger.AllocationRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		rule, err = tx.GetRule(ctx, id)
		return err
	})
	return rule, err
}

// ListRules returns rules, optionally only the active ones.
func (s *Service) ListRules(ctx context.Context, activeOnly bool) ([]ledger.AllocationRule, error) {
	var rules []ledger.AllocationRule
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		rules, err = tx.ListRules(ctx, activeOnly)
		return err
	})
	return rules, err
}
