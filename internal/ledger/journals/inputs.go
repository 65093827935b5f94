package journals

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// CreateInput describes a candidate entry.
type CreateInput struct {
	EntryDate   time.Time
	Description string
	Reference   string
	Lines       []ledger.Line
	Approvers   []string
	Attachments []string
	ActorID     string

	IsRecurring       bool
	Frequency         ledger.Frequency
	NextRecurringDate *time.Time
	RecurringEndDate  *time.Time
	AutoPost          bool

	IsReversing bool
	ReverseDate *time.Time
}

// Validate checks the candidate's shape. Balance is checked separately so it
// surfaces as an integrity error.
func (in CreateInput) Validate() error {
	if in.EntryDate.IsZero() {
		return ledger.Validation("entryDate", "required")
	}
	if err := ledger.ValidateLines(in.Lines); err != nil {
		return err
	}
	if in.IsRecurring {
		if in.Frequency.Months() == 0 {
			return ledger.Validation("frequency", "must be MONTHLY, QUARTERLY, SEMI_ANNUALLY or ANNUALLY")
		}
		if in.RecurringEndDate != nil && in.RecurringEndDate.Before(in.EntryDate) {
			return ledger.Validation("recurringEndDate", "must not precede the entry date")
		}
	}
	if in.IsReversing {
		if in.ReverseDate == nil {
			return ledger.Validation("reverseDate", "required for reversing entries")
		}
		if in.ReverseDate.Before(in.EntryDate) {
			return ledger.Validation("reverseDate", "must not precede the entry date")
		}
	}
	return nil
}

// ApproveInput signs or rejects the caller's approval level.
type ApproveInput struct {
	EntryID    uuid.UUID
	ApproverID string
	Comments   string
}

// Validate checks required fields.
func (in ApproveInput) Validate() error {
	if in.EntryID == uuid.Nil {
		return ledger.Validation("entryId", "required")
	}
	if strings.TrimSpace(in.ApproverID) == "" {
		return ledger.Validation("approverId", "required")
	}
	return nil
}

// PostInput posts an entry. CreateReferences defaults to true when nil.
type PostInput struct {
	EntryID          uuid.UUID
	ActorID          string
	CreateReferences *bool
}

func (in PostInput) createReferences() bool {
	return in.CreateReferences == nil || *in.CreateReferences
}

// ReverseInput creates the mirror of a posted entry. Date defaults to now.
type ReverseInput struct {
	EntryID uuid.UUID
	ActorID string
	Reason  string
	Date    *time.Time
}

// CopyInput clones an entry as a new draft. Date defaults to now.
type CopyInput struct {
	EntryID uuid.UUID
	ActorID string
	Date    *time.Time
}

// UpdateInput patches a draft. Nil fields are left unchanged.
type UpdateInput struct {
	EntryID     uuid.UUID
	ActorID     string
	Description *string
	Reference   *string
	EntryDate   *time.Time
	Lines       []ledger.Line
}

// ItemResult is the per-item outcome of a batch operation.
type ItemResult struct {
	Index       int
	EntryID     uuid.UUID
	EntryNumber string
	OK          bool
	Err         error
}

// BatchResult reports every item of a batch operation.
type BatchResult struct {
	Items     []ItemResult
	Succeeded int
	Failed    int
}

func (r *BatchResult) tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, item := range r.Items {
		if item.OK {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
}

// TemplateInput defines a journal template.
type TemplateInput struct {
	Name        string
	Description string
	Lines       []ledger.TemplateLine
	IsRecurring bool
	Frequency   ledger.Frequency
	AutoPost    bool
}

// Validate checks the template shape.
func (in TemplateInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ledger.Validation("name", "required")
	}
	if len(in.Lines) < 2 {
		return ledger.Validation("lines", "at least two lines are required")
	}
	for _, line := range in.Lines {
		if line.AccountID == uuid.Nil && line.AccountVariable == "" {
			return ledger.Validation("lines", "each line needs an account or an account variable")
		}
	}
	if in.IsRecurring && in.Frequency.Months() == 0 {
		return ledger.Validation("frequency", "invalid")
	}
	return nil
}

// FromTemplateInput instantiates a template.
type FromTemplateInput struct {
	TemplateID uuid.UUID
	EntryDate  time.Time
	Variables  map[string]string
	ActorID    string
}
