package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusApproved EntryStatus = "APPROVED"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// EntryType describes how an entry came to exist.
type EntryType string

const (
	TypeManual    EntryType = "MANUAL"
	TypeTemplate  EntryType = "TEMPLATE"
	TypeRecurring EntryType = "RECURRING"
	TypeReversing EntryType = "REVERSING"
)

// ApprovalStatus tracks both whole-document and per-level approval state.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Frequency is the recurrence cadence of a recurring parent entry.
type Frequency string

const (
	FrequencyMonthly      Frequency = "MONTHLY"
	FrequencyQuarterly    Frequency = "QUARTERLY"
	FrequencySemiAnnually Frequency = "SEMI_ANNUALLY"
	FrequencyAnnually     Frequency = "ANNUALLY"
)

// Months returns the calendar months between occurrences.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencySemiAnnually:
		return 6
	case FrequencyAnnually:
		return 12
	}
	return 0
}

// RefType marks how a line participates in reference reconciliation.
type RefType string

const (
	RefNone      RefType = ""
	RefNew       RefType = "new-ref"
	RefAgainst   RefType = "against-ref"
	RefOnAccount RefType = "on-account"
)

// Line is a single debit or credit against an account.
type Line struct {
	AccountID   uuid.UUID       `json:"accountId"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
	CostCenter  string          `json:"costCenter"`
	Department  string          `json:"department"`
	Project     string          `json:"project"`
	RefType     RefType         `json:"refType"`
	RefID       string          `json:"refId"`
}

// Net returns debit minus credit.
func (l Line) Net() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// Amount returns the nonzero side of the line.
func (l Line) Amount() decimal.Decimal {
	if l.Debit.IsPositive() {
		return l.Debit
	}
	return l.Credit
}

// ApprovalLevel is one sequential sign-off step.
type ApprovalLevel struct {
	Level      int            `json:"level"`
	ApproverID string         `json:"approverId"`
	Status     ApprovalStatus `json:"status"`
	Comments   string         `json:"comments"`
	ActedAt    *time.Time     `json:"actedAt,omitempty"`
}

// ChangeRecord is an append-only audit trail item on an entry.
type ChangeRecord struct {
	Field     string    `json:"field"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
}

// BudgetWarning is advisory output of the budget guard.
type BudgetWarning struct {
	AccountID    uuid.UUID       `json:"accountId"`
	BudgetAmount decimal.Decimal `json:"budgetAmount"`
	ActualAmount decimal.Decimal `json:"actualAmount"`
	Variance     decimal.Decimal `json:"variance"`
	Message      string          `json:"message"`
}

// JournalEntry is a balanced set of lines recorded on a date.
type JournalEntry struct {
	ID          uuid.UUID       `json:"id"`
	EntryNumber string          `json:"entryNumber"`
	EntryDate   time.Time       `json:"entryDate"`
	PeriodYear  int             `json:"periodYear"`
	PeriodMonth int             `json:"periodMonth"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	Status      EntryStatus     `json:"status"`
	EntryType   EntryType       `json:"entryType"`
	Lines       []Line          `json:"lines,omitempty"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`

	ApprovalStatus ApprovalStatus  `json:"approvalStatus"`
	ApprovalLevels []ApprovalLevel `json:"approvalLevels,omitempty"`

	IsRecurring       bool       `json:"isRecurring"`
	Frequency         Frequency  `json:"frequency"`
	NextRecurringDate *time.Time `json:"nextRecurringDate,omitempty"`
	RecurringEndDate  *time.Time `json:"recurringEndDate,omitempty"`
	AutoPost          bool       `json:"autoPost"`
	ParentEntryID     *uuid.UUID `json:"parentEntryId,omitempty"`

	IsReversing     bool       `json:"isReversing"`
	ReverseDate     *time.Time `json:"reverseDate,omitempty"`
	OriginalEntryID *uuid.UUID `json:"originalEntryId,omitempty"`
	ReversedByID    *uuid.UUID `json:"reversedById,omitempty"`

	TemplateID     *uuid.UUID      `json:"templateId,omitempty"`
	BudgetWarnings []BudgetWarning `json:"budgetWarnings,omitempty"`
	Attachments    []string        `json:"attachments,omitempty"`
	ChangeHistory  []ChangeRecord  `json:"changeHistory,omitempty"`

	IsLocked bool       `json:"isLocked"`
	LockedBy string     `json:"lockedBy"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`

	CreatedBy   string     `json:"createdBy"`
	PostedBy    string     `json:"postedBy"`
	PostingDate *time.Time `json:"postingDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Recompute refreshes the derived totals and fiscal period fields.
func (e *JournalEntry) Recompute() {
	e.TotalDebit, e.TotalCredit = Totals(e.Lines)
	e.PeriodYear, e.PeriodMonth = FiscalPeriod(e.EntryDate)
}

// Account is the external ledger account; the engine only moves its balance.
type Account struct {
	ID      uuid.UUID       `json:"id"`
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// AllocationTarget receives a percentage share of a source line.
type AllocationTarget struct {
	AccountID  uuid.UUID       `json:"accountId"`
	CostCenter string          `json:"costCenter"`
	Percentage decimal.Decimal `json:"percentage"`
}

// AllocationRule splits postings to a source account across targets.
type AllocationRule struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	SourceAccountID uuid.UUID          `json:"sourceAccountId"`
	Targets         []AllocationTarget `json:"targets,omitempty"`
	IsActive        bool               `json:"isActive"`
	CreatedBy       string             `json:"createdBy"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// BudgetStatus enumerates GL budget states.
type BudgetStatus string

const (
	BudgetDraft           BudgetStatus = "DRAFT"
	BudgetPendingApproval BudgetStatus = "PENDING_APPROVAL"
	BudgetApproved        BudgetStatus = "APPROVED"
	BudgetRejected        BudgetStatus = "REJECTED"
	BudgetFrozen          BudgetStatus = "FROZEN"
)

// DefaultBudgetPeriod is used when a budget is created without a period.
const DefaultBudgetPeriod = "yearly"

// BudgetRevision records a change to a budget amount.
type BudgetRevision struct {
	Number         int             `json:"number"`
	PreviousAmount decimal.Decimal `json:"previousAmount"`
	NewAmount      decimal.Decimal `json:"newAmount"`
	Reason         string          `json:"reason"`
	RevisedBy      string          `json:"revisedBy"`
	RevisedAt      time.Time       `json:"revisedAt"`
}

// BudgetAlerts flags utilization thresholds.
type BudgetAlerts struct {
	Threshold80  bool `json:"threshold80"`
	Threshold90  bool `json:"threshold90"`
	Threshold100 bool `json:"threshold100"`
	Overspending bool `json:"overspending"`
}

// Any reports whether any alert is raised.
func (a BudgetAlerts) Any() bool {
	return a.Threshold80 || a.Threshold90 || a.Threshold100 || a.Overspending
}

// GLBudget is a per account, fiscal year and period budget.
type GLBudget struct {
	ID                 uuid.UUID        `json:"id"`
	AccountID          uuid.UUID        `json:"accountId"`
	FiscalYear         int              `json:"fiscalYear"`
	Period             string           `json:"period"`
	BudgetAmount       decimal.Decimal  `json:"budgetAmount"`
	ActualAmount       decimal.Decimal  `json:"actualAmount"`
	Variance           decimal.Decimal  `json:"variance"`
	UtilizationPercent decimal.Decimal  `json:"utilizationPercent"`
	Status             BudgetStatus     `json:"status"`
	Revisions          []BudgetRevision `json:"revisions,omitempty"`
	ApprovalLevels     []ApprovalLevel  `json:"approvalLevels,omitempty"`
	Alerts             BudgetAlerts     `json:"alerts"`
	CreatedBy          string           `json:"createdBy"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// Available is the unspent portion of the budget.
func (b GLBudget) Available() decimal.Decimal {
	return b.BudgetAmount.Sub(b.ActualAmount)
}

// ReferenceStatus enumerates reference balance states.
type ReferenceStatus string

const (
	RefOutstanding   ReferenceStatus = "OUTSTANDING"
	RefPartiallyPaid ReferenceStatus = "PARTIALLY_PAID"
	RefFullyPaid     ReferenceStatus = "FULLY_PAID"
)

// ReferencePayment links a payment (or a settling entry) to a reference.
type ReferencePayment struct {
	PaymentID     uuid.UUID       `json:"paymentId"`
	PaymentNumber string          `json:"paymentNumber"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
}

// ReferenceBalance is an outstanding amount for one (entry, account) pair.
type ReferenceBalance struct {
	ID                uuid.UUID          `json:"id"`
	JournalEntryID    *uuid.UUID         `json:"journalEntryId,omitempty"`
	EntryNumber       string             `json:"entryNumber"`
	Reference         string             `json:"reference"`
	AccountID         uuid.UUID          `json:"accountId"`
	Description       string             `json:"description"`
	Date              time.Time          `json:"date"`
	TotalAmount       decimal.Decimal    `json:"totalAmount"`
	PaidAmount        decimal.Decimal    `json:"paidAmount"`
	OutstandingAmount decimal.Decimal    `json:"outstandingAmount"`
	Status            ReferenceStatus    `json:"status"`
	Payments          []ReferencePayment `json:"payments,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Normalize recomputes the outstanding amount and derived status.
func (r *ReferenceBalance) Normalize() {
	r.OutstandingAmount = r.TotalAmount.Sub(r.PaidAmount)
	switch {
	case r.PaidAmount.IsZero():
		r.Status = RefOutstanding
	case r.OutstandingAmount.IsPositive():
		r.Status = RefPartiallyPaid
	default:
		r.Status = RefFullyPaid
	}
}

// PaymentAllocation is the payment-side cross link of an allocation.
type PaymentAllocation struct {
	ReferenceID    uuid.UUID       `json:"referenceId"`
	JournalEntryID *uuid.UUID      `json:"journalEntryId,omitempty"`
	EntryNumber    string          `json:"entryNumber"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"`
}

// Payment is an external finance document that funds reference allocations.
type Payment struct {
	ID              uuid.UUID           `json:"id"`
	Number          string              `json:"number"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	AllocatedAmount decimal.Decimal     `json:"allocatedAmount"`
	UnappliedAmount decimal.Decimal     `json:"unappliedAmount"`
	Allocations     []PaymentAllocation `json:"allocations,omitempty"`
}

// TemplateLine is a journal template line; formulas win over fixed amounts.
type TemplateLine struct {
	AccountID       uuid.UUID       `json:"accountId"`
	AccountVariable string          `json:"accountVariable"`
	Debit           decimal.Decimal `json:"debit"`
	Credit          decimal.Decimal `json:"credit"`
	DebitFormula    string          `json:"debitFormula"`
	CreditFormula   string          `json:"creditFormula"`
	Description     string          `json:"description"`
	CostCenter      string          `json:"costCenter"`
}

// JournalTemplate produces TEMPLATE entries from variables.
type JournalTemplate struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Lines       []TemplateLine `json:"lines,omitempty"`
	IsRecurring bool           `json:"isRecurring"`
	Frequency   Frequency      `json:"frequency"`
	AutoPost    bool           `json:"autoPost"`
	UsageCount  int            `json:"usageCount"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// PeriodLock is the authoritative lock record for a fiscal month.
type PeriodLock struct {
	Year     int       `json:"year"`
	Month    int       `json:"month"`
	LockedBy string    `json:"lockedBy"`
	LockedAt time.Time `json:"lockedAt"`
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	Status EntryStatus
	Type   EntryType
	Year   int
	Month  int
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// EntryStats summarises the journal.
type EntryStats struct {
	Total       int             `json:"total"`
	Draft       int             `json:"draft"`
	Approved    int             `json:"approved"`
	Posted      int             `json:"posted"`
	Reversed    int             `json:"reversed"`
	Recurring   int             `json:"recurring"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
}

// BudgetFilter narrows budget listings.
type BudgetFilter struct {
	FiscalYear int
	AccountID  *uuid.UUID
	Status     BudgetStatus
	AlertsOnly bool
}

// ReferenceFilter narrows reference listings. Empty statuses means unpaid.
type ReferenceFilter struct {
	AccountID      *uuid.UUID
	JournalEntryID *uuid.UUID
	Statuses       []ReferenceStatus
	Limit          int
}
