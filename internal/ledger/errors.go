package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by the engine matches exactly one of these
// through errors.Is.
var (
	ErrValidation          = errors.New("ledger: validation failed")
	ErrNotFound            = errors.New("ledger: not found")
	ErrStateConflict       = errors.New("ledger: state conflict")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrIntegrity           = errors.New("ledger: integrity violation")
	ErrAuthorization       = errors.New("ledger: not authorized")
)

// DetailError carries the field and expected/actual values behind a failure.
type DetailError struct {
	Kind     error
	Field    string
	Expected string
	Actual   string
	Msg      string
}

func (e *DetailError) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Expected != "" || e.Actual != "" {
		msg = fmt.Sprintf("%s (expected %s, got %s)", msg, e.Expected, e.Actual)
	}
	return msg
}

func (e *DetailError) Unwrap() error { return e.Kind }

// Common lookups.
var (
	ErrEntryNotFound     = &DetailError{Kind: ErrNotFound, Field: "entry", Msg: "journal entry not found"}
	ErrAccountNotFound   = &DetailError{Kind: ErrNotFound, Field: "account", Msg: "account not found"}
	ErrRuleNotFound      = &DetailError{Kind: ErrNotFound, Field: "rule", Msg: "allocation rule not found"}
	ErrBudgetNotFound    = &DetailError{Kind: ErrNotFound, Field: "budget", Msg: "budget not found"}
	ErrReferenceNotFound = &DetailError{Kind: ErrNotFound, Field: "reference", Msg: "reference not found"}
	ErrPaymentNotFound   = &DetailError{Kind: ErrNotFound, Field: "payment", Msg: "payment not found"}
	ErrTemplateNotFound  = &DetailError{Kind: ErrNotFound, Field: "template", Msg: "template not found"}
	ErrPeriodLocked      = &DetailError{Kind: ErrStateConflict, Field: "period", Msg: "period is locked"}
	ErrDuplicate         = &DetailError{Kind: ErrStateConflict, Msg: "record already exists"}
)

// Validation reports a malformed or missing field.
func Validation(field, msg string) error {
	return &DetailError{Kind: ErrValidation, Field: field, Msg: msg}
}

// Conflict reports an operation not permitted in the current state.
func Conflict(field, msg string) error {
	return &DetailError{Kind: ErrStateConflict, Field: field, Msg: msg}
}

// Unauthorized reports an actor acting outside their assignment.
func Unauthorized(field, msg string) error {
	return &DetailError{Kind: ErrAuthorization, Field: field, Msg: msg}
}

// Insufficient reports an amount exceeding what is available.
func Insufficient(field string, available, requested decimal.Decimal) error {
	return &DetailError{
		Kind:     ErrInsufficientBalance,
		Field:    field,
		Msg:      "amount exceeds available balance",
		Expected: "<= " + available.StringFixed(2),
		Actual:   requested.StringFixed(2),
	}
}

// Integrity reports a broken financial invariant.
func Integrity(field, msg string, expected, actual decimal.Decimal) error {
	return &DetailError{
		Kind:     ErrIntegrity,
		Field:    field,
		Msg:      msg,
		Expected: expected.StringFixed(2),
		Actual:   actual.StringFixed(2),
	}
}

// KindOf returns the error kind err belongs to, or nil.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrStateConflict, ErrInsufficientBalance, ErrIntegrity, ErrAuthorization} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
