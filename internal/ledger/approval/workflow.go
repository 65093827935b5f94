// Package approval implements sequential per-level sign-off.
package approval

import (
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// NewLevels builds pending levels, one per approver in order.
func NewLevels(approvers []string) ([]ledger.ApprovalLevel, error) {
	levels := make([]ledger.ApprovalLevel, 0, len(approvers))
	seen := make(map[string]struct{}, len(approvers))
	for idx, approver := range approvers {
		approver = strings.TrimSpace(approver)
		if approver == "" {
			return nil, ledger.Validation("approvers", "approver id required")
		}
		if _, dup := seen[approver]; dup {
			return nil, ledger.Validation("approvers", "approver listed twice: "+approver)
		}
		seen[approver] = struct{}{}
		levels = append(levels, ledger.ApprovalLevel{
			Level:      idx + 1,
			ApproverID: approver,
			Status:     ledger.ApprovalPending,
		})
	}
	return levels, nil
}

// Outcome is the result of acting on a workflow.
type Outcome struct {
	Levels      []ledger.ApprovalLevel
	Level       int
	AllApproved bool
}

// Approve signs the pending level assigned to approverID. Levels are signed in
// order: a level is only actionable once every level before it is approved.
func Approve(levels []ledger.ApprovalLevel, approverID, comments string, at time.Time) (Outcome, error) {
	idx, err := actionable(levels, func(l ledger.ApprovalLevel) bool { return l.ApproverID == approverID }, errNotAssigned)
	if err != nil {
		return Outcome{}, err
	}
	return sign(levels, idx, ledger.ApprovalApproved, comments, at), nil
}

// ApproveLevel signs a level by number regardless of who is assigned.
func ApproveLevel(levels []ledger.ApprovalLevel, level int, comments string, at time.Time) (Outcome, error) {
	idx, err := actionable(levels, func(l ledger.ApprovalLevel) bool { return l.Level == level }, errLevelNotFound)
	if err != nil {
		return Outcome{}, err
	}
	return sign(levels, idx, ledger.ApprovalApproved, comments, at), nil
}

// Reject marks the caller's pending level rejected.
func Reject(levels []ledger.ApprovalLevel, approverID, comments string, at time.Time) (Outcome, error) {
	idx, err := actionable(levels, func(l ledger.ApprovalLevel) bool { return l.ApproverID == approverID }, errNotAssigned)
	if err != nil {
		return Outcome{}, err
	}
	return sign(levels, idx, ledger.ApprovalRejected, comments, at), nil
}

// RejectLevel marks a level rejected by number.
func RejectLevel(levels []ledger.ApprovalLevel, level int, comments string, at time.Time) (Outcome, error) {
	idx, err := actionable(levels, func(l ledger.ApprovalLevel) bool { return l.Level == level }, errLevelNotFound)
	if err != nil {
		return Outcome{}, err
	}
	return sign(levels, idx, ledger.ApprovalRejected, comments, at), nil
}

// Complete reports whether every level is approved.
func Complete(levels []ledger.ApprovalLevel) bool {
	for _, level := range levels {
		if level.Status != ledger.ApprovalApproved {
			return false
		}
	}
	return true
}

var (
	errNoLevels      = &ledger.DetailError{Kind: ledger.ErrNotFound, Field: "approval", Msg: "no approval levels configured"}
	errLevelNotFound = &ledger.DetailError{Kind: ledger.ErrNotFound, Field: "approval", Msg: "approval level not found"}
	errNotAssigned   = ledger.Unauthorized("approval", "no approval level is assigned to this approver")
)

func actionable(levels []ledger.ApprovalLevel, match func(ledger.ApprovalLevel) bool, missing error) (int, error) {
	if len(levels) == 0 {
		return -1, errNoLevels
	}
	target, assigned := -1, false
	for idx, level := range levels {
		if !match(level) {
			continue
		}
		assigned = true
		if level.Status == ledger.ApprovalPending {
			target = idx
			break
		}
	}
	if !assigned {
		return -1, missing
	}
	if target < 0 {
		return -1, ledger.Conflict("approval", "approval level is not pending")
	}
	for idx := 0; idx < target; idx++ {
		if levels[idx].Status != ledger.ApprovalApproved {
			return -1, ledger.Conflict("approval", "level "+strconv.Itoa(levels[idx].Level)+" has not approved yet")
		}
	}
	return target, nil
}

func sign(levels []ledger.ApprovalLevel, idx int, status ledger.ApprovalStatus, comments string, at time.Time) Outcome {
	out := make([]ledger.ApprovalLevel, len(levels))
	copy(out, levels)
	acted := at
	out[idx].Status = status
	out[idx].Comments = comments
	out[idx].ActedAt = &acted
	return Outcome{Levels: out, Level: out[idx].Level, AllApproved: Complete(out)}
}
