package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger-engine/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurrenceTick generates due recurring entries and runs the
	// auto-reversal sweep.
	TaskRecurrenceTick = "ledger:recurrence:tick"
	// TaskBudgetRefresh recomputes actuals and alerts for approved budgets.
	TaskBudgetRefresh = "ledger:budget:refresh"
	// TaskGLIntegrity checks that recorded entries still balance.
	TaskGLIntegrity = "ledger:gl:integrity"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RecurrenceTickPayload is accepted for forward compatibility; the tick has
// no parameters today.
type RecurrenceTickPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewRecurrenceTickTask builds a scheduler tick task.
func NewRecurrenceTickTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(RecurrenceTickPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurrenceTick, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// BudgetRefreshPayload scopes a budget refresh. Zero means the current year.
type BudgetRefreshPayload struct {
	FiscalYear int `json:"fiscal_year,omitempty"`
}

// NewBudgetRefreshTask builds a budget refresh task.
func NewBudgetRefreshTask(fiscalYear int) (*asynq.Task, error) {
	body, err := json.Marshal(BudgetRefreshPayload{FiscalYear: fiscalYear})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBudgetRefresh, body, asynq.Queue(QueueDefault)), nil
}

// GLIntegrityPayload scopes an integrity scan. Zero means the current year.
type GLIntegrityPayload struct {
	FiscalYear int `json:"fiscal_year,omitempty"`
}

// NewGLIntegrityTask builds an integrity scan task.
func NewGLIntegrityTask(fiscalYear int) (*asynq.Task, error) {
	body, err := json.Marshal(GLIntegrityPayload{FiscalYear: fiscalYear})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault), asynq.MaxRetry(0)), nil
}
