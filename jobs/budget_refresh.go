package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger-engine/internal/jobs"
	"github.com/odyssey-erp/ledger-engine/internal/ledger"
)

// BudgetRefresher is the budget service surface used by the refresh job.
type BudgetRefresher interface {
	List(ctx context.Context, filter ledger.BudgetFilter) ([]ledger.GLBudget, error)
	RefreshActuals(ctx context.Context, id uuid.UUID) (ledger.GLBudget, error)
}

// BudgetRefreshJob recomputes actuals for every approved budget of a year.
type BudgetRefreshJob struct {
	Budgets BudgetRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBudgetRefreshJob constructs the job handler.
func NewBudgetRefreshJob(budgets BudgetRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *BudgetRefreshJob {
	return &BudgetRefreshJob{
		Budgets: budgets,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (j *BudgetRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

// Handle executes the refresh.
func (j *BudgetRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Budgets == nil {
		return errors.New("budget refresh: service not configured")
	}
	var payload BudgetRefreshPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	year := payload.FiscalYear
	if year == 0 {
		year, _ = ledger.FiscalPeriod(j.clock())
	}

	tracker := j.metrics().Track(TaskBudgetRefresh)
	budgets, err := j.Budgets.List(ctx, ledger.BudgetFilter{FiscalYear: year, Status: ledger.BudgetApproved})
	if err != nil {
		j.log().Error("list budgets", slog.Int("fiscal_year", year), slog.Any("error", err))
		return tracker.End(err)
	}
	var over80, over100, overspent int
	for _, b := range budgets {
		refreshed, err := j.Budgets.RefreshActuals(ctx, b.ID)
		if err != nil {
			j.log().Error("refresh budget", slog.String("budget_id", b.ID.String()), slog.Any("error", err))
			return tracker.End(err)
		}
		if refreshed.Alerts.Threshold80 {
			over80++
		}
		if refreshed.Alerts.Threshold100 {
			over100++
		}
		if refreshed.Alerts.Overspending {
			overspent++
		}
	}
	j.metrics().AddBudgetAlerts("80", over80)
	j.metrics().AddBudgetAlerts("100", over100)
	j.metrics().AddBudgetAlerts("overspending", overspent)
	j.log().Info("refreshed budgets", slog.Int("fiscal_year", year), slog.Int("budgets", len(budgets)), slog.Int("overspent", overspent))
	return tracker.End(nil)
}

func (j *BudgetRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BudgetRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBudgetRefresh))
	}
	return slog.Default().With(slog.String("job", TaskBudgetRefresh))
}
