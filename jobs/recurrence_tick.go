package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger-engine/internal/jobs"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/recurrence"
)

// TickRunner is the scheduler surface driven by the job.
type TickRunner interface {
	Tick(ctx context.Context) (recurrence.TickReport, error)
}

// RecurrenceTickJob runs one scheduler tick per task.
type RecurrenceTickJob struct {
	Scheduler TickRunner
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewRecurrenceTickJob constructs the job handler.
func NewRecurrenceTickJob(scheduler TickRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurrenceTickJob {
	return &RecurrenceTickJob{Scheduler: scheduler, Logger: logger, Metrics: metrics}
}

// Handle executes the tick. Individual entry failures are reported in the
// tick report and do not fail the task.
func (j *RecurrenceTickJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Scheduler == nil {
		return errors.New("recurrence tick: scheduler not configured")
	}
	var payload RecurrenceTickPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskRecurrenceTick)
	report, err := j.Scheduler.Tick(ctx)
	if err != nil {
		j.log().Error("recurrence tick", slog.Any("error", err))
		return tracker.End(err)
	}
	if !report.LockHeld {
		j.log().Info("recurrence tick skipped, another worker holds the lock")
		return tracker.End(nil)
	}
	j.metrics().AddGenerated("recurring", report.Spawned)
	j.metrics().AddGenerated("reversal", report.Reversed)
	for _, item := range append(report.Recurring, report.Reversals...) {
		if item.Err != nil {
			j.log().Warn("scheduled entry failed",
				slog.String("entry", item.EntryNumber),
				slog.Any("error", item.Err))
		}
	}
	j.log().Info("recurrence tick complete",
		slog.String("reason", payload.Reason),
		slog.Int("spawned", report.Spawned),
		slog.Int("reversed", report.Reversed),
		slog.Int("failed", report.Failed))
	return tracker.End(nil)
}

func (j *RecurrenceTickJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RecurrenceTickJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecurrenceTick))
	}
	return slog.Default().With(slog.String("job", TaskRecurrenceTick))
}
