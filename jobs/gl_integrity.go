package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/ledger-engine/internal/jobs"
	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
)

// ErrIntegrityViolations fails the task when unbalanced entries were found.
var ErrIntegrityViolations = errors.New("jobs: ledger integrity violations found")

// IntegrityChecker is the journal surface used by the integrity job.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, fiscalYear int) (journals.IntegrityReport, error)
}

// GLIntegrityJob verifies that every recorded entry of a year still balances.
type GLIntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Checker: checker, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes the scan. Violations are logged per entry and fail the task
// without retry, since a rerun finds the same rows.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("gl integrity: checker not configured")
	}
	var payload GLIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	year := payload.FiscalYear
	if year == 0 {
		year, _ = ledger.FiscalPeriod(j.clock())
	}

	tracker := j.metrics().Track(TaskGLIntegrity)
	report, err := j.Checker.CheckIntegrity(ctx, year)
	if err != nil {
		j.log().Error("integrity scan", slog.Int("fiscal_year", year), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddIntegrityViolations(len(report.Violations))
	for _, v := range report.Violations {
		j.log().Error("unbalanced entry", slog.String("entry", v.EntryNumber), slog.Any("error", v.Err))
	}
	j.log().Info("integrity scan complete",
		slog.Int("fiscal_year", year),
		slog.Int("checked", report.Checked),
		slog.Int("violations", len(report.Violations)))
	if len(report.Violations) > 0 {
		return tracker.End(fmt.Errorf("%w: %d entries: %w", ErrIntegrityViolations, len(report.Violations), asynq.SkipRetry))
	}
	return tracker.End(nil)
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}
