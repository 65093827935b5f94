package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/ledger-engine/internal/jobs"
	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/recurrence"
)

func newMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type stubTicker struct {
	report recurrence.TickReport
	err    error
	calls  int
}

func (s *stubTicker) Tick(context.Context) (recurrence.TickReport, error) {
	s.calls++
	return s.report, s.err
}

func TestRecurrenceTickCountsGenerated(t *testing.T) {
	metrics, reg := newMetrics(t)
	ticker := &stubTicker{report: recurrence.TickReport{
		LockHeld: true,
		Spawned:  2,
		Reversed: 1,
		Failed:   1,
		Recurring: []recurrence.ItemResult{
			{EntryNumber: "JE/2024-25/00001", Outcome: recurrence.OutcomeSpawned},
			{EntryNumber: "JE/2024-25/00002", Err: errors.New("period locked")},
		},
	}}
	job := NewRecurrenceTickJob(ticker, nil, metrics)

	task, err := NewRecurrenceTickTask("cron")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, ticker.calls)
	require.Equal(t, float64(3), counterValue(t, reg, "ledger_scheduled_entries_total"))
	require.Equal(t, float64(1), counterValue(t, reg, "ledger_jobs_total"))
}

func TestRecurrenceTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	metrics, reg := newMetrics(t)
	job := NewRecurrenceTickJob(&stubTicker{}, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskRecurrenceTick, nil)))
	require.Zero(t, counterValue(t, reg, "ledger_scheduled_entries_total"))
}

func TestRecurrenceTickPropagatesErrors(t *testing.T) {
	metrics, reg := newMetrics(t)
	boom := errors.New("redis down")
	job := NewRecurrenceTickJob(&stubTicker{err: boom}, nil, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskRecurrenceTick, nil))
	require.ErrorIs(t, err, boom)
	require.Equal(t, float64(1), counterValue(t, reg, "ledger_jobs_failures_total"))
}

func TestRecurrenceTickRejectsBadPayload(t *testing.T) {
	job := NewRecurrenceTickJob(&stubTicker{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskRecurrenceTick, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *RecurrenceTickJob
	require.Error(t, unconfigured.Handle(context.Background(), asynq.NewTask(TaskRecurrenceTick, nil)))
}

type stubBudgets struct {
	filter    ledger.BudgetFilter
	budgets   []ledger.GLBudget
	refreshed map[uuid.UUID]ledger.BudgetAlerts
	err       error
}

func (s *stubBudgets) List(_ context.Context, filter ledger.BudgetFilter) ([]ledger.GLBudget, error) {
	s.filter = filter
	return s.budgets, nil
}

func (s *stubBudgets) RefreshActuals(_ context.Context, id uuid.UUID) (ledger.GLBudget, error) {
	if s.err != nil {
		return ledger.GLBudget{}, s.err
	}
	return ledger.GLBudget{ID: id, Alerts: s.refreshed[id]}, nil
}

func TestBudgetRefreshDefaultsToCurrentYear(t *testing.T) {
	metrics, reg := newMetrics(t)
	first, second := uuid.New(), uuid.New()
	budgets := &stubBudgets{
		budgets: []ledger.GLBudget{{ID: first}, {ID: second}},
		refreshed: map[uuid.UUID]ledger.BudgetAlerts{
			first:  {Threshold80: true, Threshold90: true},
			second: {Threshold80: true, Threshold90: true, Threshold100: true, Overspending: true},
		},
	}
	job := NewBudgetRefreshJob(budgets, nil, metrics)
	job.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskBudgetRefresh, nil)))
	require.Equal(t, 2024, budgets.filter.FiscalYear)
	require.Equal(t, ledger.BudgetApproved, budgets.filter.Status)
	// two over 80, one over 100, one overspent
	require.Equal(t, float64(4), counterValue(t, reg, "ledger_budget_alerts_total"))
}

func TestBudgetRefreshUsesPayloadYearAndFailsOnError(t *testing.T) {
	metrics, _ := newMetrics(t)
	boom := errors.New("store unavailable")
	budgets := &stubBudgets{budgets: []ledger.GLBudget{{ID: uuid.New()}}, err: boom}
	job := NewBudgetRefreshJob(budgets, nil, metrics)

	task, err := NewBudgetRefreshTask(2023)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
	require.Equal(t, 2023, budgets.filter.FiscalYear)
}

type stubChecker struct {
	year   int
	report journals.IntegrityReport
}

func (s *stubChecker) CheckIntegrity(_ context.Context, year int) (journals.IntegrityReport, error) {
	s.year = year
	return s.report, nil
}

func TestGLIntegrityClean(t *testing.T) {
	metrics, reg := newMetrics(t)
	checker := &stubChecker{report: journals.IntegrityReport{Checked: 12}}
	job := NewGLIntegrityJob(checker, nil, metrics)

	task, err := NewGLIntegrityTask(2024)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 2024, checker.year)
	require.Zero(t, counterValue(t, reg, "ledger_integrity_violations_total"))
}

func TestGLIntegrityViolationsSkipRetry(t *testing.T) {
	metrics, reg := newMetrics(t)
	checker := &stubChecker{report: journals.IntegrityReport{
		Checked: 3,
		Violations: []journals.IntegrityViolation{
			{EntryID: uuid.New(), EntryNumber: "JE/2024-25/00003", Err: errors.New("debits must equal credits")},
		},
	}}
	job := NewGLIntegrityJob(checker, nil, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, []byte(`{"fiscal_year":2024}`)))
	require.ErrorIs(t, err, ErrIntegrityViolations)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, float64(1), counterValue(t, reg, "ledger_integrity_violations_total"))
}
