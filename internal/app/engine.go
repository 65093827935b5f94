package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/allocation"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/budget"
	ledgerhttp "github.com/odyssey-erp/ledger-engine/internal/ledger/http"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/journals"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/memstore"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/periods"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/recurrence"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/references"
	"github.com/odyssey-erp/ledger-engine/internal/ledger/store/postgres"
	"github.com/odyssey-erp/ledger-engine/internal/shared"
)

// AuditRecorder is satisfied by shared.AuditLogger and memstore.AuditLog.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Engine bundles the wired ledger components.
type Engine struct {
	Store      ledger.Store
	Journals   *journals.Service
	Rules      *allocation.Service
	Budgets    *budget.Service
	Periods    *periods.Registry
	References *references.Service
	Scheduler  *recurrence.Scheduler
}

// EngineParams collects what BuildEngine needs. Pool is required for the
// postgres store and ignored for the memory store.
type EngineParams struct {
	Config *Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Lock   recurrence.RunLock
}

// BuildEngine selects the store from configuration and wires every service.
func BuildEngine(p EngineParams) (*Engine, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("app: config required")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var (
		store ledger.Store
		audit AuditRecorder
	)
	switch p.Config.LedgerStore {
	case StoreMemory:
		store = memstore.New()
		audit = &memstore.AuditLog{}
	case StorePostgres:
		if p.Pool == nil {
			return nil, fmt.Errorf("app: postgres store requires a pool")
		}
		store = postgres.New(p.Pool, p.Config.TxMaxRetries)
		audit = shared.NewAuditLogger(p.Pool)
	default:
		return nil, fmt.Errorf("app: unknown store %q", p.Config.LedgerStore)
	}

	js := journals.NewService(store, audit, logger)
	js.WithBatchLimit(p.Config.BatchPostConcurrency)
	return &Engine{
		Store:      store,
		Journals:   js,
		Rules:      allocation.NewService(store),
		Budgets:    budget.NewService(store, logger),
		Periods:    periods.NewRegistry(store, audit, logger),
		References: references.NewService(store, logger),
		Scheduler: recurrence.NewScheduler(store, js, p.Lock, recurrence.Config{
			Deadline: p.Config.SchedulerDeadline,
			LockTTL:  p.Config.SchedulerLockTTL,
		}, logger),
	}, nil
}

// Handler returns the HTTP handler for the engine.
func (e *Engine) Handler(logger *slog.Logger) *ledgerhttp.Handler {
	return ledgerhttp.NewHandler(logger, ledgerhttp.Services{
		Journals:   e.Journals,
		Rules:      e.Rules,
		Budgets:    e.Budgets,
		Periods:    e.Periods,
		References: e.References,
		Generator:  e.Scheduler,
	})
}
