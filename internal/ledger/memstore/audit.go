package memstore

import (
	"context"
	"sync"

	"github.com/odyssey-erp/ledger-engine/internal/shared"
)

// AuditLog keeps audit records in memory.
type AuditLog struct {
	mu      sync.Mutex
	records []shared.AuditLog
}

// Record appends the log entry.
func (a *AuditLog) Record(_ context.Context, log shared.AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, log)
	return nil
}

// Records returns the entries recorded for entity, oldest first. An empty
// entity returns everything.
func (a *AuditLog) Records(entity string) []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]shared.AuditLog, 0, len(a.records))
	for _, r := range a.records {
		if entity == "" || r.Entity == entity {
			out = append(out, r)
		}
	}
	return out
}
