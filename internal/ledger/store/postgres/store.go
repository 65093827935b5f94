// Package postgres implements ledger.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-engine/internal/ledger"
	"github.com/odyssey-erp/ledger-engine/internal/platform/db"
)

// Store persists the ledger in PostgreSQL.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// New constructs Store. maxRetries bounds serialization failure retries.
func New(pool *pgxpool.Pool, maxRetries int) *Store {
	return &Store{pool: pool, maxRetries: maxRetries}
}

// WithTx runs fn inside a repeatable-read transaction, retrying the whole
// unit of work on serialization failures.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	if s == nil || s.pool == nil {
		return errors.New("ledger postgres store not initialised")
	}
	return db.WithRetryTx(ctx, s.pool, s.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

var _ ledger.Tx = (*txRepository)(nil)

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: encode: %w", err)
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ledger postgres: decode: %w", err)
	}
	return nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
