package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/basemap-orders/internal/model"
)

// ErrNotFound is returned when an order is not in the ledger.
var ErrNotFound = errors.New("order not found in ledger")

// Record is a ledger row for one order.
type Record struct {
	Handle      model.OrderHandle
	Name        string
	State       model.OrderState
	Attempts    int
	SubmittedAt time.Time
	CompletedAt *time.Time
	Results     model.ResultManifest
}

// Store persists order submissions and observations in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// NewStoreWithSchema initializes the schema then returns the store.
func NewStoreWithSchema(ctx context.Context, db *sql.DB) (*Store, error) {
	store := NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates ledger tables if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS basemap_orders (
			order_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			spec JSONB NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			results JSONB,
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS basemap_order_observations (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			state TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			elapsed_ms BIGINT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			FOREIGN KEY (order_id) REFERENCES basemap_orders(order_id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init ledger schema: %w", err)
		}
	}

	return nil
}

// RecordSubmission stores a newly submitted order. Recording the same order
// twice is a no-op and returns false.
func (s *Store) RecordSubmission(ctx context.Context, handle model.OrderHandle, spec *model.OrderSpec) (bool, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return false, fmt.Errorf("marshal spec: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO basemap_orders (order_id, name, location, spec, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`,
		handle.ID, spec.Name, handle.Location, specJSON, model.StateQueued,
	)
	if err != nil {
		return false, fmt.Errorf("record submission %s: %w", handle.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RecordExternal adopts an order submitted outside orderctl so its
// observations and outcome can be recorded. Its spec is stored as an empty
// object. Adopting a known order is a no-op and returns false.
func (s *Store) RecordExternal(ctx context.Context, handle model.OrderHandle, name string, state model.OrderState) (bool, error) {
	if state == "" {
		state = model.StateQueued
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO basemap_orders (order_id, name, location, spec, state)
		VALUES ($1, $2, $3, '{}'::jsonb, $4)
		ON CONFLICT (order_id) DO NOTHING`,
		handle.ID, name, handle.Location, state,
	)
	if err != nil {
		return false, fmt.Errorf("record external order %s: %w", handle.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RecordProgress appends an observation and updates the order's latest state.
func (s *Store) RecordProgress(ctx context.Context, p model.Progress) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO basemap_order_observations (order_id, state, attempt, elapsed_ms, observed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.OrderID, p.State, p.Attempt, p.Elapsed.Milliseconds(), p.ObservedAt,
	); err != nil {
		return fmt.Errorf("record observation %s: %w", p.OrderID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE basemap_orders
		SET state = $2, attempts = attempts + 1, updated_at = $3
		WHERE order_id = $1`,
		p.OrderID, p.State, p.ObservedAt,
	); err != nil {
		return fmt.Errorf("update order %s: %w", p.OrderID, err)
	}

	return tx.Commit()
}

// RecordOutcome marks an order terminal and stores its manifest.
func (s *Store) RecordOutcome(ctx context.Context, orderID string, state model.OrderState, results model.ResultManifest) error {
	var resultsJSON []byte
	if results != nil {
		var err error
		resultsJSON, err = json.Marshal(results)
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE basemap_orders
		SET state = $2, results = $3, completed_at = NOW(), updated_at = NOW()
		WHERE order_id = $1`,
		orderID, state, resultsJSON,
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", orderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	return nil
}

// Pending returns orders without a recorded terminal outcome, oldest first.
func (s *Store) Pending(ctx context.Context) ([]model.OrderHandle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, location
		FROM basemap_orders
		WHERE completed_at IS NULL
		ORDER BY submitted_at`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var handles []model.OrderHandle
	for rows.Next() {
		var h model.OrderHandle
		if err := rows.Scan(&h.ID, &h.Location); err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, rows.Err()
}

// Get returns the ledger record for an order.
func (s *Store) Get(ctx context.Context, orderID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, location, name, state, attempts, submitted_at, completed_at, results
		FROM basemap_orders
		WHERE order_id = $1`,
		orderID,
	)

	var rec Record
	var state string
	var completed sql.NullTime
	var results []byte
	if err := row.Scan(&rec.Handle.ID, &rec.Handle.Location, &rec.Name, &state,
		&rec.Attempts, &rec.SubmittedAt, &completed, &results); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
		}
		return Record{}, err
	}
	rec.State = model.OrderState(state)
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return Record{}, fmt.Errorf("decode results: %w", err)
		}
	}
	return rec, nil
}
