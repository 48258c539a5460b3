package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS grading_batches (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	strategy   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS grading_batches_created_at ON grading_batches (created_at DESC);
`

// PostgresStore keeps each batch as one JSONB document.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

// NewPostgresStore opens dsn with the pgx driver and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrNoDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			s.schemaErr = fmt.Errorf("create schema: %w", err)
		}
	})
	return s.schemaErr
}

func encode(b *model.Batch) ([]byte, error) {
	doc, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return doc, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, b *model.Batch) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryWriteLatency(time.Since(start)) }()

	doc, err := encode(b)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO grading_batches (id, status, strategy, created_at, updated_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		b.ID, string(b.Status), string(b.Strategy), b.CreatedAt, b.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("insert batch %s: %w", b.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrExists, b.ID)
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, b *model.Batch) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryWriteLatency(time.Since(start)) }()

	doc, err := encode(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO grading_batches (id, status, strategy, created_at, updated_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			doc = EXCLUDED.doc`,
		b.ID, string(b.Status), string(b.Strategy), b.CreatedAt, b.UpdatedAt, doc)
	if err != nil {
		return fmt.Errorf("upsert batch %s: %w", b.ID, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Batch, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(time.Since(start)) }()

	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM grading_batches WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select batch %s: %w", id, err)
	}
	out := &model.Batch{}
	if err := json.Unmarshal(doc, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*model.Batch, error) {
	limit, err := checkLimit(limit)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc - 'results' FROM grading_batches
		ORDER BY created_at DESC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b := &model.Batch{}
		if err := json.Unmarshal(doc, b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM grading_batches`).Scan(&n); err != nil {
		return 0
	}
	metrics.UpdateRepositoryBatches(n)
	return n
}

// Close implements Store.
func (s *PostgresStore) Close() error { return s.db.Close() }
