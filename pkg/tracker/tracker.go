package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kappaborg/Simultane-Translate/pkg/kv"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
)

// AllProviders matches every provider in CountSince.
const AllProviders = "*"

// Tracker records and queries remote calls.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// CountSince returns the number of calls made to a provider since a
	// given time. AllProviders counts every provider.
	CountSince(ctx context.Context, provider string, since time.Time) (int64, error)
	// Recent returns the latest records, newest first.
	Recent(ctx context.Context, limit int) ([]models.UsageRecord, error)
	// Summary returns usage aggregated by provider and operation.
	Summary(ctx context.Context) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	operation TEXT NOT NULL,
	key_fingerprint TEXT NOT NULL DEFAULT '',
	items INTEGER NOT NULL DEFAULT 0,
	status_code INTEGER NOT NULL DEFAULT 0,
	error_kind TEXT NOT NULL DEFAULT '',
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_provider_time ON usage_records(provider, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := kv.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a usage record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (provider, operation, key_fingerprint, items, status_code, error_kind, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Provider, string(rec.Operation), rec.KeyFingerprint, rec.Items, rec.StatusCode, rec.ErrorKind, rec.LatencyMs, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CountSince returns the number of calls to provider since a given time.
func (t *SQLiteTracker) CountSince(ctx context.Context, provider string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM usage_records WHERE created_at >= ?`
	args := []any{since.UnixMilli()}
	if provider != AllProviders {
		query += ` AND provider = ?`
		args = append(args, provider)
	}

	var n int64
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

// Recent returns the latest records, newest first.
func (t *SQLiteTracker) Recent(ctx context.Context, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, provider, operation, key_fingerprint, items, status_code, error_kind, latency_ms, created_at
		 FROM usage_records ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var op string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Provider, &op, &r.KeyFingerprint, &r.Items, &r.StatusCode, &r.ErrorKind, &r.LatencyMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.Operation = models.Operation(op)
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary returns usage aggregated by provider and operation.
func (t *SQLiteTracker) Summary(ctx context.Context) ([]models.UsageSummary, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT provider, operation, COUNT(*),
		        SUM(CASE WHEN error_kind != '' THEN 1 ELSE 0 END),
		        SUM(items), AVG(latency_ms)
		 FROM usage_records GROUP BY provider, operation ORDER BY provider, operation`,
	)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		var op string
		if err := rows.Scan(&s.Provider, &op, &s.RequestCount, &s.ErrorCount, &s.TotalItems, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Operation = models.Operation(op)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
