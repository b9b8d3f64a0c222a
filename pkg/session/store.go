// Package session stores translation sessions and the utterances
// translated within them.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kappaborg/Simultane-Translate/pkg/kv"
	"github.com/kappaborg/Simultane-Translate/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// ListOptions filters List results.
type ListOptions struct {
	Limit      int
	Since      time.Time
	SourceLang string
	TargetLang string
	// ActiveOnly returns sessions that have not been ended.
	ActiveOnly bool
}

// Store reads and writes sessions in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the session database and creates the schema.
func New(dbPath string) (*Store, error) {
	db, err := kv.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		ended_at    INTEGER
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS session_entries (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		original_text   TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		source_lang     TEXT NOT NULL,
		target_lang     TEXT NOT NULL,
		confidence      REAL,
		duration_ms     INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_entries_session ON session_entries(session_id, created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`)
	return err
}

// Create starts a new session.
func (s *Store) Create(ctx context.Context, sourceLang, targetLang string) (*models.Session, error) {
	sess := &models.Session{
		ID:         uuid.NewString(),
		SourceLang: sourceLang,
		TargetLang: targetLang,
		StartedAt:  s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source_lang, target_lang, started_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.SourceLang, sess.TargetLang, sess.StartedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// AddEntry appends a translated utterance to a session. ID, SessionID and
// CreatedAt are filled in when empty.
func (s *Store) AddEntry(ctx context.Context, sessionID string, e models.SessionEntry) (*models.SessionEntry, error) {
	if err := s.exists(ctx, sessionID); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.SessionID = sessionID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	var conf any
	if e.Confidence != nil {
		conf = *e.Confidence
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_entries
		(id, session_id, original_text, translated_text, source_lang, target_lang, confidence, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.OriginalText, e.TranslatedText, e.SourceLang, e.TargetLang,
		conf, e.DurationMs, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("add session entry: %w", err)
	}
	return &e, nil
}

// End marks a session finished. Ending an ended session is a no-op.
func (s *Store) End(ctx context.Context, id string) (*models.Session, error) {
	if err := s.exists(ctx, id); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		s.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns a session with its entries in creation order.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_lang, target_lang, started_at, ended_at,
		 (SELECT COUNT(*) FROM session_entries e WHERE e.session_id = s.id)
		 FROM sessions s WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, original_text, translated_text, source_lang, target_lang,
		 confidence, duration_ms, created_at
		 FROM session_entries WHERE session_id = ? ORDER BY created_at, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query session entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e          models.SessionEntry
			confidence sql.NullFloat64
			createdAt  int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.OriginalText, &e.TranslatedText,
			&e.SourceLang, &e.TargetLang, &confidence, &e.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session entry: %w", err)
		}
		if confidence.Valid {
			e.Confidence = models.Float(confidence.Float64)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		sess.Translations = append(sess.Translations, e)
	}
	return sess, rows.Err()
}

// List returns sessions matching opts, most recent first, without entries.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.Session, error) {
	q := `SELECT id, source_lang, target_lang, started_at, ended_at,
		(SELECT COUNT(*) FROM session_entries e WHERE e.session_id = s.id)
		FROM sessions s WHERE 1=1`
	var args []any

	if !opts.Since.IsZero() {
		q += " AND started_at >= ?"
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.SourceLang != "" {
		q += " AND source_lang = ?"
		args = append(args, opts.SourceLang)
	}
	if opts.TargetLang != "" {
		q += " AND target_lang = ?"
		args = append(args, opts.TargetLang)
	}
	if opts.ActiveOnly {
		q += " AND ended_at IS NULL"
	}

	q += " ORDER BY started_at DESC, rowid DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// Delete removes a session and its entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_entries WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session entries: %w", err)
	}
	return tx.Commit()
}

// Clear removes every session and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_entries`); err != nil {
		return 0, fmt.Errorf("clear session entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*models.Session, error) {
	var (
		sess      models.Session
		startedAt int64
		endedAt   sql.NullInt64
	)
	if err := sc.Scan(&sess.ID, &sess.SourceLang, &sess.TargetLang, &startedAt, &endedAt, &sess.EntryCount); err != nil {
		return nil, err
	}
	sess.StartedAt = time.UnixMilli(startedAt).UTC()
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64).UTC()
		sess.EndedAt = &t
	}
	return &sess, nil
}
