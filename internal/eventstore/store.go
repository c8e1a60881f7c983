package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Superstone-han/supertonic-v2/internal/config"
	_ "modernc.org/sqlite"
)

// Utterance statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
	StatusFailed    = "failed"
)

// Utterance is one synthesis request as recorded in the timeline.
type Utterance struct {
	ID         string
	Source     string
	Voice      string
	Language   string
	TextLength int
	Status     string
	Duration   float64
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Event represents a recorded timeline entry.
type Event struct {
	ID          int64
	UtteranceID string
	TraceID     string
	Type        string
	Payload     []byte
	CreatedAt   time.Time
}

// Store wraps a SQLite-backed utterance timeline.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "event-store"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS utterances (
    utterance_id TEXT PRIMARY KEY,
    source TEXT,
    voice TEXT,
    language TEXT,
    text_length INTEGER,
    status TEXT NOT NULL,
    duration REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    utterance_id TEXT NOT NULL,
    trace_id TEXT,
    event_type TEXT,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(utterance_id) REFERENCES utterances(utterance_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_utterance_created ON events(utterance_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) disabled() bool {
	return s == nil || s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// StartUtterance records a new utterance as pending.
func (s *Store) StartUtterance(ctx context.Context, u Utterance) error {
	if s.disabled() {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(utterance_id, source, voice, language, text_length, status, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(utterance_id) DO UPDATE SET voice=excluded.voice, language=excluded.language, text_length=excluded.text_length`,
		u.ID, u.Source, u.Voice, u.Language, u.TextLength, StatusPending, u.CreatedAt)
	return err
}

// FinishUtterance stores the final status and audio duration.
func (s *Store) FinishUtterance(ctx context.Context, id, status string, duration float64) error {
	if s.disabled() {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE utterances SET status = ?, duration = ?, finished_at = ? WHERE utterance_id = ?`,
		status, duration, s.clock().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("utterance %s not found", id)
	}
	return nil
}

// GetUtterance loads one utterance row.
func (s *Store) GetUtterance(ctx context.Context, id string) (Utterance, error) {
	if s.disabled() {
		return Utterance{}, sql.ErrNoRows
	}
	var (
		u                 Utterance
		created, finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT utterance_id, source, voice, language, text_length, status, duration, created_at, finished_at
		 FROM utterances WHERE utterance_id = ?`, id).
		Scan(&u.ID, &u.Source, &u.Voice, &u.Language, &u.TextLength, &u.Status, &u.Duration, &created, &finished)
	if err != nil {
		return Utterance{}, err
	}
	u.CreatedAt = parseTime(created)
	u.FinishedAt = parseTime(finished)
	return u, nil
}

// AppendEvent writes an event into the store.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(utterance_id, trace_id, event_type, payload, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.UtteranceID, evt.TraceID, evt.Type, evt.Payload, evt.CreatedAt)
	return err
}

// ListUtteranceEvents retrieves up to limit events for an utterance ordered ascending by time.
func (s *Store) ListUtteranceEvents(ctx context.Context, utteranceID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, utterance_id, trace_id, event_type, payload, created_at
		 FROM events WHERE utterance_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, utteranceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			traceID sql.NullString
			created sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UtteranceID, &traceID, &e.Type, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.TraceID = traceID.String
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

func parseTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, v.String); err == nil {
		return ts
	}
	return time.Time{}
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		return tx.Commit()
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxUtterances > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE utterance_id IN (
			SELECT utterance_id FROM utterances ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxUtterances)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
