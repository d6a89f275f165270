package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/agenttrader/models"
)

var ErrNotFound = errors.New("session not found")

// Store persists analysis sessions and the node steps of each session.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    final_state TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS steps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    node TEXT NOT NULL,
    delta TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    UNIQUE(session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_steps_session ON steps(session_id, seq);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, session models.SessionRecord) error {
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if session.Status == "" {
		session.Status = models.SessionRunning
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, ticker, trade_date, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, session.ID, session.Ticker, session.TradeDate, session.Status, now, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) AppendStep(ctx context.Context, step models.StepRecord) error {
	if step.Seq < 0 {
		return fmt.Errorf("step seq must not be negative")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO steps (session_id, seq, node, delta, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id, seq) DO NOTHING
`, step.SessionID, step.Seq, step.Node, step.Delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// FinishSession records the outcome of a run.
func (s *Store) FinishSession(ctx context.Context, id, status, errMsg, finalState string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions
SET status = ?, error = ?, final_state = ?, updated_at = ?
WHERE id = ?
`, status, errMsg, finalState, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListSessions returns the most recent sessions first, without final state.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticker, trade_date, status, error, created_at, updated_at
FROM sessions
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		if err := rows.Scan(&rec.ID, &rec.Ticker, &rec.TradeDate, &rec.Status, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return sessions, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.SessionRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, ticker, trade_date, status, error, final_state, created_at, updated_at
FROM sessions
WHERE id = ?
`, id)

	var rec models.SessionRecord
	if err := row.Scan(&rec.ID, &rec.Ticker, &rec.TradeDate, &rec.Status, &rec.Error, &rec.FinalState, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListSteps(ctx context.Context, sessionID string) ([]models.StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, seq, node, delta, created_at
FROM steps
WHERE session_id = ?
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []models.StepRecord
	for rows.Next() {
		var rec models.StepRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &rec.Node, &rec.Delta, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps rows: %w", err)
	}
	return steps, nil
}
