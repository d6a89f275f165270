package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqlStore persists situations of every collection in one table.
type sqlStore struct {
	db *sql.DB
}

func newSQLStore(ctx context.Context, db *sql.DB) (*sqlStore, error) {
	s := &sqlStore{db: db}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) init(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	situation TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	embedding TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_collection ON memories(collection, id);
`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("init memories schema: %w", err)
	}
	return nil
}

func (s *sqlStore) insert(ctx context.Context, collection string, entries []entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO memories (collection, situation, recommendation, embedding, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, e := range entries {
		vec, err := json.Marshal(e.embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, collection, e.Situation.Situation, e.Recommendation, string(vec), now); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqlStore) load(ctx context.Context, collection string) ([]entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT situation, recommendation, embedding FROM memories WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []entry
	for rows.Next() {
		var (
			e   entry
			vec string
		)
		if err := rows.Scan(&e.Situation.Situation, &e.Recommendation, &vec); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &e.embedding); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
