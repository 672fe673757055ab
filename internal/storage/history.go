package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultTopQueries = 10

// AppendTurns adds turns to the conversation log in one transaction.
// Missing IDs and timestamps are filled in.
func (s *Store) AppendTurns(ctx context.Context, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_history (id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			t.ID, t.Role, t.Content, t.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("appending %s turn: %w", t.Role, err)
		}
	}
	return tx.Commit()
}

// RecentTurns returns the latest limit turns, oldest first. An empty role
// matches both roles.
func (s *Store) RecentTurns(ctx context.Context, role string, limit int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at FROM (
			SELECT rowid AS seq, id, role, content, created_at
			FROM conversation_history
			WHERE ? = '' OR role = ?
			ORDER BY rowid DESC LIMIT ?
		) ORDER BY seq ASC`, role, role, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// TopQueries returns the most frequently asked user queries, most frequent
// first. A non-positive limit means 10.
func (s *Store) TopQueries(ctx context.Context, limit int) ([]QueryCount, error) {
	if limit <= 0 {
		limit = defaultTopQueries
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content, COUNT(*) AS n
		FROM conversation_history
		WHERE role = 'user'
		GROUP BY content
		ORDER BY n DESC, content ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top queries: %w", err)
	}
	defer rows.Close()

	out := []QueryCount{}
	for rows.Next() {
		var q QueryCount
		if err := rows.Scan(&q.Query, &q.Count); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ClearAll deletes every university record and the conversation log.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"universities", "conversation_history"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}
