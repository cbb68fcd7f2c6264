package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// SESSION HISTORY
// =============================================================================

// SessionTurn is one completed query/answer cycle persisted for cross-restart
// recall. The in-memory session window is authoritative while a session is
// live; these rows back the record-keeping interface the orchestrator writes
// through.
type SessionTurn struct {
	SessionID  string    `json:"session_id"`
	Query      string    `json:"query"`
	Intent     string    `json:"intent"`
	Answer     string    `json:"answer"`
	ResultIDs  []string  `json:"result_ids"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordTurn appends one completed turn.
func (s *LocalStore) RecordTurn(ctx context.Context, turn SessionTurn) error {
	if turn.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = touchTimestamp()
	}
	ids, _ := json.Marshal(turn.ResultIDs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_history (session_id, query, intent, answer, result_ids, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.SessionID, turn.Query, turn.Intent, turn.Answer, string(ids),
		turn.Confidence, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// RecentTurns returns a session's latest turns, newest first.
func (s *LocalStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]SessionTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, query, intent, answer, result_ids, confidence, created_at
		FROM session_history WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	var out []SessionTurn
	for rows.Next() {
		var turn SessionTurn
		var ids string
		if err := rows.Scan(&turn.SessionID, &turn.Query, &turn.Intent, &turn.Answer,
			&ids, &turn.Confidence, &turn.CreatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(ids), &turn.ResultIDs)
		out = append(out, turn)
	}
	return out, rows.Err()
}

// PruneSessionHistory removes turns older than the retention window.
func (s *LocalStore) PruneSessionHistory(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("session history prune failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
