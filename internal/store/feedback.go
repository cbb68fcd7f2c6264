package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"olympus/internal/logging"
)

// =============================================================================
// FEEDBACK SIGNALS
// =============================================================================

// NormalizeQuery canonicalizes a query for feedback keying: lowercase with
// collapsed whitespace. Two phrasings that differ only in spacing or case
// share one feedback row.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// UpsertFeedback records a thumbs-up (+1) or thumbs-down (-1) for a document
// under a user's query. Repeated votes overwrite, they never accumulate.
func (s *LocalStore) UpsertFeedback(ctx context.Context, userID, query, docID string, signal int) error {
	if signal != 1 && signal != -1 {
		return fmt.Errorf("signal must be +1 or -1, got %d", signal)
	}
	if userID == "" || docID == "" {
		return fmt.Errorf("user id and doc id are required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (user_id, query_normalized, doc_id, signal, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, query_normalized, doc_id)
		DO UPDATE SET signal = excluded.signal, updated_at = excluded.updated_at`,
		userID, NormalizeQuery(query), docID, signal, touchTimestamp())
	if err != nil {
		return fmt.Errorf("failed to upsert feedback: %w", err)
	}
	return nil
}

// GetBoosts computes per-document boost values in [-1,1] for a user's query.
// Each feedback row contributes signal scaled by a linear decay that reaches
// zero at decayWindow; rows whose stored query exactly matches the current
// one contribute an extra half vote. The final map is normalized so the
// largest magnitude is at most 1.
func (s *LocalStore) GetBoosts(ctx context.Context, userID, query string, docIDs []string, decayWindow time.Duration) (map[string]float64, error) {
	if userID == "" || len(docIDs) == 0 {
		return map[string]float64{}, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(docIDs)), ",")
	args := make([]interface{}, 0, len(docIDs)+1)
	args = append(args, userID)
	for _, id := range docIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, query_normalized, signal, updated_at
		FROM feedback
		WHERE user_id = ? AND doc_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}
	defer rows.Close()

	normalized := NormalizeQuery(query)
	now := time.Now().UTC()
	boosts := make(map[string]float64)

	for rows.Next() {
		var docID, storedQuery string
		var signal int
		var updatedAt time.Time
		if err := rows.Scan(&docID, &storedQuery, &signal, &updatedAt); err != nil {
			return nil, err
		}

		age := now.Sub(updatedAt)
		decay := 1.0 - age.Seconds()/decayWindow.Seconds()
		if decay <= 0 {
			continue
		}

		contribution := float64(signal) * decay
		if storedQuery == normalized {
			contribution += 0.5 * float64(signal) * decay
		}
		boosts[docID] += contribution
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Scale into [-1,1] when any document accumulated more than a full vote.
	var maxAbs float64
	for _, b := range boosts {
		if a := math.Abs(b); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs > 1.0 {
		for id := range boosts {
			boosts[id] /= maxAbs
		}
	}
	return boosts, nil
}

// CleanupOldFeedback deletes rows older than the retention window and
// returns how many were removed.
func (s *LocalStore) CleanupOldFeedback(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("feedback cleanup failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("feedback cleanup removed %d rows", n)
	}
	return n, nil
}
