package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"olympus/internal/types"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation starts a new thread for a user and returns it.
func (s *LocalStore) CreateConversation(ctx context.Context, userID, title string) (*types.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	now := touchTimestamp()
	conv := &types.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at, message_count, is_pinned)
		VALUES (?, ?, ?, ?, ?, 0, 0)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation fetches one thread; nil when absent.
func (s *LocalStore) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at, message_count, is_pinned
		FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

// ListConversations returns a user's threads, pinned first, then most
// recently updated.
func (s *LocalStore) ListConversations(ctx context.Context, userID string, limit int) ([]types.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at, message_count, is_pinned
		FROM conversations WHERE user_id = ?
		ORDER BY is_pinned DESC, updated_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []types.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// RenameConversation updates the title.
func (s *LocalStore) RenameConversation(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, touchTimestamp(), id)
	return err
}

// PinConversation toggles the pinned flag.
func (s *LocalStore) PinConversation(ctx context.Context, id string, pinned bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET is_pinned = ? WHERE id = ?`, boolToInt(pinned), id)
	return err
}

// DeleteConversation removes a thread; messages and attachments cascade.
func (s *LocalStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// =============================================================================
// MESSAGES
// =============================================================================

// AppendMessage stores a turn and touches the parent's counters. Results and
// thinking steps are JSON-encoded columns, not separate tables; they are
// read back as a unit and never queried individually.
func (s *LocalStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = touchTimestamp()
	}

	results, _ := json.Marshal(msg.Results)
	steps, _ := json.Marshal(msg.ThinkingSteps)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, query, results, thinking_steps, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Query,
		string(results), string(steps), msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET message_count = message_count + 1, updated_at = ?
		WHERE id = ?`, msg.Timestamp, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return tx.Commit()
}

// GetMessages returns a thread's turns in chronological order.
func (s *LocalStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, query, results, thinking_steps, timestamp
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp ASC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		var msg types.Message
		var results, steps string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&msg.Query, &results, &steps, &msg.Timestamp); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(results), &msg.Results)
		json.Unmarshal([]byte(steps), &msg.ThinkingSteps)
		out = append(out, msg)
	}
	return out, rows.Err()
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachDocument links an indexed document to a conversation. Attaching the
// same document twice is a no-op.
func (s *LocalStore) AttachDocument(ctx context.Context, conversationID, documentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO attachments (conversation_id, document_id, attached_at)
		VALUES (?, ?, ?)`, conversationID, documentID, touchTimestamp())
	return err
}

// GetAttachments returns the document ids attached to a conversation, oldest
// first.
func (s *LocalStore) GetAttachments(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id FROM attachments
		WHERE conversation_id = ? ORDER BY attached_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DetachDocument removes one attachment link.
func (s *LocalStore) DetachDocument(ctx context.Context, conversationID, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM attachments WHERE conversation_id = ? AND document_id = ?`,
		conversationID, documentID)
	return err
}

func scanConversation(row rowScanner) (*types.Conversation, error) {
	var conv types.Conversation
	var pinned int
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt,
		&conv.UpdatedAt, &conv.MessageCount, &pinned)
	if err != nil {
		return nil, err
	}
	conv.IsPinned = pinned != 0
	return &conv, nil
}
