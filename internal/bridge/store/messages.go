package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
)

// Valid message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversational turn. Messages are created once and never
// updated or deleted.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage builds a Message with a fresh UUID and the current UTC time.
func NewMessage(sessionID, role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// validRole reports whether role is one of the three accepted values.
func validRole(role string) bool {
	return role == RoleSystem || role == RoleUser || role == RoleAssistant
}

// validateMessage checks the invariants shared by Insert and import.
func validateMessage(msg Message) error {
	if msg.SessionID == "" {
		return fault.New(fault.KindValidation, "sessionId required")
	}
	if !validRole(msg.Role) {
		return fault.Newf(fault.KindValidation, "role must be one of system, user, assistant; got %q", msg.Role)
	}
	if msg.Content == "" {
		return fault.New(fault.KindValidation, "content must not be empty")
	}
	return nil
}

// Insert persists a new message. Duplicate IDs are a caller error and
// surface as a persistence failure.
func (s *Store) Insert(ctx context.Context, msg Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fault.Wrap(fault.KindPersistence, "insert message", err)
	}
	return nil
}

// Retrieve returns messages for a session in descending creation order
// (most recent first), capped to limit when limit > 0. An unknown session
// yields an empty slice, not an error.
func (s *Store) Retrieve(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryMessages(ctx, query, args...)
}

// RetrieveAscending returns the full ordered history for a session, oldest
// first. This is the canonical reading order used by summarize, export, and
// the analysis engine.
func (s *Store) RetrieveAscending(ctx context.Context, sessionID string) ([]Message, error) {
	return s.queryMessages(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		sessionID,
	)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "query messages", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var createdAt string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fault.Wrap(fault.KindPersistence, "scan message", err)
		}
		msg.CreatedAt, err = parseTimestamp(createdAt)
		if err != nil {
			return nil, fault.Wrap(fault.KindPersistence, "parse message timestamp", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "iterate messages", err)
	}
	return messages, nil
}

// parseTimestamp accepts both RFC3339Nano (written by this store) and plain
// RFC3339 timestamps.
func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err == nil {
		return t, nil
	}
	t, err2 := time.Parse(time.RFC3339, v)
	if err2 == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q: %w", v, err)
}
