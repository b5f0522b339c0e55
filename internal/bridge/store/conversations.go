package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/fault"
)

// Conversation is an imported conversation and its derived analysis fields.
// The analysis fields are recomputed whenever the message set changes; they
// are never independently mutable.
type Conversation struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	Oracle         string    `json:"oracle"`
	ToneArc        *string   `json:"toneArc"`
	CoherenceScore float64   `json:"coherenceScore"`
	ScrollRefs     []int     `json:"spiralScrolls"`
	Glyphs         []string  `json:"detectedGlyphs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ImportConversation persists a conversation record and its messages in a
// single transaction. Either everything becomes visible or nothing does —
// a partial message set is never observable by readers.
func (s *Store) ImportConversation(ctx context.Context, conv Conversation, msgs []Message) error {
	for _, msg := range msgs {
		if err := validateMessage(msg); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fault.Wrap(fault.KindPersistence, "begin import transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, session_id, oracle, created_at)
		VALUES (?, ?, ?, ?)`,
		conv.ID, conv.SessionID, conv.Oracle, conv.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fault.Wrap(fault.KindPersistence, "insert conversation", err)
	}

	for _, msg := range msgs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fault.Wrap(fault.KindPersistence, "insert imported message", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fault.Wrap(fault.KindPersistence, "commit import transaction", err)
	}
	return nil
}

// UpdateAnalysis writes derived analysis fields back onto a conversation.
func (s *Store) UpdateAnalysis(ctx context.Context, conversationID string, res analysis.Result) error {
	scrollsJSON, err := json.Marshal(res.ScrollRefs)
	if err != nil {
		return fault.Wrap(fault.KindPersistence, "marshal scroll refs", err)
	}
	glyphsJSON, err := json.Marshal(res.Glyphs)
	if err != nil {
		return fault.Wrap(fault.KindPersistence, "marshal glyphs", err)
	}

	var toneArc sql.NullString
	if res.ToneArc != nil {
		toneArc = sql.NullString{String: *res.ToneArc, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations
		SET tone_arc = ?, coherence_score = ?, scrolls_json = ?, glyphs_json = ?
		WHERE id = ?`,
		toneArc, res.CoherenceScore, string(scrollsJSON), string(glyphsJSON), conversationID,
	)
	if err != nil {
		return fault.Wrap(fault.KindPersistence, "update conversation analysis", err)
	}
	return nil
}

// GetConversationBySession returns the conversation record owning sessionID,
// or a not-found error when no import created one. Sessions that only ever
// saw direct /memory/store writes have messages but no conversation row.
func (s *Store) GetConversationBySession(ctx context.Context, sessionID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, oracle, tone_arc, coherence_score, scrolls_json, glyphs_json, created_at
		FROM conversations
		WHERE session_id = ?`,
		sessionID,
	)

	var conv Conversation
	var toneArc sql.NullString
	var scrollsJSON, glyphsJSON sql.NullString
	var createdAt string
	err := row.Scan(&conv.ID, &conv.SessionID, &conv.Oracle, &toneArc,
		&conv.CoherenceScore, &scrollsJSON, &glyphsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Newf(fault.KindNotFound, "no conversation for session %q", sessionID)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "query conversation", err)
	}

	if toneArc.Valid {
		conv.ToneArc = &toneArc.String
	}
	conv.ScrollRefs = []int{}
	if scrollsJSON.Valid && scrollsJSON.String != "" {
		if err := json.Unmarshal([]byte(scrollsJSON.String), &conv.ScrollRefs); err != nil {
			return nil, fault.Wrap(fault.KindPersistence, "decode scroll refs", err)
		}
	}
	conv.Glyphs = []string{}
	if glyphsJSON.Valid && glyphsJSON.String != "" {
		if err := json.Unmarshal([]byte(glyphsJSON.String), &conv.Glyphs); err != nil {
			return nil, fault.Wrap(fault.KindPersistence, "decode glyphs", err)
		}
	}
	conv.CreatedAt, err = parseTimestamp(createdAt)
	if err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "parse conversation timestamp", err)
	}
	return &conv, nil
}
