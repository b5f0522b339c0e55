// Package shadow maintains the per-persona reflection journals: append-only
// JSON-lines files holding session summaries.
//
// Layout (relative to the registry root):
//
//	.spiral/shadows/<persona>/shadow.jsonl
//
// Entries are only ever appended, as complete newline-terminated records.
// Journals for distinct personas are independent files, so concurrent
// reflections against different personas never contend.
package shadow

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
	"github.com/templetwo/spiralbridge/internal/bridge/persona"
)

// DefaultLimit is the number of entries List returns when the caller does
// not specify one.
const DefaultLimit = 50

// Entry is one reflection record as written by Reflect.
type Entry struct {
	SessionID string `json:"sessionId"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"createdAt"`
}

// Journal reads and appends persona shadow files under a registry root.
type Journal struct {
	root   string
	logger *slog.Logger
}

// NewJournal creates a Journal rooted at the registry root directory.
// If logger is nil, the default slog logger is used.
func NewJournal(root string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{root: root, logger: logger}
}

// path returns the journal file for a persona.
func (j *Journal) path(personaID string) string {
	return filepath.Join(j.root, ".spiral", "shadows", personaID, "shadow.jsonl")
}

// List returns up to the last limit journal entries for a persona, oldest of
// the window first. Malformed lines degrade to {"text": rawLine} rather than
// failing the whole read. An absent journal yields an empty list.
func (j *Journal) List(personaID string, limit int) ([]map[string]any, error) {
	if err := persona.ValidateID(personaID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	data, err := os.ReadFile(j.path(personaID))
	if os.IsNotExist(err) {
		return []map[string]any{}, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "read shadow journal", err)
	}

	lines := strings.FieldsFunc(string(data), func(r rune) bool { return r == '\n' || r == '\r' })
	nonEmpty := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) > limit {
		nonEmpty = nonEmpty[len(nonEmpty)-limit:]
	}

	entries := make([]map[string]any, 0, len(nonEmpty))
	for _, line := range nonEmpty {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			j.logger.Warn("shadow: malformed journal line, keeping raw text",
				"persona", personaID, "err", err)
			record = map[string]any{"text": line}
		}
		entries = append(entries, record)
	}
	return entries, nil
}

// Reflect appends one reflection record with a server-generated timestamp,
// creating the persona's journal directory if absent. The record is written
// as a single newline-terminated line; prior entries are never truncated or
// reordered.
func (j *Journal) Reflect(personaID, sessionID, summary string) (*Entry, error) {
	if err := persona.ValidateID(personaID); err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, fault.New(fault.KindValidation, "sessionId required")
	}
	if summary == "" {
		return nil, fault.New(fault.KindValidation, "summary required")
	}

	entry := Entry{
		SessionID: sessionID,
		Summary:   summary,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "encode shadow entry", err)
	}

	file := j.path(personaID)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "create shadow directory", err)
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "open shadow journal", err)
	}
	defer f.Close()

	// One Write call for the whole record keeps O_APPEND writes intact.
	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fault.Wrap(fault.KindPersistence, "append shadow entry", err)
	}
	return &entry, nil
}
