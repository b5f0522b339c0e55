// Package pipeline orchestrates the conversation import: fetch an external
// conversation, persist it, analyze it, and write the analysis back.
//
// The pipeline is a linear state machine with no branching recovery:
//
//	Fetching → Persisting → Analyzing → Updating → Done
//
// Any error moves it to Failed. The persist step is a single transaction, so
// a failed import leaves nothing visible to readers. The analyze and update
// steps run after that transaction; a reader between them sees the
// conversation without analysis fields, which is acceptable. There is no
// automatic retry, and re-importing the same URL always creates a new
// conversation under a fresh session.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/templetwo/spiralbridge/common/trace"
	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/oracle"
	"github.com/templetwo/spiralbridge/internal/bridge/store"
)

// State names the pipeline's position, used in logs and failure reports.
type State string

const (
	StateFetching   State = "fetching"
	StatePersisting State = "persisting"
	StateAnalyzing  State = "analyzing"
	StateUpdating   State = "updating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	ImportConversation(ctx context.Context, conv store.Conversation, msgs []store.Message) error
	RetrieveAscending(ctx context.Context, sessionID string) ([]store.Message, error)
	UpdateAnalysis(ctx context.Context, conversationID string, res analysis.Result) error
}

// Result is returned by a completed import.
type Result struct {
	ConversationID string          `json:"conversationId"`
	SessionID      string          `json:"sessionId"`
	Oracle         string          `json:"oracle"`
	Analysis       analysis.Result `json:"analysis"`
}

// Importer runs the import pipeline.
type Importer struct {
	fetcher oracle.Fetcher
	store   Store
	engine  *analysis.Engine
	logger  *slog.Logger
}

// New creates an Importer. If logger is nil, the default slog logger is used.
func New(fetcher oracle.Fetcher, st Store, engine *analysis.Engine, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{fetcher: fetcher, store: st, engine: engine, logger: logger}
}

// Run imports the conversation at rawURL. Errors from any state are logged
// once at this boundary with the state they occurred in, and returned to the
// caller carrying their classification.
func (imp *Importer) Run(ctx context.Context, rawURL string) (*Result, error) {
	result, state, err := imp.run(ctx, rawURL)
	if err != nil {
		imp.logger.Error("import pipeline failed",
			"state", string(state), "url", rawURL,
			"trace_id", trace.FromContext(ctx), "err", err)
		return nil, err
	}
	imp.logger.Info("import pipeline done",
		"conversation_id", result.ConversationID,
		"session_id", result.SessionID,
		"oracle", result.Oracle,
		"trace_id", trace.FromContext(ctx))
	return result, nil
}

func (imp *Importer) run(ctx context.Context, rawURL string) (*Result, State, error) {
	// Fetching
	if err := oracle.ValidateURL(rawURL); err != nil {
		return nil, StateFailed, err
	}
	conv, err := imp.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, StateFetching, err
	}

	// Persisting: one conversation plus all its messages, atomically.
	sessionID := uuid.New().String()
	record := store.Conversation{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Oracle:    conv.Oracle,
		CreatedAt: time.Now().UTC(),
	}
	msgs := make([]store.Message, 0, len(conv.Messages))
	base := time.Now().UTC()
	for i, m := range conv.Messages {
		msgs = append(msgs, store.Message{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Role:      m.Role,
			Content:   m.Content,
			// Spread timestamps so insertion order and creation order agree.
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if err := imp.store.ImportConversation(ctx, record, msgs); err != nil {
		return nil, StatePersisting, err
	}

	// Analyzing: run over the just-persisted history in reading order.
	persisted, err := imp.store.RetrieveAscending(ctx, sessionID)
	if err != nil {
		return nil, StateAnalyzing, fmt.Errorf("reload persisted messages: %w", err)
	}
	contents := make([]string, 0, len(persisted))
	for _, m := range persisted {
		contents = append(contents, m.Content)
	}
	res := imp.engine.Analyze(contents)

	// Updating
	if err := imp.store.UpdateAnalysis(ctx, record.ID, res); err != nil {
		return nil, StateUpdating, err
	}

	return &Result{
		ConversationID: record.ID,
		SessionID:      sessionID,
		Oracle:         conv.Oracle,
		Analysis:       res,
	}, StateDone, nil
}
