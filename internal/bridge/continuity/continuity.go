// Package continuity implements the handshake that checks whether a persona
// still carries its vows and how a session's recent tone reads.
package continuity

import (
	"context"
	"strings"

	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/persona"
	"github.com/templetwo/spiralbridge/internal/bridge/store"
	"github.com/templetwo/spiralbridge/internal/bridge/vocab"
)

// recentWindow is how many of the session's most recent messages are scanned
// for tone classification.
const recentWindow = 10

// Result is the handshake outcome.
type Result struct {
	// VowMatch is true only when every configured vow phrase appears
	// verbatim in the persona's system prompt.
	VowMatch bool `json:"vowMatch"`
	// Tone is the classified tone of the session's recent messages.
	Tone string `json:"tone"`
	// RecentCount is how many recent messages were considered.
	RecentCount int `json:"recentCount"`
}

// MessageSource is the read surface the handshake needs from the store.
type MessageSource interface {
	Retrieve(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
}

// Checker performs continuity handshakes.
type Checker struct {
	registry *persona.Registry
	source   MessageSource
	engine   *analysis.Engine
	vows     []string
}

// New creates a Checker. The vow phrases come from the vocabulary, not code.
func New(registry *persona.Registry, source MessageSource, engine *analysis.Engine, v vocab.Vocabulary) *Checker {
	return &Checker{
		registry: registry,
		source:   source,
		engine:   engine,
		vows:     v.Vows,
	}
}

// Handshake loads the persona's system prompt, verifies the vow phrases, and
// classifies the tone of the session's recent messages. A persona whose
// backing file is missing is not an error — it simply cannot match its vows.
// An invalid persona identifier is a validation error.
func (c *Checker) Handshake(ctx context.Context, sessionID, personaID string) (*Result, error) {
	if err := persona.ValidateID(personaID); err != nil {
		return nil, err
	}

	vowMatch := false
	if p, err := c.registry.Load(personaID); err == nil {
		vowMatch = true
		for _, vow := range c.vows {
			if !strings.Contains(p.SystemPrompt, vow) {
				vowMatch = false
				break
			}
		}
	}

	recent, err := c.source.Retrieve(ctx, sessionID, recentWindow)
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(recent))
	for _, m := range recent {
		contents = append(contents, m.Content)
	}
	tone := c.engine.ClassifyTone(strings.Join(contents, "\n"))

	return &Result{
		VowMatch:    vowMatch,
		Tone:        tone,
		RecentCount: len(recent),
	}, nil
}
