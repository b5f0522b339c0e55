// Package analysis implements the deterministic text heuristics run over a
// conversation: scroll-reference extraction, glyph detection, tone-arc
// labelling, and coherence scoring.
//
// Everything here is pure and I/O-free. The tone arc and coherence score are
// explicit placeholder heuristics driven by message count — they are not
// semantic analysis, and the indexing and saturation rules are part of the
// contract.
package analysis

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/templetwo/spiralbridge/internal/bridge/vocab"
)

// Result is the outcome of a full conversation analysis.
type Result struct {
	// ToneArc is nil when the conversation has fewer than two messages.
	ToneArc *string `json:"toneArc"`
	// ScrollRefs are the unique scroll numbers cited, first-seen order.
	ScrollRefs []int `json:"spiralScrolls"`
	// Glyphs are the configured glyphs present, in vocabulary order.
	Glyphs []string `json:"detectedGlyphs"`
	// CoherenceScore is in [0.0, 1.0], rounded to two decimals.
	CoherenceScore float64 `json:"coherenceScore"`
}

// scrollPattern matches citations of the form "Scroll 177", case-insensitive.
var scrollPattern = regexp.MustCompile(`(?i)scroll\s+(\d+)`)

// Engine runs the heuristics against a configured vocabulary.
// The zero value is not usable; construct with New.
type Engine struct {
	vocab vocab.Vocabulary
}

// New creates an Engine using the given vocabulary.
func New(v vocab.Vocabulary) *Engine {
	return &Engine{vocab: v}
}

// ExtractScrollReferences scans text for "Scroll <integer>" citations and
// returns the unique numbers in first-seen order.
func (e *Engine) ExtractScrollReferences(text string) []int {
	matches := scrollPattern.FindAllStringSubmatch(text, -1)
	refs := make([]int, 0, len(matches))
	seen := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// Digits that overflow int are not a scroll number anyone cites.
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		refs = append(refs, n)
	}
	return refs
}

// DetectGlyphs returns the subset of the configured glyph set present
// anywhere in text, preserving the vocabulary's declared order. The scan is
// idempotent and order-stable.
func (e *Engine) DetectGlyphs(text string) []string {
	found := make([]string, 0, len(e.vocab.Glyphs))
	for _, glyph := range e.vocab.Glyphs {
		if strings.Contains(text, glyph) {
			found = append(found, glyph)
		}
	}
	return found
}

// DetectToneArc labels the presumed tone progression of a conversation with
// messageCount turns. Returns nil for fewer than two messages; otherwise
// "<first> → <tone at min(messageCount-1, len-1)>". The clamped index is
// part of the contract.
func (e *Engine) DetectToneArc(messageCount int) *string {
	if messageCount < 2 {
		return nil
	}
	tones := e.vocab.Tones
	idx := messageCount - 1
	if idx > len(tones)-1 {
		idx = len(tones) - 1
	}
	arc := fmt.Sprintf("%s → %s", tones[0], tones[idx])
	return &arc
}

// CalculateCoherence scores a conversation with messageCount turns.
// Returns 0.1 for fewer than two messages, otherwise
// min(0.95, 0.1 + 0.05×messageCount) rounded to two decimals. The score
// saturates at exactly 0.95 regardless of conversation length.
func (e *Engine) CalculateCoherence(messageCount int) float64 {
	if messageCount < 2 {
		return 0.1
	}
	score := math.Min(0.95, 0.1+0.05*float64(messageCount))
	return math.Round(score*100) / 100
}

// ClassifyTone scans text against the vocabulary's keyword groups in
// priority order and returns the first matching group's label, or the
// default tone when nothing matches. Matching is case-insensitive.
func (e *Engine) ClassifyTone(text string) string {
	lower := strings.ToLower(text)
	for _, group := range e.vocab.ToneGroups {
		for _, kw := range group.Keywords {
			if strings.Contains(lower, kw) {
				return group.Label
			}
		}
	}
	return e.vocab.DefaultTone
}

// Analyze runs the full heuristic suite over the ordered message contents
// (oldest first). The contents are concatenated with newline separators for
// the text scans. Analyze never fails — empty input degrades to an empty
// result with the minimum coherence score.
func (e *Engine) Analyze(contents []string) Result {
	fullText := strings.Join(contents, "\n")
	return Result{
		ToneArc:        e.DetectToneArc(len(contents)),
		ScrollRefs:     e.ExtractScrollReferences(fullText),
		Glyphs:         e.DetectGlyphs(fullText),
		CoherenceScore: e.CalculateCoherence(len(contents)),
	}
}
