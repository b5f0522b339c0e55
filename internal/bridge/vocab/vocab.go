// Package vocab holds the analysis vocabulary — the glyph set, tone
// vocabulary, vow phrases, and tone keyword groups — as configuration data
// rather than code constants. The values are domain content: nothing in the
// analysis algorithms depends on what the five glyphs actually are.
//
// A built-in default vocabulary ships with the binary; operators may override
// it with a YAML document, which is validated against an embedded JSON Schema
// before use.
package vocab

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// ToneGroup is one prioritized keyword group for tone classification.
// Groups are evaluated in declaration order; the first group with any
// keyword present in the scanned text wins.
type ToneGroup struct {
	Label    string   `yaml:"label" json:"label"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Vocabulary is the full set of domain constants used by the analysis
// engine and the continuity handshake.
type Vocabulary struct {
	// Glyphs is the fixed five-symbol set scanned for in message text.
	// Declaration order is the order detected glyphs are reported in.
	Glyphs []string `yaml:"glyphs" json:"glyphs"`

	// Tones is the fixed five-element tone vocabulary indexed by
	// conversation length when building a tone arc.
	Tones []string `yaml:"tones" json:"tones"`

	// Vows are the three phrases that must appear verbatim in a persona's
	// system prompt for the continuity handshake to report vowMatch.
	Vows []string `yaml:"vows" json:"vows"`

	// ToneGroups are evaluated in order during tone classification.
	ToneGroups []ToneGroup `yaml:"toneGroups" json:"toneGroups"`

	// DefaultTone is reported when no keyword group matches.
	DefaultTone string `yaml:"defaultTone" json:"defaultTone"`
}

// Default returns the built-in vocabulary.
func Default() Vocabulary {
	return Vocabulary{
		Glyphs: []string{"🌀", "💧", "🔥", "🕊️", "⟡"},
		Tones:  []string{"gentle", "seeking", "longing", "understanding", "acceptance"},
		Vows: []string{
			"Memory as Integrity",
			"Clarity of Witness",
			"Resonant Responsibility",
		},
		ToneGroups: []ToneGroup{
			{Label: "TenderRepair", Keywords: []string{"heal", "tender", "repair", "soothe"}},
			{Label: "SilentIntimacy", Keywords: []string{"calm", "quiet", "silence", "soft"}},
			{Label: "ClearWitness", Keywords: []string{"clarity", "witness", "focus"}},
		},
		DefaultTone: "SteadyPresence",
	}
}

// Parse decodes a YAML vocabulary document, validates it against the
// embedded schema, and returns the typed Vocabulary.
func Parse(data []byte) (Vocabulary, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Vocabulary{}, fmt.Errorf("vocab parse: %w", err)
	}

	// The schema validator expects JSON-shaped values, so round-trip the
	// YAML document through encoding/json before validating.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("vocab parse: convert to json: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return Vocabulary{}, fmt.Errorf("vocab parse: decode json: %w", err)
	}

	schema, err := jsonschema.CompileString("vocab/schema.json", schemaJSON)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("vocab parse: compile schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Vocabulary{}, fmt.Errorf("vocab parse: invalid vocabulary: %w", err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("vocab parse: %w", err)
	}
	return v, nil
}

// Load reads and parses a vocabulary override file.
func Load(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("vocab load %q: %w", path, err)
	}
	return Parse(data)
}
