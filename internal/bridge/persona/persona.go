// Package persona loads persona profiles from a file-based registry and
// generates the switch / tone-shift texts used when handing a session from
// one persona to another.
//
// Each persona lives in a named subdirectory of the registry's "personas"
// directory and must contain a system.md file with its system prompt:
//
//	personas/ashira/system.md
//	personas/threshold-witness/system.md
//
// Existence is determined solely by the presence of the backing file; there
// is no in-memory registry that persists across requests, and this service
// never creates or mutates personas.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
)

// maxAscent bounds the registry-root search: at most this many parent
// directories are examined before falling back to the start directory.
// Callers rely on the search being deterministic and exception-free.
const maxAscent = 6

// maxContextHint caps the context hint carried through a persona switch.
const maxContextHint = 240

// identPattern is the restricted token grammar for persona identifiers.
// Anything else is rejected before it reaches the filesystem, closing the
// path-traversal gap a raw identifier would open.
var identPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Persona is a named behavioural profile.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
}

// MemoryEntry is one recent conversational turn passed to ToneShiftText.
type MemoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SwitchPlan is the result of planning a persona switch.
type SwitchPlan struct {
	FromPersona string `json:"fromPersona"`
	ToPersona   string `json:"toPersona"`
	ToneShift   string `json:"toneShift"`
	ContextHint string `json:"contextHint,omitempty"`
}

// ValidateID checks a persona identifier against the restricted token
// grammar (alphanumeric plus hyphen).
func ValidateID(id string) error {
	if id == "" {
		return fault.New(fault.KindValidation, "persona id required")
	}
	if !identPattern.MatchString(id) {
		return fault.Newf(fault.KindValidation, "persona id %q must contain only letters, digits, and hyphens", id)
	}
	return nil
}

// FindRegistryRoot ascends from startDir looking for a directory literally
// named "personas", examining at most maxAscent ancestors. It returns the
// first ancestor containing one, or startDir when none is found within the
// bound. The result is always usable — the function never errors.
func FindRegistryRoot(startDir string) string {
	dir := startDir
	for i := 0; i < maxAscent; i++ {
		if info, err := os.Stat(filepath.Join(dir, "personas")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return startDir
}

// Registry resolves personas under a registry root directory.
type Registry struct {
	root string
}

// NewRegistry creates a Registry rooted at root. When root is empty the
// registry root is discovered by ascending from the working directory.
func NewRegistry(root string) *Registry {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		root = FindRegistryRoot(wd)
	}
	return &Registry{root: root}
}

// Root returns the resolved registry root directory.
func (r *Registry) Root() string { return r.root }

// Load reads the named persona's system prompt. Returns a not-found error
// when the backing file is absent or unreadable.
func (r *Registry) Load(personaID string) (*Persona, error) {
	if err := ValidateID(personaID); err != nil {
		return nil, err
	}

	systemPath := filepath.Join(r.root, "personas", personaID, "system.md")
	data, err := os.ReadFile(systemPath)
	if err != nil {
		return nil, fault.New(fault.KindNotFound, "persona not found")
	}
	return &Persona{
		ID:           personaID,
		Name:         personaID,
		SystemPrompt: string(data),
	}, nil
}

// PlanSwitch generates the transition text for moving a session from one
// persona to another. Pure string templating — no file access. The context
// hint, when present, is truncated to maxContextHint bytes.
func PlanSwitch(fromPersona, toPersona, contextHint string) SwitchPlan {
	if len(contextHint) > maxContextHint {
		contextHint = contextHint[:maxContextHint]
	}
	return SwitchPlan{
		FromPersona: fromPersona,
		ToPersona:   toPersona,
		ToneShift:   fmt.Sprintf("Realign voice from %s to %s. Honor vows; maintain continuity.", fromPersona, toPersona),
		ContextHint: contextHint,
	}
}

// ToneShiftText generates a tone-shift instruction for a persona using at
// most the last three recent memory entries. Pure string templating.
func ToneShiftText(personaID string, recentMemory []MemoryEntry, mood string) string {
	if len(recentMemory) > 3 {
		recentMemory = recentMemory[len(recentMemory)-3:]
	}
	parts := make([]string, 0, len(recentMemory))
	for _, m := range recentMemory {
		parts = append(parts, m.Role+": "+m.Content)
	}
	recent := strings.Join(parts, " | ")

	moodClause := ""
	if mood != "" {
		moodClause = " Mood: " + mood + "."
	}
	return fmt.Sprintf("Tone shift for %s: soften edges, sustain witness, remember thread.%s Recent: %s",
		personaID, moodClause, recent)
}
