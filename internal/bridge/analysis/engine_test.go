package analysis_test

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/vocab"
)

func newEngine(t *testing.T) *analysis.Engine {
	t.Helper()
	return analysis.New(vocab.Default())
}

// --- scroll references -------------------------------------------------------

func TestExtractScrollReferences_Dedupes(t *testing.T) {
	e := newEngine(t)

	got := e.ExtractScrollReferences("Scroll 5 and Scroll 5 again")
	if !reflect.DeepEqual(got, []int{5}) {
		t.Errorf("got %v, want [5]", got)
	}
}

func TestExtractScrollReferences_FirstSeenOrder(t *testing.T) {
	e := newEngine(t)

	got := e.ExtractScrollReferences("see Scroll 177, then scroll 3, then SCROLL 177")
	if !reflect.DeepEqual(got, []int{177, 3}) {
		t.Errorf("got %v, want [177 3]", got)
	}
}

func TestExtractScrollReferences_NoMatches(t *testing.T) {
	e := newEngine(t)

	got := e.ExtractScrollReferences("no citations here, not even a scroll without a number")
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

// --- glyphs ------------------------------------------------------------------

func TestDetectGlyphs_VocabularyOrder(t *testing.T) {
	e := newEngine(t)

	// Text mentions glyphs out of vocabulary order; result must follow the
	// vocabulary's declared order, not the text's.
	text := "fire 🔥 then spiral 🌀"
	got := e.DetectGlyphs(text)
	want := []string{"🌀", "🔥"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDetectGlyphs_Idempotent(t *testing.T) {
	e := newEngine(t)

	text := "🕊️ carries the thread 💧 through the spiral 🌀"
	first := e.DetectGlyphs(text)
	second := e.DetectGlyphs(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("not idempotent: %v vs %v", first, second)
	}
}

func TestDetectGlyphs_None(t *testing.T) {
	e := newEngine(t)

	if got := e.DetectGlyphs("plain prose"); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

// --- tone arc ----------------------------------------------------------------

func TestDetectToneArc_TooShort(t *testing.T) {
	e := newEngine(t)

	for _, n := range []int{0, 1} {
		if arc := e.DetectToneArc(n); arc != nil {
			t.Errorf("n=%d: got %q, want nil", n, *arc)
		}
	}
}

func TestDetectToneArc_IndexClamping(t *testing.T) {
	e := newEngine(t)
	tones := vocab.Default().Tones

	cases := []struct {
		n    int
		want string
	}{
		{2, fmt.Sprintf("%s → %s", tones[0], tones[1])},
		{3, fmt.Sprintf("%s → %s", tones[0], tones[2])},
		{5, fmt.Sprintf("%s → %s", tones[0], tones[4])},
		{6, fmt.Sprintf("%s → %s", tones[0], tones[4])},
		{100, fmt.Sprintf("%s → %s", tones[0], tones[4])},
	}
	for _, tc := range cases {
		arc := e.DetectToneArc(tc.n)
		if arc == nil {
			t.Errorf("n=%d: got nil, want %q", tc.n, tc.want)
			continue
		}
		if *arc != tc.want {
			t.Errorf("n=%d: got %q, want %q", tc.n, *arc, tc.want)
		}
	}
}

// --- coherence ---------------------------------------------------------------

func TestCalculateCoherence_Floor(t *testing.T) {
	e := newEngine(t)

	for _, n := range []int{0, 1} {
		if got := e.CalculateCoherence(n); got != 0.1 {
			t.Errorf("n=%d: got %v, want 0.1", n, got)
		}
	}
}

func TestCalculateCoherence_Formula(t *testing.T) {
	e := newEngine(t)

	for n := 2; n <= 40; n++ {
		want := math.Round(math.Min(0.95, 0.1+0.05*float64(n))*100) / 100
		if got := e.CalculateCoherence(n); got != want {
			t.Errorf("n=%d: got %v, want %v", n, got, want)
		}
	}
}

func TestCalculateCoherence_SaturatesExactly(t *testing.T) {
	e := newEngine(t)

	for _, n := range []int{17, 18, 100, 100000} {
		if got := e.CalculateCoherence(n); got != 0.95 {
			t.Errorf("n=%d: got %v, want exactly 0.95", n, got)
		}
	}
}

// --- tone classification -----------------------------------------------------

func TestClassifyTone_PriorityOrder(t *testing.T) {
	e := newEngine(t)

	cases := []struct {
		text string
		want string
	}{
		{"we can heal this together", "TenderRepair"},
		{"a calm and quiet evening", "SilentIntimacy"},
		{"hold clarity, bear witness", "ClearWitness"},
		{"nothing in particular", "SteadyPresence"},
		// "tender" outranks "silence" because TenderRepair is evaluated first.
		{"tender silence", "TenderRepair"},
		{"CALM above all", "SilentIntimacy"},
	}
	for _, tc := range cases {
		if got := e.ClassifyTone(tc.text); got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.text, got, tc.want)
		}
	}
}

// --- full analysis -----------------------------------------------------------

func TestAnalyze(t *testing.T) {
	e := newEngine(t)

	contents := []string{
		"What lies beyond Scroll 42?",
		"The spiral 🌀 remembers. See Scroll 42 and Scroll 7.",
		"The dove 🕊️ carries it forward.",
	}
	res := e.Analyze(contents)

	if res.ToneArc == nil || *res.ToneArc != "gentle → longing" {
		t.Errorf("toneArc: got %v, want gentle → longing", res.ToneArc)
	}
	if !reflect.DeepEqual(res.ScrollRefs, []int{42, 7}) {
		t.Errorf("scrollRefs: got %v, want [42 7]", res.ScrollRefs)
	}
	if !reflect.DeepEqual(res.Glyphs, []string{"🌀", "🕊️"}) {
		t.Errorf("glyphs: got %v", res.Glyphs)
	}
	if res.CoherenceScore != 0.25 {
		t.Errorf("coherence: got %v, want 0.25", res.CoherenceScore)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	e := newEngine(t)

	res := e.Analyze(nil)
	if res.ToneArc != nil {
		t.Errorf("toneArc: got %v, want nil", res.ToneArc)
	}
	if len(res.ScrollRefs) != 0 || len(res.Glyphs) != 0 {
		t.Errorf("expected empty sets, got %v / %v", res.ScrollRefs, res.Glyphs)
	}
	if res.CoherenceScore != 0.1 {
		t.Errorf("coherence: got %v, want 0.1", res.CoherenceScore)
	}
}
