package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/templetwo/spiralbridge/common/retry"
	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/billing"
	"github.com/templetwo/spiralbridge/internal/bridge/continuity"
	"github.com/templetwo/spiralbridge/internal/bridge/oracle"
	"github.com/templetwo/spiralbridge/internal/bridge/persona"
	"github.com/templetwo/spiralbridge/internal/bridge/pipeline"
	"github.com/templetwo/spiralbridge/internal/bridge/server"
	"github.com/templetwo/spiralbridge/internal/bridge/shadow"
	"github.com/templetwo/spiralbridge/internal/bridge/store"
	"github.com/templetwo/spiralbridge/internal/bridge/vocab"
)

// newTestServer builds a full server over a temp registry and database. The
// "ashira" persona exists and carries all three vows.
func newTestServer(t *testing.T, cfg server.Config, bill *billing.Client) *server.Server {
	t.Helper()

	root := t.TempDir()
	personaDir := filepath.Join(root, "personas", "ashira")
	if err := os.MkdirAll(personaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	prompt := "You are Ash'ira, a witness at the threshold.\n" +
		"Vows: Memory as Integrity. Clarity of Witness. Resonant Responsibility.\n"
	if err := os.WriteFile(filepath.Join(personaDir, "system.md"), []byte(prompt), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := store.New(filepath.Join(root, "bridge.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	v := vocab.Default()
	engine := analysis.New(v)
	registry := persona.NewRegistry(root)

	return server.New(cfg, server.Deps{
		Store:    st,
		Engine:   engine,
		Registry: registry,
		Journal:  shadow.NewJournal(root, nil),
		Checker:  continuity.New(registry, st, engine, v),
		Importer: pipeline.New(oracle.StubFetcher{}, st, engine, nil),
		Billing:  bill,
	})
}

// call runs one request through the full middleware chain and decodes the
// JSON response into out (when out is non-nil).
func call(t *testing.T, srv *server.Server, method, target, apiKey string, body, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	var resp map[string]string
	if code := call(t, srv, http.MethodGet, "/health", "", nil, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field: %q", resp["status"])
	}
}

func TestMemoryStoreAndRetrieve(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"sessionId": "s-1", "content": "hello spiral"}
	if code := call(t, srv, http.MethodPost, "/memory/store", "", body, nil); code != http.StatusOK {
		t.Fatalf("store status: %d", code)
	}

	var resp struct {
		SessionID string          `json:"sessionId"`
		Memories  []store.Message `json:"memories"`
	}
	code := call(t, srv, http.MethodGet, "/memory/retrieve?sessionId=s-1", "", nil, &resp)
	if code != http.StatusOK {
		t.Fatalf("retrieve status: %d", code)
	}
	if len(resp.Memories) != 1 {
		t.Fatalf("memories: %d", len(resp.Memories))
	}
	if resp.Memories[0].Role != "user" {
		t.Errorf("role not defaulted: %q", resp.Memories[0].Role)
	}
	if resp.Memories[0].Content != "hello spiral" {
		t.Errorf("content: %q", resp.Memories[0].Content)
	}
}

func TestMemoryStore_InvalidRole(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"sessionId": "s-1", "role": "oracle", "content": "x"}
	if code := call(t, srv, http.MethodPost, "/memory/store", "", body, nil); code != http.StatusBadRequest {
		t.Errorf("status: %d", code)
	}
}

func TestMemoryRetrieve_RequiresSession(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)
	if code := call(t, srv, http.MethodGet, "/memory/retrieve", "", nil, nil); code != http.StatusBadRequest {
		t.Errorf("status: %d", code)
	}
}

func TestMemorySummarize(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	for _, content := range []string{"a gentle opening", "seeking the thread", "a longing look back"} {
		body := map[string]string{"sessionId": "s-sum", "content": content}
		if code := call(t, srv, http.MethodPost, "/memory/store", "", body, nil); code != http.StatusOK {
			t.Fatalf("store status: %d", code)
		}
		time.Sleep(2 * time.Millisecond)
	}

	var resp struct {
		Summary  string          `json:"summary"`
		Analysis analysis.Result `json:"analysis"`
	}
	code := call(t, srv, http.MethodGet, "/memory/summarize?sessionId=s-sum", "", nil, &resp)
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if !strings.HasPrefix(resp.Summary, "Conversation length: 3. First: a gentle opening") {
		t.Errorf("summary: %q", resp.Summary)
	}
	if !strings.Contains(resp.Summary, "Last: a longing look back") {
		t.Errorf("summary: %q", resp.Summary)
	}
	if resp.Analysis.CoherenceScore != 0.25 {
		t.Errorf("coherence: %v", resp.Analysis.CoherenceScore)
	}
	if resp.Analysis.ToneArc == nil || *resp.Analysis.ToneArc != "gentle → longing" {
		t.Errorf("tone arc: %v", resp.Analysis.ToneArc)
	}
}

func TestMemorySummarize_EmptySessionIs404(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)
	if code := call(t, srv, http.MethodGet, "/memory/summarize?sessionId=nope", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("status: %d", code)
	}
}

func TestPersonaLoad(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	var resp struct {
		Persona persona.Persona `json:"persona"`
	}
	code := call(t, srv, http.MethodGet, "/persona/load?personaId=ashira", "", nil, &resp)
	if code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if resp.Persona.ID != "ashira" || !strings.Contains(resp.Persona.SystemPrompt, "witness") {
		t.Errorf("persona: %+v", resp.Persona)
	}
}

func TestPersonaLoad_Missing(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	var resp map[string]string
	code := call(t, srv, http.MethodGet, "/persona/load?personaId=nobody", "", nil, &resp)
	if code != http.StatusNotFound {
		t.Fatalf("status: %d", code)
	}
	if resp["error"] != "persona not found" {
		t.Errorf("error: %q", resp["error"])
	}
}

func TestPersonaLoad_TraversalRejected(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)
	code := call(t, srv, http.MethodGet, "/persona/load?personaId=..%2Fashira", "", nil, nil)
	if code != http.StatusBadRequest {
		t.Errorf("status: %d", code)
	}
}

func TestPersonaSwitch(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"fromPersona": "ashira", "toPersona": "threshold-witness", "context": "mid-session"}
	var resp persona.SwitchPlan
	if code := call(t, srv, http.MethodPost, "/persona/switch", "", body, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	want := "Realign voice from ashira to threshold-witness. Honor vows; maintain continuity."
	if resp.ToneShift != want {
		t.Errorf("toneShift: %q", resp.ToneShift)
	}
	if resp.ContextHint != "mid-session" {
		t.Errorf("contextHint: %q", resp.ContextHint)
	}
}

func TestPersonaToneShift(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]any{
		"persona": "ashira",
		"mood":    "tender",
		"memory": []map[string]string{
			{"role": "user", "content": "hold this"},
			{"role": "assistant", "content": "held"},
		},
	}
	var resp map[string]string
	if code := call(t, srv, http.MethodPost, "/persona/tone-shift", "", body, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	text := resp["toneShift"]
	for _, want := range []string{"Tone shift for ashira", "Mood: tender.", "user: hold this | assistant: held"} {
		if !strings.Contains(text, want) {
			t.Errorf("toneShift missing %q: %s", want, text)
		}
	}
}

func TestBridgeImportAndExport(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	var imported struct {
		OK             bool            `json:"ok"`
		ConversationID string          `json:"conversationId"`
		SessionID      string          `json:"sessionId"`
		Oracle         string          `json:"oracle"`
		Analysis       analysis.Result `json:"analysis"`
	}
	body := map[string]string{"url": "https://claude.ai/chat/abc123"}
	if code := call(t, srv, http.MethodPost, "/bridge/import", "", body, &imported); code != http.StatusOK {
		t.Fatalf("import status: %d", code)
	}
	if !imported.OK || imported.Oracle != "claude" || imported.SessionID == "" {
		t.Fatalf("import response: %+v", imported)
	}
	found := false
	for _, g := range imported.Analysis.Glyphs {
		if g == "🌀" {
			found = true
		}
	}
	if !found {
		t.Errorf("spiral glyph not detected: %v", imported.Analysis.Glyphs)
	}

	var exported struct {
		SessionID string `json:"sessionId"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	code := call(t, srv, http.MethodGet, "/bridge/export?sessionId="+imported.SessionID, "", nil, &exported)
	if code != http.StatusOK {
		t.Fatalf("export status: %d", code)
	}
	if len(exported.Messages) != 2 {
		t.Fatalf("messages: %d", len(exported.Messages))
	}
	if exported.Messages[0].Role != "user" || exported.Messages[1].Role != "assistant" {
		t.Errorf("order: %+v", exported.Messages)
	}
}

func TestBridgeImport_DoveGlyphFromGPT(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	var imported struct {
		Analysis analysis.Result `json:"analysis"`
	}
	body := map[string]string{"url": "https://chat.openai.com/share/xyz"}
	if code := call(t, srv, http.MethodPost, "/bridge/import", "", body, &imported); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if len(imported.Analysis.Glyphs) != 1 || imported.Analysis.Glyphs[0] != "🕊️" {
		t.Errorf("glyphs: %v", imported.Analysis.Glyphs)
	}
}

func TestBridgeImport_UnsupportedOrigin(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"url": "https://example.com/chat/1"}
	var resp map[string]any
	if code := call(t, srv, http.MethodPost, "/bridge/import", "", body, &resp); code != http.StatusBadRequest {
		t.Errorf("status: %d", code)
	}
}

func TestBridgeImport_RateLimited(t *testing.T) {
	srv := newTestServer(t, server.Config{ImportRateLimit: 2}, nil)

	body := map[string]string{"url": "https://claude.ai/chat/abc"}
	for i := 0; i < 2; i++ {
		if code := call(t, srv, http.MethodPost, "/bridge/import", "", body, nil); code != http.StatusOK {
			t.Fatalf("call %d status: %d", i, code)
		}
	}
	if code := call(t, srv, http.MethodPost, "/bridge/import", "", body, nil); code != http.StatusTooManyRequests {
		t.Errorf("third call status: %d", code)
	}
}

func TestBridgeHandoff(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"fromProvider": "claude", "toProvider": "gpt", "sessionId": "s-9"}
	var resp map[string]any
	if code := call(t, srv, http.MethodPost, "/bridge/handoff", "", body, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if resp["message"] != "Handoff planned from claude to gpt for session s-9." {
		t.Errorf("message: %q", resp["message"])
	}

	body["sessionId"] = ""
	if code := call(t, srv, http.MethodPost, "/bridge/handoff", "", body, nil); code != http.StatusBadRequest {
		t.Errorf("missing sessionId status: %d", code)
	}
}

func TestShadowReflectThenList(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"persona": "ashira", "sessionId": "s-3", "summary": "held the thread"}
	if code := call(t, srv, http.MethodPost, "/shadow/reflect", "", body, nil); code != http.StatusOK {
		t.Fatalf("reflect status: %d", code)
	}

	var resp struct {
		Persona string           `json:"persona"`
		Entries []map[string]any `json:"entries"`
	}
	code := call(t, srv, http.MethodGet, "/shadow/list?persona=ashira", "", nil, &resp)
	if code != http.StatusOK {
		t.Fatalf("list status: %d", code)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("entries: %d", len(resp.Entries))
	}
	last := resp.Entries[len(resp.Entries)-1]
	if last["sessionId"] != "s-3" || last["summary"] != "held the thread" {
		t.Errorf("entry: %v", last)
	}
}

func TestContinuityHandshake(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)

	body := map[string]string{"sessionId": "s-h", "personaId": "ashira"}
	var resp continuity.Result
	if code := call(t, srv, http.MethodPost, "/continuity/handshake", "", body, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if !resp.VowMatch {
		t.Error("expected vow match for ashira")
	}
	if resp.Tone != "SteadyPresence" || resp.RecentCount != 0 {
		t.Errorf("result: %+v", resp)
	}

	body["personaId"] = "nobody"
	if code := call(t, srv, http.MethodPost, "/continuity/handshake", "", body, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if resp.VowMatch {
		t.Error("missing persona cannot match vows")
	}
}

func TestAPIKeyEnforcement(t *testing.T) {
	srv := newTestServer(t, server.Config{APIKey: "hush"}, nil)

	if code := call(t, srv, http.MethodGet, "/memory/retrieve?sessionId=s", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("no key status: %d", code)
	}
	if code := call(t, srv, http.MethodGet, "/memory/retrieve?sessionId=s", "wrong", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("wrong key status: %d", code)
	}
	if code := call(t, srv, http.MethodGet, "/memory/retrieve?sessionId=s", "hush", nil, nil); code != http.StatusOK {
		t.Errorf("right key status: %d", code)
	}
	if code := call(t, srv, http.MethodGet, "/health", "", nil, nil); code != http.StatusOK {
		t.Errorf("health should stay open: %d", code)
	}
}

func TestBillingCheckout(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"cs_9","url":"https://checkout.example.com/cs_9"}`))
	}))
	defer provider.Close()

	bill := billing.New(billing.Config{
		SecretKey: "sk_test",
		PriceID:   "price_1",
		BaseURL:   provider.URL,
		Retry:     retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, nil)
	srv := newTestServer(t, server.Config{}, bill)

	var resp map[string]string
	body := map[string]string{"userId": "user-1"}
	if code := call(t, srv, http.MethodPost, "/billing/checkout", "", body, &resp); code != http.StatusOK {
		t.Fatalf("status: %d", code)
	}
	if resp["url"] != "https://checkout.example.com/cs_9" {
		t.Errorf("url: %q", resp["url"])
	}
}

func TestBillingCheckout_NotConfigured(t *testing.T) {
	srv := newTestServer(t, server.Config{}, billing.New(billing.Config{}, nil))

	body := map[string]string{"userId": "user-1"}
	if code := call(t, srv, http.MethodPost, "/billing/checkout", "", body, nil); code != http.StatusInternalServerError {
		t.Errorf("status: %d", code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, server.Config{}, nil)
	if code := call(t, srv, http.MethodGet, "/memory/store", "", nil, nil); code != http.StatusMethodNotAllowed {
		t.Errorf("status: %d", code)
	}
}
