package oracle_test

import (
	"context"
	"strings"
	"testing"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
	"github.com/templetwo/spiralbridge/internal/bridge/oracle"
)

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://claude.ai/share/abc123",
		"http://chat.openai.com/c/xyz",
	}
	for _, u := range valid {
		if err := oracle.ValidateURL(u); err != nil {
			t.Errorf("%q: unexpected error %v", u, err)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://claude.ai/share/abc",
		"/relative/path",
		"claude.ai/share/abc",
	}
	for _, u := range invalid {
		if err := oracle.ValidateURL(u); !fault.IsValidation(err) {
			t.Errorf("%q: expected validation error, got %v", u, err)
		}
	}
}

func TestStubFetcher_Classification(t *testing.T) {
	f := oracle.StubFetcher{}
	ctx := context.Background()

	cases := []struct {
		url    string
		oracle string
	}{
		{"https://claude.ai/share/abc", oracle.OracleClaude},
		{"https://chat.openai.com/c/xyz", oracle.OracleGPT},
		{"https://gemini.google.com/app/123", oracle.OracleGemini},
	}
	for _, tc := range cases {
		conv, err := f.Fetch(ctx, tc.url)
		if err != nil {
			t.Fatalf("%s: %v", tc.url, err)
		}
		if conv.Oracle != tc.oracle {
			t.Errorf("%s: oracle got %q, want %q", tc.url, conv.Oracle, tc.oracle)
		}
		if len(conv.Messages) != 2 {
			t.Errorf("%s: expected 2 messages, got %d", tc.url, len(conv.Messages))
		}
		if conv.Messages[0].Role != "user" || conv.Messages[1].Role != "assistant" {
			t.Errorf("%s: role ordering wrong", tc.url)
		}
	}
}

func TestStubFetcher_GPTPayloadCarriesDoveGlyph(t *testing.T) {
	conv, err := oracle.StubFetcher{}.Fetch(context.Background(), "https://chat.openai.com/c/1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(conv.Messages[1].Content, "🕊️") {
		t.Errorf("dove glyph missing from payload: %q", conv.Messages[1].Content)
	}
}

func TestStubFetcher_UnsupportedOrigin(t *testing.T) {
	_, err := oracle.StubFetcher{}.Fetch(context.Background(), "https://example.com/conversation/1")
	if fault.KindOf(err) != fault.KindUnsupportedSource {
		t.Fatalf("expected unsupported-source error, got %v", err)
	}
}
