package callsession

import (
	"strings"
	"testing"

	"agentsflow-voice/internal/generator"
)

func TestSanitizeText_StripsAngleBrackets(t *testing.T) {
	cases := map[string]string{
		"<script>alert(1)</script>": "scriptalert(1)/script",
		"book a demo":               "book a demo",
		"":                          "",
		"a < b > c":                 "a  b  c",
		"héllo <wörld>":             "héllo wörld",
	}
	for in, want := range cases {
		got := SanitizeText(in)
		if got != want {
			t.Fatalf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
		if strings.ContainsAny(got, "<>") {
			t.Fatalf("output %q still contains angle brackets", got)
		}
	}
}

func TestSanitizeMessages_CleansContentOnly(t *testing.T) {
	in := []generator.Message{
		{Role: "user", Content: "<b>hi</b>"},
		{Role: "assistant", Content: "plain"},
	}
	out := SanitizeMessages(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Content != "bhi/b" || out[0].Role != "user" {
		t.Fatalf("unexpected first message %+v", out[0])
	}
	if out[1].Content != "plain" {
		t.Fatalf("unexpected second message %+v", out[1])
	}
	// input untouched
	if in[0].Content != "<b>hi</b>" {
		t.Fatalf("input was mutated: %q", in[0].Content)
	}

	if SanitizeMessages(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
