package telephony

import (
	"strings"
	"testing"

	"agentsflow-voice/internal/callsession"
)

func TestRenderTwiML_SayThenRedirect(t *testing.T) {
	out, err := RenderTwiML(callsession.Action{
		Kind:         callsession.ActionSayThenRedirect,
		Text:         "I didn't catch that, please repeat.",
		RedirectPath: "/webhooks/voice/analyze",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(out, "<Say>I didn&#39;t catch that, please repeat.</Say>") {
		t.Fatalf("missing say verb: %s", out)
	}
	if !strings.Contains(out, `<Redirect method="POST">/webhooks/voice/analyze</Redirect>`) {
		t.Fatalf("missing redirect verb: %s", out)
	}
}

func TestRenderTwiML_SayThenHangup(t *testing.T) {
	out, err := RenderTwiML(callsession.Action{
		Kind: callsession.ActionSayThenHangup,
		Text: "Sure, let's schedule it",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	sayIdx := strings.Index(out, "<Say>")
	hangupIdx := strings.Index(out, "<Hangup>")
	if sayIdx < 0 || hangupIdx < 0 || hangupIdx < sayIdx {
		t.Fatalf("expected say followed by hangup: %s", out)
	}
}

func TestRenderTwiML_Record(t *testing.T) {
	out, err := RenderTwiML(callsession.Action{
		Kind:         callsession.ActionRecord,
		Text:         "Please leave a message after the tone.",
		RedirectPath: "/webhooks/voice/voicemail",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(out, `<Record action="/webhooks/voice/voicemail"`) {
		t.Fatalf("missing record verb: %s", out)
	}
	if !strings.Contains(out, `transcribe="true"`) {
		t.Fatalf("expected transcription enabled: %s", out)
	}
}

func TestRenderTwiML_EscapesMarkupInText(t *testing.T) {
	// Sanitization strips angle brackets from caller text, but system prompt
	// copy goes through the encoder too and must be escaped regardless.
	out, err := RenderTwiML(callsession.Action{
		Kind: callsession.ActionSay,
		Text: `press "1" & say <stop>`,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if strings.Contains(out, "<stop>") {
		t.Fatalf("unescaped markup leaked: %s", out)
	}
	if !strings.Contains(out, "&lt;stop&gt;") || !strings.Contains(out, "&amp;") {
		t.Fatalf("expected escaped entities: %s", out)
	}
}

func TestRenderTwiML_RedirectRequiresPath(t *testing.T) {
	if _, err := RenderTwiML(callsession.Action{Kind: callsession.ActionSayThenRedirect, Text: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderTwiMLOrFallback_NeverFails(t *testing.T) {
	out := RenderTwiMLOrFallback(callsession.Action{Kind: callsession.ActionKind("bogus")})
	if !strings.Contains(out, "technical difficulty") {
		t.Fatalf("expected fallback document, got %s", out)
	}
	if !strings.Contains(out, "<Hangup>") {
		t.Fatalf("fallback must hang up: %s", out)
	}
}
