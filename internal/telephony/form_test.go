package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newFormRequest(t *testing.T, path string, values url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseIncomingForm(t *testing.T) {
	r := newFormRequest(t, "/webhooks/voice/incoming", url.Values{
		"CallSid": {"CA123"},
		"From":    {"+15551234567"},
		"To":      {"+15557654321"},
	})
	f, err := ParseIncomingForm(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.CallSid != "CA123" || f.From != "+15551234567" || f.To != "+15557654321" {
		t.Fatalf("unexpected form %+v", f)
	}
}

func TestParseIncomingForm_RequiresCallSid(t *testing.T) {
	r := newFormRequest(t, "/webhooks/voice/incoming", url.Values{"From": {"+1555"}, "To": {"+1666"}})
	if _, err := ParseIncomingForm(r); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseSpeechForm_LenientNumerics(t *testing.T) {
	cases := []struct {
		name       string
		confidence string
		timestamp  string
		wantConf   float64
		wantTS     int64
	}{
		{"valid", "0.92", "1700000000123", 0.92, 1700000000123},
		{"non-numeric confidence", "high", "42", 0.0, 42},
		{"negative confidence", "-0.5", "42", 0.0, 42},
		{"confidence above one", "1.5", "42", 0.0, 42},
		{"bad timestamp", "0.5", "soon", 0.5, 0},
		{"all empty", "", "", 0.0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newFormRequest(t, "/webhooks/voice/speech", url.Values{
				"CallSid":      {"CA1"},
				"SpeechResult": {"book a demo"},
				"Confidence":   {tc.confidence},
				"Timestamp":    {tc.timestamp},
				"Final":        {"true"},
				"Track":        {"Inbound"},
			})
			tr, err := ParseSpeechForm(r)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tr.Confidence != tc.wantConf {
				t.Fatalf("confidence = %v, want %v", tr.Confidence, tc.wantConf)
			}
			if tr.Timestamp != tc.wantTS {
				t.Fatalf("timestamp = %v, want %v", tr.Timestamp, tc.wantTS)
			}
			if !tr.IsFinal {
				t.Fatalf("expected final")
			}
			if tr.Track != "inbound" {
				t.Fatalf("track = %q", tr.Track)
			}
		})
	}
}

func TestParseSpeechForm_FinalityAndUnknownTrack(t *testing.T) {
	r := newFormRequest(t, "/webhooks/voice/speech", url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"hello"},
		"Final":        {"TRUE"}, // only the literal "true" counts
		"Track":        {"both_tracks"},
	})
	tr, err := ParseSpeechForm(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if tr.IsFinal {
		t.Fatalf("expected non-final for %q", "TRUE")
	}
	if tr.Track != "both_tracks" {
		t.Fatalf("unknown track must be preserved, got %q", tr.Track)
	}
}

func TestParseVoicemailForm_RequiresRecordingURL(t *testing.T) {
	r := newFormRequest(t, "/webhooks/voice/voicemail", url.Values{"CallSid": {"CA1"}})
	if _, err := ParseVoicemailForm(r); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseStatusForm(t *testing.T) {
	r := newFormRequest(t, "/webhooks/voice/status", url.Values{
		"CallSid":    {"CA1"},
		"CallStatus": {"in-progress"},
	})
	f, err := ParseStatusForm(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.CallStatus != "in-progress" {
		t.Fatalf("unexpected form %+v", f)
	}
}
