package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"agentsflow-voice/internal/callsession"
)

// Webhook bodies arrive as application/x-www-form-urlencoded. Each webhook
// kind gets an explicit typed schema parsed at the boundary; handlers never
// read raw form fields.
//
// Parsing is deliberately lenient where the provider is sloppy (confidence,
// timestamps, track) and strict where state would be corrupted (call id).

// ErrBadForm marks a request whose body failed the schema.
type ErrBadForm struct {
	Field string
}

func (e ErrBadForm) Error() string {
	return fmt.Sprintf("telephony: missing or invalid field %q", e.Field)
}

// IncomingForm is the first webhook of a call.
type IncomingForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
}

func ParseIncomingForm(r *http.Request) (IncomingForm, error) {
	if err := r.ParseForm(); err != nil {
		return IncomingForm{}, ErrBadForm{Field: "body"}
	}
	f := IncomingForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if f.CallSid == "" {
		return IncomingForm{}, ErrBadForm{Field: "CallSid"}
	}
	if f.From == "" || f.To == "" {
		return IncomingForm{}, ErrBadForm{Field: "From/To"}
	}
	return f, nil
}

// ParseSpeechForm normalizes a raw speech-recognition callback into a typed
// Transcript ready for storage. Pure function over the form values:
//   - confidence outside [0,1] or non-numeric parses as 0.0, never an error
//   - finality is true only for the literal string "true"
//   - timestamp parse failure yields 0
//   - unknown track values are preserved as opaque strings
func ParseSpeechForm(r *http.Request) (callsession.Transcript, error) {
	if err := r.ParseForm(); err != nil {
		return callsession.Transcript{}, ErrBadForm{Field: "body"}
	}
	callID := strings.TrimSpace(r.PostFormValue("CallSid"))
	if callID == "" {
		return callsession.Transcript{}, ErrBadForm{Field: "CallSid"}
	}
	text := r.PostFormValue("TranscriptionText")
	if strings.TrimSpace(text) == "" {
		text = r.PostFormValue("SpeechResult")
	}

	return callsession.Transcript{
		CallID:     callID,
		Text:       text,
		Confidence: parseConfidence(r.PostFormValue("Confidence")),
		IsFinal:    r.PostFormValue("Final") == "true",
		Track:      normalizeTrack(r.PostFormValue("Track")),
		Timestamp:  parseTimestamp(r.PostFormValue("Timestamp")),
	}, nil
}

func parseConfidence(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.0
	}
	return v
}

func parseTimestamp(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func normalizeTrack(raw string) string {
	// Usually "inbound" or "outbound"; unknown values are kept as-is rather
	// than rejected.
	return strings.ToLower(strings.TrimSpace(raw))
}

// AnalyzeForm is the caller's turn. Text is optional: an empty turn triggers
// a re-prompt rather than an error.
type AnalyzeForm struct {
	CallSid string
	Text    string
}

func ParseAnalyzeForm(r *http.Request) (AnalyzeForm, error) {
	if err := r.ParseForm(); err != nil {
		return AnalyzeForm{}, ErrBadForm{Field: "body"}
	}
	f := AnalyzeForm{
		CallSid: strings.TrimSpace(r.PostFormValue("CallSid")),
		Text:    r.PostFormValue("SpeechResult"),
	}
	if f.Text == "" {
		f.Text = r.PostFormValue("TranscriptionText")
	}
	if f.CallSid == "" {
		return AnalyzeForm{}, ErrBadForm{Field: "CallSid"}
	}
	return f, nil
}

// VoicemailForm is the recording-complete callback.
type VoicemailForm struct {
	CallSid           string
	RecordingURL      string
	TranscriptionText string
}

func ParseVoicemailForm(r *http.Request) (VoicemailForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoicemailForm{}, ErrBadForm{Field: "body"}
	}
	f := VoicemailForm{
		CallSid:           strings.TrimSpace(r.PostFormValue("CallSid")),
		RecordingURL:      strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		TranscriptionText: r.PostFormValue("TranscriptionText"),
	}
	if f.CallSid == "" {
		return VoicemailForm{}, ErrBadForm{Field: "CallSid"}
	}
	if f.RecordingURL == "" {
		return VoicemailForm{}, ErrBadForm{Field: "RecordingUrl"}
	}
	return f, nil
}

// StatusForm is the call-status callback.
type StatusForm struct {
	CallSid    string
	CallStatus string
}

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, ErrBadForm{Field: "body"}
	}
	f := StatusForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if f.CallSid == "" {
		return StatusForm{}, ErrBadForm{Field: "CallSid"}
	}
	if f.CallStatus == "" {
		return StatusForm{}, ErrBadForm{Field: "CallStatus"}
	}
	return f, nil
}
