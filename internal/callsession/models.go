package callsession

import (
	"strings"
	"time"
)

// CallSession is the durable record correlating every webhook delivery for one
// phone call. The primary key is the provider's call identifier; it is never
// generated locally.
//
// Status is the provider-reported call status; Phase is this service's own
// position in the conversation flow. The two advance independently: status
// events can arrive out of order relative to speech/analyze events.
type CallSession struct {
	ID   string `json:"id" db:"id"`
	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	Status Status `json:"status" db:"status"`
	Phase  Phase  `json:"phase" db:"phase"`

	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transcript is one speech-recognition result. Immutable once created;
// append-only, ordered by Seq per call.
type Transcript struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	Text       string  `json:"text" db:"text"`
	Confidence float64 `json:"confidence" db:"confidence"`
	IsFinal    bool    `json:"is_final" db:"is_final"`

	// Track is inbound or outbound; unknown provider values are preserved
	// as-is rather than rejected.
	Track string `json:"track" db:"track"`

	// Timestamp is the provider's media clock in milliseconds.
	Timestamp int64 `json:"timestamp" db:"timestamp_ms"`

	Seq       int       `json:"seq" db:"seq"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ResponseLog is one generated reply (or voicemail drop) for a call.
// Immutable; append-only, ordered by Seq per call.
type ResponseLog struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// InputText is sanitized before storage (no angle brackets).
	InputText    string `json:"input_text" db:"input_text"`
	ResponseText string `json:"response_text" db:"response_text"`

	// RecordingURL is set only for voicemail records.
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	Seq       int       `json:"seq" db:"seq"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SessionDetail is the read-API projection: a session plus its ordered
// transcripts and response logs.
type SessionDetail struct {
	Session      CallSession   `json:"session"`
	Transcripts  []Transcript  `json:"transcripts"`
	ResponseLogs []ResponseLog `json:"response_logs"`
}

type Status string

const (
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no_answer"
	StatusBusy       Status = "busy"
)

// IsTerminal reports whether a status ends the call's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNoAnswer, StatusBusy:
		return true
	default:
		return false
	}
}

// ParseStatus maps a provider-reported status string onto the internal enum.
// Providers use hyphenated forms ("in-progress", "no-answer"). Unknown values
// are preserved as opaque statuses rather than rejected, matching how track
// values are handled on transcripts.
func ParseStatus(raw string) Status {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	return Status(v)
}

// Phase is this service's position in the conversation flow.
type Phase string

const (
	PhaseRinging        Phase = "ringing"
	PhaseGreeted        Phase = "greeted"
	PhaseAwaitingSpeech Phase = "awaiting_speech"
	PhaseAnalyzing      Phase = "analyzing"
	PhaseResponding     Phase = "responding"
	PhaseCompleted      Phase = "completed"
	PhaseVoicemail      Phase = "voicemail"
	PhaseFailed         Phase = "failed"
)

// PhaseUnchanged is the sentinel passed to append operations that should not
// move the session's phase.
const PhaseUnchanged Phase = ""

// applyStatusUpdate overwrites the session status from a provider status
// callback. A terminal status is never replaced by a non-terminal one: status
// callbacks are retried and can arrive out of order, and a late "ringing"
// after "completed" must not resurrect the call. Repeated deliveries of the
// same terminal status are accepted.
//
// The provider's "completed" is the only event that sets EndTime.
func applyStatusUpdate(s *CallSession, status Status, now time.Time) {
	if s.Status.IsTerminal() && !status.IsTerminal() {
		return
	}
	s.Status = status
	if status == StatusCompleted && s.EndTime == nil {
		t := now
		s.EndTime = &t
	}
	s.UpdatedAt = now
}
