package activity

import "time"

// Event is an immutable, append-only call activity record.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; do not block webhook handling on activity failures.
//
// Storage recommendation (Postgres):
// - Table call_activity with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// Type indicates which webhook produced the record.
	Type EventType `json:"type" db:"type"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeIncoming  EventType = "call_incoming"
	EventTypeSpeech    EventType = "speech_result"
	EventTypeResponse  EventType = "response_generated"
	EventTypeVoicemail EventType = "voicemail"
	EventTypeStatus    EventType = "status_update"
)
