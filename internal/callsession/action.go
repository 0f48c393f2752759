package callsession

// ActionKind enumerates what the protocol layer should do next on the call.
type ActionKind string

const (
	// ActionSay speaks text and leaves the call open.
	ActionSay ActionKind = "say"
	// ActionSayThenRedirect speaks text, then sends the provider's next
	// request to RedirectPath.
	ActionSayThenRedirect ActionKind = "say_then_redirect"
	// ActionSayThenHangup speaks text, then ends the call.
	ActionSayThenHangup ActionKind = "say_then_hangup"
	// ActionRecord speaks the prompt in Text, then records the caller;
	// the recording callback is delivered to RedirectPath.
	ActionRecord ActionKind = "record"
)

// Action is the state machine's abstract decision for one webhook turn.
// The telephony layer renders it into provider markup.
type Action struct {
	Kind ActionKind `json:"kind"`
	Text string     `json:"text"`

	// RedirectPath is the webhook path for the provider's next request.
	// Set for ActionSayThenRedirect and ActionRecord.
	RedirectPath string `json:"redirect_path,omitempty"`
}
