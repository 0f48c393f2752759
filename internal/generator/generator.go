package generator

import (
	"context"
	"errors"
)

// Generator produces the assistant reply for one caller turn.
//
// Implementations make exactly one attempt: the upstream telephony provider
// already retries the webhook on failure, so retrying here would double up.
type Generator interface {
	Generate(ctx context.Context, call CallContext, input string) (string, error)
}

// ErrUnavailable wraps any downstream model failure, including timeouts.
// Callers must not record a response when they see it.
var ErrUnavailable = errors.New("generator: unavailable")

// CallContext is the session context handed to the model alongside the
// caller's latest input.
type CallContext struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`

	// History holds prior caller turns in order. Content must already be
	// sanitized by the caller.
	History []Message `json:"history"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
