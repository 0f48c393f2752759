package callsession

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals that the referenced call id has no session, which
	// usually means a missing or out-of-order "incoming call" event.
	ErrNotFound = errors.New("callsession: not found")

	ErrInvalidArgument = errors.New("callsession: invalid argument")
)

// Store is the persistence contract for call sessions.
//
// Rules:
// - EnsureSession is idempotent: creating an id that already exists returns
//   the existing row untouched.
// - Transcript and ResponseLog appends MUST reject an unknown call id with
//   ErrNotFound, and MUST assign contiguous per-call sequence numbers.
// - Implementations must serialize writes per call id; providers retry
//   webhook deliveries and two events for the same call may race.
type Store interface {
	// EnsureSession creates the session if absent and reports whether a row
	// was created.
	EnsureSession(ctx context.Context, s CallSession) (CallSession, bool, error)

	GetSession(ctx context.Context, id string) (CallSession, error)
	GetSessionDetail(ctx context.Context, id string) (SessionDetail, error)

	SetPhase(ctx context.Context, id string, phase Phase) error

	// AppendTranscript stores t and, when phase is not PhaseUnchanged, moves
	// the session to that phase in the same atomic step.
	AppendTranscript(ctx context.Context, t Transcript, phase Phase) (Transcript, error)

	// AppendResponseLog stores rl and, when phase is not PhaseUnchanged,
	// moves the session to that phase in the same atomic step.
	AppendResponseLog(ctx context.Context, rl ResponseLog, phase Phase) (ResponseLog, error)

	// UpdateStatus applies a provider status callback (see applyStatusUpdate)
	// and returns the resulting session.
	UpdateStatus(ctx context.Context, id string, status Status) (CallSession, error)
}
