package callsession

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agentsflow-voice/internal/activity"
	"agentsflow-voice/internal/generator"
	"agentsflow-voice/pkg/logger"
)

// Prompts carries the spoken phrases the state machine emits.
type Prompts struct {
	Greeting        string
	RePrompt        string
	Goodbye         string
	VoicemailPrompt string
}

// ServiceConfig wires the state machine's fixed decisions: prompt copy and
// the webhook paths it points redirect actions at.
type ServiceConfig struct {
	Prompts Prompts

	// AnalyzePath is where re-prompt and greeting redirects send the
	// provider's next request.
	AnalyzePath string

	// VoicemailPath receives recording callbacks from record actions.
	VoicemailPath string

	// VoicemailMode switches incoming calls to message capture: instead of
	// greeting and gathering speech, the caller is prompted to leave a
	// recording. Used when the agent is configured as offline.
	VoicemailMode bool
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	out := c
	if out.AnalyzePath == "" {
		out.AnalyzePath = "/webhooks/voice/analyze"
	}
	if out.VoicemailPath == "" {
		out.VoicemailPath = "/webhooks/voice/voicemail"
	}
	return out
}

// Service is the call state machine. Every method handles one webhook
// delivery: it reads the current session, applies the transition, and returns
// what the protocol layer should emit.
//
// Providers retry webhooks on timeout, so every transition must be safe to
// apply more than once. No method assumes it is the first or only delivery of
// its event type.
type Service struct {
	store    Store
	gen      generator.Generator
	activity activity.Recorder
	locks    Locker
	cfg      ServiceConfig
}

func NewService(store Store, gen generator.Generator, rec activity.Recorder, locks Locker, cfg ServiceConfig) *Service {
	if locks == nil {
		locks = NopLocker{}
	}
	return &Service{
		store:    store,
		gen:      gen,
		activity: rec,
		locks:    locks,
		cfg:      cfg.withDefaults(),
	}
}

// IncomingCall is the first event of a call's lifecycle.
type IncomingCall struct {
	CallID string
	From   string
	To     string
}

// HandleIncoming creates the session if absent and emits the greeting.
// Idempotent: a retried delivery finds the existing session, re-emits the
// greeting, and leaves stored state where it already is.
func (s *Service) HandleIncoming(ctx context.Context, in IncomingCall) (Action, error) {
	if in.CallID == "" {
		return Action{}, fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}

	sess, created, err := s.store.EnsureSession(ctx, CallSession{
		ID:     in.CallID,
		From:   in.From,
		To:     in.To,
		Status: StatusRinging,
		Phase:  PhaseRinging,
	})
	if err != nil {
		return Action{}, err
	}

	msg := "call received"
	if !created {
		msg = "call received (duplicate delivery)"
	}
	s.record(ctx, activity.Event{CallID: in.CallID, Type: activity.EventTypeIncoming, Message: msg})

	if s.cfg.VoicemailMode {
		// Greeted but not gathering speech: the recording callback, not a
		// speech result, is the next event for this call.
		if err := s.store.SetPhase(ctx, sess.ID, PhaseGreeted); err != nil {
			return Action{}, err
		}
		return Action{
			Kind:         ActionRecord,
			Text:         s.cfg.Prompts.VoicemailPrompt,
			RedirectPath: s.cfg.VoicemailPath,
		}, nil
	}

	if err := s.store.SetPhase(ctx, sess.ID, PhaseAwaitingSpeech); err != nil {
		return Action{}, err
	}
	return Action{
		Kind:         ActionSayThenRedirect,
		Text:         s.cfg.Prompts.Greeting,
		RedirectPath: s.cfg.AnalyzePath,
	}, nil
}

// HandleSpeech persists one normalized speech-recognition result. A final
// result advances the session to the analyzing phase in the same write;
// interim results are kept as a passive log.
func (s *Service) HandleSpeech(ctx context.Context, t Transcript) (Transcript, error) {
	if t.CallID == "" {
		return Transcript{}, fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	phase := PhaseUnchanged
	if t.IsFinal {
		phase = PhaseAnalyzing
	}
	stored, err := s.store.AppendTranscript(ctx, t, phase)
	if err != nil {
		return Transcript{}, err
	}

	s.record(ctx, activity.Event{CallID: t.CallID, Type: activity.EventTypeSpeech, Message: "transcript stored"})
	return stored, nil
}

// AnalyzeInput is the caller's turn handed to the analyze transition.
type AnalyzeInput struct {
	CallID string
	Text   string
}

// HandleAnalyze runs the caller's turn through the response generator.
//
// Empty input moves the session back to awaiting speech and re-prompts the
// caller. A generator failure propagates unchanged: no ResponseLog is written
// and the session stays in the analyzing phase, so a completed call without a
// ResponseLog is the signature of this failure mode.
func (s *Service) HandleAnalyze(ctx context.Context, in AnalyzeInput) (Action, error) {
	if in.CallID == "" {
		return Action{}, fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}

	sess, err := s.store.GetSession(ctx, in.CallID)
	if err != nil {
		return Action{}, err
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		if err := s.store.SetPhase(ctx, in.CallID, PhaseAwaitingSpeech); err != nil {
			return Action{}, err
		}
		return s.rePrompt(), nil
	}

	ok, lockErr := s.locks.Acquire(ctx, in.CallID)
	if lockErr != nil {
		// Fail open: the store serializes writes per call id regardless.
		logger.From(ctx).Warn("call slot acquire failed", "call_id", in.CallID, "err", lockErr)
	} else {
		if !ok {
			// Another delivery of this turn is mid-generation. Re-prompting
			// is a safe answer for a retried request.
			return s.rePrompt(), nil
		}
		defer s.locks.Release(ctx, in.CallID)
	}

	if err := s.store.SetPhase(ctx, in.CallID, PhaseAnalyzing); err != nil {
		return Action{}, err
	}

	clean := SanitizeText(text)
	history, err := s.history(ctx, in.CallID)
	if err != nil {
		return Action{}, err
	}

	reply, err := s.gen.Generate(ctx, generator.CallContext{
		CallID:  sess.ID,
		From:    sess.From,
		To:      sess.To,
		History: history,
	}, clean)
	if err != nil {
		return Action{}, err
	}

	rl := ResponseLog{
		ID:           uuid.NewString(),
		CallID:       in.CallID,
		InputText:    clean,
		ResponseText: reply,
	}
	if _, err := s.store.AppendResponseLog(ctx, rl, PhaseResponding); err != nil {
		return Action{}, err
	}
	if err := s.store.SetPhase(ctx, in.CallID, PhaseCompleted); err != nil {
		return Action{}, err
	}

	s.record(ctx, activity.Event{CallID: in.CallID, Type: activity.EventTypeResponse, Message: "response generated"})

	return Action{Kind: ActionSayThenHangup, Text: reply}, nil
}

// history rebuilds the conversation so far from stored response logs: each
// log is one caller turn and its reply. Voicemail records carry no reply and
// are skipped. Content is sanitized again on the way out in case older rows
// predate sanitization.
func (s *Service) history(ctx context.Context, callID string) ([]generator.Message, error) {
	detail, err := s.store.GetSessionDetail(ctx, callID)
	if err != nil {
		return nil, err
	}
	var msgs []generator.Message
	for _, rl := range detail.ResponseLogs {
		if rl.ResponseText == "" {
			continue
		}
		msgs = append(msgs,
			generator.Message{Role: generator.RoleUser, Content: rl.InputText},
			generator.Message{Role: generator.RoleAssistant, Content: rl.ResponseText},
		)
	}
	return SanitizeMessages(msgs), nil
}

// VoicemailEvent is a completed recording with its provider transcription.
type VoicemailEvent struct {
	CallID            string
	RecordingURL      string
	TranscriptionText string
}

// HandleVoicemail stores the recording reference and moves the session to the
// voicemail terminal phase. Accepted from any prior state, repeatedly.
func (s *Service) HandleVoicemail(ctx context.Context, ev VoicemailEvent) error {
	if ev.CallID == "" {
		return fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}
	if ev.RecordingURL == "" {
		return fmt.Errorf("%w: recording url required", ErrInvalidArgument)
	}

	rl := ResponseLog{
		ID:           uuid.NewString(),
		CallID:       ev.CallID,
		InputText:    SanitizeText(ev.TranscriptionText),
		RecordingURL: ev.RecordingURL,
	}
	if _, err := s.store.AppendResponseLog(ctx, rl, PhaseVoicemail); err != nil {
		return err
	}

	s.record(ctx, activity.Event{CallID: ev.CallID, Type: activity.EventTypeVoicemail, Message: "voicemail stored"})
	return nil
}

// HandleStatus applies a provider status callback. Unknown call ids surface
// ErrNotFound; the caller answers not-found without mutating anything.
func (s *Service) HandleStatus(ctx context.Context, callID, rawStatus string) (CallSession, error) {
	if callID == "" {
		return CallSession{}, fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}
	if strings.TrimSpace(rawStatus) == "" {
		return CallSession{}, fmt.Errorf("%w: call status required", ErrInvalidArgument)
	}

	sess, err := s.store.UpdateStatus(ctx, callID, ParseStatus(rawStatus))
	if err != nil {
		return CallSession{}, err
	}

	s.record(ctx, activity.Event{CallID: callID, Type: activity.EventTypeStatus, Message: "status " + string(sess.Status)})
	return sess, nil
}

// GetDetail returns a session with its ordered transcripts and response logs.
func (s *Service) GetDetail(ctx context.Context, callID string) (SessionDetail, error) {
	if callID == "" {
		return SessionDetail{}, fmt.Errorf("%w: call id required", ErrInvalidArgument)
	}
	return s.store.GetSessionDetail(ctx, callID)
}

func (s *Service) rePrompt() Action {
	return Action{
		Kind:         ActionSayThenRedirect,
		Text:         s.cfg.Prompts.RePrompt,
		RedirectPath: s.cfg.AnalyzePath,
	}
}

// record is fire-and-forget: activity failures are logged and dropped, never
// surfaced into the webhook response.
func (s *Service) record(ctx context.Context, e activity.Event) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(ctx, e); err != nil {
		logger.From(ctx).Warn("activity record failed", "call_id", e.CallID, "type", string(e.Type), "err", err)
	}
}
