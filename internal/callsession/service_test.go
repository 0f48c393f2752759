package callsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"agentsflow-voice/internal/activity"
	"agentsflow-voice/internal/generator"
)

type fakeGenerator struct {
	reply string
	err   error

	calls    int
	lastCall generator.CallContext
	lastIn   string
}

func (f *fakeGenerator) Generate(ctx context.Context, call generator.CallContext, input string) (string, error) {
	f.calls++
	f.lastCall = call
	f.lastIn = input
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type denyLocker struct{}

func (denyLocker) Acquire(ctx context.Context, callID string) (bool, error) { return false, nil }
func (denyLocker) Release(ctx context.Context, callID string)               {}

func newTestService(t *testing.T, gen *fakeGenerator) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store, gen, activity.NewService(activity.NewMemoryRepo()), NopLocker{}, ServiceConfig{
		Prompts: Prompts{
			Greeting:        "Hello, how can I help?",
			RePrompt:        "I didn't catch that, please repeat.",
			VoicemailPrompt: "Please leave a message after the tone.",
		},
	})
	return svc, store
}

func TestHandleIncoming_CreatesSessionOnce(t *testing.T) {
	svc, store := newTestService(t, &fakeGenerator{})
	ctx := context.Background()

	act, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA1", From: "+15551234567", To: "+15557654321"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if act.Kind != ActionSayThenRedirect || act.Text != "Hello, how can I help?" {
		t.Fatalf("unexpected action %+v", act)
	}
	if act.RedirectPath != "/webhooks/voice/analyze" {
		t.Fatalf("unexpected redirect path %q", act.RedirectPath)
	}

	sess, err := store.GetSession(ctx, "CA1")
	if err != nil {
		t.Fatalf("session not created: %v", err)
	}
	if sess.Phase != PhaseAwaitingSpeech {
		t.Fatalf("expected awaiting_speech, got %q", sess.Phase)
	}
	first := sess.CreatedAt

	// Duplicate delivery: no second session, same created_at, same action.
	act2, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA1", From: "+15551234567", To: "+15557654321"})
	if err != nil {
		t.Fatalf("unexpected err on retry: %v", err)
	}
	if act2 != act {
		t.Fatalf("retry produced different action: %+v vs %+v", act2, act)
	}
	sess, _ = store.GetSession(ctx, "CA1")
	if !sess.CreatedAt.Equal(first) {
		t.Fatalf("retry recreated the session")
	}
}

func TestHandleIncoming_VoicemailMode(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, &fakeGenerator{}, nil, nil, ServiceConfig{
		Prompts:       Prompts{VoicemailPrompt: "Please leave a message after the tone."},
		VoicemailMode: true,
	})

	act, err := svc.HandleIncoming(context.Background(), IncomingCall{CallID: "CA9"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if act.Kind != ActionRecord {
		t.Fatalf("expected record action, got %+v", act)
	}
	if act.RedirectPath != "/webhooks/voice/voicemail" {
		t.Fatalf("unexpected callback path %q", act.RedirectPath)
	}
	sess, _ := store.GetSession(context.Background(), "CA9")
	if sess.Phase != PhaseGreeted {
		t.Fatalf("expected greeted, got %q", sess.Phase)
	}
}

func TestHandleSpeech_FinalAdvancesPhase(t *testing.T) {
	svc, store := newTestService(t, &fakeGenerator{})
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA1"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}

	// Interim result: stored, phase untouched.
	if _, err := svc.HandleSpeech(ctx, Transcript{CallID: "CA1", Text: "book a", Confidence: 0.5, IsFinal: false, Track: "inbound"}); err != nil {
		t.Fatalf("speech: %v", err)
	}
	sess, _ := store.GetSession(ctx, "CA1")
	if sess.Phase != PhaseAwaitingSpeech {
		t.Fatalf("interim result moved phase to %q", sess.Phase)
	}

	// Final result: phase advances to analyzing.
	if _, err := svc.HandleSpeech(ctx, Transcript{CallID: "CA1", Text: "book a demo", Confidence: 0.92, IsFinal: true, Track: "inbound"}); err != nil {
		t.Fatalf("speech: %v", err)
	}
	sess, _ = store.GetSession(ctx, "CA1")
	if sess.Phase != PhaseAnalyzing {
		t.Fatalf("expected analyzing, got %q", sess.Phase)
	}

	detail, _ := store.GetSessionDetail(ctx, "CA1")
	if len(detail.Transcripts) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(detail.Transcripts))
	}
	if detail.Transcripts[0].Seq != 1 || detail.Transcripts[1].Seq != 2 {
		t.Fatalf("bad seq assignment: %+v", detail.Transcripts)
	}
}

func TestHandleSpeech_UnknownCallRejected(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{})
	_, err := svc.HandleSpeech(context.Background(), Transcript{CallID: "CA404", Text: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleAnalyze_EmptyTextRePrompts(t *testing.T) {
	svc, store := newTestService(t, &fakeGenerator{reply: "should not be used"})
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA2"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}

	act, err := svc.HandleAnalyze(ctx, AnalyzeInput{CallID: "CA2", Text: "   "})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if act.Kind != ActionSayThenRedirect {
		t.Fatalf("expected re-prompt redirect, got %+v", act)
	}
	if !strings.Contains(act.Text, "didn't catch") {
		t.Fatalf("expected re-prompt phrase, got %q", act.Text)
	}
	if act.RedirectPath != "/webhooks/voice/analyze" {
		t.Fatalf("expected redirect back to analyze, got %q", act.RedirectPath)
	}

	sess, _ := store.GetSession(ctx, "CA2")
	if sess.Phase != PhaseAwaitingSpeech {
		t.Fatalf("expected awaiting_speech, got %q", sess.Phase)
	}
	detail, _ := store.GetSessionDetail(ctx, "CA2")
	if len(detail.ResponseLogs) != 0 {
		t.Fatalf("re-prompt must not write a response log")
	}
}

func TestHandleAnalyze_GeneratesAndCompletes(t *testing.T) {
	gen := &fakeGenerator{reply: "Sure, let's schedule it"}
	svc, store := newTestService(t, gen)
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA1", From: "+1555", To: "+1666"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}
	if _, err := svc.HandleSpeech(ctx, Transcript{CallID: "CA1", Text: "book a demo", Confidence: 0.92, IsFinal: true, Track: "inbound"}); err != nil {
		t.Fatalf("speech: %v", err)
	}

	act, err := svc.HandleAnalyze(ctx, AnalyzeInput{CallID: "CA1", Text: "book a <demo>"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if act.Kind != ActionSayThenHangup || act.Text != "Sure, let's schedule it" {
		t.Fatalf("unexpected action %+v", act)
	}

	if gen.lastIn != "book a demo" {
		t.Fatalf("generator received unsanitized input %q", gen.lastIn)
	}
	if gen.lastCall.CallID != "CA1" || gen.lastCall.From != "+1555" {
		t.Fatalf("generator missing session context: %+v", gen.lastCall)
	}

	sess, _ := store.GetSession(ctx, "CA1")
	if sess.Phase != PhaseCompleted {
		t.Fatalf("expected completed phase, got %q", sess.Phase)
	}
	detail, _ := store.GetSessionDetail(ctx, "CA1")
	if len(detail.ResponseLogs) != 1 {
		t.Fatalf("expected 1 response log, got %d", len(detail.ResponseLogs))
	}
	rl := detail.ResponseLogs[0]
	if rl.InputText != "book a demo" || rl.ResponseText != "Sure, let's schedule it" {
		t.Fatalf("unexpected response log %+v", rl)
	}
}

func TestHandleAnalyze_GeneratorFailureLeavesNoTrace(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: timeout", generator.ErrUnavailable)}
	svc, store := newTestService(t, gen)
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA3"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}

	_, err := svc.HandleAnalyze(ctx, AnalyzeInput{CallID: "CA3", Text: "hello"})
	if !errors.Is(err, generator.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	sess, _ := store.GetSession(ctx, "CA3")
	if sess.Phase != PhaseAnalyzing {
		t.Fatalf("expected analyzing after failure, got %q", sess.Phase)
	}
	detail, _ := store.GetSessionDetail(ctx, "CA3")
	if len(detail.ResponseLogs) != 0 {
		t.Fatalf("failed generation must not write a response log")
	}
}

func TestHandleAnalyze_UnknownCallRejected(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{})
	_, err := svc.HandleAnalyze(context.Background(), AnalyzeInput{CallID: "CA404", Text: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleAnalyze_ContendedSlotRePrompts(t *testing.T) {
	gen := &fakeGenerator{reply: "hi"}
	store := NewMemoryStore()
	svc := NewService(store, gen, nil, denyLocker{}, ServiceConfig{
		Prompts: Prompts{RePrompt: "I didn't catch that, please repeat."},
	})
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA5"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}

	act, err := svc.HandleAnalyze(ctx, AnalyzeInput{CallID: "CA5", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if act.Kind != ActionSayThenRedirect {
		t.Fatalf("expected re-prompt for contended slot, got %+v", act)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not run without the slot")
	}
}

func TestHandleAnalyze_UsesPriorTurnsAsHistory(t *testing.T) {
	gen := &fakeGenerator{reply: "Second reply"}
	svc, store := newTestService(t, gen)
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA7"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}
	// Seed a prior turn directly.
	if _, err := store.AppendResponseLog(ctx, ResponseLog{ID: "r1", CallID: "CA7", InputText: "first question", ResponseText: "first answer"}, PhaseUnchanged); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.HandleAnalyze(ctx, AnalyzeInput{CallID: "CA7", Text: "second question"}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	h := gen.lastCall.History
	if len(h) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(h))
	}
	if h[0].Role != generator.RoleUser || h[0].Content != "first question" {
		t.Fatalf("unexpected history[0] %+v", h[0])
	}
	if h[1].Role != generator.RoleAssistant || h[1].Content != "first answer" {
		t.Fatalf("unexpected history[1] %+v", h[1])
	}
}

func TestHandleVoicemail_TerminalFromAnyState(t *testing.T) {
	svc, store := newTestService(t, &fakeGenerator{reply: "done"})
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA8"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}
	if _, err := svc.HandleStatus(ctx, "CA8", "completed"); err != nil {
		t.Fatalf("status: %v", err)
	}

	// Accepted even after a terminal status.
	err := svc.HandleVoicemail(ctx, VoicemailEvent{
		CallID:            "CA8",
		RecordingURL:      "https://api.example.com/rec/RE1",
		TranscriptionText: "call me <back>",
	})
	if err != nil {
		t.Fatalf("voicemail: %v", err)
	}

	sess, _ := store.GetSession(ctx, "CA8")
	if sess.Phase != PhaseVoicemail {
		t.Fatalf("expected voicemail phase, got %q", sess.Phase)
	}
	detail, _ := store.GetSessionDetail(ctx, "CA8")
	if len(detail.ResponseLogs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(detail.ResponseLogs))
	}
	rl := detail.ResponseLogs[0]
	if rl.InputText != "call me back" || rl.ResponseText != "" || rl.RecordingURL == "" {
		t.Fatalf("unexpected voicemail record %+v", rl)
	}
}

func TestHandleVoicemail_RequiresRecordingURL(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{})
	err := svc.HandleVoicemail(context.Background(), VoicemailEvent{CallID: "CA1"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestHandleStatus_UnknownCallIsNotFound(t *testing.T) {
	svc, _ := newTestService(t, &fakeGenerator{})
	_, err := svc.HandleStatus(context.Background(), "CA404", "completed")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleStatus_CompletedSetsEndTimeAndGuards(t *testing.T) {
	svc, store := newTestService(t, &fakeGenerator{})
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA6"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}

	sess, err := svc.HandleStatus(ctx, "CA6", "completed")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if sess.Status != StatusCompleted || sess.EndTime == nil {
		t.Fatalf("expected completed with end time, got %+v", sess)
	}

	// Late, out-of-order ringing must not resurrect the call.
	sess, err = svc.HandleStatus(ctx, "CA6", "ringing")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if sess.Status != StatusCompleted {
		t.Fatalf("late ringing overwrote terminal status: %q", sess.Status)
	}

	got, _ := store.GetSession(ctx, "CA6")
	if got.Status != StatusCompleted {
		t.Fatalf("stored status regressed: %q", got.Status)
	}
}

func TestGetDetail_PreservesInsertionOrder(t *testing.T) {
	svc, store := newTestService(t, &fakeGenerator{})
	ctx := context.Background()
	if _, err := svc.HandleIncoming(ctx, IncomingCall{CallID: "CA10"}); err != nil {
		t.Fatalf("incoming: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := svc.HandleSpeech(ctx, Transcript{CallID: "CA10", Text: fmt.Sprintf("part %d", i), Track: "inbound"}); err != nil {
			t.Fatalf("speech %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := store.AppendResponseLog(ctx, ResponseLog{ID: fmt.Sprintf("r%d", i), CallID: "CA10", InputText: fmt.Sprintf("q%d", i), ResponseText: fmt.Sprintf("a%d", i)}, PhaseUnchanged); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	detail, err := svc.GetDetail(ctx, "CA10")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Transcripts) != 5 || len(detail.ResponseLogs) != 3 {
		t.Fatalf("expected 5/3 rows, got %d/%d", len(detail.Transcripts), len(detail.ResponseLogs))
	}
	for i, tr := range detail.Transcripts {
		if tr.Text != fmt.Sprintf("part %d", i) || tr.Seq != i+1 {
			t.Fatalf("transcripts out of order at %d: %+v", i, tr)
		}
	}
	for i, rl := range detail.ResponseLogs {
		if rl.InputText != fmt.Sprintf("q%d", i) || rl.Seq != i+1 {
			t.Fatalf("response logs out of order at %d: %+v", i, rl)
		}
	}
}
