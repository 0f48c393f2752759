package callsession

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development.
// A single mutex serializes all writes, which trivially satisfies the
// per-call-id serialization rule. Not intended for production use.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[string]CallSession
	transcripts  map[string][]Transcript
	responseLogs map[string][]ResponseLog

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]CallSession),
		transcripts:  make(map[string][]Transcript),
		responseLogs: make(map[string][]ResponseLog),
		clock:        time.Now,
	}
}

func (m *MemoryStore) EnsureSession(ctx context.Context, s CallSession) (CallSession, bool, error) {
	if s.ID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[s.ID]; ok {
		return existing, false, nil
	}
	now := m.clock().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = s
	return s, true, nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetSessionDetail(ctx context.Context, id string) (SessionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return SessionDetail{}, ErrNotFound
	}
	out := SessionDetail{Session: s}
	out.Transcripts = append(out.Transcripts, m.transcripts[id]...)
	out.ResponseLogs = append(out.ResponseLogs, m.responseLogs[id]...)
	return out, nil
}

func (m *MemoryStore) SetPhase(ctx context.Context, id string, phase Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setPhaseLocked(id, phase)
}

func (m *MemoryStore) setPhaseLocked(id string, phase Phase) error {
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if phase != PhaseUnchanged {
		s.Phase = phase
		s.UpdatedAt = m.clock().UTC()
		m.sessions[id] = s
	}
	return nil
}

func (m *MemoryStore) AppendTranscript(ctx context.Context, t Transcript, phase Phase) (Transcript, error) {
	if t.CallID == "" {
		return Transcript{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[t.CallID]; !ok {
		return Transcript{}, ErrNotFound
	}
	t.Seq = len(m.transcripts[t.CallID]) + 1
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.clock().UTC()
	}
	m.transcripts[t.CallID] = append(m.transcripts[t.CallID], t)
	return t, m.setPhaseLocked(t.CallID, phase)
}

func (m *MemoryStore) AppendResponseLog(ctx context.Context, rl ResponseLog, phase Phase) (ResponseLog, error) {
	if rl.CallID == "" {
		return ResponseLog{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[rl.CallID]; !ok {
		return ResponseLog{}, ErrNotFound
	}
	rl.Seq = len(m.responseLogs[rl.CallID]) + 1
	if rl.CreatedAt.IsZero() {
		rl.CreatedAt = m.clock().UTC()
	}
	m.responseLogs[rl.CallID] = append(m.responseLogs[rl.CallID], rl)
	return rl, m.setPhaseLocked(rl.CallID, phase)
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) (CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	applyStatusUpdate(&s, status, m.clock().UTC())
	m.sessions[id] = s
	return s, nil
}
