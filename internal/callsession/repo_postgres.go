package callsession

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentsflow-voice/pkg/utils"
)

// NOTE: This repository assumes the following tables exist:
// - call_sessions (id TEXT PRIMARY KEY, from_number, to_number, status, phase,
//   start_time, end_time NULL, created_at, updated_at)
// - call_transcripts (id, call_id REFERENCES call_sessions, text, confidence,
//   is_final, track, timestamp_ms, seq, created_at,
//   UNIQUE (call_id, seq))
// - call_response_logs (id, call_id REFERENCES call_sessions, input_text,
//   response_text, recording_url, seq, created_at,
//   UNIQUE (call_id, seq))
//
// Every mutation locks the session row FOR UPDATE first, so two webhook
// deliveries for the same call are serialized at the database even when they
// land on different processes.

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (p *PostgresStore) EnsureSession(ctx context.Context, s CallSession) (CallSession, bool, error) {
	if s.ID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	now := p.clock().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	s.UpdatedAt = now

	// ON CONFLICT DO NOTHING makes duplicate "incoming call" deliveries a
	// no-op instead of an error.
	const q = `
INSERT INTO call_sessions (id, from_number, to_number, status, phase, start_time, end_time, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`
	res, err := p.db.ExecContext(ctx, q,
		s.ID, s.From, s.To, s.Status, s.Phase, s.StartTime, s.EndTime, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return CallSession{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return CallSession{}, false, err
	}
	if n == 1 {
		return s, true, nil
	}
	existing, err := p.GetSession(ctx, s.ID)
	if err != nil {
		return CallSession{}, false, err
	}
	return existing, false, nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (CallSession, error) {
	const q = `
SELECT id, from_number, to_number, status, phase, start_time, end_time, created_at, updated_at
FROM call_sessions
WHERE id = $1
`
	return scanSession(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresStore) GetSessionDetail(ctx context.Context, id string) (SessionDetail, error) {
	s, err := p.GetSession(ctx, id)
	if err != nil {
		return SessionDetail{}, err
	}
	out := SessionDetail{Session: s}

	const qt = `
SELECT id, call_id, text, confidence, is_final, track, timestamp_ms, seq, created_at
FROM call_transcripts
WHERE call_id = $1
ORDER BY seq
`
	rows, err := p.db.QueryContext(ctx, qt, id)
	if err != nil {
		return SessionDetail{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.ID, &t.CallID, &t.Text, &t.Confidence, &t.IsFinal, &t.Track, &t.Timestamp, &t.Seq, &t.CreatedAt); err != nil {
			return SessionDetail{}, err
		}
		out.Transcripts = append(out.Transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return SessionDetail{}, err
	}

	const qr = `
SELECT id, call_id, input_text, response_text, recording_url, seq, created_at
FROM call_response_logs
WHERE call_id = $1
ORDER BY seq
`
	lrows, err := p.db.QueryContext(ctx, qr, id)
	if err != nil {
		return SessionDetail{}, err
	}
	defer lrows.Close()
	for lrows.Next() {
		var rl ResponseLog
		if err := lrows.Scan(&rl.ID, &rl.CallID, &rl.InputText, &rl.ResponseText, &rl.RecordingURL, &rl.Seq, &rl.CreatedAt); err != nil {
			return SessionDetail{}, err
		}
		out.ResponseLogs = append(out.ResponseLogs, rl)
	}
	if err := lrows.Err(); err != nil {
		return SessionDetail{}, err
	}
	return out, nil
}

func (p *PostgresStore) SetPhase(ctx context.Context, id string, phase Phase) error {
	if phase == PhaseUnchanged {
		return nil
	}
	const q = `
UPDATE call_sessions SET phase = $2, updated_at = $3 WHERE id = $1
`
	res, err := p.db.ExecContext(ctx, q, id, phase, p.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) AppendTranscript(ctx context.Context, t Transcript, phase Phase) (Transcript, error) {
	if t.CallID == "" {
		return Transcript{}, ErrInvalidArgument
	}
	now := p.clock().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if err := lockSession(ctx, tx, t.CallID); err != nil {
			return err
		}
		seq, err := nextSeq(ctx, tx, "call_transcripts", t.CallID)
		if err != nil {
			return err
		}
		t.Seq = seq

		const q = `
INSERT INTO call_transcripts (id, call_id, text, confidence, is_final, track, timestamp_ms, seq, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
		if _, err := tx.ExecContext(ctx, q,
			t.ID, t.CallID, t.Text, t.Confidence, t.IsFinal, t.Track, t.Timestamp, t.Seq, t.CreatedAt,
		); err != nil {
			return err
		}
		return setPhaseTx(ctx, tx, t.CallID, phase, now)
	})
	if err != nil {
		return Transcript{}, err
	}
	return t, nil
}

func (p *PostgresStore) AppendResponseLog(ctx context.Context, rl ResponseLog, phase Phase) (ResponseLog, error) {
	if rl.CallID == "" {
		return ResponseLog{}, ErrInvalidArgument
	}
	now := p.clock().UTC()
	if rl.CreatedAt.IsZero() {
		rl.CreatedAt = now
	}
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if err := lockSession(ctx, tx, rl.CallID); err != nil {
			return err
		}
		seq, err := nextSeq(ctx, tx, "call_response_logs", rl.CallID)
		if err != nil {
			return err
		}
		rl.Seq = seq

		const q = `
INSERT INTO call_response_logs (id, call_id, input_text, response_text, recording_url, seq, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
		if _, err := tx.ExecContext(ctx, q,
			rl.ID, rl.CallID, rl.InputText, rl.ResponseText, rl.RecordingURL, rl.Seq, rl.CreatedAt,
		); err != nil {
			return err
		}
		return setPhaseTx(ctx, tx, rl.CallID, phase, now)
	})
	if err != nil {
		return ResponseLog{}, err
	}
	return rl, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) (CallSession, error) {
	var out CallSession
	now := p.clock().UTC()
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
SELECT id, from_number, to_number, status, phase, start_time, end_time, created_at, updated_at
FROM call_sessions
WHERE id = $1
FOR UPDATE
`
		s, err := scanSession(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			return err
		}
		applyStatusUpdate(&s, status, now)

		const upd = `
UPDATE call_sessions SET status = $2, end_time = $3, updated_at = $4 WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd, s.ID, s.Status, s.EndTime, s.UpdatedAt); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return CallSession{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (CallSession, error) {
	var s CallSession
	if err := row.Scan(
		&s.ID,
		&s.From,
		&s.To,
		&s.Status,
		&s.Phase,
		&s.StartTime,
		&s.EndTime,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, err
	}
	return s, nil
}

func lockSession(ctx context.Context, tx *sql.Tx, id string) error {
	// Lock the session row to serialize concurrent webhook writes per call.
	const q = `
SELECT id FROM call_sessions WHERE id = $1 FOR UPDATE
`
	var got string
	if err := tx.QueryRowContext(ctx, q, id).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, table, callID string) (int, error) {
	// Safe from duplicates because the caller holds the session row lock.
	q := `SELECT COALESCE(MAX(seq), 0) + 1 FROM ` + table + ` WHERE call_id = $1`
	var seq int
	if err := tx.QueryRowContext(ctx, q, callID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func setPhaseTx(ctx context.Context, tx *sql.Tx, id string, phase Phase, now time.Time) error {
	if phase == PhaseUnchanged {
		return nil
	}
	const q = `
UPDATE call_sessions SET phase = $2, updated_at = $3 WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, id, phase, now)
	return err
}
