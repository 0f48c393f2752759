package activity

import (
	"context"
	"database/sql"
)

// PostgresRepo appends activity events to the call_activity table.
// No foreign key to call_sessions: activity must be recordable even when the
// primary write it accompanies has failed.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_activity (id, call_id, type, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, e.Type, e.Message, e.Metadata, e.CreatedAt)
	return err
}
