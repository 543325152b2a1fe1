package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events. It never issues UPDATE or DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, reference_check_id, call_id, type, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CheckID, e.CallID, e.Type, e.Message, e.Metadata, e.CreatedAt)
	return err
}
