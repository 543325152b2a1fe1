package checks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voiceref/pkg/utils"
)

// PostgresRepo stores checks and contacts in reference_checks / reference_contacts.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) CreateCheck(ctx context.Context, c ReferenceCheck) error {
	const q = `
INSERT INTO reference_checks (id, candidate_name, candidate_email, position, company, job_description, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.CandidateName, c.CandidateEmail, c.Position, c.Company, c.JobDescription, c.Status, c.CreatedAt, c.UpdatedAt)
	if utils.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepo) GetCheck(ctx context.Context, id string) (ReferenceCheck, error) {
	const q = `
SELECT id, candidate_name, candidate_email, position, company, job_description, status, created_at, updated_at, completed_at
FROM reference_checks
WHERE id = $1
`
	var c ReferenceCheck
	var completedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID,
		&c.CandidateName,
		&c.CandidateEmail,
		&c.Position,
		&c.Company,
		&c.JobDescription,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReferenceCheck{}, ErrNotFound
		}
		return ReferenceCheck{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) AdvanceCheckStatus(ctx context.Context, id string, from []CheckStatus, to CheckStatus, now time.Time) (bool, error) {
	const q = `
UPDATE reference_checks
SET status = $2, updated_at = $3
WHERE id = $1 AND status = ANY($4)
`
	fromStr := make([]string, 0, len(from))
	for _, s := range from {
		fromStr = append(fromStr, string(s))
	}
	res, err := r.db.ExecContext(ctx, q, id, to, now, fromStr)
	if err != nil {
		return false, err
	}
	return utils.RowsAffected(res)
}

// CompleteCheckIfDone flips the check to completed only when it has contacts, all are
// terminal, and none of its calls is still scheduled or in progress.
func (r *PostgresRepo) CompleteCheckIfDone(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `
UPDATE reference_checks
SET status = 'completed', completed_at = $2, updated_at = $2
WHERE id = $1
  AND status <> 'completed'
  AND EXISTS (SELECT 1 FROM reference_contacts WHERE reference_check_id = $1)
  AND NOT EXISTS (
    SELECT 1 FROM reference_contacts
    WHERE reference_check_id = $1 AND status NOT IN ('completed', 'failed')
  )
  AND NOT EXISTS (
    SELECT 1 FROM scheduled_calls
    WHERE reference_check_id = $1 AND status IN ('scheduled', 'in_progress')
  )
`
	res, err := r.db.ExecContext(ctx, q, id, now)
	if err != nil {
		return false, err
	}
	return utils.RowsAffected(res)
}

func (r *PostgresRepo) CreateContacts(ctx context.Context, cs []ReferenceContact) error {
	const q = `
INSERT INTO reference_contacts (id, reference_check_id, name, email, phone, relationship, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, c := range cs {
			if _, err := tx.ExecContext(ctx, q, c.ID, c.CheckID, c.Name, c.Email, c.Phone, c.Relationship, c.Status, c.CreatedAt, c.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

const contactColumns = `id, reference_check_id, name, email, phone, relationship, status, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (ReferenceContact, error) {
	var c ReferenceContact
	err := row.Scan(&c.ID, &c.CheckID, &c.Name, &c.Email, &c.Phone, &c.Relationship, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *PostgresRepo) GetContact(ctx context.Context, id string) (ReferenceContact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM reference_contacts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReferenceContact{}, ErrNotFound
		}
		return ReferenceContact{}, err
	}
	return c, nil
}

func (r *PostgresRepo) ListContacts(ctx context.Context, checkID string) ([]ReferenceContact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM reference_contacts WHERE reference_check_id = $1 ORDER BY created_at, id`, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ReferenceContact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateContactStatus(ctx context.Context, id string, from []ContactStatus, to ContactStatus, now time.Time) (bool, error) {
	const q = `
UPDATE reference_contacts
SET status = $2, updated_at = $3
WHERE id = $1 AND status = ANY($4)
`
	fromStr := make([]string, 0, len(from))
	for _, s := range from {
		fromStr = append(fromStr, string(s))
	}
	res, err := r.db.ExecContext(ctx, q, id, to, now, fromStr)
	if err != nil {
		return false, err
	}
	return utils.RowsAffected(res)
}

func (r *PostgresRepo) SaveResponses(ctx context.Context, rs []ReferenceResponse) error {
	const q = `
INSERT INTO reference_responses (id, reference_check_id, contact_id, question_id, question, answer, order_num, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	if len(rs) == 0 {
		return nil
	}
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// The contact row lock serializes concurrent submissions from the same link.
		var answered bool
		if err := tx.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM reference_responses WHERE contact_id = c.id)
FROM reference_contacts c
WHERE c.id = $1
FOR UPDATE
`, rs[0].ContactID).Scan(&answered); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if answered {
			return ErrConflict
		}
		for _, resp := range rs {
			if _, err := tx.ExecContext(ctx, q, resp.ID, resp.CheckID, resp.ContactID, nullIfEmpty(resp.QuestionID),
				resp.Question, resp.Answer, resp.Order, resp.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if utils.IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepo) ListResponses(ctx context.Context, checkID string) ([]ReferenceResponse, error) {
	const q = `
SELECT id, reference_check_id, contact_id, COALESCE(question_id::text, ''), question, answer, order_num, created_at
FROM reference_responses
WHERE reference_check_id = $1
ORDER BY created_at, contact_id, order_num
`
	rows, err := r.db.QueryContext(ctx, q, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ReferenceResponse, 0)
	for rows.Next() {
		var resp ReferenceResponse
		if err := rows.Scan(&resp.ID, &resp.CheckID, &resp.ContactID, &resp.QuestionID, &resp.Question, &resp.Answer, &resp.Order, &resp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) DeleteCheck(ctx context.Context, id string) error {
	const q = `
DELETE FROM reference_checks
WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM reference_contacts WHERE reference_check_id = $1)
`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
