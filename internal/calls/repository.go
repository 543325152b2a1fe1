package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voiceref/pkg/utils"
)

// Repository is the persistence contract for scheduled calls.
//
// Every status mutation is a conditional update that reports whether this caller
// won the transition; callers use that to keep side effects at-most-once.
type Repository interface {
	Create(ctx context.Context, c ScheduledCall) error
	Get(ctx context.Context, id string) (ScheduledCall, error)
	FindByProviderCallID(ctx context.Context, providerCallID string) (ScheduledCall, error)
	// FindByAssistantID matches on the per-call assistant, for rows whose provider id was never stored.
	FindByAssistantID(ctx context.Context, assistantID string) (ScheduledCall, error)
	// HasOpenCalls reports whether any call of the check is still scheduled or in progress.
	HasOpenCalls(ctx context.Context, checkID string) (bool, error)
	// ListDue returns scheduled rows with scheduled_time <= until, oldest first.
	ListDue(ctx context.Context, until time.Time, limit int) ([]ScheduledCall, error)
	ListByCheck(ctx context.Context, checkID string) ([]ScheduledCall, error)

	// ClaimForDispatch moves scheduled -> in_progress.
	ClaimForDispatch(ctx context.Context, id string, now time.Time) (bool, error)
	SetProviderCallID(ctx context.Context, id, providerCallID string, now time.Time) error
	// MarkInProgress moves scheduled -> in_progress on a started event.
	MarkInProgress(ctx context.Context, id string, now time.Time) (bool, error)
	// Complete writes the final state unless the row is already terminal.
	Complete(ctx context.Context, id string, c Completion) (bool, error)
	// MarkFailed moves any non-terminal row to failed.
	MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error)
	MarkNotified(ctx context.Context, id string, now time.Time) (bool, error)

	// SaveTranscript inserts once per call; a second insert reports false.
	SaveTranscript(ctx context.Context, t CallTranscript) (bool, error)
	GetTranscript(ctx context.Context, callID string) (CallTranscript, error)
}

// PostgresRepo stores calls in scheduled_calls and call_transcripts.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, reference_check_id, COALESCE(contact_id::text, ''), phone_number, contact_name, scheduled_time,
assistant_id, COALESCE(provider_call_id, ''), status, transcript, formatted_transcript, duration_seconds,
recording_url, error_message, dispatched_at, completed_at, notified_at, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (ScheduledCall, error) {
	var c ScheduledCall
	var dispatchedAt, completedAt, notifiedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.CheckID,
		&c.ContactID,
		&c.PhoneNumber,
		&c.ContactName,
		&c.ScheduledTime,
		&c.AssistantID,
		&c.ProviderCallID,
		&c.Status,
		&c.Transcript,
		&c.FormattedTranscript,
		&c.DurationSeconds,
		&c.RecordingURL,
		&c.ErrorMessage,
		&dispatchedAt,
		&completedAt,
		&notifiedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return ScheduledCall{}, err
	}
	c.DispatchedAt = nullTimePtr(dispatchedAt)
	c.CompletedAt = nullTimePtr(completedAt)
	c.NotifiedAt = nullTimePtr(notifiedAt)
	return c, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresRepo) Create(ctx context.Context, c ScheduledCall) error {
	const q = `
INSERT INTO scheduled_calls (id, reference_check_id, contact_id, phone_number, contact_name, scheduled_time,
    assistant_id, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.CheckID, nullIfEmpty(c.ContactID), c.PhoneNumber, c.ContactName,
		c.ScheduledTime, c.AssistantID, c.Status, c.CreatedAt, c.UpdatedAt)
	if utils.IsUniqueViolation(err) {
		return fmt.Errorf("%w: call %s already exists", ErrConflict, c.ID)
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (ScheduledCall, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM scheduled_calls WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) FindByProviderCallID(ctx context.Context, providerCallID string) (ScheduledCall, error) {
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM scheduled_calls WHERE provider_call_id = $1`, providerCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) FindByAssistantID(ctx context.Context, assistantID string) (ScheduledCall, error) {
	if assistantID == "" {
		return ScheduledCall{}, ErrNotFound
	}
	c, err := scanCall(r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM scheduled_calls WHERE assistant_id = $1`, assistantID))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) HasOpenCalls(ctx context.Context, checkID string) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM scheduled_calls
    WHERE reference_check_id = $1 AND status IN ('scheduled', 'in_progress')
)`
	var open bool
	err := r.db.QueryRowContext(ctx, q, checkID).Scan(&open)
	return open, err
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]ScheduledCall, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ScheduledCall, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListDue(ctx context.Context, until time.Time, limit int) ([]ScheduledCall, error) {
	return r.list(ctx, `
SELECT `+callColumns+`
FROM scheduled_calls
WHERE status = 'scheduled' AND scheduled_time <= $1
ORDER BY scheduled_time
LIMIT $2
`, until, limit)
}

func (r *PostgresRepo) ListByCheck(ctx context.Context, checkID string) ([]ScheduledCall, error) {
	return r.list(ctx, `SELECT `+callColumns+` FROM scheduled_calls WHERE reference_check_id = $1 ORDER BY scheduled_time`, checkID)
}

func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return utils.RowsAffected(res)
}

func (r *PostgresRepo) ClaimForDispatch(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.exec(ctx, `
UPDATE scheduled_calls
SET status = 'in_progress', dispatched_at = $2, updated_at = $2
WHERE id = $1 AND status = 'scheduled'
`, id, now)
}

func (r *PostgresRepo) SetProviderCallID(ctx context.Context, id, providerCallID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE scheduled_calls
SET provider_call_id = $2, updated_at = $3
WHERE id = $1 AND provider_call_id IS NULL
`, id, providerCallID, now)
	return err
}

func (r *PostgresRepo) MarkInProgress(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.exec(ctx, `
UPDATE scheduled_calls
SET status = 'in_progress', updated_at = $2
WHERE id = $1 AND status = 'scheduled'
`, id, now)
}

func (r *PostgresRepo) Complete(ctx context.Context, id string, c Completion) (bool, error) {
	return r.exec(ctx, `
UPDATE scheduled_calls
SET status = $2, duration_seconds = $3, recording_url = $4, transcript = $5, formatted_transcript = $6,
    error_message = $7, completed_at = $8, updated_at = $8
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'no_answer')
`, id, c.Status, c.DurationSeconds, c.RecordingURL, c.Transcript, c.FormattedTranscript, c.ErrorMessage, c.CompletedAt)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error) {
	return r.exec(ctx, `
UPDATE scheduled_calls
SET status = 'failed', error_message = $2, completed_at = $3, updated_at = $3
WHERE id = $1 AND status NOT IN ('completed', 'failed', 'no_answer')
`, id, message, now)
}

func (r *PostgresRepo) MarkNotified(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.exec(ctx, `
UPDATE scheduled_calls
SET notified_at = $2, updated_at = $2
WHERE id = $1 AND notified_at IS NULL
`, id, now)
}

func (r *PostgresRepo) SaveTranscript(ctx context.Context, t CallTranscript) (bool, error) {
	return r.exec(ctx, `
INSERT INTO call_transcripts (id, call_id, reference_check_id, raw, formatted, formatter_fallback, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (call_id) DO NOTHING
`, t.ID, t.CallID, t.CheckID, t.Raw, t.Formatted, t.FormatterFallback, t.CreatedAt)
}

func (r *PostgresRepo) GetTranscript(ctx context.Context, callID string) (CallTranscript, error) {
	const q = `
SELECT id, call_id, reference_check_id, raw, formatted, formatter_fallback, created_at
FROM call_transcripts
WHERE call_id = $1
`
	var t CallTranscript
	err := r.db.QueryRowContext(ctx, q, callID).Scan(&t.ID, &t.CallID, &t.CheckID, &t.Raw, &t.Formatted, &t.FormatterFallback, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CallTranscript{}, ErrNotFound
	}
	return t, err
}
