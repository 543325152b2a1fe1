package questions

import (
	"context"
	"database/sql"

	"voiceref/pkg/utils"
)

// PostgresRepo stores questions in the questions table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) InsertBatch(ctx context.Context, qs []Question) error {
	if len(qs) == 0 {
		return nil
	}
	const q = `
INSERT INTO questions (id, reference_check_id, text, category, order_num, source, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, qu := range qs {
			if _, err := stmt.ExecContext(ctx, qu.ID, qu.CheckID, qu.Text, qu.Category, qu.Order, qu.Source, qu.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) ListByCheck(ctx context.Context, checkID string) ([]Question, error) {
	const q = `
SELECT id, reference_check_id, text, category, order_num, source, created_at
FROM questions
WHERE reference_check_id = $1
ORDER BY order_num
`
	rows, err := r.db.QueryContext(ctx, q, checkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var qu Question
		if err := rows.Scan(&qu.ID, &qu.CheckID, &qu.Text, &qu.Category, &qu.Order, &qu.Source, &qu.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}
