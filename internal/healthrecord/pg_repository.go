package healthrecord

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, user_id, record_date, weight, height, blood_pressure, heart_rate,
	diagnosis, notes, read, created_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Date,
		&rec.Weight,
		&rec.Height,
		&rec.BloodPressure,
		&rec.HeartRate,
		&rec.Diagnosis,
		&rec.Notes,
		&rec.Read,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PgRepository) Create(ctx context.Context, in NewRecord) (*Record, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO health_records (id, user_id, record_date, weight, height, blood_pressure,
			heart_rate, diagnosis, notes, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, now())
		RETURNING `+recordColumns,
		uuid.New(), in.UserID, in.Date, in.Weight, in.Height, in.BloodPressure,
		in.HeartRate, in.Diagnosis, in.Notes)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("insert health record: %w", err)
	}
	return rec, nil
}

func (r *PgRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM health_records
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

func (r *PgRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM health_records
		WHERE id = $1
		  AND user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *PgRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE health_records
		SET read = true
		WHERE user_id = $1
		  AND id = ANY($2::uuid[])
		  AND NOT read
	`, userID, strs)
	if err != nil {
		return 0, fmt.Errorf("mark health records read: %w", err)
	}
	return tag.RowsAffected(), nil
}
