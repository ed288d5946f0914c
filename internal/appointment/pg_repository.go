package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const appointmentColumns = `id, user_id, department, slot_date, slot_time, symptoms, other_symptom,
	referral_ref, read, cancelled, completed, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var referral *string

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Department,
		&a.SlotDate,
		&a.SlotTime,
		&a.Symptoms,
		&a.OtherSymptom,
		&referral,
		&a.Read,
		&a.Cancelled,
		&a.Completed,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if referral != nil {
		a.ReferralRef = *referral
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Interface methods

func (r *PgRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, icon
		FROM departments
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.Name, &d.Icon); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetDepartment(ctx context.Context, name string) (*Department, error) {
	var d Department
	err := r.pool.QueryRow(ctx, `
		SELECT name, icon
		FROM departments
		WHERE name = $1
	`, name).Scan(&d.Name, &d.Icon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) TakenSlots(ctx context.Context, department string, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_time
		FROM appointments
		WHERE department = $1
		  AND slot_date = $2
		  AND NOT cancelled
	`, department, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		taken = append(taken, label)
	}
	return taken, rows.Err()
}

func (r *PgRepository) Create(ctx context.Context, in NewAppointment) (*Appointment, error) {
	id := uuid.New()
	symptoms := in.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, department, slot_date, slot_time, symptoms, other_symptom,
			referral_ref, read, cancelled, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, false, false, now(), now())
		RETURNING `+appointmentColumns,
		id, in.UserID, in.Department, in.SlotDate, in.SlotTime, symptoms, in.OtherSymptom, nullableString(in.ReferralRef))

	appt, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) Cancel(ctx context.Context, id, userID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET cancelled = true,
		    updated_at = now()
		WHERE id = $1
		  AND user_id = $2
		  AND NOT cancelled
		  AND NOT completed
		RETURNING `+appointmentColumns, id, userID)

	return scanAppointment(row)
}

func (r *PgRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
		  AND user_id = $2
		  AND cancelled
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET completed = true,
		    updated_at = now()
		WHERE id = $1
		  AND NOT cancelled
		  AND NOT completed
		RETURNING `+appointmentColumns, id)

	return scanAppointment(row)
}

func (r *PgRepository) FindBookedUpTo(ctx context.Context, day time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE NOT cancelled
		  AND NOT completed
		  AND slot_date <= $1
	`, day)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET read = true,
		    updated_at = now()
		WHERE user_id = $1
		  AND id = ANY($2::uuid[])
		  AND NOT read
	`, userID, uuidStrings(ids))
	if err != nil {
		return 0, fmt.Errorf("mark appointments read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
