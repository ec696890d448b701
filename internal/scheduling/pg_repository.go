package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Index names the race backstop relies on; see internal/db schema.
const (
	doctorSlotIndex = "uq_appointments_doctor_slot"
	patientDayIndex = "uq_appointments_patient_day"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, doctor_id, date, time_minutes, type, concern, status, check_in_time, payment_method, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var minutes int32
	var checkIn *time.Time

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&minutes,
		&a.Type,
		&a.Concern,
		&a.Status,
		&checkIn,
		&a.PaymentMethod,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time = ClockTime(minutes)
	a.CheckInTime = checkIn
	a.Date = a.Date.UTC()
	return &a, nil
}

// mapUniqueViolation turns a partial-unique-index violation into the typed
// conflict error the application-level check would have produced. This is
// the store-side backstop for bookings that raced past the booking lock.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case doctorSlotIndex:
		return ErrDoctorSlotTaken
	case patientDayIndex:
		return ErrPatientAlreadyBooked
	}
	return err
}

// Interface methods

func (r *PgRepository) GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID) (*DoctorAvailability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT doctor_id, weekdays, windows, consulting, updated_at
		FROM doctor_availability
		WHERE doctor_id = $1
	`, doctorID)

	var av DoctorAvailability
	var weekdays []int32
	var windowsJSON []byte

	err := row.Scan(&av.DoctorID, &weekdays, &windowsJSON, &av.Consulting, &av.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	av.Weekdays = make([]time.Weekday, 0, len(weekdays))
	for _, d := range weekdays {
		av.Weekdays = append(av.Weekdays, time.Weekday(d))
	}
	if err := json.Unmarshal(windowsJSON, &av.Windows); err != nil {
		return nil, fmt.Errorf("decode availability windows: %w", err)
	}

	return &av, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND ($3 OR status <> 'cancelled')
		ORDER BY time_minutes
	`, doctorID, date, includeCancelled)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatientDate(ctx context.Context, patientID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND date = $2
		  AND ($3 OR status <> 'cancelled')
		ORDER BY time_minutes
	`, patientID, date, includeCancelled)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, time_minutes, type, concern, status, payment_method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.DoctorID, a.Date, int32(a.Time), a.Type, a.Concern, a.Status, a.PaymentMethod)

	inserted, err := scanAppointment(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return inserted, nil
}

func (r *PgRepository) UpdateSlot(ctx context.Context, id uuid.UUID, date time.Time, t ClockTime) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    time_minutes = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		RETURNING `+appointmentColumns+`
	`, id, date, int32(t))

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, checkInTime *time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    check_in_time = COALESCE($4, check_in_time),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, checkInTime)

	return scanAppointment(row)
}

func (r *PgRepository) ListOverdueScheduled(ctx context.Context, cutoffDate time.Time, cutoffTime ClockTime) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND (date < $1 OR (date = $1 AND time_minutes < $2))
		ORDER BY date, time_minutes
	`, cutoffDate, int32(cutoffTime))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
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
