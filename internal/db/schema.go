package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The partial unique indexes are the store-level half of the booking race
// protection: a create or reschedule that slips past the booking lock is
// rejected here, and the repository maps the violation back to the same
// typed conflict error the application check produces.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS doctor_availability (
		doctor_id  uuid PRIMARY KEY,
		weekdays   int[] NOT NULL,
		windows    jsonb NOT NULL,
		consulting boolean NOT NULL DEFAULT false,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id             uuid PRIMARY KEY,
		patient_id     uuid NOT NULL,
		doctor_id      uuid NOT NULL,
		date           date NOT NULL,
		time_minutes   int NOT NULL CHECK (time_minutes >= 0 AND time_minutes < 1440),
		type           varchar(50) NOT NULL,
		concern        text NOT NULL DEFAULT '',
		status         varchar(30) NOT NULL DEFAULT 'scheduled',
		check_in_time  timestamptz,
		payment_method varchar(50) NOT NULL DEFAULT '',
		created_at     timestamptz NOT NULL DEFAULT now(),
		updated_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_doctor_slot
		ON appointments (doctor_id, date, time_minutes)
		WHERE status <> 'cancelled'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_appointments_patient_day
		ON appointments (patient_id, date)
		WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_status_date
		ON appointments (status, date, time_minutes)`,
}

// EnsureSchema creates the scheduling tables and indexes if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
