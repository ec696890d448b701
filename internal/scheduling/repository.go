package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
//
// Insert and UpdateSlot must be conditioned on the same uniqueness rules the
// conflict detector enforces — (doctor, date, time) and (patient, date) over
// non-cancelled rows — and surface a violation as ErrDoctorSlotTaken or
// ErrPatientAlreadyBooked. That store-level backstop is what makes a raced
// booking safe even if the application-level check raced.
type Repository interface {
	GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID) (*DoctorAvailability, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error)
	ListByPatientDate(ctx context.Context, patientID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error)

	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateSlot(ctx context.Context, id uuid.UUID, date time.Time, t ClockTime) (*Appointment, error)

	// UpdateStatus transitions id from one status to another atomically: the
	// write applies only if the row is still in the expected from status, and
	// returns ErrAppointmentNotFound otherwise. checkInTime is stamped only
	// when transitioning into checked_in.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, checkInTime *time.Time) (*Appointment, error)

	// ListOverdueScheduled returns scheduled appointments that fall strictly
	// before the cutoff: on an earlier date, or on the cutoff date at an
	// earlier clock time. Used by the no-show sweep.
	ListOverdueScheduled(ctx context.Context, cutoffDate time.Time, cutoffTime ClockTime) ([]Appointment, error)
}
