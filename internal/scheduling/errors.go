package scheduling

import "errors"

// Validation outcomes. These are expected results of a booking attempt, not
// faults: callers map them to user-facing rejections and must not retry.
var (
	ErrOutsideAvailability  = errors.New("requested time is outside the doctor's availability")
	ErrDoctorBusy           = errors.New("doctor is currently in a consultation")
	ErrDoctorSlotTaken      = errors.New("doctor already has an appointment at that time")
	ErrPatientAlreadyBooked = errors.New("patient already has an appointment on that date")
	ErrInvalidTransition    = errors.New("invalid appointment status transition")
	ErrScheduledInPast      = errors.New("cannot schedule an appointment in the past")

	ErrDoctorNotFound      = errors.New("doctor availability not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrBookingContended is returned when the booking lock for the same
	// doctor or patient scope is held by a concurrent request. Unlike the
	// validation outcomes above, the caller may retry shortly.
	ErrBookingContended = errors.New("booking is currently contended, please retry")
)
