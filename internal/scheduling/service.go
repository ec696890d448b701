package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

// ServiceConfig carries the scheduling policy knobs.
type ServiceConfig struct {
	// SlotDuration is the fixed length of one appointment slot.
	SlotDuration time.Duration
	// Location is the clinic's timezone, used to resolve a date+clock-time
	// pair to an instant when comparing against the wall clock.
	Location *time.Location
}

// Service is the only component that creates or mutates appointment records.
// It orders every booking as read → validate → write and runs that sequence
// under the booking lock so concurrent requests for the same doctor-day or
// patient-day cannot both commit.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    ServiceConfig
	log    *zap.Logger

	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg ServiceConfig, log *zap.Logger) *Service {
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = DefaultSlotDuration
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// SlotDuration returns the configured slot length.
func (s *Service) SlotDuration() time.Duration {
	return s.cfg.SlotDuration
}

type CreateAppointmentCommand struct {
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	Date          time.Time
	Time          ClockTime
	Type          AppointmentType
	Concern       string
	PaymentMethod string
}

// CreateAppointment books a new slot for a patient.
//
// Rejections, in check order: ErrScheduledInPast, ErrDoctorNotFound,
// ErrOutsideAvailability, ErrDoctorBusy, then under the booking lock
// ErrDoctorSlotTaken before ErrPatientAlreadyBooked. All of these are normal
// outcomes and leave no partial writes.
func (s *Service) CreateAppointment(ctx context.Context, cmd CreateAppointmentCommand) (*Appointment, error) {
	if cmd.Type == "" {
		cmd.Type = TypeConsultation
	}

	cand := &Appointment{
		ID:            uuid.New(),
		PatientID:     cmd.PatientID,
		DoctorID:      cmd.DoctorID,
		Date:          Date(cmd.Date, s.cfg.Location),
		Time:          cmd.Time,
		Type:          cmd.Type,
		Concern:       cmd.Concern,
		PaymentMethod: cmd.PaymentMethod,
		Status:        StatusScheduled,
	}

	if cand.StartsAt(s.cfg.Location).Before(s.now()) {
		return nil, ErrScheduledInPast
	}

	if err := s.checkDoctorOpen(ctx, cand.DoctorID, cand.Date, cand.Time); err != nil {
		return nil, err
	}

	var created *Appointment
	err := s.locker.WithBookingLock(ctx, s.bookingKeys(cand), func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, cand); err != nil {
			return err
		}

		inserted, err := s.repo.Insert(lockCtx, cand)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		if isConflict(err) {
			s.log.Info("booking rejected",
				zap.String("doctor_id", cmd.DoctorID.String()),
				zap.String("patient_id", cmd.PatientID.String()),
				zap.String("date", cand.Date.Format(DateLayout)),
				zap.String("time", cand.Time.String()),
				zap.String("reason", err.Error()))
		}
		return nil, err
	}

	s.log.Info("appointment created",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("date", created.Date.Format(DateLayout)),
		zap.String("time", created.Time.String()))

	return created, nil
}

// Reschedule moves a scheduled appointment to a new date/time. The record's
// own id is excluded from its duplicate check, so moving within the same day
// is legal. Status is never changed; only a scheduled appointment may move.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime ClockTime) (*Appointment, error) {
	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	cand := *existing
	cand.Date = Date(newDate, s.cfg.Location)
	cand.Time = newTime

	if err := s.checkDoctorOpen(ctx, cand.DoctorID, cand.Date, cand.Time); err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.locker.WithBookingLock(ctx, s.bookingKeys(&cand), func(lockCtx context.Context) error {
		if err := s.checkConflicts(lockCtx, &cand); err != nil {
			return err
		}

		moved, err := s.repo.UpdateSlot(lockCtx, id, cand.Date, cand.Time)
		if err != nil {
			return err
		}
		updated = moved
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.log.Info("appointment rescheduled",
		zap.String("appointment_id", id.String()),
		zap.String("date", updated.Date.Format(DateLayout)),
		zap.String("time", updated.Time.String()))

	return updated, nil
}

// CheckIn transitions a scheduled appointment to checked_in and stamps the
// check-in time. Any other starting state fails with ErrInvalidTransition.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanTransitionTo(StatusCheckedIn) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	return s.transition(ctx, id, StatusScheduled, StatusCheckedIn, &now)
}

// Cancel transitions a scheduled or checked-in appointment to cancelled.
// Cancelling an already-cancelled appointment succeeds without mutation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status == StatusCancelled {
		return existing, nil
	}
	if !existing.Status.CanTransitionTo(StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	return s.transition(ctx, id, existing.Status, StatusCancelled, nil)
}

// MarkCompleted transitions a checked-in appointment to completed.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanTransitionTo(StatusCompleted) {
		return nil, ErrInvalidTransition
	}

	return s.transition(ctx, id, StatusCheckedIn, StatusCompleted, nil)
}

// MarkNoShow transitions a scheduled appointment to no_show. The caller
// attests that the appointment's instant has passed; only the state is
// re-validated here.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	existing, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanTransitionTo(StatusNoShow) {
		return nil, ErrInvalidTransition
	}

	return s.transition(ctx, id, StatusScheduled, StatusNoShow, nil)
}

// SweepNoShows marks every scheduled appointment whose slot started more than
// grace ago as no_show and returns how many were marked. Records raced into
// another state between the list and the conditional update are skipped.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace).In(s.cfg.Location)
	cutoffDate := Date(cutoff, s.cfg.Location)
	cutoffTime := NewClockTime(cutoff.Hour(), cutoff.Minute())

	overdue, err := s.repo.ListOverdueScheduled(ctx, cutoffDate, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("list overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range overdue {
		_, err := s.repo.UpdateStatus(ctx, appt.ID, StatusScheduled, StatusNoShow, nil)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			return marked, fmt.Errorf("mark no-show %s: %w", appt.ID, err)
		}
		marked++
		s.log.Info("appointment marked no-show",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("date", appt.Date.Format(DateLayout)),
			zap.String("time", appt.Time.String()))
	}

	return marked, nil
}

// GetAppointment retrieves an appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListForDoctor lists a doctor's appointments on a date, non-cancelled
// unless includeCancelled is set.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error) {
	return s.repo.ListByDoctorDate(ctx, doctorID, Date(date, s.cfg.Location), includeCancelled)
}

// ListForPatient lists a patient's appointments on a date, non-cancelled
// unless includeCancelled is set.
func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error) {
	return s.repo.ListByPatientDate(ctx, patientID, Date(date, s.cfg.Location), includeCancelled)
}

// GetDoctorAvailability returns a doctor's recurring weekly schedule.
func (s *Service) GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID) (*DoctorAvailability, error) {
	return s.repo.GetDoctorAvailability(ctx, doctorID)
}

// checkDoctorOpen validates the availability window and the consulting busy
// flag. The flag is a soft signal that only gates new bookings, which is why
// it lives here and not in the availability calculator.
func (s *Service) checkDoctorOpen(ctx context.Context, doctorID uuid.UUID, date time.Time, t ClockTime) error {
	av, err := s.repo.GetDoctorAvailability(ctx, doctorID)
	if err != nil {
		return err
	}
	if !IsWithinAvailability(av, date, t) {
		return ErrOutsideAvailability
	}
	if av.Consulting {
		return ErrDoctorBusy
	}
	return nil
}

// checkConflicts loads the doctor-day and patient-day appointment sets and
// rejects on the first conflict, doctor-side before patient-side. Must be
// called while holding the booking lock.
func (s *Service) checkConflicts(ctx context.Context, cand *Appointment) error {
	doctorAppts, err := s.repo.ListByDoctorDate(ctx, cand.DoctorID, cand.Date, false)
	if err != nil {
		return fmt.Errorf("load doctor appointments: %w", err)
	}
	patientAppts, err := s.repo.ListByPatientDate(ctx, cand.PatientID, cand.Date, false)
	if err != nil {
		return fmt.Errorf("load patient appointments: %w", err)
	}

	conflicts := FindConflicts(cand, append(doctorAppts, patientAppts...), s.cfg.SlotDuration)
	if len(conflicts) == 0 {
		return nil
	}
	switch conflicts[0].Kind {
	case ConflictDoctorOverlap:
		return ErrDoctorSlotTaken
	default:
		return ErrPatientAlreadyBooked
	}
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, checkInTime *time.Time) (*Appointment, error) {
	updated, err := s.repo.UpdateStatus(ctx, id, from, to, checkInTime)
	if err != nil {
		// The row existed a moment ago, so a failed conditional update means
		// the status changed under us.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	s.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	return updated, nil
}

func (s *Service) bookingKeys(a *Appointment) []string {
	date := a.Date.Format(DateLayout)
	return []string{
		redisclient.DoctorDayKey(a.DoctorID, date),
		redisclient.PatientDayKey(a.PatientID, date),
	}
}

func isConflict(err error) bool {
	return errors.Is(err, ErrDoctorSlotTaken) || errors.Is(err, ErrPatientAlreadyBooked)
}
