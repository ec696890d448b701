package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

// serialLocker is a blocking in-process Locker. Bookings that contend on the
// same scopes simply queue, which is what the service-level race tests want.
type serialLocker struct {
	mu sync.Mutex
}

func (l *serialLocker) WithBookingLock(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

// contendedLocker always reports the lock as held elsewhere.
type contendedLocker struct{}

func (contendedLocker) WithBookingLock(_ context.Context, _ []string, _ func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

var fixedNow = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()

	repo := NewMemoryRepository()
	svc := NewService(repo, &serialLocker{}, ServiceConfig{
		SlotDuration: 30 * time.Minute,
		Location:     time.UTC,
	}, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func addDoctor(repo *MemoryRepository, weekdays []time.Weekday, windows []TimeWindow) uuid.UUID {
	id := uuid.New()
	repo.PutDoctorAvailability(&DoctorAvailability{
		DoctorID: id,
		Weekdays: weekdays,
		Windows:  windows,
	})
	return id
}

func addTuesdayDoctor(repo *MemoryRepository) uuid.UUID {
	return addDoctor(repo,
		[]time.Weekday{time.Tuesday},
		[]TimeWindow{{Start: NewClockTime(9, 0), End: NewClockTime(12, 0)}})
}

func mustCreate(t *testing.T, svc *Service, doctorID, patientID uuid.UUID, date time.Time, at ClockTime) *Appointment {
	t.Helper()

	appt, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		Time:      at,
		Type:      TypeConsultation,
	})
	require.NoError(t, err)
	return appt
}

func TestCreateAppointment_Success(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	patientID := uuid.New()

	appt := mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 0))

	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, doctorID, appt.DoctorID)
	assert.True(t, appt.Date.Equal(someTuesday))
	assert.Equal(t, NewClockTime(9, 0), appt.Time)
	assert.Nil(t, appt.CheckInTime)

	stored, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
}

func TestCreateAppointment_DefaultsTypeToConsultation(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	appt, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Date:      someTuesday,
		Time:      NewClockTime(9, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, TypeConsultation, appt.Type)
}

func TestCreateAppointment_RejectsPast(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	// 2026-08-25 is the Tuesday before the fixed clock.
	lastTuesday := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Date:      lastTuesday,
		Time:      NewClockTime(9, 0),
	})
	assert.ErrorIs(t, err, ErrScheduledInPast)
}

func TestCreateAppointment_UnknownDoctor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: uuid.New(),
		DoctorID:  uuid.New(),
		Date:      someTuesday,
		Time:      NewClockTime(9, 0),
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestCreateAppointment_DoctorBusyConsulting(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := uuid.New()
	repo.PutDoctorAvailability(&DoctorAvailability{
		DoctorID:   doctorID,
		Weekdays:   []time.Weekday{time.Tuesday},
		Windows:    []TimeWindow{{Start: NewClockTime(9, 0), End: NewClockTime(12, 0)}},
		Consulting: true,
	})

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Date:      someTuesday,
		Time:      NewClockTime(9, 0),
	})
	assert.ErrorIs(t, err, ErrDoctorBusy)
}

// The booking scenario from the product requirements: doctor takes Tuesdays
// 09:00-12:00 with 30-minute slots.
func TestCreateAppointment_BookingScenario(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	patient1 := uuid.New()
	patient2 := uuid.New()
	patient3 := uuid.New()
	ctx := context.Background()

	// Patient 1 books Tuesday 09:00: success.
	mustCreate(t, svc, doctorID, patient1, someTuesday, NewClockTime(9, 0))

	// Patient 2 books the same doctor at 09:15: overlaps patient 1's slot.
	_, err := svc.CreateAppointment(ctx, CreateAppointmentCommand{
		PatientID: patient2, DoctorID: doctorID,
		Date: someTuesday, Time: NewClockTime(9, 15),
	})
	assert.ErrorIs(t, err, ErrDoctorSlotTaken)

	// Patient 1 tries a second booking the same day at a free time.
	_, err = svc.CreateAppointment(ctx, CreateAppointmentCommand{
		PatientID: patient1, DoctorID: doctorID,
		Date: someTuesday, Time: NewClockTime(10, 0),
	})
	assert.ErrorIs(t, err, ErrPatientAlreadyBooked)

	// Patient 3 asks for Wednesday: doctor only works Tuesdays.
	_, err = svc.CreateAppointment(ctx, CreateAppointmentCommand{
		PatientID: patient3, DoctorID: doctorID,
		Date: someWednesday, Time: NewClockTime(9, 0),
	})
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestCreateAppointment_DoctorConflictReportedBeforePatientConflict(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	patientID := uuid.New()

	mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 0))

	// Same patient, same doctor, same slot: both invariants are violated,
	// the doctor-side rejection must win.
	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: patientID, DoctorID: doctorID,
		Date: someTuesday, Time: NewClockTime(9, 0),
	})
	assert.ErrorIs(t, err, ErrDoctorSlotTaken)
}

func TestCreateAppointment_AfterCancelSameDayRebook(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	patientID := uuid.New()
	ctx := context.Background()

	first := mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 0))

	_, err := svc.Cancel(ctx, first.ID)
	require.NoError(t, err)

	// The day is free for the patient again, and the slot for the doctor.
	mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 0))
}

func TestCreateAppointment_Contended(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, contendedLocker{}, ServiceConfig{Location: time.UTC}, nil)
	svc.now = func() time.Time { return fixedNow }
	doctorID := addTuesdayDoctor(repo)

	_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
		PatientID: uuid.New(),
		DoctorID:  doctorID,
		Date:      someTuesday,
		Time:      NewClockTime(9, 0),
	})
	assert.ErrorIs(t, err, ErrBookingContended)
}

func TestCreateAppointment_ConcurrentSamePatientDay(t *testing.T) {
	svc, repo := newTestService(t)
	patientID := uuid.New()

	// One doctor per request, so only the one-per-patient-per-day rule can
	// reject.
	const n = 16
	doctors := make([]uuid.UUID, n)
	for i := range doctors {
		doctors[i] = addTuesdayDoctor(repo)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
				PatientID: patientID,
				DoctorID:  doctors[i],
				Date:      someTuesday,
				Time:      NewClockTime(9, 0),
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrPatientAlreadyBooked)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent booking for the same patient/day must win")

	appts, err := repo.ListByPatientDate(context.Background(), patientID, someTuesday, false)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestCreateAppointment_ConcurrentSameDoctorSlot(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateAppointment(context.Background(), CreateAppointmentCommand{
				PatientID: uuid.New(),
				DoctorID:  doctorID,
				Date:      someTuesday,
				Time:      NewClockTime(9, 0),
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDoctorSlotTaken)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent booking for the same doctor/slot must win")

	appts, err := repo.ListByDoctorDate(context.Background(), doctorID, someTuesday, false)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestReschedule_Success(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	patientID := uuid.New()

	appt := mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 0))

	moved, err := svc.Reschedule(context.Background(), appt.ID, someTuesday, NewClockTime(10, 0))
	require.NoError(t, err)
	assert.Equal(t, appt.ID, moved.ID)
	assert.Equal(t, NewClockTime(10, 0), moved.Time)
	assert.Equal(t, StatusScheduled, moved.Status)
}

func TestReschedule_SelfExcludedFromDuplicateCheck(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	// Moving within the same day would trip the one-per-patient-per-day
	// rule if the record collided with itself.
	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))
	_, err := svc.Reschedule(context.Background(), appt.ID, someTuesday, NewClockTime(11, 30))
	assert.NoError(t, err)
}

func TestReschedule_TargetSlotTaken(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(10, 0))
	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	_, err := svc.Reschedule(context.Background(), appt.ID, someTuesday, NewClockTime(10, 15))
	assert.ErrorIs(t, err, ErrDoctorSlotTaken)

	// The original slot is untouched after the rejection.
	current, err := svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, NewClockTime(9, 0), current.Time)
}

func TestReschedule_OutsideAvailability(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	_, err := svc.Reschedule(context.Background(), appt.ID, someWednesday, NewClockTime(9, 0))
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestReschedule_OnlyFromScheduled(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))
	_, err := svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)

	_, err = svc.Reschedule(ctx, appt.ID, someTuesday, NewClockTime(10, 0))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReschedule_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Reschedule(context.Background(), uuid.New(), someTuesday, NewClockTime(9, 0))
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestLifecycle_CheckInCompleteAndGuards(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	checkedIn, err := svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, checkedIn.Status)
	require.NotNil(t, checkedIn.CheckInTime)
	assert.True(t, checkedIn.CheckInTime.Equal(fixedNow))

	// Second check-in is an invalid transition.
	_, err = svc.CheckIn(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	completed, err := svc.MarkCompleted(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Completed is terminal.
	_, err = svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.CheckIn(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.MarkNoShow(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_CompleteRequiresCheckIn(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	_, err := svc.MarkCompleted(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycle_CancelFromCheckedIn(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))
	_, err := svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestLifecycle_CancelIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	first, err := svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, first.Status)

	again, err := svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, again.Status)
}

func TestLifecycle_NoShowOnlyFromScheduled(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	marked, err := svc.MarkNoShow(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, marked.Status)

	// no_show is terminal.
	_, err = svc.CheckIn(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSweepNoShows(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	overdue := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))
	upcoming := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(11, 0))
	attended := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 30))

	// Move the clock past 09:30 plus grace; check the attended one in first.
	_, err := svc.CheckIn(ctx, attended.ID)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC) }

	marked, err := svc.SweepNoShows(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	a, err := svc.GetAppointment(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, a.Status)

	b, err := svc.GetAppointment(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, b.Status)

	c, err := svc.GetAppointment(ctx, attended.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, c.Status)
}

func TestListOperations_ExcludeCancelledByDefault(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	patientID := uuid.New()
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 0))
	_, err := svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	mustCreate(t, svc, doctorID, patientID, someTuesday, NewClockTime(9, 30))

	active, err := svc.ListForDoctor(ctx, doctorID, someTuesday, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := svc.ListForDoctor(ctx, doctorID, someTuesday, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	forPatient, err := svc.ListForPatient(ctx, patientID, someTuesday, false)
	require.NoError(t, err)
	assert.Len(t, forPatient, 1)
}

// A later availability change must never invalidate an already-committed
// appointment: state transitions keep working even when the slot no longer
// fits the doctor's current schedule.
func TestLegacyAppointmentSurvivesAvailabilityChange(t *testing.T) {
	svc, repo := newTestService(t)
	doctorID := addTuesdayDoctor(repo)
	ctx := context.Background()

	appt := mustCreate(t, svc, doctorID, uuid.New(), someTuesday, NewClockTime(9, 0))

	// Doctor stops working Tuesdays.
	repo.PutDoctorAvailability(&DoctorAvailability{
		DoctorID: doctorID,
		Weekdays: []time.Weekday{time.Friday},
		Windows:  []TimeWindow{{Start: NewClockTime(9, 0), End: NewClockTime(12, 0)}},
	})

	checkedIn, err := svc.CheckIn(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, checkedIn.Status)

	done, err := svc.MarkCompleted(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}
