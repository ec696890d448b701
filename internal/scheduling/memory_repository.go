package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository with the same
// semantics as the Postgres implementation, including the uniqueness
// backstop on writes. It backs the test suite and local runs that have no
// database at hand.
type MemoryRepository struct {
	mu             sync.Mutex
	appointments   map[uuid.UUID]*Appointment
	availabilities map[uuid.UUID]*DoctorAvailability
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments:   make(map[uuid.UUID]*Appointment),
		availabilities: make(map[uuid.UUID]*DoctorAvailability),
	}
}

// PutDoctorAvailability stores an availability record. Availability is
// written by clinic administration, outside the scheduling core, so this is
// not part of the Repository interface.
func (r *MemoryRepository) PutDoctorAvailability(av *DoctorAvailability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *av
	r.availabilities[av.DoctorID] = &cp
}

func (r *MemoryRepository) GetDoctorAvailability(_ context.Context, doctorID uuid.UUID) (*DoctorAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	av, ok := r.availabilities[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *av
	return &cp, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.DoctorID != doctorID || !a.Date.Equal(date) {
			continue
		}
		if !includeCancelled && a.Status == StatusCancelled {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *MemoryRepository) ListByPatientDate(_ context.Context, patientID uuid.UUID, date time.Time, includeCancelled bool) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID != patientID || !a.Date.Equal(date) {
			continue
		}
		if !includeCancelled && a.Status == StatusCancelled {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (r *MemoryRepository) Insert(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(a); err != nil {
		return nil, err
	}

	now := time.Now()
	cp := *a
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.appointments[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateSlot(_ context.Context, id uuid.UUID, date time.Time, t ClockTime) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != StatusScheduled {
		return nil, ErrAppointmentNotFound
	}

	cand := *a
	cand.Date = date
	cand.Time = t
	if err := r.checkUnique(&cand); err != nil {
		return nil, err
	}

	a.Date = date
	a.Time = t
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, checkInTime *time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	if checkInTime != nil {
		t := *checkInTime
		a.CheckInTime = &t
	}
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListOverdueScheduled(_ context.Context, cutoffDate time.Time, cutoffTime ClockTime) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		if a.Date.Before(cutoffDate) || (a.Date.Equal(cutoffDate) && a.Time < cutoffTime) {
			result = append(result, *a)
		}
	}
	return result, nil
}

// checkUnique mirrors the Postgres partial unique indexes: exact-slot
// uniqueness per doctor and one non-cancelled appointment per patient-day.
func (r *MemoryRepository) checkUnique(cand *Appointment) error {
	for _, other := range r.appointments {
		if other.ID == cand.ID || other.Status == StatusCancelled {
			continue
		}
		if !other.Date.Equal(cand.Date) {
			continue
		}
		if other.DoctorID == cand.DoctorID && other.Time == cand.Time {
			return ErrDoctorSlotTaken
		}
		if other.PatientID == cand.PatientID {
			return ErrPatientAlreadyBooked
		}
	}
	return nil
}
