package scheduling

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for appointment dates.
const DateLayout = "2006-01-02"

// DefaultSlotDuration is used when no slot duration is configured.
const DefaultSlotDuration = 30 * time.Minute

// ClockTime is a clock-of-day time with minute precision, stored as minutes
// since midnight. It has no date or timezone component.
type ClockTime int

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses "HH:MM" in 24h format.
func ParseClockTime(s string) (ClockTime, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return NewClockTime(hour, minute), nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Add returns the clock time d later, truncated to minutes. Callers are
// responsible for not crossing midnight; slot arithmetic here never does.
func (c ClockTime) Add(d time.Duration) ClockTime {
	return c + ClockTime(d/time.Minute)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeWindow is a half-open [Start, End) consulting window within a day.
type TimeWindow struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// Contains reports whether t falls inside the window, half-open: the start
// minute is bookable, the end minute is not.
func (w TimeWindow) Contains(t ClockTime) bool {
	return t >= w.Start && t < w.End
}

// DoctorAvailability is a doctor's recurring weekly consulting schedule.
// Windows may overlap in source data; they are always evaluated as a union.
// The record is owned by clinic administration and read-only here.
type DoctorAvailability struct {
	DoctorID   uuid.UUID
	Weekdays   []time.Weekday
	Windows    []TimeWindow
	Consulting bool // doctor is busy with a walk-in; blocks new bookings only
	UpdatedAt  time.Time
}

// OnWeekday reports whether the doctor takes appointments on the given day.
func (a *DoctorAvailability) OnWeekday(d time.Weekday) bool {
	for _, wd := range a.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

type AppointmentType string

const (
	TypeConsultation     AppointmentType = "consultation"
	TypeTeleconsultation AppointmentType = "teleconsultation"
	TypeFollowUp         AppointmentType = "follow_up"
)

// AppointmentStatus is the appointment lifecycle state.
//
// Allowed transitions:
//
//	scheduled  → checked_in → completed
//	scheduled  → cancelled
//	checked_in → cancelled
//	scheduled  → no_show
//
// completed, cancelled and no_show are terminal.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCheckedIn AppointmentStatus = "checked_in"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID

	Date time.Time // calendar date, normalized to midnight UTC
	Time ClockTime

	Type    AppointmentType
	Concern string
	Status  AppointmentStatus

	CheckInTime   *time.Time // set exactly once, on entering checked_in
	PaymentMethod string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Date returns t's calendar date in loc, normalized to midnight UTC so that
// equal dates compare with Equal regardless of source timezone.
func Date(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartsAt resolves the appointment's date+time to an instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(),
		a.Time.Hour(), a.Time.Minute(), 0, 0, loc)
}

// Weekday is the weekday of the appointment's calendar date.
func (a *Appointment) Weekday() time.Weekday {
	return a.Date.Weekday()
}

// SameDate reports whether both appointments fall on the same calendar date.
func (a *Appointment) SameDate(b *Appointment) bool {
	return a.Date.Equal(b.Date)
}
