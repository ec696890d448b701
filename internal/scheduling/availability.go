package scheduling

import "time"

// IsWithinAvailability reports whether the given calendar date and clock time
// fall inside one of the doctor's recurring consulting windows.
//
// The weekday must be one of the doctor's weekly days, and the time must fall
// in at least one window using half-open semantics (start bookable, end not).
// Overlapping windows behave as their union. The consulting busy flag is
// deliberately not consulted here: it is a soft signal that only gates new
// bookings and is checked by the service instead.
//
// Pure function; safe to call from any number of concurrent requests.
func IsWithinAvailability(av *DoctorAvailability, date time.Time, t ClockTime) bool {
	if av == nil {
		return false
	}
	if !av.OnWeekday(date.Weekday()) {
		return false
	}
	for _, w := range av.Windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}
