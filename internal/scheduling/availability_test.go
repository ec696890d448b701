package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func tuesdayAvailability() *DoctorAvailability {
	return &DoctorAvailability{
		DoctorID: uuid.New(),
		Weekdays: []time.Weekday{time.Tuesday},
		Windows: []TimeWindow{
			{Start: NewClockTime(9, 0), End: NewClockTime(12, 0)},
		},
	}
}

// 2026-09-01 is a Tuesday.
var (
	someTuesday   = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	someWednesday = time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
)

func TestIsWithinAvailability_WeekdayNotOffered(t *testing.T) {
	av := tuesdayAvailability()

	for hour := 0; hour < 24; hour++ {
		assert.False(t, IsWithinAvailability(av, someWednesday, NewClockTime(hour, 0)),
			"no time on a non-working weekday should be available")
	}
}

func TestIsWithinAvailability_HalfOpenWindow(t *testing.T) {
	av := tuesdayAvailability()

	tests := []struct {
		name string
		time ClockTime
		want bool
	}{
		{"before window", NewClockTime(8, 59), false},
		{"window start", NewClockTime(9, 0), true},
		{"inside window", NewClockTime(10, 30), true},
		{"last bookable minute", NewClockTime(11, 59), true},
		{"window end is exclusive", NewClockTime(12, 0), false},
		{"after window", NewClockTime(15, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinAvailability(av, someTuesday, tt.time))
		})
	}
}

func TestIsWithinAvailability_OverlappingWindowsActAsUnion(t *testing.T) {
	av := tuesdayAvailability()
	av.Windows = []TimeWindow{
		{Start: NewClockTime(9, 0), End: NewClockTime(11, 0)},
		{Start: NewClockTime(10, 0), End: NewClockTime(13, 0)},
	}

	assert.True(t, IsWithinAvailability(av, someTuesday, NewClockTime(10, 30)))
	assert.True(t, IsWithinAvailability(av, someTuesday, NewClockTime(12, 59)))
	assert.True(t, IsWithinAvailability(av, someTuesday, NewClockTime(9, 0)))
	assert.False(t, IsWithinAvailability(av, someTuesday, NewClockTime(13, 0)))
	assert.False(t, IsWithinAvailability(av, someTuesday, NewClockTime(8, 59)))
}

func TestIsWithinAvailability_ConsultingFlagIgnored(t *testing.T) {
	av := tuesdayAvailability()
	av.Consulting = true

	// The busy flag gates new bookings in the service, not window membership.
	assert.True(t, IsWithinAvailability(av, someTuesday, NewClockTime(10, 0)))
}

func TestIsWithinAvailability_NilAvailability(t *testing.T) {
	assert.False(t, IsWithinAvailability(nil, someTuesday, NewClockTime(10, 0)))
}
