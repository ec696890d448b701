package scheduling

import "time"

// ConflictKind describes which booking invariant a candidate violates.
type ConflictKind string

const (
	// ConflictDoctorOverlap means the doctor already has a non-cancelled
	// appointment whose slot interval intersects the candidate's.
	ConflictDoctorOverlap ConflictKind = "doctor_overlap"
	// ConflictPatientDuplicate means the patient already has a non-cancelled
	// appointment on the candidate's date.
	ConflictPatientDuplicate ConflictKind = "patient_duplicate"
)

// Conflict records one collision between a candidate and an existing
// appointment, tagged with the violated invariant.
type Conflict struct {
	Kind ConflictKind
	With *Appointment
}

// overlaps reports whether the two half-open minute intervals intersect.
func overlaps(aStart, aEnd, bStart, bEnd ClockTime) bool {
	return aStart < bEnd && aEnd > bStart
}

// FindConflicts checks the candidate against the existing appointment set and
// returns every collision found, doctor-overlap conflicts first. Cancelled
// records never conflict, and an existing record with the candidate's own ID
// is skipped so a reschedule does not collide with itself.
//
// Availability is not checked here; an empty result only means the candidate
// is legal with respect to existing records. Pure and deterministic.
func FindConflicts(candidate *Appointment, existing []Appointment, slotDuration time.Duration) []Conflict {
	candStart := candidate.Time
	candEnd := candidate.Time.Add(slotDuration)

	var doctor, patient []Conflict
	for i := range existing {
		other := &existing[i]
		if other.ID == candidate.ID {
			continue
		}
		if other.Status == StatusCancelled {
			continue
		}
		if !other.SameDate(candidate) {
			continue
		}
		if other.DoctorID == candidate.DoctorID &&
			overlaps(candStart, candEnd, other.Time, other.Time.Add(slotDuration)) {
			doctor = append(doctor, Conflict{Kind: ConflictDoctorOverlap, With: other})
		}
		if other.PatientID == candidate.PatientID {
			patient = append(patient, Conflict{Kind: ConflictPatientDuplicate, With: other})
		}
	}

	// Doctor-side conflicts are reported before patient-side ones so the
	// service's rejection ordering is deterministic.
	return append(doctor, patient...)
}
