package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/metrics"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

func createAppointmentHandler(svc *scheduling.Service, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := time.Parse(scheduling.DateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		clockTime, err := scheduling.ParseClockTime(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM in 24h format")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), scheduling.CreateAppointmentCommand{
			PatientID:     patientID,
			DoctorID:      doctorID,
			Date:          date,
			Time:          clockTime,
			Type:          scheduling.AppointmentType(req.Type),
			Concern:       req.Concern,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			collector.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
			handleSchedulingError(w, err)
			return
		}

		collector.BookingsTotal.WithLabelValues("created").Inc()
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc *scheduling.Service, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		date, err := time.Parse(scheduling.DateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		clockTime, err := scheduling.ParseClockTime(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM in 24h format")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, clockTime)
		if err != nil {
			collector.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
			handleSchedulingError(w, err)
			return
		}

		collector.BookingsTotal.WithLabelValues("rescheduled").Inc()
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := time.Parse(scheduling.DateLayout, q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
			return
		}
		includeCancelled := q.Get("include_cancelled") == "true"

		var appts []scheduling.Appointment
		switch {
		case q.Get("doctor_id") != "":
			doctorID, err := uuid.Parse(q.Get("doctor_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			appts, err = svc.ListForDoctor(r.Context(), doctorID, date, includeCancelled)
			if err != nil {
				handleSchedulingError(w, err)
				return
			}
		case q.Get("patient_id") != "":
			patientID, err := uuid.Parse(q.Get("patient_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListForPatient(r.Context(), patientID, date, includeCancelled)
			if err != nil {
				handleSchedulingError(w, err)
				return
			}
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "doctor_id or patient_id is required")
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func checkInHandler(svc *scheduling.Service) http.HandlerFunc {
	return transitionHandler(svc.CheckIn)
}

func cancelHandler(svc *scheduling.Service) http.HandlerFunc {
	return transitionHandler(svc.Cancel)
}

func completeHandler(svc *scheduling.Service) http.HandlerFunc {
	return transitionHandler(svc.MarkCompleted)
}

func noShowHandler(svc *scheduling.Service) http.HandlerFunc {
	return transitionHandler(svc.MarkNoShow)
}

func transitionHandler(op func(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := op(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func doctorAvailabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		doctorID, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		av, err := svc.GetDoctorAvailability(r.Context(), doctorID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduledInPast):
		writeError(w, http.StatusUnprocessableEntity, "scheduled_in_past", err.Error())
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, "outside_availability", err.Error())
	case errors.Is(err, scheduling.ErrDoctorBusy):
		writeError(w, http.StatusConflict, "doctor_busy", err.Error())
	case errors.Is(err, scheduling.ErrDoctorSlotTaken):
		writeError(w, http.StatusConflict, "doctor_slot_taken", err.Error())
	case errors.Is(err, scheduling.ErrPatientAlreadyBooked):
		writeError(w, http.StatusConflict, "patient_already_booked", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrBookingContended):
		writeError(w, http.StatusConflict, "booking_contended", "booking is currently contended, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func bookingOutcome(err error) string {
	switch {
	case errors.Is(err, scheduling.ErrDoctorSlotTaken):
		return "doctor_slot_taken"
	case errors.Is(err, scheduling.ErrPatientAlreadyBooked):
		return "patient_already_booked"
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		return "outside_availability"
	case errors.Is(err, scheduling.ErrDoctorBusy):
		return "doctor_busy"
	case errors.Is(err, scheduling.ErrBookingContended):
		return "contended"
	default:
		return "rejected"
	}
}
