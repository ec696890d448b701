package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clinicore/clinic-scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	Date          string `json:"date"` // YYYY-MM-DD
	Time          string `json:"time"` // HH:MM, 24h
	Type          string `json:"type,omitempty"`
	Concern       string `json:"concern,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type AppointmentResponse struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patient_id"`
	DoctorID      string     `json:"doctor_id"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Type          string     `json:"type"`
	Concern       string     `json:"concern,omitempty"`
	Status        string     `json:"status"`
	CheckInTime   *time.Time `json:"check_in_time,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID.String(),
		PatientID:     a.PatientID.String(),
		DoctorID:      a.DoctorID.String(),
		Date:          a.Date.Format(scheduling.DateLayout),
		Time:          a.Time.String(),
		Type:          string(a.Type),
		Concern:       a.Concern,
		Status:        string(a.Status),
		CheckInTime:   a.CheckInTime,
		PaymentMethod: a.PaymentMethod,
	}
}

type TimeWindowResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AvailabilityResponse struct {
	DoctorID   string               `json:"doctor_id"`
	Weekdays   []string             `json:"weekdays"`
	Windows    []TimeWindowResponse `json:"windows"`
	Consulting bool                 `json:"consulting"`
}

func toAvailabilityResponse(av *scheduling.DoctorAvailability) AvailabilityResponse {
	resp := AvailabilityResponse{
		DoctorID:   av.DoctorID.String(),
		Weekdays:   make([]string, 0, len(av.Weekdays)),
		Windows:    make([]TimeWindowResponse, 0, len(av.Windows)),
		Consulting: av.Consulting,
	}
	for _, d := range av.Weekdays {
		resp.Weekdays = append(resp.Weekdays, d.String())
	}
	for _, w := range av.Windows {
		resp.Windows = append(resp.Windows, TimeWindowResponse{Start: w.Start.String(), End: w.End.String()})
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
