package api

import (
	"time"

	"github.com/hackgods/clinic-appointments/internal/domain")

type PractitionerRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type PatientRequest struct {
	Name string `json:"name"`
}

type SlotRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type RejectedSlot struct {
	SlotRequest
	Reason string `json:"reason"`
}

type BulkSlotsResponse struct {
	AddedCount int            `json:"added_count"`
	Added      domain.Slots   `json:"added"`
	Rejected   []RejectedSlot `json:"rejected"`
}

type BookAppointmentRequest struct {
	PatientID      string `json:"patient_id"`
	PractitionerID string `json:"practitioner_id"`
	SlotRequest
}

type ResultRequest struct {
	Description     string     `json:"description"`
	Diagnosis       string     `json:"diagnosis"`
	Recommendations string     `json:"recommendations"`
	RecordedAt      *time.Time `json:"recorded_at,omitempty"`
}

type CreatedResponse struct {
	ID string `json:"id"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
