package domain

import (
	"time"
)

type State string

const (
	StatePending   State = "PENDING"
	StateSeen      State = "SEEN"
	StateCancelled State = "CANCELLED"
)

// Holds reports whether an appointment in this state still occupies its
// patient's time window.
func (s State) Holds() bool {
	return s == StatePending || s == StateSeen
}

func (s State) Valid() bool {
	switch s {
	case StatePending, StateSeen, StateCancelled:
		return true
	}
	return false
}

type Practitioner struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Slots     Slots     `json:"slots"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share the slot array.
func (p *Practitioner) Clone() *Practitioner {
	c := *p
	c.Slots = p.Slots.Clone()
	return &c
}

type Patient struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Patient) Clone() *Patient {
	c := *p
	return &c
}

type MedicalResult struct {
	AppointmentID   string    `json:"appointment_id"`
	Description     string    `json:"description"`
	Diagnosis       string    `json:"diagnosis"`
	Recommendations string    `json:"recommendations"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// Appointment joins a patient and a practitioner. Slot is a copy taken at
// booking time, matched back to the practitioner's collection by value.
type Appointment struct {
	ID             string         `json:"id"`
	PatientID      string         `json:"patient_id"`
	PractitionerID string         `json:"practitioner_id"`
	Slot           Slot           `json:"slot"`
	State          State          `json:"state"`
	Result         *MedicalResult `json:"result,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.Result != nil {
		r := *a.Result
		c.Result = &r
	}
	return &c
}

// Lifecycle transitions. Each one checks before it mutates, so a rejected
// transition leaves the appointment untouched.

func (a *Appointment) Cancel(now time.Time) error {
	switch a.State {
	case StateCancelled:
		return ErrAlreadyCancelled
	case StateSeen:
		return ErrAlreadySeen
	}
	a.State = StateCancelled
	a.UpdatedAt = now
	return nil
}

// RecordResult attaches r and moves the appointment to SEEN. The slot must
// already have started; a zero RecordedAt defaults to now.
func (a *Appointment) RecordResult(r MedicalResult, now time.Time, loc *time.Location) error {
	if a.State != StatePending {
		return ErrNotPending
	}
	if a.Slot.StartsAt(loc).After(now) {
		return ErrNotStarted
	}
	r.AppointmentID = a.ID
	if r.RecordedAt.IsZero() {
		r.RecordedAt = now
	}
	a.Result = &r
	a.State = StateSeen
	a.UpdatedAt = now
	return nil
}

// UpdateResult replaces the result text, keeping the original RecordedAt.
func (a *Appointment) UpdateResult(r MedicalResult, now time.Time) error {
	if a.State != StateSeen {
		return ErrNotSeen
	}
	if a.Result == nil {
		return ErrNoResult
	}
	a.Result = &MedicalResult{
		AppointmentID:   a.ID,
		Description:     r.Description,
		Diagnosis:       r.Diagnosis,
		Recommendations: r.Recommendations,
		RecordedAt:      a.Result.RecordedAt,
	}
	a.UpdatedAt = now
	return nil
}
