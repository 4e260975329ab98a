// Package mongostore implements the domain stores on MongoDB. A practitioner is a
// single document that embeds its slots, so a slot reservation is one
// document replacement guarded by the version field.
package mongostore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

const (
	practitionersCollection = "practitioners"
	patientsCollection      = "patients"
	appointmentsCollection  = "appointments"
)

type slotDoc struct {
	Date     string `bson:"date"`
	Start    string `bson:"start_time"`
	End      string `bson:"end_time"`
	Reserved bool   `bson:"reserved"`
}

type practitionerDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Specialty string    `bson:"specialty"`
	Slots     []slotDoc `bson:"slots"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type patientDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Version   int64     `bson:"version"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type resultDoc struct {
	Description     string    `bson:"description"`
	Diagnosis       string    `bson:"diagnosis"`
	Recommendations string    `bson:"recommendations"`
	RecordedAt      time.Time `bson:"recorded_at"`
}

type appointmentDoc struct {
	ID             string     `bson:"_id"`
	PatientID      string     `bson:"patient_id"`
	PractitionerID string     `bson:"practitioner_id"`
	Slot           slotDoc    `bson:"slot"`
	State          string     `bson:"state"`
	Result         *resultDoc `bson:"result,omitempty"`
	Version        int64      `bson:"version"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toSlotDoc(s domain.Slot) slotDoc {
	return slotDoc{
		Date:     s.Date.String(),
		Start:    s.Start.String(),
		End:      s.End.String(),
		Reserved: s.Reserved,
	}
}

func fromSlotDoc(d slotDoc) (domain.Slot, error) {
	date, err := domain.ParseDate(d.Date)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot date: %w", err)
	}
	start, err := domain.ParseClock(d.Start)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot start: %w", err)
	}
	end, err := domain.ParseClock(d.End)
	if err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot end: %w", err)
	}
	return domain.Slot{Date: date, Start: start, End: end, Reserved: d.Reserved}, nil
}

func toPractitionerDoc(p *domain.Practitioner) practitionerDoc {
	slots := make([]slotDoc, len(p.Slots))
	for i, s := range p.Slots {
		slots[i] = toSlotDoc(s)
	}
	return practitionerDoc{
		ID:        p.ID,
		Name:      p.Name,
		Specialty: p.Specialty,
		Slots:     slots,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPractitionerDoc(d practitionerDoc) (*domain.Practitioner, error) {
	p := &domain.Practitioner{
		ID:        d.ID,
		Name:      d.Name,
		Specialty: d.Specialty,
		Slots:     make(domain.Slots, 0, len(d.Slots)),
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, sd := range d.Slots {
		s, err := fromSlotDoc(sd)
		if err != nil {
			return nil, fmt.Errorf("practitioner %s: %w", d.ID, err)
		}
		p.Slots = append(p.Slots, s)
	}
	p.Slots = p.Slots.Sorted()
	return p, nil
}

func toPatientDoc(p *domain.Patient) patientDoc {
	return patientDoc{ID: p.ID, Name: p.Name, Version: p.Version, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

func fromPatientDoc(d patientDoc) *domain.Patient {
	return &domain.Patient{ID: d.ID, Name: d.Name, Version: d.Version, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func toAppointmentDoc(a *domain.Appointment) appointmentDoc {
	d := appointmentDoc{
		ID:             a.ID,
		PatientID:      a.PatientID,
		PractitionerID: a.PractitionerID,
		Slot:           toSlotDoc(a.Slot),
		State:          string(a.State),
		Version:        a.Version,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if r := a.Result; r != nil {
		d.Result = &resultDoc{
			Description:     r.Description,
			Diagnosis:       r.Diagnosis,
			Recommendations: r.Recommendations,
			RecordedAt:      r.RecordedAt,
		}
	}
	return d
}

func fromAppointmentDoc(d appointmentDoc) (*domain.Appointment, error) {
	slot, err := fromSlotDoc(d.Slot)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", d.ID, err)
	}
	a := &domain.Appointment{
		ID:             d.ID,
		PatientID:      d.PatientID,
		PractitionerID: d.PractitionerID,
		Slot:           slot,
		State:          domain.State(d.State),
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if r := d.Result; r != nil {
		a.Result = &domain.MedicalResult{
			AppointmentID:   d.ID,
			Description:     r.Description,
			Diagnosis:       r.Diagnosis,
			Recommendations: r.Recommendations,
			RecordedAt:      r.RecordedAt,
		}
	}
	return a, nil
}

// writeError maps a duplicate key on _id to a lost insert race and any other
// duplicate key (the unique name index) to a taken name.
func writeError(err error, what string) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "_id_") {
			return domain.ErrVersionConflict
		}
		return domain.ErrDuplicateName
	}
	return fmt.Errorf("write %s: %w", what, err)
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}
