package domain

import (
	"context"
)

// Stores persist whole records. Save inserts when Version is 0 and otherwise
// replaces the record only if the stored Version still equals the caller's,
// failing with ErrVersionConflict. A successful Save increments Version.
// Lookups of absent records fail with the matching ErrXNotFound.

type PractitionerStore interface {
	Get(ctx context.Context, id string) (*Practitioner, error)
	Save(ctx context.Context, p *Practitioner) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	FindByName(ctx context.Context, name string) (*Practitioner, error)
	Delete(ctx context.Context, id string) error
	// FindBySpecialty matches a case-insensitive substring.
	FindBySpecialty(ctx context.Context, substr string) ([]*Practitioner, error)
	List(ctx context.Context) ([]*Practitioner, error)
}

type PatientStore interface {
	Get(ctx context.Context, id string) (*Patient, error)
	Save(ctx context.Context, p *Patient) error
	ExistsByName(ctx context.Context, name string) (bool, error)
	FindByName(ctx context.Context, name string) (*Patient, error)
	Delete(ctx context.Context, id string) error
	// FindByNameContains matches a case-insensitive substring.
	FindByNameContains(ctx context.Context, substr string) ([]*Patient, error)
	List(ctx context.Context) ([]*Patient, error)
	Count(ctx context.Context) (int64, error)
}

type AppointmentStore interface {
	Get(ctx context.Context, id string) (*Appointment, error)
	Save(ctx context.Context, a *Appointment) error
	FindAll(ctx context.Context) ([]*Appointment, error)
	FindByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	FindByPractitioner(ctx context.Context, practitionerID string) ([]*Appointment, error)
	FindByPractitionerAndState(ctx context.Context, practitionerID string, state State) ([]*Appointment, error)
	FindByPatientAndState(ctx context.Context, patientID string, state State) ([]*Appointment, error)
}
