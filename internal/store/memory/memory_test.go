package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

func TestPractitionerStoreVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewPractitionerStore()

	p := &domain.Practitioner{ID: domain.NewID(), Name: "Dr. House", Specialty: "Diagnostics"}
	require.NoError(t, s.Save(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	a, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	b, err := s.Get(ctx, p.ID)
	require.NoError(t, err)

	a.Specialty = "Nephrology"
	require.NoError(t, s.Save(ctx, a))

	b.Specialty = "Oncology"
	assert.ErrorIs(t, s.Save(ctx, b), domain.ErrVersionConflict)

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nephrology", got.Specialty)
	assert.Equal(t, int64(2), got.Version)

	dup := &domain.Practitioner{ID: domain.NewID(), Name: p.Name, Specialty: "x"}
	assert.ErrorIs(t, s.Save(ctx, dup), domain.ErrDuplicateName)

	reinsert := &domain.Practitioner{ID: p.ID, Name: "Other"}
	assert.ErrorIs(t, s.Save(ctx, reinsert), domain.ErrVersionConflict)
}

func TestPractitionerStoreDoesNotAliasSlots(t *testing.T) {
	ctx := context.Background()
	s := NewPractitionerStore()

	p := &domain.Practitioner{ID: domain.NewID(), Name: "Dr. Grey"}
	require.NoError(t, p.Slots.Add(domain.Slot{Date: domain.NewDate(2025, 6, 1), Start: domain.NewClock(9, 0), End: domain.NewClock(10, 0)}))
	require.NoError(t, s.Save(ctx, p))

	p.Slots[0].Reserved = true

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Slots[0].Reserved)
}

func TestPractitionerStoreQueries(t *testing.T) {
	ctx := context.Background()
	s := NewPractitionerStore()
	for _, p := range []*domain.Practitioner{
		{ID: domain.NewID(), Name: "Zoe", Specialty: "Cardiology"},
		{ID: domain.NewID(), Name: "Adam", Specialty: "pediatric cardiology"},
		{ID: domain.NewID(), Name: "Mia", Specialty: "Dermatology"},
	} {
		require.NoError(t, s.Save(ctx, p))
	}

	found, err := s.FindBySpecialty(ctx, "CARDIO")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Adam", found[0].Name)

	ok, err := s.ExistsByName(ctx, "Mia")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ExistsByName(ctx, "mia")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.NoError(t, s.Delete(ctx, found[0].ID))
	assert.ErrorIs(t, s.Delete(ctx, found[0].ID), domain.ErrPractitionerNotFound)
}

func TestPatientStore(t *testing.T) {
	ctx := context.Background()
	s := NewPatientStore()

	require.NoError(t, s.Save(ctx, &domain.Patient{ID: domain.NewID(), Name: "Ana Torres"}))
	require.NoError(t, s.Save(ctx, &domain.Patient{ID: domain.NewID(), Name: "Luis Ana"}))
	require.NoError(t, s.Save(ctx, &domain.Patient{ID: domain.NewID(), Name: "Pedro"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	found, err := s.FindByNameContains(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = s.Get(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)

	assert.ErrorIs(t, s.Save(ctx, &domain.Patient{ID: domain.NewID(), Name: "Pedro"}), domain.ErrDuplicateName)
}

func TestAppointmentStoreQueries(t *testing.T) {
	ctx := context.Background()
	s := NewAppointmentStore()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mk := func(patient, practitioner string, state domain.State, offset int) *domain.Appointment {
		a := &domain.Appointment{
			ID:             domain.NewID(),
			PatientID:      patient,
			PractitionerID: practitioner,
			State:          state,
			CreatedAt:      base.Add(time.Duration(offset) * time.Minute),
		}
		require.NoError(t, s.Save(ctx, a))
		return a
	}
	first := mk("p1", "m1", domain.StatePending, 0)
	mk("p1", "m2", domain.StateCancelled, 1)
	mk("p2", "m1", domain.StateSeen, 2)

	byPatient, err := s.FindByPatient(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, byPatient, 2)
	assert.Equal(t, first.ID, byPatient[0].ID)

	pending, err := s.FindByPractitionerAndState(ctx, "m1", domain.StatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	seen, err := s.FindByPatientAndState(ctx, "p2", domain.StateSeen)
	require.NoError(t, err)
	assert.Len(t, seen, 1)

	all, err := s.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stale := first.Clone()
	stale.Version = 0
	assert.ErrorIs(t, s.Save(ctx, stale), domain.ErrVersionConflict)
}
