package practitioner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/store/memory"
)

var fixedNow = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	reg          *Registry
	store        *memory.PractitionerStore
	appointments *memory.AppointmentStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewPractitionerStore()
	appts := memory.NewAppointmentStore()
	reg := NewRegistry(store, appts, lock.NewLocal(time.Second), zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
	return fixture{reg: reg, store: store, appointments: appts}
}

func (f fixture) register(t *testing.T, name string) string {
	t.Helper()
	id, err := f.reg.Register(context.Background(), Input{Name: name, Specialty: "Cardiology"})
	require.NoError(t, err)
	return id
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.reg.Register(ctx, Input{Name: "  Gregory House ", Specialty: " Diagnostics "})
	require.NoError(t, err)

	p, err := f.reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Gregory House", p.Name)
	assert.Equal(t, "Diagnostics", p.Specialty)
	assert.Empty(t, p.Slots)

	t.Run("duplicate name", func(t *testing.T) {
		_, err := f.reg.Register(ctx, Input{Name: "Gregory House", Specialty: "Other"})
		assert.ErrorIs(t, err, domain.ErrDuplicateName)
	})

	t.Run("short name", func(t *testing.T) {
		_, err := f.reg.Register(ctx, Input{Name: "Al", Specialty: "Other"})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("missing specialty", func(t *testing.T) {
		_, err := f.reg.Register(ctx, Input{Name: "Lisa Cuddy"})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.register(t, "James Wilson")
	f.register(t, "Lisa Cuddy")

	p, err := f.reg.Update(ctx, a, Input{Name: "James Wilson", Specialty: "Oncology"})
	require.NoError(t, err)
	assert.Equal(t, "Oncology", p.Specialty)

	_, err = f.reg.Update(ctx, a, Input{Name: "Lisa Cuddy", Specialty: "Oncology"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	_, err = f.reg.Update(ctx, domain.NewID(), Input{Name: "Nobody Here", Specialty: "x"})
	assert.ErrorIs(t, err, domain.ErrPractitionerNotFound)

	_, err = f.reg.Update(ctx, "nope", Input{Name: "Nobody Here", Specialty: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t, "Eric Foreman")

	pending := &domain.Appointment{ID: domain.NewID(), PractitionerID: id, State: domain.StatePending}
	require.NoError(t, f.appointments.Save(ctx, pending))

	err := f.reg.Delete(ctx, id)
	assert.ErrorIs(t, err, domain.ErrHasPendingAppointment)
	assert.Contains(t, err.Error(), "(1)")

	pending.State = domain.StateSeen
	require.NoError(t, f.appointments.Save(ctx, pending))

	require.NoError(t, f.reg.Delete(ctx, id))
	_, err = f.reg.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPractitionerNotFound)
	assert.ErrorIs(t, f.reg.Delete(ctx, id), domain.ErrPractitionerNotFound)
}

func TestSearchBySpecialty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "Robert Chase")

	found, err := f.reg.SearchBySpecialty(ctx, "cardio")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = f.reg.SearchBySpecialty(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrBlankQuery)
}

func TestAddSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t, "Allison Cameron")
	day := domain.NewDate(2025, 6, 1)

	_, err := f.reg.AddSlot(ctx, id, day, domain.NewClock(9, 0), domain.NewClock(10, 0))
	require.NoError(t, err)

	tests := []struct {
		name       string
		date       domain.Date
		start, end domain.Clock
		want       error
	}{
		{"overlapping", day, domain.NewClock(9, 30), domain.NewClock(11, 0), domain.ErrSlotOverlap},
		{"touching", day, domain.NewClock(10, 0), domain.NewClock(11, 0), domain.ErrSlotOverlap},
		{"empty", day, domain.NewClock(12, 0), domain.NewClock(12, 0), domain.ErrEmptyRange},
		{"too long", day, domain.NewClock(8, 0), domain.NewClock(20, 1), domain.ErrSlotTooLong},
		{"past", domain.NewDate(2025, 4, 30), domain.NewClock(9, 0), domain.NewClock(10, 0), domain.ErrSlotInPast},
		{"starts now", domain.NewDate(2025, 5, 1), domain.NewClock(8, 0), domain.NewClock(9, 0), domain.ErrSlotInPast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.AddSlot(ctx, id, tt.date, tt.start, tt.end)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.reg.AddSlot(ctx, id, domain.NewDate(2025, 6, 2), domain.NewClock(8, 0), domain.NewClock(20, 0))
	assert.NoError(t, err, "exactly twelve hours")

	_, err = f.reg.AddSlot(ctx, domain.NewID(), day, domain.NewClock(14, 0), domain.NewClock(15, 0))
	assert.ErrorIs(t, err, domain.ErrPractitionerNotFound)

	slots, err := f.reg.ListSlots(ctx, id)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestRemoveSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t, "Chris Taub")
	day := domain.NewDate(2025, 6, 1)

	_, err := f.reg.AddSlot(ctx, id, day, domain.NewClock(9, 0), domain.NewClock(10, 0))
	require.NoError(t, err)
	_, err = f.reg.AddSlot(ctx, id, day, domain.NewClock(11, 0), domain.NewClock(12, 0))
	require.NoError(t, err)

	p, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	p.Slots[1].Reserved = true
	require.NoError(t, f.store.Save(ctx, p))

	assert.ErrorIs(t, f.reg.RemoveSlot(ctx, id, day, domain.NewClock(11, 0)), domain.ErrRemoveReserved)
	assert.ErrorIs(t, f.reg.RemoveSlot(ctx, id, day, domain.NewClock(13, 0)), domain.ErrSlotNotFound)
	require.NoError(t, f.reg.RemoveSlot(ctx, id, day, domain.NewClock(9, 0)))

	slots, err := f.reg.ListSlots(ctx, id)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, domain.NewClock(11, 0), slots[0].Start)
}

func TestListAvailableSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t, "Remy Hadley")

	_, err := f.reg.AddSlot(ctx, id, domain.NewDate(2025, 6, 2), domain.NewClock(9, 0), domain.NewClock(10, 0))
	require.NoError(t, err)
	_, err = f.reg.AddSlot(ctx, id, domain.NewDate(2025, 6, 1), domain.NewClock(9, 0), domain.NewClock(10, 0))
	require.NoError(t, err)

	got, err := f.reg.ListAvailableSlots(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.NewDate(2025, 6, 1), got[0].Date)

	later := NewRegistry(f.store, f.appointments, lock.NewLocal(time.Second), zap.NewNop(),
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }),
		WithLocation(time.UTC),
	)
	got, err = later.ListAvailableSlots(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 1, "a slot starting now is no longer available")
	assert.Equal(t, domain.NewDate(2025, 6, 2), got[0].Date)
}

func TestAddSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t, "James Wilson")
	day := domain.NewDate(2025, 6, 1)

	_, err := f.reg.AddSlot(ctx, id, day, domain.NewClock(9, 0), domain.NewClock(10, 0))
	require.NoError(t, err)

	at := func(d domain.Date, sh, sm, eh, em int) domain.Slot {
		return domain.Slot{Date: d, Start: domain.NewClock(sh, sm), End: domain.NewClock(eh, em)}
	}
	res, err := f.reg.AddSlots(ctx, id, []domain.Slot{
		at(day, 11, 0, 11, 30),
		// overlaps the existing slot
		at(day, 9, 30, 10, 30),
		// overlaps the first candidate
		at(day, 11, 15, 11, 45),
		at(domain.NewDate(2025, 4, 30), 9, 0, 10, 0),
		at(day, 13, 0, 12, 0),
		at(day, 14, 0, 15, 0),
	})
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	require.Len(t, res.Rejected, 4)
	assert.Equal(t, domain.ErrSlotOverlap.Error(), res.Rejected[0].Reason)
	assert.Equal(t, domain.ErrSlotOverlap.Error(), res.Rejected[1].Reason)
	assert.Equal(t, domain.ErrSlotInPast.Error(), res.Rejected[2].Reason)
	assert.Equal(t, domain.ErrEmptyRange.Error(), res.Rejected[3].Reason)

	slots, err := f.reg.ListSlots(ctx, id)
	require.NoError(t, err)
	assert.Len(t, slots, 3)

	t.Run("nothing added leaves the record untouched", func(t *testing.T) {
		before, err := f.store.Get(ctx, id)
		require.NoError(t, err)

		res, err := f.reg.AddSlots(ctx, id, []domain.Slot{at(day, 9, 0, 10, 0)})
		require.NoError(t, err)
		assert.Empty(t, res.Added)
		assert.Len(t, res.Rejected, 1)

		after, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := f.reg.AddSlots(ctx, id, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("unknown practitioner", func(t *testing.T) {
		_, err := f.reg.AddSlots(ctx, domain.NewID(), []domain.Slot{at(day, 16, 0, 17, 0)})
		assert.ErrorIs(t, err, domain.ErrPractitionerNotFound)
	})
}

func TestListSpecialties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.reg.ListSpecialties(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, in := range []Input{
		{Name: "Lisa Cuddy", Specialty: "Endocrinology"},
		{Name: "Eric Foreman", Specialty: "Neurology"},
		{Name: "Chris Taub", Specialty: "Cardiology"},
		{Name: "Remy Hadley", Specialty: "Neurology"},
	} {
		_, err := f.reg.Register(ctx, in)
		require.NoError(t, err)
	}

	got, err = f.reg.ListSpecialties(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cardiology", "Endocrinology", "Neurology"}, got)
}

func TestGetAcceptsAnyIDSpelling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.register(t, "Lawrence Kutner")

	for _, spelling := range []string{strings.ToUpper(id), "{" + id + "}", "urn:uuid:" + id} {
		p, err := f.reg.Get(ctx, spelling)
		require.NoError(t, err, spelling)
		assert.Equal(t, id, p.ID)
	}

	_, err := f.reg.AddSlot(ctx, strings.ToUpper(id), domain.NewDate(2025, 6, 1), domain.NewClock(9, 0), domain.NewClock(10, 0))
	require.NoError(t, err)
	slots, err := f.reg.ListSlots(ctx, id)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}
