package patient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/store/memory"
)

func newRegistry(t *testing.T) (*Registry, *memory.AppointmentStore) {
	t.Helper()
	appts := memory.NewAppointmentStore()
	return NewRegistry(memory.NewPatientStore(), appts, lock.NewLocal(time.Second), zap.NewNop()), appts
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, appts := newRegistry(t)

	id, err := reg.Register(ctx, Input{Name: " Maria Lopez "})
	require.NoError(t, err)

	p, err := reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", p.Name)

	_, err = reg.Register(ctx, Input{Name: "Maria Lopez"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	_, err = reg.Register(ctx, Input{Name: "Jo"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	other, err := reg.Register(ctx, Input{Name: "Juan Perez"})
	require.NoError(t, err)

	_, err = reg.Update(ctx, other, Input{Name: "Maria Lopez"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	updated, err := reg.Update(ctx, other, Input{Name: "Juan Pablo Perez"})
	require.NoError(t, err)
	assert.Equal(t, "Juan Pablo Perez", updated.Name)

	n, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	found, err := reg.SearchByName(ctx, "PEREZ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, other, found[0].ID)

	_, err = reg.SearchByName(ctx, "")
	assert.ErrorIs(t, err, domain.ErrBlankQuery)

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending := &domain.Appointment{ID: domain.NewID(), PatientID: id, State: domain.StatePending}
	require.NoError(t, appts.Save(ctx, pending))
	assert.ErrorIs(t, reg.Delete(ctx, id), domain.ErrHasPendingAppointment)

	pending.State = domain.StateCancelled
	require.NoError(t, appts.Save(ctx, pending))
	require.NoError(t, reg.Delete(ctx, id))

	_, err = reg.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = reg.Get(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestRegistryBusy(t *testing.T) {
	ctx := context.Background()
	appts := memory.NewAppointmentStore()
	locker := lock.NewLocal(10 * time.Millisecond)
	reg := NewRegistry(memory.NewPatientStore(), appts, locker, zap.NewNop())

	id, err := reg.Register(ctx, Input{Name: "Held Patient"})
	require.NoError(t, err)

	err = locker.WithLock(ctx, lock.PatientKey(id), func(ctx context.Context) error {
		return reg.Delete(ctx, id)
	})
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.ErrorIs(t, err, domain.ErrConflict)
}
