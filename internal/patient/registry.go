// Package patient owns patient records.
package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/lock"
)

type Input struct {
	Name string `validate:"required,min=3,max=100"`
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

type Registry struct {
	store        domain.PatientStore
	appointments domain.AppointmentStore
	locker       lock.Locker
	log          *zap.Logger
	now          func() time.Time
}

func NewRegistry(store domain.PatientStore, appointments domain.AppointmentStore, locker lock.Locker, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		appointments: appointments,
		locker:       locker,
		log:          log.Named("patient"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(ctx context.Context, in Input) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := domain.ValidateStruct(in); err != nil {
		return "", err
	}

	now := r.now()
	p := &domain.Patient{ID: domain.NewID(), Name: in.Name, CreatedAt: now, UpdatedAt: now}

	err := r.withLock(ctx, func(ctx context.Context) error {
		exists, err := r.store.ExistsByName(ctx, in.Name)
		if err != nil {
			return fmt.Errorf("check patient name: %w", err)
		}
		if exists {
			return domain.ErrDuplicateName
		}
		if err := r.store.Save(ctx, p); err != nil {
			return fmt.Errorf("save patient: %w", err)
		}
		return nil
	}, lock.NameKey("patient", in.Name))
	if err != nil {
		return "", err
	}

	r.log.Info("patient registered", zap.String("id", p.ID))
	return p.ID, nil
}

func (r *Registry) Update(ctx context.Context, id string, in Input) (*domain.Patient, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}

	var updated *domain.Patient
	err = r.withLock(ctx, func(ctx context.Context) error {
		p, err := r.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != in.Name {
			other, err := r.store.FindByName(ctx, in.Name)
			switch {
			case err == nil && other.ID != id:
				return domain.ErrDuplicateName
			case err != nil && !errors.Is(err, domain.ErrPatientNotFound):
				return fmt.Errorf("check patient name: %w", err)
			}
		}
		p.Name = in.Name
		p.UpdatedAt = r.now()
		if err := r.store.Save(ctx, p); err != nil {
			return fmt.Errorf("save patient: %w", err)
		}
		updated = p
		return nil
	}, lock.PatientKey(id), lock.NameKey("patient", in.Name))
	return updated, err
}

// Delete removes a patient with no PENDING appointments. The patient lock is
// the one booking takes first, so no booking can slip in between the check
// and the delete.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return err
	}
	return r.withLock(ctx, func(ctx context.Context) error {
		if _, err := r.store.Get(ctx, id); err != nil {
			return err
		}
		pending, err := r.appointments.FindByPatientAndState(ctx, id, domain.StatePending)
		if err != nil {
			return fmt.Errorf("load pending appointments: %w", err)
		}
		if n := len(pending); n > 0 {
			return fmt.Errorf("patient %w (%d)", domain.ErrHasPendingAppointment, n)
		}
		if err := r.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete patient: %w", err)
		}
		r.log.Info("patient deleted", zap.String("id", id))
		return nil
	}, lock.PatientKey(id))
}

func (r *Registry) Get(ctx context.Context, id string) (*domain.Patient, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return nil, err
	}
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]*domain.Patient, error) {
	ps, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return ps, nil
}

func (r *Registry) SearchByName(ctx context.Context, substr string) ([]*domain.Patient, error) {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return nil, domain.ErrBlankQuery
	}
	ps, err := r.store.FindByNameContains(ctx, substr)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return ps, nil
}

func (r *Registry) Count(ctx context.Context) (int64, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func (r *Registry) withLock(ctx context.Context, fn func(ctx context.Context) error, keys ...string) error {
	err := lock.Many(ctx, r.locker, keys, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return domain.ErrBusy
	}
	return err
}
