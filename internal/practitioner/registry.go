// Package practitioner owns practitioner records and their slot collections.
package practitioner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/lock"
)

type Input struct {
	Name      string `validate:"required,min=3,max=100"`
	Specialty string `validate:"required,max=50"`
}

type Option func(*Registry)

// WithClock replaces time.Now, which decides whether a slot is in the past.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLocation sets the zone slot dates and times are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) { r.loc = loc }
}

type Registry struct {
	store        domain.PractitionerStore
	appointments domain.AppointmentStore
	locker       lock.Locker
	log          *zap.Logger
	now          func() time.Time
	loc          *time.Location
}

func NewRegistry(store domain.PractitionerStore, appointments domain.AppointmentStore, locker lock.Locker, log *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		appointments: appointments,
		locker:       locker,
		log:          log.Named("practitioner"),
		now:          time.Now,
		loc:          time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Specialty = strings.TrimSpace(in.Specialty)
	return in, domain.ValidateStruct(in)
}

func (r *Registry) Register(ctx context.Context, in Input) (string, error) {
	in, err := normalize(in)
	if err != nil {
		return "", err
	}

	now := r.now()
	p := &domain.Practitioner{
		ID:        domain.NewID(),
		Name:      in.Name,
		Specialty: in.Specialty,
		Slots:     domain.Slots{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = r.withLock(ctx, func(ctx context.Context) error {
		exists, err := r.store.ExistsByName(ctx, in.Name)
		if err != nil {
			return fmt.Errorf("check practitioner name: %w", err)
		}
		if exists {
			return domain.ErrDuplicateName
		}
		if err := r.store.Save(ctx, p); err != nil {
			return fmt.Errorf("save practitioner: %w", err)
		}
		return nil
	}, lock.NameKey("practitioner", in.Name))
	if err != nil {
		return "", err
	}

	r.log.Info("practitioner registered", zap.String("id", p.ID), zap.String("name", p.Name))
	return p.ID, nil
}

func (r *Registry) Update(ctx context.Context, id string, in Input) (*domain.Practitioner, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return nil, err
	}
	in, err = normalize(in)
	if err != nil {
		return nil, err
	}

	var updated *domain.Practitioner
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
			case err != nil && !errors.Is(err, domain.ErrPractitionerNotFound):
				return fmt.Errorf("check practitioner name: %w", err)
			}
		}
		p.Name = in.Name
		p.Specialty = in.Specialty
		p.UpdatedAt = r.now()
		if err := r.store.Save(ctx, p); err != nil {
			return fmt.Errorf("save practitioner: %w", err)
		}
		updated = p
		return nil
	}, lock.PractitionerKey(id), lock.NameKey("practitioner", in.Name))
	return updated, err
}

// Delete removes a practitioner that has no PENDING appointments. SEEN and
// CANCELLED appointments keep their slot snapshot and do not block.
func (r *Registry) Delete(ctx context.Context, id string) error {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return err
	}
	return r.withLock(ctx, func(ctx context.Context) error {
		if _, err := r.store.Get(ctx, id); err != nil {
			return err
		}
		pending, err := r.appointments.FindByPractitionerAndState(ctx, id, domain.StatePending)
		if err != nil {
			return fmt.Errorf("load pending appointments: %w", err)
		}
		if n := len(pending); n > 0 {
			return fmt.Errorf("practitioner %w (%d)", domain.ErrHasPendingAppointment, n)
		}
		if err := r.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete practitioner: %w", err)
		}
		r.log.Info("practitioner deleted", zap.String("id", id))
		return nil
	}, lock.PractitionerKey(id))
}

func (r *Registry) Get(ctx context.Context, id string) (*domain.Practitioner, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return nil, err
	}
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]*domain.Practitioner, error) {
	ps, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	return ps, nil
}

func (r *Registry) SearchBySpecialty(ctx context.Context, substr string) ([]*domain.Practitioner, error) {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return nil, domain.ErrBlankQuery
	}
	ps, err := r.store.FindBySpecialty(ctx, substr)
	if err != nil {
		return nil, fmt.Errorf("search practitioners: %w", err)
	}
	return ps, nil
}

// ListSpecialties returns the distinct specialties on record, sorted.
func (r *Registry) ListSpecialties(ctx context.Context) ([]string, error) {
	ps, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	seen := make(map[string]struct{}, len(ps))
	out := []string{}
	for _, p := range ps {
		if _, dup := seen[p.Specialty]; dup {
			continue
		}
		seen[p.Specialty] = struct{}{}
		out = append(out, p.Specialty)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Registry) withLock(ctx context.Context, fn func(ctx context.Context) error, keys ...string) error {
	err := lock.Many(ctx, r.locker, keys, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return domain.ErrBusy
	}
	return err
}
