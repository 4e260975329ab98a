package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type AppointmentStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Appointment
}

var _ domain.AppointmentStore = (*AppointmentStore)(nil)

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{byID: make(map[string]*domain.Appointment)}
}

func (s *AppointmentStore) Get(_ context.Context, id string) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (s *AppointmentStore) Save(_ context.Context, a *domain.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.byID[a.ID]
	switch {
	case a.Version == 0 && exists:
		return domain.ErrVersionConflict
	case a.Version != 0 && (!exists || current.Version != a.Version):
		return domain.ErrVersionConflict
	}

	a.Version++
	s.byID[a.ID] = a.Clone()
	return nil
}

func (s *AppointmentStore) FindAll(context.Context) ([]*domain.Appointment, error) {
	return s.filter(func(*domain.Appointment) bool { return true }), nil
}

func (s *AppointmentStore) FindByPatient(_ context.Context, patientID string) ([]*domain.Appointment, error) {
	return s.filter(func(a *domain.Appointment) bool { return a.PatientID == patientID }), nil
}

func (s *AppointmentStore) FindByPractitioner(_ context.Context, practitionerID string) ([]*domain.Appointment, error) {
	return s.filter(func(a *domain.Appointment) bool { return a.PractitionerID == practitionerID }), nil
}

func (s *AppointmentStore) FindByPractitionerAndState(_ context.Context, practitionerID string, state domain.State) ([]*domain.Appointment, error) {
	return s.filter(func(a *domain.Appointment) bool {
		return a.PractitionerID == practitionerID && a.State == state
	}), nil
}

func (s *AppointmentStore) FindByPatientAndState(_ context.Context, patientID string, state domain.State) ([]*domain.Appointment, error) {
	return s.filter(func(a *domain.Appointment) bool {
		return a.PatientID == patientID && a.State == state
	}), nil
}

// filter returns matches in booking order.
func (s *AppointmentStore) filter(keep func(*domain.Appointment) bool) []*domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Appointment{}
	for _, a := range s.byID {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
