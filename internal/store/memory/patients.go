package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type PatientStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Patient
}

var _ domain.PatientStore = (*PatientStore)(nil)

func NewPatientStore() *PatientStore {
	return &PatientStore{byID: make(map[string]*domain.Patient)}
}

func (s *PatientStore) Get(_ context.Context, id string) (*domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrPatientNotFound
	}
	return p.Clone(), nil
}

func (s *PatientStore) Save(_ context.Context, p *domain.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.byID {
		if id != p.ID && other.Name == p.Name {
			return domain.ErrDuplicateName
		}
	}

	current, exists := s.byID[p.ID]
	switch {
	case p.Version == 0 && exists:
		return domain.ErrVersionConflict
	case p.Version != 0 && (!exists || current.Version != p.Version):
		return domain.ErrVersionConflict
	}

	p.Version++
	s.byID[p.ID] = p.Clone()
	return nil
}

func (s *PatientStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	_, err := s.FindByName(ctx, name)
	if errors.Is(err, domain.ErrPatientNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *PatientStore) FindByName(_ context.Context, name string) (*domain.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Name == name {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrPatientNotFound
}

func (s *PatientStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return domain.ErrPatientNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *PatientStore) FindByNameContains(_ context.Context, substr string) ([]*domain.Patient, error) {
	needle := strings.ToLower(substr)
	return s.filter(func(p *domain.Patient) bool {
		return strings.Contains(strings.ToLower(p.Name), needle)
	}), nil
}

func (s *PatientStore) List(context.Context) ([]*domain.Patient, error) {
	return s.filter(func(*domain.Patient) bool { return true }), nil
}

func (s *PatientStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func (s *PatientStore) filter(keep func(*domain.Patient) bool) []*domain.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Patient{}
	for _, p := range s.byID {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
