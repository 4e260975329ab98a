// Package memory holds map-backed stores for single-process deployments and
// tests. Records are cloned on the way in and out, so callers never alias
// stored state.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/hackgods/clinic-appointments/internal/domain"
)

type PractitionerStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Practitioner
}

var _ domain.PractitionerStore = (*PractitionerStore)(nil)

func NewPractitionerStore() *PractitionerStore {
	return &PractitionerStore{byID: make(map[string]*domain.Practitioner)}
}

func (s *PractitionerStore) Get(_ context.Context, id string) (*domain.Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrPractitionerNotFound
	}
	return p.Clone(), nil
}

func (s *PractitionerStore) Save(_ context.Context, p *domain.Practitioner) error {
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

func (s *PractitionerStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	_, err := s.FindByName(ctx, name)
	if errors.Is(err, domain.ErrPractitionerNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *PractitionerStore) FindByName(_ context.Context, name string) (*domain.Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Name == name {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrPractitionerNotFound
}

func (s *PractitionerStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return domain.ErrPractitionerNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *PractitionerStore) FindBySpecialty(_ context.Context, substr string) ([]*domain.Practitioner, error) {
	needle := strings.ToLower(substr)
	return s.filter(func(p *domain.Practitioner) bool {
		return strings.Contains(strings.ToLower(p.Specialty), needle)
	}), nil
}

func (s *PractitionerStore) List(context.Context) ([]*domain.Practitioner, error) {
	return s.filter(func(*domain.Practitioner) bool { return true }), nil
}

func (s *PractitionerStore) filter(keep func(*domain.Practitioner) bool) []*domain.Practitioner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Practitioner{}
	for _, p := range s.byID {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
