// Package appointment is the appointment ledger: it books slots, cancels
// appointments and records visit results while keeping every practitioner's
// slot reservations consistent with the appointments that hold them.
package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/events"
	"github.com/hackgods/clinic-appointments/internal/lock"
)

type ResultInput struct {
	Description     string `validate:"required,max=1000"`
	Diagnosis       string `validate:"required,max=500"`
	Recommendations string `validate:"required,max=1000"`
	// RecordedAt defaults to now when nil. It is ignored on update.
	RecordedAt *time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

type Service struct {
	practitioners domain.PractitionerStore
	patients      domain.PatientStore
	appointments  domain.AppointmentStore
	locker        lock.Locker
	events        events.Sink
	log           *zap.Logger
	now           func() time.Time
	loc           *time.Location
}

func NewService(
	practitioners domain.PractitionerStore,
	patients domain.PatientStore,
	appointments domain.AppointmentStore,
	locker lock.Locker,
	sink events.Sink,
	log *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		practitioners: practitioners,
		patients:      patients,
		appointments:  appointments,
		locker:        locker,
		events:        sink,
		log:           log.Named("appointment"),
		now:           time.Now,
		loc:           time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book reserves the practitioner's slot matching requested and creates a
// PENDING appointment for the patient. The patient lock is taken before the
// practitioner lock, so the patient's overlap check and the reservation see
// the same state.
func (s *Service) Book(ctx context.Context, patientID, practitionerID string, requested domain.Slot) (string, error) {
	patientID, err := domain.CanonicalID(patientID)
	if err != nil {
		return "", err
	}
	practitionerID, err = domain.CanonicalID(practitionerID)
	if err != nil {
		return "", err
	}
	if err := domain.ValidateRange(requested.Start, requested.End); err != nil {
		return "", err
	}
	if !requested.StartsAt(s.loc).After(s.now()) {
		return "", domain.ErrPastSlot
	}

	var created *domain.Appointment
	err = s.withLock(ctx, func(ctx context.Context) error {
		if _, err := s.patients.Get(ctx, patientID); err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		p, err := s.practitioners.Get(ctx, practitionerID)
		if err != nil {
			return fmt.Errorf("load practitioner: %w", err)
		}
		i, err := p.Slots.Reservable(requested)
		if err != nil {
			return err
		}
		if err := s.checkPatientWindow(ctx, patientID, requested); err != nil {
			return err
		}

		now := s.now()
		p.Slots[i].Reserved = true
		p.UpdatedAt = now
		if err := s.practitioners.Save(ctx, p); err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}

		appt := &domain.Appointment{
			ID:             domain.NewID(),
			PatientID:      patientID,
			PractitionerID: practitionerID,
			Slot:           p.Slots[i],
			State:          domain.StatePending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.appointments.Save(ctx, appt); err != nil {
			s.compensate(ctx, p, func() { p.Slots.Release(requested) })
			return fmt.Errorf("save appointment: %w", err)
		}
		created = appt
		return nil
	}, lock.PatientKey(patientID), lock.PractitionerKey(practitionerID))
	if err != nil {
		return "", err
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID),
		zap.String("patient_id", patientID),
		zap.String("practitioner_id", practitionerID),
		zap.Stringer("date", created.Slot.Date),
		zap.Stringer("start", created.Slot.Start),
	)
	s.logEvent(ctx, created, events.AppointmentBooked, nil)
	return created.ID, nil
}

func (s *Service) checkPatientWindow(ctx context.Context, patientID string, requested domain.Slot) error {
	for _, state := range []domain.State{domain.StatePending, domain.StateSeen} {
		held, err := s.appointments.FindByPatientAndState(ctx, patientID, state)
		if err != nil {
			return fmt.Errorf("load patient appointments: %w", err)
		}
		for _, a := range held {
			if domain.Overlaps(a.Slot, requested) {
				return domain.ErrPatientBusy
			}
		}
	}
	return nil
}

// Cancel moves a PENDING appointment to CANCELLED and frees its slot. A slot
// that no longer exists is not an error.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.withLock(ctx, func(ctx context.Context) error {
		a, err = s.appointments.Get(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		now := s.now()
		if err := a.Cancel(now); err != nil {
			return err
		}

		p, err := s.practitioners.Get(ctx, a.PractitionerID)
		if err != nil && !errors.Is(err, domain.ErrPractitionerNotFound) {
			return fmt.Errorf("load practitioner: %w", err)
		}
		released := p != nil && p.Slots.Release(a.Slot)
		if released {
			p.UpdatedAt = now
			if err := s.practitioners.Save(ctx, p); err != nil {
				return fmt.Errorf("release slot: %w", err)
			}
		} else {
			s.log.Warn("no reserved slot to release",
				zap.String("appointment_id", a.ID),
				zap.String("practitioner_id", a.PractitionerID))
		}

		if err := s.appointments.Save(ctx, a); err != nil {
			if released {
				s.compensate(ctx, p, func() {
					if i := p.Slots.Index(a.Slot); i >= 0 {
						p.Slots[i].Reserved = true
					}
				})
			}
			return fmt.Errorf("save appointment: %w", err)
		}
		return nil
	}, lock.PractitionerKey(a.PractitionerID))
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment cancelled", zap.String("appointment_id", a.ID))
	s.logEvent(ctx, a, events.AppointmentCancelled, nil)
	return a, nil
}

// AddResult records the visit outcome and moves the appointment to SEEN.
// The slot must already have started.
func (s *Service) AddResult(ctx context.Context, id string, in ResultInput) (*domain.Appointment, error) {
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}
	result := domain.MedicalResult{
		Description:     in.Description,
		Diagnosis:       in.Diagnosis,
		Recommendations: in.Recommendations,
	}
	if in.RecordedAt != nil {
		result.RecordedAt = *in.RecordedAt
	}

	a, err := s.transition(ctx, id, func(a *domain.Appointment, now time.Time) error {
		return a.RecordResult(result, now, s.loc)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("result recorded", zap.String("appointment_id", a.ID))
	s.logEvent(ctx, a, events.ResultRecorded, map[string]any{"recorded_at": a.Result.RecordedAt})
	return a, nil
}

// UpdateResult rewrites the result text of a SEEN appointment.
func (s *Service) UpdateResult(ctx context.Context, id string, in ResultInput) (*domain.Appointment, error) {
	if err := domain.ValidateStruct(in); err != nil {
		return nil, err
	}
	result := domain.MedicalResult{
		Description:     in.Description,
		Diagnosis:       in.Diagnosis,
		Recommendations: in.Recommendations,
	}

	a, err := s.transition(ctx, id, func(a *domain.Appointment, now time.Time) error {
		return a.UpdateResult(result, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("result updated", zap.String("appointment_id", a.ID))
	s.logEvent(ctx, a, events.ResultUpdated, nil)
	return a, nil
}

// transition applies fn to a freshly loaded appointment under its
// practitioner's lock and persists the result.
func (s *Service) transition(ctx context.Context, id string, fn func(*domain.Appointment, time.Time) error) (*domain.Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.withLock(ctx, func(ctx context.Context) error {
		a, err = s.appointments.Get(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load appointment: %w", err)
		}
		if err := fn(a, s.now()); err != nil {
			return err
		}
		if err := s.appointments.Save(ctx, a); err != nil {
			return fmt.Errorf("save appointment: %w", err)
		}
		return nil
	}, lock.PractitionerKey(a.PractitionerID))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Appointment, error) {
	id, err := domain.CanonicalID(id)
	if err != nil {
		return nil, err
	}
	a, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return a, nil
}

func (s *Service) GetResult(ctx context.Context, id string) (*domain.MedicalResult, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Result == nil {
		return nil, domain.ErrNoResult
	}
	return a.Result, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error) {
	patientID, err := domain.CanonicalID(patientID)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	list, err := s.appointments.FindByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return list, nil
}

func (s *Service) ListByPractitioner(ctx context.Context, practitionerID string) ([]*domain.Appointment, error) {
	practitionerID, err := domain.CanonicalID(practitionerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.practitioners.Get(ctx, practitionerID); err != nil {
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	list, err := s.appointments.FindByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by practitioner: %w", err)
	}
	return list, nil
}

// UpcomingForPatient returns the patient's PENDING appointments whose slot
// has not started yet, soonest first.
func (s *Service) UpcomingForPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error) {
	list, err := s.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	upcoming := []*domain.Appointment{}
	for _, a := range list {
		if a.State == domain.StatePending && a.Slot.StartsAt(s.loc).After(now) {
			upcoming = append(upcoming, a)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].Slot.Less(upcoming[j].Slot) })
	return upcoming, nil
}

const latestResults = 5

type History struct {
	Patient       *domain.Patient         `json:"patient"`
	Total         int                     `json:"total"`
	Pending       int                     `json:"pending"`
	Seen          int                     `json:"seen"`
	Cancelled     int                     `json:"cancelled"`
	Appointments  []*domain.Appointment   `json:"appointments"`
	LatestResults []*domain.MedicalResult `json:"latest_results"`
}

// PatientHistory summarizes every appointment the patient ever had, with
// the results of the most recent visits.
func (s *Service) PatientHistory(ctx context.Context, patientID string) (*History, error) {
	patientID, err := domain.CanonicalID(patientID)
	if err != nil {
		return nil, err
	}
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	list, err := s.appointments.FindByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}

	h := &History{
		Patient:       p,
		Total:         len(list),
		Appointments:  list,
		LatestResults: []*domain.MedicalResult{},
	}
	seen := []*domain.Appointment{}
	for _, a := range list {
		switch a.State {
		case domain.StatePending:
			h.Pending++
		case domain.StateSeen:
			h.Seen++
		case domain.StateCancelled:
			h.Cancelled++
		}
		if a.Result != nil {
			seen = append(seen, a)
		}
	}
	sort.SliceStable(seen, func(i, j int) bool { return seen[j].Slot.Less(seen[i].Slot) })
	for i := 0; i < len(seen) && i < latestResults; i++ {
		h.LatestResults = append(h.LatestResults, seen[i].Result)
	}
	return h, nil
}

// ListAll returns every appointment, latest slot first.
func (s *Service) ListAll(ctx context.Context) ([]*domain.Appointment, error) {
	list, err := s.appointments.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[j].Slot.Less(list[i].Slot) })
	return list, nil
}

// compensate undoes a practitioner write after a later write in the same
// critical section failed. Failures are logged; the caller already reports
// the original error.
func (s *Service) compensate(ctx context.Context, p *domain.Practitioner, undo func()) {
	undo()
	p.UpdatedAt = s.now()
	if err := s.practitioners.Save(ctx, p); err != nil {
		s.log.Error("compensating practitioner write failed",
			zap.String("practitioner_id", p.ID), zap.Error(err))
	}
}

func (s *Service) withLock(ctx context.Context, fn func(ctx context.Context) error, keys ...string) error {
	err := lock.Many(ctx, s.locker, keys, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return domain.ErrBusy
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, a *domain.Appointment, eventType string, extra map[string]any) {
	payload := map[string]any{
		"date":       a.Slot.Date.String(),
		"start_time": a.Slot.Start.String(),
		"end_time":   a.Slot.End.String(),
		"state":      string(a.State),
	}
	for k, v := range extra {
		payload[k] = v
	}

	ev := events.Event{
		Type:           eventType,
		AppointmentID:  a.ID,
		PatientID:      a.PatientID,
		PractitionerID: a.PractitionerID,
		Payload:        payload,
		OccurredAt:     s.now(),
	}

	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Error("failed to publish event",
			zap.String("type", eventType), zap.String("appointment_id", a.ID), zap.Error(err))
	}
}
