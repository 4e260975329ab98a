package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointments/internal/domain"
	"github.com/hackgods/clinic-appointments/internal/events"
	"github.com/hackgods/clinic-appointments/internal/lock"
	"github.com/hackgods/clinic-appointments/internal/store/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	svc           *Service
	practitioners *memory.PractitionerStore
	patients      *memory.PatientStore
	appointments  domain.AppointmentStore
	recorder      *events.Recorder
	clock         *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, memory.NewAppointmentStore())
}

func newHarnessWith(t *testing.T, appts domain.AppointmentStore) *harness {
	t.Helper()
	h := &harness{
		practitioners: memory.NewPractitionerStore(),
		patients:      memory.NewPatientStore(),
		appointments:  appts,
		recorder:      events.NewRecorder(),
		clock:         &testClock{now: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)},
	}
	h.svc = NewService(h.practitioners, h.patients, h.appointments, lock.NewLocal(2*time.Second),
		h.recorder, zap.NewNop(), WithClock(h.clock.Now), WithLocation(time.UTC))
	return h
}

func (h *harness) practitioner(t *testing.T, name string, slots ...domain.Slot) string {
	t.Helper()
	p := &domain.Practitioner{ID: domain.NewID(), Name: name, Specialty: "General"}
	for _, s := range slots {
		require.NoError(t, p.Slots.Add(s))
	}
	require.NoError(t, h.practitioners.Save(context.Background(), p))
	return p.ID
}

func (h *harness) patient(t *testing.T, name string) string {
	t.Helper()
	p := &domain.Patient{ID: domain.NewID(), Name: name}
	require.NoError(t, h.patients.Save(context.Background(), p))
	return p.ID
}

func (h *harness) slotOf(t *testing.T, practitionerID string, target domain.Slot) domain.Slot {
	t.Helper()
	p, err := h.practitioners.Get(context.Background(), practitionerID)
	require.NoError(t, err)
	i := p.Slots.Index(target)
	require.GreaterOrEqual(t, i, 0, "slot %v missing", target)
	return p.Slots[i]
}

func slot(date string, start, end string) domain.Slot {
	d, _ := domain.ParseDate(date)
	s, _ := domain.ParseClock(start)
	e, _ := domain.ParseClock(end)
	return domain.Slot{Date: d, Start: s, End: e}
}

func TestBookAndCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p := h.patient(t, "Pablo")

	id, err := h.svc.Book(ctx, p, m, target)
	require.NoError(t, err)

	assert.True(t, h.slotOf(t, m, target).Reserved)
	a, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, a.State)
	assert.True(t, a.Slot.SameTriple(target))

	cancelled, err := h.svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cancelled.State)
	assert.False(t, h.slotOf(t, m, target).Reserved)

	_, err = h.svc.Cancel(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)

	assert.Equal(t, []string{events.AppointmentBooked, events.AppointmentCancelled}, h.recorder.Types())
}

func TestCancelDoesNotDoubleRelease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p1 := h.patient(t, "First")
	p2 := h.patient(t, "Second")

	first, err := h.svc.Book(ctx, p1, m, target)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, first)
	require.NoError(t, err)

	_, err = h.svc.Book(ctx, p2, m, target)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, first)
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.True(t, h.slotOf(t, m, target).Reserved, "second booking keeps its reservation")
}

func TestCancelToleratesRemovedSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p := h.patient(t, "Pablo")

	id, err := h.svc.Book(ctx, p, m, target)
	require.NoError(t, err)

	pr, err := h.practitioners.Get(ctx, m)
	require.NoError(t, err)
	pr.Slots = domain.Slots{}
	require.NoError(t, h.practitioners.Save(ctx, pr))

	a, err := h.svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, a.State)
}

func TestBookRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target, slot("2025-06-01", "11:00", "12:00"))
	other := h.practitioner(t, "Dr. Ortega", slot("2025-06-01", "09:30", "10:30"))
	p := h.patient(t, "Pablo")
	q := h.patient(t, "Quique")

	_, err := h.svc.Book(ctx, p, m, target)
	require.NoError(t, err)

	tests := []struct {
		name         string
		patient      string
		practitioner string
		slot         domain.Slot
		want         error
	}{
		{"reserved slot", q, m, target, domain.ErrSlotReserved},
		{"slot not offered", q, m, slot("2025-06-01", "09:00", "09:45"), domain.ErrSlotNotOffered},
		{"patient overlap elsewhere", p, other, slot("2025-06-01", "09:30", "10:30"), domain.ErrPatientBusy},
		{"past slot", q, m, slot("2025-04-30", "09:00", "10:00"), domain.ErrPastSlot},
		{"unknown patient", domain.NewID(), m, slot("2025-06-01", "11:00", "12:00"), domain.ErrPatientNotFound},
		{"unknown practitioner", q, domain.NewID(), target, domain.ErrPractitionerNotFound},
		{"malformed id", "x", m, target, domain.ErrInvalidID},
		{"empty range", q, m, slot("2025-06-01", "11:00", "11:00"), domain.ErrEmptyRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Book(ctx, tt.patient, tt.practitioner, tt.slot)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.False(t, h.slotOf(t, other, slot("2025-06-01", "09:30", "10:30")).Reserved)
}

func TestBookAfterCancelFreesPatientWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := slot("2025-06-01", "09:00", "10:00")
	b := slot("2025-06-01", "09:30", "10:30")
	m1 := h.practitioner(t, "Dr. One", a)
	m2 := h.practitioner(t, "Dr. Two", b)
	p := h.patient(t, "Pablo")

	id, err := h.svc.Book(ctx, p, m1, a)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.Book(ctx, p, m2, b)
	assert.NoError(t, err)
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)

	const callers = 16
	patients := make([]string, callers)
	for i := range patients {
		patients[i] = h.patient(t, "Patient "+string(rune('A'+i)))
	}

	var wins, conflicts int32
	var g errgroup.Group
	for _, p := range patients {
		g.Go(func() error {
			_, err := h.svc.Book(ctx, p, m, target)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, domain.ErrConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(callers-1), conflicts)

	booked, err := h.svc.ListByPractitioner(ctx, m)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestConcurrentBookingSamePatient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.patient(t, "Pablo")

	const practitioners = 8
	ids := make([]string, practitioners)
	for i := range ids {
		ids[i] = h.practitioner(t, "Dr. "+string(rune('A'+i)), slot("2025-06-01", "09:00", "10:00"))
	}

	var g errgroup.Group
	for _, m := range ids {
		g.Go(func() error {
			_, err := h.svc.Book(ctx, p, m, slot("2025-06-01", "09:00", "10:00"))
			if err != nil && !errors.Is(err, domain.ErrConflict) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	held, err := h.svc.ListByPatient(ctx, p)
	require.NoError(t, err)
	assert.Len(t, held, 1, "a patient never holds two overlapping appointments")
}

func TestBookAcceptsAnyIDSpelling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.patient(t, "Pablo")
	spellings := []string{
		p,
		strings.ToUpper(p),
		"{" + p + "}",
		"urn:uuid:" + p,
		strings.ReplaceAll(p, "-", ""),
	}

	ids := make([]string, len(spellings))
	for i := range ids {
		ids[i] = h.practitioner(t, "Dr. "+string(rune('A'+i)), slot("2025-06-01", "09:00", "10:00"))
	}

	var booked atomic.Int32
	var g errgroup.Group
	for i, m := range ids {
		g.Go(func() error {
			_, err := h.svc.Book(ctx, spellings[i], strings.ToUpper(m), slot("2025-06-01", "09:00", "10:00"))
			switch {
			case err == nil:
				booked.Add(1)
			case !errors.Is(err, domain.ErrPatientBusy) && !errors.Is(err, domain.ErrBusy):
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, booked.Load())

	held, err := h.svc.ListByPatient(ctx, strings.ToUpper(p))
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, p, held[0].PatientID, "stored references use the canonical id")
	assert.Contains(t, ids, held[0].PractitionerID)
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p := h.patient(t, "Pablo")

	id, err := h.svc.Book(ctx, p, m, target)
	require.NoError(t, err)

	in := ResultInput{Description: "Routine checkup", Diagnosis: "Healthy", Recommendations: "Keep walking"}

	_, err = h.svc.AddResult(ctx, id, in)
	assert.ErrorIs(t, err, domain.ErrNotStarted)
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)

	_, err = h.svc.GetResult(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNoResult)

	_, err = h.svc.UpdateResult(ctx, id, in)
	assert.ErrorIs(t, err, domain.ErrNotSeen)

	h.clock.Set(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	a, err := h.svc.AddResult(ctx, id, in)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSeen, a.State)
	recordedAt := a.Result.RecordedAt
	assert.Equal(t, h.clock.Now(), recordedAt)

	_, err = h.svc.AddResult(ctx, id, in)
	assert.ErrorIs(t, err, domain.ErrNotPending)

	_, err = h.svc.Cancel(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadySeen)
	assert.True(t, h.slotOf(t, m, target).Reserved, "a seen appointment keeps its slot")

	h.clock.Set(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	in.Diagnosis = "Mild hypertension"
	updated, err := h.svc.UpdateResult(ctx, id, in)
	require.NoError(t, err)
	assert.Equal(t, "Mild hypertension", updated.Result.Diagnosis)
	assert.Equal(t, recordedAt, updated.Result.RecordedAt)

	res, err := h.svc.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, res.AppointmentID)

	_, err = h.svc.AddResult(ctx, id, ResultInput{Description: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Equal(t, []string{events.AppointmentBooked, events.ResultRecorded, events.ResultUpdated}, h.recorder.Types())
}

func TestAddResultWithExplicitRecordedAt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p := h.patient(t, "Pablo")

	id, err := h.svc.Book(ctx, p, m, target)
	require.NoError(t, err)

	h.clock.Set(time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC))
	at := time.Date(2025, 6, 1, 9, 45, 0, 0, time.UTC)
	a, err := h.svc.AddResult(ctx, id, ResultInput{
		Description: "d", Diagnosis: "d", Recommendations: "r", RecordedAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, at, a.Result.RecordedAt)
}

func TestListAllOrdersBySlotDescending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	early := slot("2025-06-01", "09:00", "10:00")
	late := slot("2025-06-02", "09:00", "10:00")
	mid := slot("2025-06-01", "15:00", "16:00")
	m := h.practitioner(t, "Dr. Martinez", early, late, mid)

	for i, s := range []domain.Slot{early, late, mid} {
		_, err := h.svc.Book(ctx, h.patient(t, "Patient "+string(rune('A'+i))), m, s)
		require.NoError(t, err)
	}

	all, err := h.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Slot.SameTriple(late))
	assert.True(t, all[1].Slot.SameTriple(mid))
	assert.True(t, all[2].Slot.SameTriple(early))
}

type failingAppointments struct {
	*memory.AppointmentStore
	fail atomic.Bool
}

func (f *failingAppointments) Save(ctx context.Context, a *domain.Appointment) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.AppointmentStore.Save(ctx, a)
}

func TestBookRollsBackReservation(t *testing.T) {
	ctx := context.Background()
	appts := &failingAppointments{AppointmentStore: memory.NewAppointmentStore()}
	h := newHarnessWith(t, appts)
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p := h.patient(t, "Pablo")

	appts.fail.Store(true)
	_, err := h.svc.Book(ctx, p, m, target)
	require.Error(t, err)
	assert.Nil(t, domain.KindOf(err))
	assert.False(t, h.slotOf(t, m, target).Reserved)

	appts.fail.Store(false)
	id, err := h.svc.Book(ctx, p, m, target)
	require.NoError(t, err)

	appts.fail.Store(true)
	_, err = h.svc.Cancel(ctx, id)
	require.Error(t, err)
	assert.True(t, h.slotOf(t, m, target).Reserved, "release rolled back")

	a, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, a.State)
}

func TestBusyPractitioner(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLocal(10 * time.Millisecond)
	h := newHarness(t)
	h.svc = NewService(h.practitioners, h.patients, h.appointments, locker, h.recorder, zap.NewNop(),
		WithClock(h.clock.Now), WithLocation(time.UTC))
	target := slot("2025-06-01", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", target)
	p := h.patient(t, "Pablo")

	err := locker.WithLock(ctx, lock.PractitionerKey(m), func(ctx context.Context) error {
		_, err := h.svc.Book(ctx, p, m, target)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.False(t, h.slotOf(t, m, target).Reserved)
}

func TestListByUnknownOwners(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.ListByPatient(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)

	_, err = h.svc.ListByPractitioner(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = h.svc.Get(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrAppointmentNotFound)
}

func TestUpcomingForPatient(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	early := slot("2025-05-02", "09:00", "10:00")
	late := slot("2025-06-10", "09:00", "10:00")
	mid := slot("2025-06-01", "14:00", "15:00")
	gone := slot("2025-06-01", "08:00", "08:30")
	m := h.practitioner(t, "Dr. Martinez", early, late, mid, gone)
	p := h.patient(t, "Pablo")

	for _, s := range []domain.Slot{late, early, mid} {
		_, err := h.svc.Book(ctx, p, m, s)
		require.NoError(t, err)
	}
	cancelled, err := h.svc.Book(ctx, p, m, gone)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, cancelled)
	require.NoError(t, err)

	// early has started by now
	h.clock.Set(time.Date(2025, 5, 2, 9, 30, 0, 0, time.UTC))

	upcoming, err := h.svc.UpcomingForPatient(ctx, p)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.True(t, upcoming[0].Slot.SameTriple(mid))
	assert.True(t, upcoming[1].Slot.SameTriple(late))

	_, err = h.svc.UpcomingForPatient(ctx, domain.NewID())
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)
}

func TestPatientHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := slot("2025-05-02", "09:00", "10:00")
	second := slot("2025-05-03", "09:00", "10:00")
	third := slot("2025-06-01", "09:00", "10:00")
	fourth := slot("2025-06-02", "09:00", "10:00")
	m := h.practitioner(t, "Dr. Martinez", first, second, third, fourth)
	p := h.patient(t, "Pablo")

	ids := map[string]string{}
	for name, s := range map[string]domain.Slot{"first": first, "second": second, "third": third, "fourth": fourth} {
		id, err := h.svc.Book(ctx, p, m, s)
		require.NoError(t, err)
		ids[name] = id
	}
	_, err := h.svc.Cancel(ctx, ids["fourth"])
	require.NoError(t, err)

	h.clock.Set(time.Date(2025, 5, 4, 8, 0, 0, 0, time.UTC))
	in := ResultInput{Description: "Checkup", Diagnosis: "Healthy", Recommendations: "None"}
	_, err = h.svc.AddResult(ctx, ids["first"], in)
	require.NoError(t, err)
	_, err = h.svc.AddResult(ctx, ids["second"], in)
	require.NoError(t, err)

	hist, err := h.svc.PatientHistory(ctx, strings.ToUpper(p))
	require.NoError(t, err)
	assert.Equal(t, p, hist.Patient.ID)
	assert.Equal(t, 4, hist.Total)
	assert.Equal(t, 1, hist.Pending)
	assert.Equal(t, 2, hist.Seen)
	assert.Equal(t, 1, hist.Cancelled)
	assert.Len(t, hist.Appointments, 4)
	require.Len(t, hist.LatestResults, 2)
	assert.Equal(t, ids["second"], hist.LatestResults[0].AppointmentID, "latest visit first")
	assert.Equal(t, ids["first"], hist.LatestResults[1].AppointmentID)

	_, err = h.svc.PatientHistory(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
