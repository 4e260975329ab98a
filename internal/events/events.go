// Package events carries appointment lifecycle notifications out of the
// ledger. Delivery is best-effort; the ledger never fails an operation
// because a sink did.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	AppointmentBooked    = "APPOINTMENT_BOOKED"
	AppointmentCancelled = "APPOINTMENT_CANCELLED"
	ResultRecorded       = "RESULT_RECORDED"
	ResultUpdated        = "RESULT_UPDATED"
)

type Event struct {
	Type           string         `json:"type"`
	AppointmentID  string         `json:"appointment_id"`
	PatientID      string         `json:"patient_id"`
	PractitionerID string         `json:"practitioner_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) error { return nil }

// Nop discards events.
func Nop() Sink { return nopSink{} }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each event to a zap logger.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("events")}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	s.log.Info("appointment event",
		zap.String("type", ev.Type),
		zap.String("appointment_id", ev.AppointmentID),
		zap.String("patient_id", ev.PatientID),
		zap.String("practitioner_id", ev.PractitionerID),
		zap.Any("payload", ev.Payload),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

// Recorder keeps published events in memory. Tests use it to observe the
// ledger.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
