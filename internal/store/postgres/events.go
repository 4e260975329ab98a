package postgres

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointments/internal/events"
)

// EventLog appends lifecycle events to the event_logs table.
type EventLog struct {
	pool *pgxpool.Pool
}

var _ events.Sink = (*EventLog)(nil)

func NewEventLog(pool *pgxpool.Pool) *EventLog {
	return &EventLog{pool: pool}
}

func (l *EventLog) Publish(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	var appointmentID *string
	if ev.AppointmentID != "" {
		appointmentID = &ev.AppointmentID
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.Type, appointmentID, data, nullableTime(ev.OccurredAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
