package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as persistent JSON messages to a topic exchange,
// routed by a lowercased event type, e.g. "appointment.appointment_booked".
type AMQPSink struct {
	mu       sync.Mutex
	ch       Publisher
	exchange string
}

func NewAMQPSink(ch Publisher, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

// DialAMQP connects, opens a channel and declares the durable topic exchange.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.AppointmentID + ":" + ev.Type,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}

func RoutingKey(eventType string) string {
	b := []byte(eventType)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return "appointment." + string(b)
}
