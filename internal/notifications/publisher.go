package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"photoflow/internal/config"
	"photoflow/internal/photos"
)

const writeTimeout = 10 * time.Second

// Publisher forwards appended events to downstream consumers. Delivery is best
// effort; the event log stays the source of truth.
type Publisher interface {
	Publish(ctx context.Context, event photos.Event) error
	Close() error
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func NewPublisher(cfg *config.Config) Publisher {
	if cfg == nil || !cfg.EventsEnabled() {
		return Noop{}
	}
	return NewKafka(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Events.KafkaBrokers...),
		Topic:        cfg.Events.KafkaTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: writeTimeout,
	})
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each event as a JSON message keyed by photo id, so one
// photo's events land on one partition in append order.
type Kafka struct {
	writer MessageWriter
}

// NewKafka wraps writer.
func NewKafka(writer MessageWriter) *Kafka {
	return &Kafka{writer: writer}
}

// Message is the wire form of a published event.
type Message struct {
	ID         string  `json:"id"`
	PhotoID    string  `json:"photoId"`
	Type       string  `json:"type"`
	FromStatus *string `json:"fromStatus"`
	ToStatus   string  `json:"toStatus"`
	Message    string  `json:"message"`
	CreatedAt  string  `json:"createdAt"`
}

// EncodeEvent converts event into a Kafka message.
func EncodeEvent(event photos.Event) (kafka.Message, error) {
	body := Message{
		ID:        event.ID,
		PhotoID:   event.PhotoID,
		Type:      string(event.Type),
		ToStatus:  string(event.ToStatus),
		Message:   event.Message,
		CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if event.FromStatus != nil {
		from := string(*event.FromStatus)
		body.FromStatus = &from
	}
	value, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return kafka.Message{
		Key:   []byte(event.PhotoID),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, event photos.Event) error {
	if k == nil || k.writer == nil {
		return nil
	}
	msg, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, photos.Event) error { return nil }

func (Noop) Close() error { return nil }
