package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes events keyed by booking date so one date's events land on one partition.
type Kafka struct {
	w messageWriter

	mu     sync.RWMutex
	closed bool
}

// DefaultKafkaBatchTimeout keeps single-event writes from waiting on kafka-go's 1s default flush.
const DefaultKafkaBatchTimeout = 10 * time.Millisecond

func NewKafka(brokers []string, topic string, batchTimeout time.Duration, log *slog.Logger) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultKafkaBatchTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "events.kafka"), slog.String("topic", topic))

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: batchTimeout,
		Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			log.Error(fmt.Sprintf(msg, args...))
		}),
	}
	return &Kafka{w: w}, nil
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrPublisherClosed
	}

	body, err := Encode(e)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Booking.Date.String()),
		Value: body,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
			{Key: "event-id", Value: []byte(e.ID.String())},
		},
	})
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.w.Close()
}
