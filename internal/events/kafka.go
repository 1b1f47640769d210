package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBridge forwards bus events to a Kafka topic, keyed by booking id so
// one booking's events stay ordered within a partition.
type KafkaBridge struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zerolog.Logger
}

// NewKafkaWriter returns a synchronous writer, or nil when no broker is configured.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	var valid []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(valid...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
}

func NewKafkaBridge(writer messageWriter, logger *zerolog.Logger) *KafkaBridge {
	return &KafkaBridge{
		writer:  writer,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Attach subscribes the bridge to every payment event on bus.
func (k *KafkaBridge) Attach(bus *EventBus) {
	bus.SubscribeAll(k.Handle)
}

func (k *KafkaBridge) Handle(event *Event) error {
	var envelope struct {
		BookingID string `json:"booking_id"`
	}
	_ = json.Unmarshal(event.Payload, &envelope)

	msg := kafka.Message{
		Key:   []byte(envelope.BookingID),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error().Err(err).Str("event", event.Type).Str("booking_id", envelope.BookingID).Msg("Kafka publish failed")
		return fmt.Errorf("kafka publish %s: %w", event.Type, err)
	}
	k.logger.Debug().Str("event", event.Type).Str("booking_id", envelope.BookingID).Msg("Event published to Kafka")
	return nil
}

func (k *KafkaBridge) Close() error {
	return k.writer.Close()
}
