package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig controls the producer. Brokers must be non-empty.
type KafkaConfig struct {
	Brokers       []string
	EventsTopic   string
	WebhooksTopic string
	WriteTimeout  time.Duration
}

// KafkaPublisher implements Sink and WebhookSink.
// Events are keyed by payment id, webhooks by merchant id, so that each key stays ordered.
type KafkaPublisher struct {
	events   *kafka.Writer
	webhooks *kafka.Writer
	timeout  time.Duration
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: kafka brokers are required")
	}
	if cfg.EventsTopic == "" || cfg.WebhooksTopic == "" {
		return nil, fmt.Errorf("events: events and webhooks topics are required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: cfg.WriteTimeout,
		}
	}
	return &KafkaPublisher{
		events:   newWriter(cfg.EventsTopic),
		webhooks: newWriter(cfg.WebhooksTopic),
		timeout:  cfg.WriteTimeout,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	return p.write(ctx, p.events, ev.PaymentID, ev)
}

func (p *KafkaPublisher) PublishWebhook(ctx context.Context, merchantID string, ev Event) error {
	return p.write(ctx, p.webhooks, merchantID, ev)
}

func (p *KafkaPublisher) write(ctx context.Context, w *kafka.Writer, key string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Name, err)
	}
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return w.WriteMessages(cctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Name)},
			{Key: "correlation_id", Value: []byte(ev.CorrelationID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	err := p.events.Close()
	if werr := p.webhooks.Close(); err == nil {
		err = werr
	}
	return err
}
