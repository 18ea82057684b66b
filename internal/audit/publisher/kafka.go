// Package publisher fans persisted audit events out to Kafka so external
// consumers (SIEM, compliance archive) can react without querying the
// primary store. Publishing is best-effort: a broker outage never affects
// the durable append, which already happened by the time Notify runs.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"curia/internal/audit"
)

// KafkaPublisher implements audit.Subscriber on top of franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka connects a producer to the given brokers. Returns nil when no
// brokers are configured so wiring can treat Kafka as optional.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// wirePayload keeps field order and naming stable for external consumers.
type wirePayload struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	Timestamp   string            `json:"timestamp"`
	ActorID     string            `json:"actor_id"`
	EventType   string            `json:"event_type"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
	PrevHash    string            `json:"prev_hash"`
	Hash        string            `json:"hash"`
}

// Notify publishes one event asynchronously. Errors are logged, never
// returned: the audit log has already committed the row.
func (p *KafkaPublisher) Notify(ctx context.Context, event audit.Event) {
	payload, err := json.Marshal(wirePayload{
		ID:          event.ID.String(),
		Seq:         event.Seq,
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:     event.ActorID.String(),
		EventType:   string(event.Type),
		Severity:    string(event.Severity),
		Description: event.Description,
		Details:     event.Details,
		PrevHash:    event.PrevHash,
		Hash:        event.Hash,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal audit event for kafka", "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ActorID.String()),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("publish audit event to kafka",
				"event_id", event.ID,
				"error", err,
			)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	p.client.Close()
	return nil
}
