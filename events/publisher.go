package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	MediaCreated     = "media.created"
	MediaUpdated     = "media.updated"
	MediaDeleted     = "media.deleted"
	MediaBulkDeleted = "media.bulk_deleted"
	MediaCleaned     = "media.cleaned"
)

// Event describes one successful mutation.
type Event struct {
	Type       string      `json:"type"`
	Kind       models.Kind `json:"kind"`
	ID         string      `json:"id,omitempty"`
	Title      string      `json:"title,omitempty"`
	AssetKey   string      `json:"asset_key,omitempty"`
	AssetURL   string      `json:"asset_url,omitempty"`
	Count      int64       `json:"count,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// RecordEvent builds an event about a single record.
func RecordEvent(typ string, rec *models.MediaRecord) Event {
	return Event{
		Type:       typ,
		Kind:       rec.Kind,
		ID:         rec.ID.String(),
		Title:      rec.Title,
		AssetKey:   rec.Asset.Key,
		AssetURL:   rec.Asset.URL,
		OccurredAt: time.Now().UTC(),
	}
}

// CountEvent builds an event about a batch of records.
func CountEvent(typ string, kind models.Kind, n int64) Event {
	return Event{Type: typ, Kind: kind, Count: n, OccurredAt: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NoopPublisher drops every event. Used when KAFKA_BROKERS is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:      SplitBrokers(brokers),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		}),
		topic: topic,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) (err error) {
	defer func() { metrics.RecordKafkaMessage(p.topic, err) }()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	key := e.ID
	if key == "" {
		key = string(e.Kind)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func SplitBrokers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
