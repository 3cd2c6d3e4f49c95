// Package events carries transcript records between the gateway and the indexer.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/transcript-ocr/internal/models"
)

// Publisher announces successful extractions.
type Publisher interface {
	Publish(ctx context.Context, rec models.TranscriptRecord) error
}

// Nop drops every record. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, models.TranscriptRecord) error { return nil }

// KafkaPublisher writes records asynchronously; delivery failures are logged
// by the writer's completion callback.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("publish transcript failed",
					slog.Any("err", err),
					slog.Int("messages", len(messages)),
				)
			}
		},
	}
	return &KafkaPublisher{w: w}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, rec models.TranscriptRecord) error {
	msg, err := NewMessage(rec)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write transcript event: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NewMessage encodes rec keyed by its document ID.
func NewMessage(rec models.TranscriptRecord) (kafka.Message, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal transcript event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(rec.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
		},
	}, nil
}

// Decode parses an event payload. Records without a document ID are rejected.
func Decode(value []byte) (models.TranscriptRecord, error) {
	var rec models.TranscriptRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return models.TranscriptRecord{}, fmt.Errorf("decode transcript event: %w", err)
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return models.TranscriptRecord{}, errors.New("transcript event missing id")
	}
	return rec, nil
}
