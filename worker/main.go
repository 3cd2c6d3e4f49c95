package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/subosito/gotenv"

	"github.com/DeafMist/transcript-ocr/internal/config"
	"github.com/DeafMist/transcript-ocr/internal/dedupe"
	"github.com/DeafMist/transcript-ocr/internal/elasticsearch"
	"github.com/DeafMist/transcript-ocr/internal/events"
	"github.com/DeafMist/transcript-ocr/internal/logger"
	"github.com/DeafMist/transcript-ocr/internal/models"
)

const dlqAttempts = 5

type transcriptIndexer interface {
	IndexTranscript(ctx context.Context, rec models.TranscriptRecord) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	_ = gotenv.Load()

	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	seen := dedupe.NewSeen(cfg.DedupeCapacity, cfg.DedupeTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := &kafka.Writer{
		Addr:        kafka.TCP(cfg.KafkaBrokers...),
		Topic:       dlqTopic,
		MaxAttempts: 3,
	}
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, seen, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !deadLetter(ctx, log, dlqWriter, msg, err, time.Second) {
				if ctx.Err() != nil {
					log.Info("context canceled during DLQ retry")
					return
				}
				// leave uncommitted so the message is redelivered after a restart
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func processMessage(ctx context.Context, log *slog.Logger, idx transcriptIndexer, seen *dedupe.Seen, msg kafka.Message) error {
	rec, err := events.Decode(msg.Value)
	if err != nil {
		return err
	}

	if rec.EventID == "" {
		rec.EventID = headerValue(msg.Headers, "event_id")
	}
	dedupeKey := rec.EventID
	if dedupeKey == "" {
		// events without an ID can only be deduped by content
		dedupeKey = rec.ID
		rec.EventID = uuid.NewString()
	}

	if seen.IsSeen(dedupeKey) {
		log.Debug("duplicate transcript event", slog.String("event_id", dedupeKey))
		return nil
	}

	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = msg.Time.UTC()
		if msg.Time.IsZero() {
			rec.ProcessedAt = time.Now().UTC()
		}
	}

	if err := idx.IndexTranscript(ctx, rec); err != nil {
		return err
	}

	seen.MarkSeen(dedupeKey)
	log.Info("indexed transcript", slog.String("id", rec.ID), slog.String("nim", rec.NIM))
	return nil
}

// deadLetter copies msg to the DLQ with error context, backing off
// exponentially between attempts. It reports whether the write succeeded.
func deadLetter(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error, baseBackoff time.Duration) bool {
	dlqMsg := dlqMessage(msg, cause, time.Now())

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}

		if attempt == dlqAttempts-1 {
			log.Warn("DLQ write failed", slog.Any("err", dlqErr), slog.Int("attempt", attempt+1))
			break
		}

		backoff := baseBackoff * time.Duration(1<<uint(attempt))
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

func dlqMessage(msg kafka.Message, cause error, now time.Time) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+4)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
		kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
		kafka.Header{Key: "error", Value: []byte(cause.Error())},
		kafka.Header{Key: "timestamp", Value: []byte(now.UTC().Format(time.RFC3339))},
	)
	return kafka.Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
