package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/transcript-ocr/internal/dedupe"
	"github.com/DeafMist/transcript-ocr/internal/events"
	"github.com/DeafMist/transcript-ocr/internal/models"
)

type stubIndexer struct {
	records []models.TranscriptRecord
	err     error
}

func (s *stubIndexer) IndexTranscript(_ context.Context, rec models.TranscriptRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type stubWriter struct {
	failures int
	written  []kafka.Message
	calls    int
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("broker unavailable")
	}
	s.written = append(s.written, msgs...)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessMessageIndexesTranscript(t *testing.T) {
	idx := &stubIndexer{}
	seen := dedupe.NewSeen(100, time.Hour)

	msg, err := events.NewMessage(models.TranscriptRecord{
		EventID:     "evt-1",
		ID:          "doc-1",
		NIM:         "2010512007",
		Nama:        "DEWI LESTARI",
		ProcessedAt: time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, seen, msg))
	require.Len(t, idx.records, 1)
	require.Equal(t, "doc-1", idx.records[0].ID)
	require.Equal(t, "DEWI LESTARI", idx.records[0].Nama)

	// redelivery of the same event is skipped
	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, seen, msg))
	require.Len(t, idx.records, 1)
}

func TestProcessMessageFillsMissingMetadata(t *testing.T) {
	idx := &stubIndexer{}
	seen := dedupe.NewSeen(100, time.Hour)
	msgTime := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	data, err := json.Marshal(map[string]string{"id": "doc-2", "nim": "1"})
	require.NoError(t, err)

	msg := kafka.Message{Value: data, Time: msgTime}
	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, seen, msg))

	require.Len(t, idx.records, 1)
	rec := idx.records[0]
	require.NotEmpty(t, rec.EventID)
	require.Equal(t, msgTime, rec.ProcessedAt)
	require.True(t, seen.IsSeen("doc-2"))
}

func TestProcessMessageUsesHeaderEventID(t *testing.T) {
	idx := &stubIndexer{}
	seen := dedupe.NewSeen(100, time.Hour)

	msg := kafka.Message{
		Value:   []byte(`{"id":"doc-3"}`),
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-header")}},
	}
	require.NoError(t, processMessage(context.Background(), discardLogger(), idx, seen, msg))
	require.Equal(t, "evt-header", idx.records[0].EventID)
	require.True(t, seen.IsSeen("evt-header"))
}

func TestProcessMessageErrors(t *testing.T) {
	seen := dedupe.NewSeen(100, time.Hour)

	err := processMessage(context.Background(), discardLogger(), &stubIndexer{}, seen, kafka.Message{Value: []byte("garbage")})
	require.Error(t, err)

	failing := &stubIndexer{err: errors.New("index transcript failed: boom")}
	msg := kafka.Message{Value: []byte(`{"event_id":"evt-9","id":"doc-9"}`)}
	err = processMessage(context.Background(), discardLogger(), failing, seen, msg)
	require.ErrorContains(t, err, "boom")
	require.False(t, seen.IsSeen("evt-9"))
}

func TestDeadLetterRetries(t *testing.T) {
	w := &stubWriter{failures: 2}
	msg := kafka.Message{Partition: 3, Offset: 42, Value: []byte("garbage")}

	ok := deadLetter(context.Background(), discardLogger(), w, msg, errors.New("decode failed"), time.Millisecond)
	require.True(t, ok)
	require.Equal(t, 3, w.calls)
	require.Len(t, w.written, 1)
	require.Equal(t, []byte("garbage"), w.written[0].Value)
}

func TestDeadLetterGivesUp(t *testing.T) {
	w := &stubWriter{failures: dlqAttempts}

	ok := deadLetter(context.Background(), discardLogger(), w, kafka.Message{}, errors.New("x"), time.Millisecond)
	require.False(t, ok)
	require.Equal(t, dlqAttempts, w.calls)
}

func TestDLQMessageHeaders(t *testing.T) {
	msg := kafka.Message{
		Key:       []byte("doc-1"),
		Value:     []byte("payload"),
		Partition: 1,
		Offset:    7,
		Headers:   []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}},
	}
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	out := dlqMessage(msg, errors.New("boom"), now)
	require.Equal(t, msg.Key, out.Key)
	require.Equal(t, msg.Value, out.Value)
	require.Equal(t, "evt-1", headerValue(out.Headers, "event_id"))
	require.Equal(t, "1", headerValue(out.Headers, "original_partition"))
	require.Equal(t, "7", headerValue(out.Headers, "original_offset"))
	require.Equal(t, "boom", headerValue(out.Headers, "error"))
	require.Equal(t, "2024-02-03T04:05:06Z", headerValue(out.Headers, "timestamp"))
	require.Len(t, msg.Headers, 1)
}
