package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/transcript-ocr/internal/events"
	"github.com/DeafMist/transcript-ocr/internal/models"
)

func TestNewMessageKeysByDocumentID(t *testing.T) {
	rec := models.TranscriptRecord{
		EventID:     "evt-1",
		ID:          "doc-1",
		NIM:         "123",
		ProcessedAt: time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	msg, err := events.NewMessage(rec)
	require.NoError(t, err)
	require.Equal(t, []byte("doc-1"), msg.Key)
	require.Len(t, msg.Headers, 1)
	require.Equal(t, "event_id", msg.Headers[0].Key)
	require.Equal(t, []byte("evt-1"), msg.Headers[0].Value)

	decoded, err := events.Decode(msg.Value)
	require.NoError(t, err)
	require.Equal(t, rec, decoded)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	_, err := events.Decode([]byte("{not json"))
	require.ErrorContains(t, err, "decode transcript event")

	_, err = events.Decode([]byte(`{"id":"  ","nim":"1"}`))
	require.ErrorContains(t, err, "missing id")
}

func TestNopPublisher(t *testing.T) {
	var p events.Publisher = events.Nop{}
	require.NoError(t, p.Publish(context.Background(), models.TranscriptRecord{ID: "x"}))
}
