package processing_test

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DeafMist/transcript-ocr/internal/models"
	"github.com/DeafMist/transcript-ocr/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestShapeMapsKnownEntities(t *testing.T) {
	entities := []models.Entity{
		{Type: "nim", MentionText: "1910/511/001"},
		{Type: "nama", MentionText: "BUDI SANTOSO"},
		{Type: "ipk", MentionText: ": 3.75"},
		{Type: "univ", MentionText: `UNIVERSITAS\ INDONESIA`},
		{Type: "fakultas", MentionText: "TEKNIK"},
		{Type: "program_studi", MentionText: "TEKNIK INFORMATIKA"},
		{Type: "pendidikan", MentionText: "S1"},
		{Type: "tanggal_lulus", MentionText: "2023-08-17"},
	}

	got := processing.Shape(entities)

	require.Equal(t, models.Transcript{
		NIM:          "1910511001",
		Nama:         "BUDI SANTOSO",
		IPK:          " 3.75",
		Univ:         "UNIVERSITAS INDONESIA",
		Fakultas:     "TEKNIK",
		ProgramStudi: "TEKNIK INFORMATIKA",
		Pendidikan:   "S1",
		PDDikti:      processing.PDDiktiSearchURL + "1910511001",
	}, got)
}

func TestShapeMissingEntitiesAreEmpty(t *testing.T) {
	got := processing.Shape(nil)

	require.Empty(t, got.NIM)
	require.Empty(t, got.Nama)
	require.Empty(t, got.IPK)
	require.Empty(t, got.Univ)
	require.Empty(t, got.Fakultas)
	require.Empty(t, got.ProgramStudi)
	require.Empty(t, got.Pendidikan)
	require.Equal(t, processing.PDDiktiSearchURL, got.PDDikti)
}

func TestEntityBagLastMentionWins(t *testing.T) {
	bag := processing.EntityBag([]models.Entity{
		{Type: "nama", MentionText: "FIRST"},
		{Type: "nama", MentionText: "SECOND"},
	})
	require.Equal(t, map[string]string{"nama": "SECOND"}, bag)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		field string
		input string
		want  string
	}{
		{name: "ipk dash", field: "ipk", input: "3-50", want: "350"},
		{name: "ipk equals and colon", field: "ipk", input: "=: 3.50", want: " 3.50"},
		{name: "univ backslash", field: "univ", input: `UNIV\ERSITAS \GADJAH MADA`, want: "UNIVERSITAS GADJAH MADA"},
		{name: "nim slash", field: "nim", input: "20/123/456", want: "20123456"},
		{name: "nama untouched", field: "nama", input: "A-B/C:D", want: "A-B/C:D"},
		{name: "ipk keeps slash", field: "ipk", input: "3/4", want: "3/4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bag := map[string]string{tt.field: tt.input}
			processing.Sanitize(bag)
			require.Equal(t, tt.want, bag[tt.field])
		})
	}
}

func TestSanitizeSkipsEmptyValues(t *testing.T) {
	bag := map[string]string{"ipk": ""}
	processing.Sanitize(bag)
	require.Equal(t, map[string]string{"ipk": ""}, bag)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "zero", in: 0, want: "0.0"},
		{name: "negative clamps", in: -time.Second, want: "0.0"},
		{name: "sub millisecond", in: 200 * time.Microsecond, want: "0.0"},
		{name: "half second", in: 500 * time.Millisecond, want: "0.5"},
		{name: "whole seconds", in: 2 * time.Second, want: "2.0"},
		{name: "rounded", in: 1234567 * time.Microsecond, want: "1.235"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.FormatElapsed(tt.in)
			require.Equal(t, tt.want, got)

			parsed, err := strconv.ParseFloat(got, 64)
			require.NoError(t, err)
			require.GreaterOrEqual(t, parsed, 0.0)
		})
	}
}

func TestTranscriptJSONKeyOrder(t *testing.T) {
	data, err := json.Marshal(models.Transcript{})
	require.NoError(t, err)

	keys := []string{"nim", "nama", "ipk", "univ", "fakultas", "program_studi", "pendidikan", "pddikti", "time_elapsed"}
	last := -1
	for _, k := range keys {
		idx := strings.Index(string(data), `"`+k+`"`)
		require.Greater(t, idx, last, "key %s out of order", k)
		last = idx
	}
}

func TestContentHash(t *testing.T) {
	a := processing.ContentHash([]byte("transcript"))
	b := processing.ContentHash([]byte("transcript"))
	c := processing.ContentHash([]byte("other"))

	require.Len(t, a, 40)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
