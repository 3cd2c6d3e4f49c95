package models

import "time"

// Entity is a labeled text fragment returned by the extraction service.
type Entity struct {
	Type        string `json:"type"`
	MentionText string `json:"mention_text"`
}

// Transcript is the flat result returned to API callers. Field order is the
// order keys appear in the JSON response.
type Transcript struct {
	NIM          string `json:"nim"`
	Nama         string `json:"nama"`
	IPK          string `json:"ipk"`
	Univ         string `json:"univ"`
	Fakultas     string `json:"fakultas"`
	ProgramStudi string `json:"program_studi"`
	Pendidikan   string `json:"pendidikan"`
	PDDikti      string `json:"pddikti"`
	TimeElapsed  string `json:"time_elapsed"`
}

// TranscriptRecord is the event published after a successful extraction and
// the document stored in Elasticsearch.
type TranscriptRecord struct {
	EventID        string    `json:"event_id"`
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	MimeType       string    `json:"mime_type"`
	SniffedType    string    `json:"sniffed_type,omitempty"`
	NIM            string    `json:"nim"`
	Nama           string    `json:"nama"`
	IPK            string    `json:"ipk"`
	Univ           string    `json:"univ"`
	Fakultas       string    `json:"fakultas"`
	ProgramStudi   string    `json:"program_studi"`
	Pendidikan     string    `json:"pendidikan"`
	PDDikti        string    `json:"pddikti"`
	ProcessedAt    time.Time `json:"processed_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}
