package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/DeafMist/transcript-ocr/internal/config"
	"github.com/DeafMist/transcript-ocr/internal/dedupe"
	"github.com/DeafMist/transcript-ocr/internal/elasticsearch"
	"github.com/DeafMist/transcript-ocr/internal/events"
	"github.com/DeafMist/transcript-ocr/internal/extract"
	"github.com/DeafMist/transcript-ocr/internal/gate"
	"github.com/DeafMist/transcript-ocr/internal/models"
	"github.com/DeafMist/transcript-ocr/internal/processing"
	"github.com/DeafMist/transcript-ocr/internal/upload"
)

const (
	uploadField    = "image"
	successMessage = "Proses OCR Berhasil"
)

type transcriptSearcher interface {
	SearchTranscripts(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
}

type server struct {
	log       *slog.Logger
	cfg       *config.API
	extractor extract.Extractor
	cache     *dedupe.Cache[models.Transcript]
	publisher events.Publisher
	search    transcriptSearcher
	now       func() time.Time
}

type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type processResponse struct {
	Error   bool              `json:"error"`
	Message string            `json:"message"`
	Result  models.Transcript `json:"result"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/", s.handleReady)
	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(gate.APIKey(s.cfg.APIKey, http.HandlerFunc(s.handleUnauthorized)))
		r.Post("/", s.handleProcess)
		if s.search != nil {
			r.Get("/transcripts", s.handleSearch)
		}
	})

	return r
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "System Ready!")
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Healthy!")
}

func (s *server) handleUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: true, Message: "API key required"})
}

func (s *server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: true, Message: "Method Not Allowed"})
}

func (s *server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: true, Message: "Not Found"})
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(slog.String("request_id", middleware.GetReqID(r.Context())))

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	up, err := upload.Read(r, uploadField)
	if err != nil {
		log.Info("upload rejected", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: true, Message: err.Error()})
		return
	}

	start := s.now()
	docID := processing.ContentHash(up.Data)

	transcript, hit := s.cached(docID)
	if !hit {
		entities, err := s.extractor.Extract(r.Context(), extract.Document{Content: up.Data, MimeType: up.MimeType})
		if err != nil {
			log.Warn("extraction failed", slog.Any("err", err), slog.String("filename", up.Filename))
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: true, Message: err.Error()})
			return
		}
		transcript = processing.Shape(entities)
		if s.cache != nil {
			s.cache.Put(docID, transcript)
		}
	}

	elapsed := s.now().Sub(start)
	transcript.TimeElapsed = processing.FormatElapsed(elapsed)

	log.Info("transcript processed",
		slog.String("id", docID),
		slog.String("filename", up.Filename),
		slog.String("mime_type", up.MimeType),
		slog.Bool("cached", hit),
		slog.Duration("elapsed", elapsed),
	)
	writeJSON(w, http.StatusOK, processResponse{Error: false, Message: successMessage, Result: transcript})

	rec := newRecord(docID, up, transcript, start, elapsed)
	if err := s.publisher.Publish(context.WithoutCancel(r.Context()), rec); err != nil {
		log.Warn("publish transcript", slog.Any("err", err), slog.String("id", docID))
	}
}

func (s *server) cached(docID string) (models.Transcript, bool) {
	if s.cache == nil {
		return models.Transcript{}, false
	}
	return s.cache.Get(docID)
}

func newRecord(docID string, up *upload.Upload, t models.Transcript, processedAt time.Time, elapsed time.Duration) models.TranscriptRecord {
	return models.TranscriptRecord{
		EventID:        uuid.NewString(),
		ID:             docID,
		Filename:       up.Filename,
		MimeType:       up.MimeType,
		SniffedType:    up.SniffedType,
		NIM:            t.NIM,
		Nama:           t.Nama,
		IPK:            t.IPK,
		Univ:           t.Univ,
		Fakultas:       t.Fakultas,
		ProgramStudi:   t.ProgramStudi,
		Pendidikan:     t.Pendidikan,
		PDDikti:        t.PDDikti,
		ProcessedAt:    processedAt.UTC(),
		ElapsedSeconds: elapsed.Seconds(),
	}
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query: strings.TrimSpace(q.Get("q")),
		NIM:   strings.TrimSpace(q.Get("nim")),
		Univ:  strings.TrimSpace(q.Get("univ")),
		From:  clampInt(q.Get("from"), 0, 10_000),
		Size:  clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Start: parseTime(q.Get("start")),
		End:   parseTime(q.Get("end")),
	}

	result, err := s.search.SearchTranscripts(ctx, params)
	if err != nil {
		s.log.Error("search transcripts", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: true, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
