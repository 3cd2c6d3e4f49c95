package extract

import (
	"context"

	"github.com/DeafMist/transcript-ocr/internal/models"
)

//go:generate mockgen -source=extractor.go -destination=../mocks/extract/mock_extractor.go -package=mock_extract

// Document is raw file content plus the MIME type declared to the processor.
type Document struct {
	Content  []byte
	MimeType string
}

// Extractor turns a document into the entities recognized by a processor.
type Extractor interface {
	Extract(ctx context.Context, doc Document) ([]models.Entity, error)
}
