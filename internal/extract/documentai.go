package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/avast/retry-go"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/DeafMist/transcript-ocr/internal/models"
)

// Config identifies the processor to call.
type Config struct {
	Credentials  string
	Endpoint     string
	ProjectID    string
	Location     string
	ProcessorID  string
	ModelVersion string
	Timeout      time.Duration
	Attempts     int
}

// ResourceName is the processor version path, or the processor path when no
// version is pinned.
func (c Config) ResourceName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
	if c.ModelVersion != "" {
		name += "/processorVersions/" + c.ModelVersion
	}
	return name
}

type processClient interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

// DocumentAI calls a Google Document AI processor.
type DocumentAI struct {
	client   processClient
	closer   io.Closer
	name     string
	timeout  time.Duration
	attempts uint
	delay    time.Duration
	log      *slog.Logger
}

// NewDocumentAI dials the processor endpoint. Credentials may be an inline
// service-account JSON blob or a path to one.
func NewDocumentAI(ctx context.Context, cfg Config, logger *slog.Logger) (*DocumentAI, error) {
	opts := []option.ClientOption{option.WithEndpoint(cfg.Endpoint)}
	if creds := strings.TrimSpace(cfg.Credentials); strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else if creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create document ai client: %w", err)
	}

	d := newDocumentAI(client, cfg, logger)
	d.closer = client
	return d, nil
}

func newDocumentAI(client processClient, cfg Config, logger *slog.Logger) *DocumentAI {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return &DocumentAI{
		client:   client,
		name:     cfg.ResourceName(),
		timeout:  cfg.Timeout,
		attempts: uint(attempts),
		delay:    200 * time.Millisecond,
		log:      logger,
	}
}

// Extract sends the document and returns the entities the processor found.
func (d *DocumentAI) Extract(ctx context.Context, doc Document) ([]models.Entity, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req := &documentaipb.ProcessRequest{
		Name: d.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.Content,
				MimeType: doc.MimeType,
			},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{"entities"}},
	}

	var resp *documentaipb.ProcessResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = d.client.ProcessDocument(ctx, req)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(d.attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(d.delay),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= d.attempts {
				return
			}
			d.log.Warn("process document failed, retrying",
				slog.Any("err", err),
				slog.Int("attempt", int(n)+1),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("process document: %w", err)
	}

	raw := resp.GetDocument().GetEntities()
	entities := make([]models.Entity, 0, len(raw))
	for _, e := range raw {
		if e == nil {
			continue
		}
		entities = append(entities, models.Entity{Type: e.GetType(), MentionText: e.GetMentionText()})
	}

	d.log.Debug("document processed",
		slog.String("processor", d.name),
		slog.Int("entities", len(entities)),
	)
	return entities, nil
}

// Close releases the underlying connection.
func (d *DocumentAI) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	default:
		return false
	}
}
