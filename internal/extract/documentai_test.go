package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/DeafMist/transcript-ocr/internal/models"
)

type fakeProcessClient struct {
	requests []*documentaipb.ProcessRequest
	errs     []error
	resp     *documentaipb.ProcessResponse
}

func (f *fakeProcessClient) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.resp, nil
}

func entityResponse(pairs ...string) *documentaipb.ProcessResponse {
	doc := &documentaipb.Document{}
	for i := 0; i+1 < len(pairs); i += 2 {
		doc.Entities = append(doc.Entities, &documentaipb.Document_Entity{Type: pairs[i], MentionText: pairs[i+1]})
	}
	return &documentaipb.ProcessResponse{Document: doc}
}

func testConfig() Config {
	return Config{
		ProjectID:    "proj",
		Location:     "us",
		ProcessorID:  "proc",
		ModelVersion: "v1",
		Attempts:     1,
	}
}

func TestResourceName(t *testing.T) {
	cfg := testConfig()
	require.Equal(t, "projects/proj/locations/us/processors/proc/processorVersions/v1", cfg.ResourceName())

	cfg.ModelVersion = ""
	require.Equal(t, "projects/proj/locations/us/processors/proc", cfg.ResourceName())
}

func TestExtractBuildsRequestAndMapsEntities(t *testing.T) {
	fake := &fakeProcessClient{resp: entityResponse("nim", "123/45", "nama", "SITI")}
	d := newDocumentAI(fake, testConfig(), nil)

	entities, err := d.Extract(context.Background(), Document{Content: []byte("img"), MimeType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, []models.Entity{
		{Type: "nim", MentionText: "123/45"},
		{Type: "nama", MentionText: "SITI"},
	}, entities)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	require.Equal(t, "projects/proj/locations/us/processors/proc/processorVersions/v1", req.GetName())
	require.Equal(t, []byte("img"), req.GetRawDocument().GetContent())
	require.Equal(t, "image/png", req.GetRawDocument().GetMimeType())
	require.Equal(t, []string{"entities"}, req.GetFieldMask().GetPaths())
}

func TestExtractEmptyDocument(t *testing.T) {
	fake := &fakeProcessClient{resp: &documentaipb.ProcessResponse{}}
	d := newDocumentAI(fake, testConfig(), nil)

	entities, err := d.Extract(context.Background(), Document{Content: []byte("img"), MimeType: "image/png"})
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestExtractRetriesTransientErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Attempts = 3
	fake := &fakeProcessClient{
		errs: []error{status.Error(codes.Unavailable, "try later"), nil},
		resp: entityResponse("ipk", "3.9"),
	}
	d := newDocumentAI(fake, cfg, nil)
	d.delay = time.Millisecond

	entities, err := d.Extract(context.Background(), Document{Content: []byte("img"), MimeType: "application/pdf"})
	require.NoError(t, err)
	require.Len(t, fake.requests, 2)
	require.Equal(t, []models.Entity{{Type: "ipk", MentionText: "3.9"}}, entities)
}

func TestExtractDoesNotRetryPermanentErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Attempts = 3
	fake := &fakeProcessClient{errs: []error{status.Error(codes.PermissionDenied, "no access")}}
	d := newDocumentAI(fake, cfg, nil)
	d.delay = time.Millisecond

	_, err := d.Extract(context.Background(), Document{Content: []byte("img"), MimeType: "image/png"})
	require.Error(t, err)
	require.Len(t, fake.requests, 1)
	require.Contains(t, err.Error(), "no access")
	require.Equal(t, codes.PermissionDenied, status.Code(errors.Unwrap(err)))
}

func TestExtractGivesUpAfterAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Attempts = 2
	fake := &fakeProcessClient{errs: []error{
		status.Error(codes.Unavailable, "down"),
		status.Error(codes.Unavailable, "still down"),
	}}
	d := newDocumentAI(fake, cfg, nil)
	d.delay = time.Millisecond

	_, err := d.Extract(context.Background(), Document{Content: []byte("img"), MimeType: "image/png"})
	require.ErrorContains(t, err, "still down")
	require.Len(t, fake.requests, 2)
}

func TestIsTransient(t *testing.T) {
	require.True(t, isTransient(status.Error(codes.ResourceExhausted, "quota")))
	require.True(t, isTransient(status.Error(codes.DeadlineExceeded, "slow")))
	require.False(t, isTransient(status.Error(codes.InvalidArgument, "bad")))
	require.False(t, isTransient(errors.New("plain")))
	require.False(t, isTransient(context.Canceled))
}
