package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/transcript-ocr/internal/models"
)

// Client wraps go-elasticsearch with helpers for transcript records.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the transcript search query.
type SearchParams struct {
	Query string
	NIM   string
	Univ  string
	From  int
	Size  int
	Start *time.Time
	End   *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                     `json:"total"`
	Items []models.TranscriptRecord `json:"items"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping reports whether the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping: unexpected status %s", res.Status())
	}
	return nil
}

// readResponse closes res, turning error statuses into errors and decoding
// the body into out when out is non-nil.
func readResponse(res *esapi.Response, op string, out any) error {
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// IndexTranscript writes a record keyed by its content hash, so a re-uploaded
// file replaces the earlier extraction.
func (c *Client) IndexTranscript(ctx context.Context, rec models.TranscriptRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index transcript: %w", err)
	}
	if err := readResponse(res, "index transcript", nil); err != nil {
		return err
	}

	c.log.Debug("transcript indexed", slog.String("id", rec.ID))
	return nil
}

// SearchTranscripts executes a bool query with optional filters, newest first.
func (c *Client) SearchTranscripts(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(buildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search transcripts: %w", err)
	}

	var hits struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.TranscriptRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := readResponse(res, "search transcripts", &hits); err != nil {
		return nil, err
	}

	out := &SearchResult{
		Total: hits.Hits.Total.Value,
		Items: make([]models.TranscriptRecord, 0, len(hits.Hits.Hits)),
	}
	for _, h := range hits.Hits.Hits {
		out.Items = append(out.Items, h.Source)
	}
	return out, nil
}

func buildSearchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 3)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"nama^2", "univ", "fakultas", "program_studi"},
			},
		})
	}

	if params.NIM != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"nim.keyword": params.NIM},
		})
	}

	if params.Univ != "" {
		filters = append(filters, map[string]any{
			"match_phrase": map[string]any{"univ": params.Univ},
		})
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"processed_at": rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{"processed_at": map[string]any{"order": "desc"}},
		},
	}
}

// DeleteOlderThan removes records processed before now-maxAge, one
// delete-by-query of at most batchSize documents at a time, until a batch
// comes back short.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"processed_at": map[string]any{
					"lte": time.Now().Add(-maxAge).UTC().Format(time.RFC3339),
				},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal retention query: %w", err)
	}

	var total int64
	for {
		n, err := c.deleteBatch(ctx, payload, batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, query []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(query),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired transcripts: %w", err)
	}

	var summary struct {
		Deleted int64 `json:"deleted"`
	}
	if err := readResponse(res, "delete expired transcripts", &summary); err != nil {
		return 0, err
	}
	return summary.Deleted, nil
}
