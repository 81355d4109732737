// Package gateway talks to the SciCrunch lookup service. It is the only
// package that knows upstream URLs, credentials, and payload shapes; nothing
// vendor-specific crosses its boundary.
//
// Two endpoints are involved and must never be conflated: keyword search
// (Elasticsearch, authenticated with the secret API key) and per-identifier
// canonical resolution (public, credential-free).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/identifier"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/config"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/metrics"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/platform/sentinel"
)

// MaxSearchResults hard-caps search responses. Upstream relevance ranking is
// trusted to put the best matches first; no pagination cursor is exposed.
const MaxSearchResults = 20

// DefaultTypeFilter is the category searched when the caller omits one.
const DefaultTypeFilter = "tool"

// searchIndexes maps a type filter to its upstream Elasticsearch index.
var searchIndexes = map[string]string{
	"tool":     "RIN_Tool_pr",
	"antibody": "RIN_Antibody_pr",
	"cellline": "RIN_CellLine_pr",
	"organism": "RIN_Organism_pr",
}

// Hit is one normalized search result: exactly these six fields, never the
// upstream document.
type Hit struct {
	SourceID    string   `json:"source_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Types       []string `json:"types"`
	Identifier  string   `json:"identifier"`
}

// CanonicalRecord is the typed view of one resolver document. The resolver
// service reduces it further to the persisted payload shape.
type CanonicalRecord struct {
	Name         string
	Identifier   string
	Description  string
	URL          string
	ResourceType string
	Citation     string
	MentionCount int
}

// Client performs upstream lookups with bounded timeouts and retries.
type Client struct {
	httpClient   *http.Client
	searchBase   string
	resolverBase string
	apiKey       string
	maxRetries   int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	cache        *SearchCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithSearchCache attaches the optional Redis search cache.
func WithSearchCache(cache *SearchCache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithMetrics attaches upstream instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New constructs the lookup client. The HTTP client is built once here and
// owned by the gateway; it is never ambient global state.
func New(cfg config.SciCrunch, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		searchBase:   cfg.SearchBaseURL,
		resolverBase: cfg.ResolverBaseURL,
		apiKey:       cfg.APIKey,
		maxRetries:   cfg.MaxRetries,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ValidTypeFilter reports whether the given type filter is a known category.
func ValidTypeFilter(typeFilter string) bool {
	_, ok := searchIndexes[typeFilter]
	return ok
}

// Search runs a keyword query against the authenticated search endpoint and
// returns at most MaxSearchResults normalized hits. When the keyword is
// itself a well-formed RRID an exact term query is used, sidestepping the
// special characters (colons, underscores) that break free-text parsing.
func (c *Client) Search(ctx context.Context, keyword, typeFilter string) ([]Hit, error) {
	if typeFilter == "" {
		typeFilter = DefaultTypeFilter
	}
	index, ok := searchIndexes[typeFilter]
	if !ok {
		return nil, fmt.Errorf("unknown type filter %q", typeFilter)
	}

	if c.cache != nil {
		if hits, ok := c.cache.Get(ctx, keyword, typeFilter); ok {
			c.metrics.RecordSearchCache(true)
			return hits, nil
		}
		c.metrics.RecordSearchCache(false)
	}

	query := freeTextQuery(keyword)
	if id, err := identifier.Normalize(keyword); err == nil {
		query = exactTermQuery(id.Curie)
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}

	searchURL := fmt.Sprintf("%s/%s/_search?size=%d", c.searchBase, index, MaxSearchResults)
	resp, err := c.doWithRetry(ctx, "search", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		// The credential only ever accompanies the search call.
		req.Header.Set("apikey", c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var payload searchResponse
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", sentinel.ErrUnavailable, err)
	}
	hits := payload.normalize()
	if len(hits) > MaxSearchResults {
		hits = hits[:MaxSearchResults]
	}

	if c.cache != nil {
		c.cache.Put(ctx, keyword, typeFilter, hits)
	}
	return hits, nil
}

// FetchCanonical resolves one identifier via the public resolver endpoint.
// Returns sentinel.ErrNotFound for syntactically valid identifiers unknown
// upstream, sentinel.ErrUnavailable for transient failures. No credential is
// ever attached to this call.
func (c *Client) FetchCanonical(ctx context.Context, id identifier.Identifier) (CanonicalRecord, error) {
	resolveURL := fmt.Sprintf("%s/%s.json", c.resolverBase, url.PathEscape(id.Curie))
	resp, err := c.doWithRetry(ctx, "resolve", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	})
	if err != nil {
		return CanonicalRecord{}, err
	}

	var payload resolverResponse
	if err := json.Unmarshal(resp, &payload); err != nil {
		return CanonicalRecord{}, fmt.Errorf("%w: decode resolver response: %v", sentinel.ErrUnavailable, err)
	}
	record, ok := payload.normalize(id.Curie)
	if !ok {
		// An empty hit set is the upstream's way of saying the identifier is
		// syntactically fine but unknown. Best-effort classification; the
		// upstream contract does not document this distinction.
		return CanonicalRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

// doWithRetry issues the request with a bounded number of retries on
// transport errors and 5xx responses. 4xx responses are never retried.
func (c *Client) doWithRetry(ctx context.Context, endpoint string, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.metrics.RecordUpstreamError(endpoint, "timeout")
				return nil, fmt.Errorf("%w: %v", sentinel.ErrUnavailable, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", endpoint, err)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.ObserveUpstream(endpoint, "error", time.Since(start))
			c.metrics.RecordUpstreamError(endpoint, "transport")
			c.logger.WarnContext(ctx, "upstream request failed",
				"endpoint", endpoint,
				"attempt", attempt,
				"error", err,
			)
			lastErr = fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			c.metrics.ObserveUpstream(endpoint, "not_found", time.Since(start))
			return nil, sentinel.ErrNotFound
		case resp.StatusCode >= 500:
			c.metrics.ObserveUpstream(endpoint, "error", time.Since(start))
			c.metrics.RecordUpstreamError(endpoint, "server")
			c.logger.WarnContext(ctx, "upstream server error",
				"endpoint", endpoint,
				"attempt", attempt,
				"status", resp.StatusCode,
			)
			lastErr = fmt.Errorf("%w: upstream status %d", sentinel.ErrUnavailable, resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			// Caller-class upstream rejection; retrying cannot help.
			c.metrics.ObserveUpstream(endpoint, "error", time.Since(start))
			c.metrics.RecordUpstreamError(endpoint, "client")
			return nil, fmt.Errorf("%w: upstream status %d", sentinel.ErrUnavailable, resp.StatusCode)
		case readErr != nil:
			c.metrics.ObserveUpstream(endpoint, "error", time.Since(start))
			c.metrics.RecordUpstreamError(endpoint, "transport")
			lastErr = fmt.Errorf("%w: %v", sentinel.ErrUnavailable, readErr)
			continue
		}

		c.metrics.ObserveUpstream(endpoint, "ok", time.Since(start))
		return body, nil
	}
	return nil, lastErr
}

func exactTermQuery(curie string) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"term": map[string]any{
				"rrid.curie": curie,
			},
		},
	}
}

func freeTextQuery(keyword string) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"query_string": map[string]any{
				"query": keyword,
			},
		},
	}
}
