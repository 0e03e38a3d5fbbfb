package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultSerpAPIBaseURL = "https://serpapi.com"
	serpAPISearchPath     = "/search.json"
	serpAPITimeout        = 30 * time.Second
)

// SerpAPIClient implements Provider using the SerpAPI Google search API.
// Each organic result (and the answer box, when present) becomes one
// Document whose content is the result object re-encoded as JSON.
type SerpAPIClient struct {
	apiKey     string
	baseURL    string
	engine     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// SerpAPIOption configures the SerpAPI client.
type SerpAPIOption func(*SerpAPIClient)

// WithSerpAPIBaseURL overrides the API base URL.
func WithSerpAPIBaseURL(url string) SerpAPIOption {
	return func(c *SerpAPIClient) { c.baseURL = url }
}

// WithSerpAPIHTTPClient sets a custom HTTP client.
func WithSerpAPIHTTPClient(hc *http.Client) SerpAPIOption {
	return func(c *SerpAPIClient) { c.httpClient = hc }
}

// WithSerpAPIMetrics attaches fetch metrics.
func WithSerpAPIMetrics(m *Metrics) SerpAPIOption {
	return func(c *SerpAPIClient) { c.metrics = m }
}

// NewSerpAPIClient creates a SerpAPI search provider.
func NewSerpAPIClient(apiKey string, logger *slog.Logger, opts ...SerpAPIOption) *SerpAPIClient {
	c := &SerpAPIClient{
		apiKey:  apiKey,
		baseURL: defaultSerpAPIBaseURL,
		engine:  "google",
		httpClient: &http.Client{
			Timeout: serpAPITimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SerpAPIClient) Name() string { return "serpapi" }

// Fetch runs the query and returns one Document per result.
func (c *SerpAPIClient) Fetch(ctx context.Context, query string) ([]Document, error) {
	start := time.Now()
	docs, err := c.fetch(ctx, query)

	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.FetchesTotal.WithLabelValues(c.Name(), status).Inc()
		c.metrics.FetchDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
	}
	return docs, err
}

func (c *SerpAPIClient) fetch(ctx context.Context, query string) ([]Document, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("engine", c.engine)
	params.Set("api_key", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+serpAPISearchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var apiResp serpAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	var docs []Document
	if len(apiResp.AnswerBox) > 0 && string(apiResp.AnswerBox) != "null" {
		docs = append(docs, Document{Content: string(apiResp.AnswerBox)})
	}
	for _, raw := range apiResp.OrganicResults {
		docs = append(docs, Document{Content: string(raw)})
	}

	c.logger.DebugContext(ctx, "search fetch completed",
		slog.String("provider", c.Name()),
		slog.Int("documents", len(docs)),
	)

	return docs, nil
}

// serpAPIResponse keeps result objects as raw JSON so the reducer can decode
// them defensively.
type serpAPIResponse struct {
	AnswerBox      json.RawMessage   `json:"answer_box,omitempty"`
	OrganicResults []json.RawMessage `json:"organic_results"`
}
