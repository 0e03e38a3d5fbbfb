// Package vectorstore provides a minimal Qdrant REST client used to
// verify the vector store connection at startup.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	collectionsPath = "/collections"
	requestTimeout  = 10 * time.Second
)

// QdrantClient talks to a Qdrant instance over its REST API.
type QdrantClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// QdrantOption configures a QdrantClient.
type QdrantOption func(*QdrantClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) QdrantOption {
	return func(c *QdrantClient) {
		c.httpClient = client
	}
}

// NewQdrantClient creates a client for the Qdrant instance at baseURL.
// The API key may be empty for unauthenticated instances.
func NewQdrantClient(baseURL, apiKey string, logger *slog.Logger, opts ...QdrantOption) *QdrantClient {
	c := &QdrantClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type collectionsResponse struct {
	Result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	} `json:"result"`
	Status string `json:"status"`
}

// ListCollections returns the names of all collections.
func (c *QdrantClient) ListCollections(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+collectionsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed collectionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	names := make([]string, 0, len(parsed.Result.Collections))
	for _, col := range parsed.Result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// Ping verifies the connection by listing collections. Suitable as a
// readiness check.
func (c *QdrantClient) Ping(ctx context.Context) error {
	_, err := c.ListCollections(ctx)
	return err
}

// Probe lists collections at startup and logs the outcome. A failure is
// logged but never fatal, the service runs without the vector store.
func (c *QdrantClient) Probe(ctx context.Context) {
	names, err := c.ListCollections(ctx)
	if err != nil {
		c.logger.Warn("vector store unreachable",
			slog.String("url", c.baseURL),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Info("vector store connected",
		slog.String("url", c.baseURL),
		slog.Int("collections", len(names)),
		slog.String("names", strings.Join(names, ",")),
	)
}
