package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// maxDocuments caps how many result documents the reducer processes,
// independent of how many the provider returned.
const maxDocuments = 3

// summaryFallback is used when a document carries none of the known text fields.
const summaryFallback = "No usable text found."

// summaryFields is the strict priority order for summary text selection.
var summaryFields = []string{"description", "snippet", "title", "content", "summary"}

// Source is a citation extracted from a result document.
type Source struct {
	Title   string  `json:"title"`
	Link    string  `json:"link"`
	Snippet *string `json:"snippet"`
}

// Result is the reduced form of a batch of raw search documents.
type Result struct {
	Summaries []string
	Images    []string
	Sources   []Source
}

// Empty reports whether the reduction produced nothing at all.
func (r *Result) Empty() bool {
	return len(r.Summaries) == 0 && len(r.Images) == 0 && len(r.Sources) == 0
}

// Reducer turns raw heterogeneous search documents into a Result.
type Reducer struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewReducer creates a Reducer. Metrics may be nil.
func NewReducer(logger *slog.Logger, metrics *Metrics) *Reducer {
	return &Reducer{logger: logger, metrics: metrics}
}

// Reduce processes at most the first 3 documents. A document that fails to
// parse is skipped; it never aborts the batch. Summary lines are numbered
// 1-based over successfully parsed documents in original order. The image
// list is deduplicated; its order carries no meaning.
func (r *Reducer) Reduce(docs []Document) Result {
	var result Result

	seen := make(map[string]struct{})
	n := 0

	for i, doc := range docs {
		if i >= maxDocuments {
			break
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(doc.Content), &obj); err != nil {
			r.logger.Warn("skipping unparseable search document",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			if r.metrics != nil {
				r.metrics.DocParseFailures.Inc()
			}
			continue
		}

		n++
		result.Summaries = append(result.Summaries, fmt.Sprintf("%d. %s", n, summaryText(obj)))

		for _, img := range extractImages(obj) {
			if _, dup := seen[img]; dup {
				continue
			}
			seen[img] = struct{}{}
			result.Images = append(result.Images, img)
		}

		if src, ok := extractSource(obj); ok {
			result.Sources = append(result.Sources, src)
		}
	}

	return result
}

// summaryText picks the first non-empty text field in priority order.
func summaryText(obj map[string]any) string {
	for _, field := range summaryFields {
		if s, ok := stringField(obj, field); ok {
			return s
		}
	}
	return summaryFallback
}

// extractImages collects image URLs from header_images (array or object)
// and the favicon when it looks like a URL. Object value order follows map
// iteration and is not stable.
func extractImages(obj map[string]any) []string {
	var images []string

	switch hi := obj["header_images"].(type) {
	case []any:
		for _, v := range hi {
			if s, ok := v.(string); ok {
				images = append(images, s)
			}
		}
	case map[string]any:
		for _, v := range hi {
			if s, ok := v.(string); ok {
				images = append(images, s)
			}
		}
	}

	if favicon, ok := stringField(obj, "favicon"); ok && strings.HasPrefix(favicon, "http") {
		images = append(images, favicon)
	}

	return images
}

// extractSource returns a citation only when the document carries both a
// title and a link.
func extractSource(obj map[string]any) (Source, bool) {
	title, ok := stringField(obj, "title")
	if !ok {
		return Source{}, false
	}
	link, ok := stringField(obj, "link")
	if !ok {
		return Source{}, false
	}

	src := Source{Title: title, Link: link}
	if snippet, ok := stringField(obj, "snippet"); ok {
		src.Snippet = &snippet
	}
	return src, true
}

// stringField looks up a non-empty string value; any other shape is absent.
func stringField(obj map[string]any, key string) (string, bool) {
	s, ok := obj[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
