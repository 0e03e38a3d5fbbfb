// Package engine orchestrates history, classification, search reduction,
// and the completion backend to produce one reply per incoming question.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Samad191/agent/internal/classify"
	"github.com/Samad191/agent/internal/history"
	"github.com/Samad191/agent/internal/llm"
	"github.com/Samad191/agent/internal/search"
)

// ErrNoResults is returned by search mode when the provider finds no documents.
var ErrNoResults = errors.New("no documents found")

const (
	searchPromptPrefix = "Summarize the following search results:\n\n"
	defaultCallTimeout = 60 * time.Second
)

// Config configures the Engine.
type Config struct {
	HistoryBudget int           // Max messages per completion call. 0 = history.DefaultBudget.
	CallTimeout   time.Duration // Per upstream call. 0 = 60s default.
}

// Engine produces one reply per question, for the direct, search, and
// routed paths.
type Engine struct {
	history    history.Store
	classifier *classify.Classifier
	searcher   search.Provider
	reducer    *search.Reducer
	provider   llm.Provider
	budget     int
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
}

// New creates an Engine. Metrics may be nil.
func New(
	hist history.Store,
	cls *classify.Classifier,
	searcher search.Provider,
	reducer *search.Reducer,
	provider llm.Provider,
	cfg Config,
	metrics *Metrics,
	logger *slog.Logger,
) *Engine {
	budget := cfg.HistoryBudget
	if budget <= 0 {
		budget = history.DefaultBudget
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Engine{
		history:    hist,
		classifier: cls,
		searcher:   searcher,
		reducer:    reducer,
		provider:   provider,
		budget:     budget,
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// SearchAnswer is the structured result of search mode.
type SearchAnswer struct {
	Text    string          `json:"text"`
	Images  []string        `json:"images"`
	Sources []search.Source `json:"sources"`
}

// RoutedAnswer is the result of routed mode. Search is non-nil only when
// the question was routed to the search path.
type RoutedAnswer struct {
	Label    classify.Label
	Text     string
	ThreadID string
	Search   *SearchAnswer
}

// Answer runs direct mode: append the question to the thread, invoke the
// completion backend with the trimmed view, append and return the reply.
// An empty threadID gets a generated identifier; the resolved ID is returned.
func (e *Engine) Answer(ctx context.Context, threadID, question string) (string, string, error) {
	if threadID == "" {
		threadID = uuid.New().String()
	}

	e.history.GetOrCreate(threadID)
	e.history.AppendHuman(threadID, question)

	view := e.history.TrimmedView(threadID, e.budget)

	reply, err := e.complete(ctx, "direct", view)
	if err != nil {
		return "", threadID, err
	}

	e.history.AppendAssistant(threadID, reply)

	e.logger.InfoContext(ctx, "direct answer produced",
		slog.String("thread_id", threadID),
		slog.Int("history_len", e.history.Len(threadID)),
	)

	return reply, threadID, nil
}

// AnswerWithSearch runs search mode: fetch documents, reduce them, and
// summarize via a single stateless completion call. Thread history is
// neither read nor written.
func (e *Engine) AnswerWithSearch(ctx context.Context, question string) (*SearchAnswer, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.searcher.Fetch(fetchCtx, question)
	if err != nil {
		return nil, fmt.Errorf("fetching search results: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNoResults
	}

	reduced := e.reducer.Reduce(docs)

	prompt := searchPromptPrefix + strings.Join(reduced.Summaries, "\n\n")
	text, err := e.complete(ctx, "search", []llm.Message{llm.HumanMessage(prompt)})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "search answer produced",
		slog.Int("documents", len(docs)),
		slog.Int("summaries", len(reduced.Summaries)),
		slog.Int("images", len(reduced.Images)),
		slog.Int("sources", len(reduced.Sources)),
	)

	// Empty slices, not nulls, on the wire.
	images := reduced.Images
	if images == nil {
		images = []string{}
	}
	sources := reduced.Sources
	if sources == nil {
		sources = []search.Source{}
	}

	return &SearchAnswer{
		Text:    text,
		Images:  images,
		Sources: sources,
	}, nil
}

// Route classifies the question and dispatches to search or direct mode.
// Exactly one response is produced per request. An unrecognized label
// propagates classify.ErrUnexpectedLabel.
func (e *Engine) Route(ctx context.Context, threadID, question string) (*RoutedAnswer, error) {
	clsCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	label, err := e.classifier.Classify(clsCtx, question)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RouteDecisions.WithLabelValues(string(label)).Inc()
	}

	switch label {
	case classify.LabelSearch:
		sa, err := e.AnswerWithSearch(ctx, question)
		if err != nil {
			return nil, err
		}
		return &RoutedAnswer{Label: label, Text: sa.Text, Search: sa}, nil
	case classify.LabelGeneral:
		text, resolvedID, err := e.Answer(ctx, threadID, question)
		if err != nil {
			return nil, err
		}
		return &RoutedAnswer{Label: label, Text: text, ThreadID: resolvedID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", classify.ErrUnexpectedLabel, label)
	}
}

// complete invokes the completion backend with a bounded timeout and
// records completion metrics.
func (e *Engine) complete(ctx context.Context, mode string, messages []llm.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Chat(callCtx, &llm.Request{Messages: messages})

	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.CompletionsTotal.WithLabelValues(mode, status).Inc()
		e.metrics.CompletionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
		if err == nil {
			e.metrics.TokensUsed.WithLabelValues(mode, "input").Add(float64(resp.Usage.InputTokens))
			e.metrics.TokensUsed.WithLabelValues(mode, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	if err != nil {
		return "", fmt.Errorf("completion call: %w", err)
	}
	return resp.Content, nil
}
