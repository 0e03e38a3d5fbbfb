// Package classify labels a question as needing web search or not.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Samad191/agent/internal/llm"
)

// Label is the routing decision for a question.
type Label string

const (
	// LabelSearch means the question needs fresh web results.
	LabelSearch Label = "search"
	// LabelGeneral means the question can be answered from model knowledge.
	LabelGeneral Label = "general"
)

// ErrUnexpectedLabel is returned when the model's output is neither label.
// Callers must surface this, never silently pick a path.
var ErrUnexpectedLabel = errors.New("unexpected classification result")

const promptTemplate = `
Classify the following user question.
If it needs fresh web search, answer "search".
Otherwise answer "general".
Question: %s
Answer in one word:
`

// Classifier routes questions via a single-shot completion call.
type Classifier struct {
	provider llm.Provider
	logger   *slog.Logger
}

// New creates a Classifier backed by the given provider.
func New(provider llm.Provider, logger *slog.Logger) *Classifier {
	return &Classifier{provider: provider, logger: logger}
}

// Classify labels the question. The raw model output is trimmed and
// lowercased before comparison; anything outside {search, general} fails
// with ErrUnexpectedLabel.
func (c *Classifier) Classify(ctx context.Context, question string) (Label, error) {
	resp, err := c.provider.Chat(ctx, &llm.Request{
		Messages: []llm.Message{
			llm.HumanMessage(fmt.Sprintf(promptTemplate, question)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("classification call: %w", err)
	}

	raw := strings.ToLower(strings.TrimSpace(resp.Content))
	label := Label(raw)

	c.logger.DebugContext(ctx, "question classified",
		slog.String("label", raw),
	)

	switch label {
	case LabelSearch, LabelGeneral:
		return label, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnexpectedLabel, resp.Content)
	}
}
