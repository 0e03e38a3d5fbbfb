package classify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Samad191/agent/internal/llm"
)

// fakeProvider returns a canned reply and records the last request.
type fakeProvider struct {
	reply   string
	err     error
	lastReq *llm.Request
}

func (f *fakeProvider) Chat(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.reply}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassify_NormalizesOutput(t *testing.T) {
	tests := []struct {
		reply string
		want  Label
	}{
		{"search", LabelSearch},
		{"Search", LabelSearch},
		{"  SEARCH \n", LabelSearch},
		{"general", LabelGeneral},
		{"General ", LabelGeneral},
	}

	for _, tt := range tests {
		p := &fakeProvider{reply: tt.reply}
		c := New(p, discardLogger())

		got, err := c.Classify(context.Background(), "what is the weather?")
		if err != nil {
			t.Errorf("reply %q: unexpected error: %v", tt.reply, err)
			continue
		}
		if got != tt.want {
			t.Errorf("reply %q: expected %q, got %q", tt.reply, tt.want, got)
		}
	}
}

func TestClassify_UnexpectedLabel(t *testing.T) {
	p := &fakeProvider{reply: "maybe"}
	c := New(p, discardLogger())

	_, err := c.Classify(context.Background(), "hm")
	if !errors.Is(err, ErrUnexpectedLabel) {
		t.Fatalf("expected ErrUnexpectedLabel, got %v", err)
	}
}

func TestClassify_PromptContainsQuestion(t *testing.T) {
	p := &fakeProvider{reply: "general"}
	c := New(p, discardLogger())

	if _, err := c.Classify(context.Background(), "who wrote Hamlet?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.lastReq == nil || len(p.lastReq.Messages) != 1 {
		t.Fatal("expected a single-message request")
	}
	prompt := p.lastReq.Messages[0].Content
	if !strings.Contains(prompt, "who wrote Hamlet?") {
		t.Errorf("prompt missing question: %q", prompt)
	}
	if !strings.Contains(prompt, `answer "search"`) {
		t.Errorf("prompt missing instruction: %q", prompt)
	}
}

func TestClassify_ProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("upstream down")}
	c := New(p, discardLogger())

	if _, err := c.Classify(context.Background(), "q"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
