package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Samad191/agent/internal/classify"
	"github.com/Samad191/agent/internal/engine"
	"github.com/Samad191/agent/internal/ratelimit"
	"github.com/Samad191/agent/internal/search"
)

// fakeEngine returns canned answers per mode.
type fakeEngine struct {
	reply     string
	threadID  string
	answerErr error

	searchAnswer *engine.SearchAnswer
	searchErr    error

	routed   *engine.RoutedAnswer
	routeErr error
}

func (f *fakeEngine) Answer(_ context.Context, threadID, _ string) (string, string, error) {
	if f.answerErr != nil {
		return "", threadID, f.answerErr
	}
	id := f.threadID
	if id == "" {
		id = threadID
	}
	return f.reply, id, nil
}

func (f *fakeEngine) AnswerWithSearch(_ context.Context, _ string) (*engine.SearchAnswer, error) {
	return f.searchAnswer, f.searchErr
}

func (f *fakeEngine) Route(_ context.Context, _, _ string) (*engine.RoutedAnswer, error) {
	return f.routed, f.routeErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(eng Engine, rl *ratelimit.Limiter) *Gateway {
	return NewGateway(Config{ListenAddr: ":0"}, eng, rl, discardLogger())
}

func post(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/", bytes.NewReader([]byte(body)))
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("parsing error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestHandleRoot(t *testing.T) {
	g := newTestGateway(&fakeEngine{}, nil)

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	g.handleRoot(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "Hello world!" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleAsk(t *testing.T) {
	g := newTestGateway(&fakeEngine{reply: "the answer", threadID: "t-123"}, nil)

	rec := post(t, g.handleAsk, `{"question":"what is Go?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("X-Thread-ID"); got != "t-123" {
		t.Errorf("X-Thread-ID = %q, want t-123", got)
	}
	if rec.Body.String() != "the answer" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	g := newTestGateway(&fakeEngine{}, nil)

	rec := post(t, g.handleAsk, `{"thread_id":"t"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec); got != "question is required" {
		t.Errorf("error = %q", got)
	}
}

func TestHandleAsk_EngineError(t *testing.T) {
	g := newTestGateway(&fakeEngine{answerErr: errors.New("upstream down")}, nil)

	rec := post(t, g.handleAsk, `{"question":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeError(t, rec); got != "Internal server error" {
		t.Errorf("error = %q", got)
	}
}

func TestHandleSerp(t *testing.T) {
	snippet := "a snippet"
	g := newTestGateway(&fakeEngine{searchAnswer: &engine.SearchAnswer{
		Text:    "summary",
		Images:  []string{"https://img/1"},
		Sources: []search.Source{{Title: "T", Link: "https://t", Snippet: &snippet}},
	}}, nil)

	rec := post(t, g.handleSerp, `{"question":"latest news"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp engine.SearchAnswer
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Text != "summary" || len(resp.Images) != 1 || len(resp.Sources) != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleSerp_NoResults(t *testing.T) {
	g := newTestGateway(&fakeEngine{searchErr: engine.ErrNoResults}, nil)

	rec := post(t, g.handleSerp, `{"question":"obscure"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeError(t, rec); got != "No documents found." {
		t.Errorf("error = %q", got)
	}
}

func TestHandleSerp_InternalError(t *testing.T) {
	g := newTestGateway(&fakeEngine{searchErr: errors.New("boom")}, nil)

	rec := post(t, g.handleSerp, `{"question":"q"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeError(t, rec); got != "Internal server error" {
		t.Errorf("error = %q", got)
	}
}

func TestHandleChat_General(t *testing.T) {
	g := newTestGateway(&fakeEngine{routed: &engine.RoutedAnswer{
		Label:    classify.LabelGeneral,
		Text:     "general reply",
		ThreadID: "t-9",
	}}, nil)

	rec := post(t, g.handleChat, `{"question":"who wrote Hamlet?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("content type = %q", got)
	}
	if rec.Body.String() != "general reply" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("X-Thread-ID"); got != "t-9" {
		t.Errorf("X-Thread-ID = %q", got)
	}
}

func TestHandleChat_Search(t *testing.T) {
	g := newTestGateway(&fakeEngine{routed: &engine.RoutedAnswer{
		Label: classify.LabelSearch,
		Text:  "search summary",
		Search: &engine.SearchAnswer{
			Text:    "search summary",
			Images:  []string{},
			Sources: []search.Source{},
		},
	}}, nil)

	rec := post(t, g.handleChat, `{"question":"latest news?"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}

	var resp engine.SearchAnswer
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Text != "search summary" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestHandleChat_UnexpectedLabel(t *testing.T) {
	g := newTestGateway(&fakeEngine{
		routeErr: fmt.Errorf("%w: %q", classify.ErrUnexpectedLabel, "maybe"),
	}, nil)

	rec := post(t, g.handleChat, `{"question":"hm"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeError(t, rec); got != "Unexpected classification result" {
		t.Errorf("error = %q", got)
	}
}

func TestHandleChat_NoResults(t *testing.T) {
	g := newTestGateway(&fakeEngine{routeErr: engine.ErrNoResults}, nil)

	rec := post(t, g.handleChat, `{"question":"obscure"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeError(t, rec); got != "No documents found." {
		t.Errorf("error = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 60, BurstSize: 1})
	g := newTestGateway(&fakeEngine{reply: "ok"}, limiter)

	rec := post(t, g.handleAsk, `{"question":"first"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", rec.Code)
	}

	rec = post(t, g.handleAsk, `{"question":"second"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if got := decodeError(t, rec); got != "rate limit exceeded" {
		t.Errorf("error = %q", got)
	}
}

func TestMalformedBody(t *testing.T) {
	g := newTestGateway(&fakeEngine{}, nil)

	rec := post(t, g.handleAsk, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
