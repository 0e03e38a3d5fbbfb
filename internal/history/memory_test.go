package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Samad191/agent/internal/llm"
)

func TestGetOrCreate_SeedsSystemMessage(t *testing.T) {
	s := NewInMemoryStore()

	msgs := s.GetOrCreate("t1")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 seed message, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("expected system role, got %q", msgs[0].Role)
	}
	if msgs[0].Content != SeedSystemPrompt {
		t.Errorf("unexpected seed content: %q", msgs[0].Content)
	}

	// Second call must not re-seed.
	s.AppendHuman("t1", "hi")
	if got := s.Len("t1"); got != 2 {
		t.Errorf("expected 2 messages, got %d", got)
	}
	again := s.GetOrCreate("t1")
	if len(again) != 2 {
		t.Errorf("expected existing history, got %d messages", len(again))
	}
}

func TestAppend_Order(t *testing.T) {
	s := NewInMemoryStore()
	s.AppendHuman("t1", "q1")
	s.AppendAssistant("t1", "a1")
	s.AppendHuman("t1", "q2")

	msgs := s.GetOrCreate("t1")
	want := []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, r := range want {
		if msgs[i].Role != r {
			t.Errorf("message %d: expected role %q, got %q", i, r, msgs[i].Role)
		}
	}
}

func TestTrimmedView_WithinBudget(t *testing.T) {
	s := NewInMemoryStore()
	s.GetOrCreate("t1")
	s.AppendHuman("t1", "q1")

	view := s.TrimmedView("t1", DefaultBudget)
	if len(view) != 2 {
		t.Errorf("expected untrimmed view of 2, got %d", len(view))
	}
}

func TestTrimmedView_KeepsSystemAndRecent(t *testing.T) {
	s := NewInMemoryStore()
	s.GetOrCreate("t1")
	for i := 0; i < 20; i++ {
		s.AppendHuman("t1", fmt.Sprintf("q%d", i))
		s.AppendAssistant("t1", fmt.Sprintf("a%d", i))
	}

	budget := 5
	view := s.TrimmedView("t1", budget)
	if len(view) > budget {
		t.Fatalf("view length %d exceeds budget %d", len(view), budget)
	}
	if view[0].Role != llm.RoleSystem {
		t.Errorf("expected system message anchor, got %q", view[0].Role)
	}
	// The window must open on a human turn, not an assistant turn.
	if view[1].Role != llm.RoleUser {
		t.Errorf("expected view to start on a human message, got %q", view[1].Role)
	}
	// Last message must be the most recent one.
	if got := view[len(view)-1].Content; got != "a19" {
		t.Errorf("expected most recent message a19, got %q", got)
	}
}

func TestTrimmedView_BudgetOne(t *testing.T) {
	s := NewInMemoryStore()
	s.GetOrCreate("t1")
	s.AppendHuman("t1", "q1")
	s.AppendAssistant("t1", "a1")

	view := s.TrimmedView("t1", 1)
	if len(view) != 1 {
		t.Fatalf("expected 1 message, got %d", len(view))
	}
	if view[0].Role != llm.RoleSystem {
		t.Errorf("expected system message, got %q", view[0].Role)
	}
}

func TestTrimmedView_DoesNotMutateHistory(t *testing.T) {
	s := NewInMemoryStore()
	s.GetOrCreate("t1")
	for i := 0; i < 10; i++ {
		s.AppendHuman("t1", "q")
		s.AppendAssistant("t1", "a")
	}

	before := s.Len("t1")
	view := s.TrimmedView("t1", 3)
	view[0].Content = "mutated"

	if got := s.Len("t1"); got != before {
		t.Errorf("trimmed view changed stored length: %d != %d", got, before)
	}
	if msgs := s.GetOrCreate("t1"); msgs[0].Content != SeedSystemPrompt {
		t.Errorf("stored history mutated through view: %q", msgs[0].Content)
	}
}

func TestTrimmedView_UnknownThread(t *testing.T) {
	s := NewInMemoryStore()
	if view := s.TrimmedView("nope", 5); view != nil {
		t.Errorf("expected nil view for unknown thread, got %v", view)
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := NewInMemoryStore()
	s.GetOrCreate("t1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.AppendHuman("t1", "q")
		}()
		go func() {
			defer wg.Done()
			s.AppendAssistant("t1", "a")
		}()
	}
	wg.Wait()

	// 1 seed + 100 appends, none lost.
	if got := s.Len("t1"); got != 101 {
		t.Errorf("expected 101 messages, got %d", got)
	}
}

func TestEvictIdle(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.GetOrCreate("old")
	now = now.Add(2 * time.Hour)
	s.GetOrCreate("fresh")

	if n := s.EvictIdle(time.Hour); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if s.Len("old") != 0 {
		t.Error("expected old thread evicted")
	}
	if s.Len("fresh") == 0 {
		t.Error("expected fresh thread retained")
	}

	// TTL of zero keeps everything.
	if n := s.EvictIdle(0); n != 0 {
		t.Errorf("expected no evictions with zero ttl, got %d", n)
	}
}
