package history

import (
	"sync"
	"time"

	"github.com/Samad191/agent/internal/llm"
)

// InMemoryStore implements Store without persistence. History is lost on
// restart. All access goes through one lock, so appends to the same thread
// never interleave.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*thread
	now     func() time.Time
}

type thread struct {
	messages   []llm.Message
	lastActive time.Time
}

// NewInMemoryStore creates an ephemeral history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: make(map[string]*thread),
		now:     time.Now,
	}
}

func (s *InMemoryStore) GetOrCreate(threadID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.getOrCreateLocked(threadID)
	return copyMessages(t.messages)
}

func (s *InMemoryStore) AppendHuman(threadID, text string) {
	s.append(threadID, llm.HumanMessage(text))
}

func (s *InMemoryStore) AppendAssistant(threadID, text string) {
	s.append(threadID, llm.AssistantMessage(text))
}

func (s *InMemoryStore) append(threadID string, msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.getOrCreateLocked(threadID)
	t.messages = append(t.messages, msg)
	t.lastActive = s.now()
}

func (s *InMemoryStore) TrimmedView(threadID string, budget int) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return trim(t.messages, budget)
}

func (s *InMemoryStore) Len(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return 0
	}
	return len(t.messages)
}

func (s *InMemoryStore) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	evicted := 0
	for id, t := range s.threads {
		if t.lastActive.Before(cutoff) {
			delete(s.threads, id)
			evicted++
		}
	}
	return evicted
}

// getOrCreateLocked seeds a new thread with the system message. Callers must
// hold the write lock.
func (s *InMemoryStore) getOrCreateLocked(threadID string) *thread {
	t, ok := s.threads[threadID]
	if !ok {
		t = &thread{
			messages:   []llm.Message{llm.SystemMessage(SeedSystemPrompt)},
			lastActive: s.now(),
		}
		s.threads[threadID] = t
	}
	return t
}

// trim keeps the most recent messages up to budget, anchored to the leading
// system message. When the window would open on an assistant turn, leading
// assistant messages are dropped so the view starts on a human message.
func trim(msgs []llm.Message, budget int) []llm.Message {
	if budget <= 0 || len(msgs) <= budget {
		return copyMessages(msgs)
	}

	if msgs[0].Role != llm.RoleSystem {
		return copyMessages(msgs[len(msgs)-budget:])
	}

	out := make([]llm.Message, 0, budget)
	out = append(out, msgs[0])

	tail := msgs[len(msgs)-(budget-1):]
	for len(tail) > 0 && tail[0].Role == llm.RoleAssistant {
		tail = tail[1:]
	}
	return append(out, tail...)
}

func copyMessages(msgs []llm.Message) []llm.Message {
	cp := make([]llm.Message, len(msgs))
	copy(cp, msgs)
	return cp
}

// Compile-time interface check.
var _ Store = (*InMemoryStore)(nil)
