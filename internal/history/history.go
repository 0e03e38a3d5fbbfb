// Package history manages per-thread conversation state.
package history

import (
	"time"

	"github.com/Samad191/agent/internal/llm"
)

// SeedSystemPrompt is the system message every new thread starts with.
const SeedSystemPrompt = "You are a helpful assistant"

// DefaultBudget is the default cap on messages passed to the completion backend.
const DefaultBudget = 10

// Store holds ordered message history keyed by thread ID.
type Store interface {
	// GetOrCreate returns the thread's history, creating the thread seeded
	// with a single system message if it does not exist.
	GetOrCreate(threadID string) []llm.Message

	// AppendHuman appends a user message to the thread, creating it if needed.
	AppendHuman(threadID, text string)

	// AppendAssistant appends an assistant message to the thread.
	AppendAssistant(threadID, text string)

	// TrimmedView returns a read-only copy of the most recent messages up to
	// budget, anchored to include the leading system message. The stored
	// history is never mutated.
	TrimmedView(threadID string, budget int) []llm.Message

	// Len returns the number of messages in the thread, 0 if it does not exist.
	Len(threadID string) int

	// EvictIdle removes threads whose last activity is older than ttl.
	// Returns the number of threads evicted. A ttl of 0 evicts nothing.
	EvictIdle(ttl time.Duration) int
}
