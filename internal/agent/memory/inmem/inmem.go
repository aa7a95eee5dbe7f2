// Package inmem provides an in-memory implementation of memory.Store,
// adapted from runtime/agents/memory/inmem's agent/run-scoped map to
// spec.md's thread-scoped ConversationThread. Data lives only in process
// memory — a durable backend is explicitly out of scope (spec.md §3, C13
// Non-goal).
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/engintel/platform/internal/agent/memory"
)

// MaxRetainedMessages bounds the non-system messages a thread keeps,
// spec.md §3's "retain the last N turns" trimming policy. A "turn" here is
// approximated as one message; trimming always keeps whole tool exchanges
// intact rather than cutting mid-turn.
const MaxRetainedMessages = 60

// Store implements memory.Store using an in-process map keyed by thread ID.
// Thread-safe. Data is not persisted across restarts.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*memory.Thread
}

// New returns a ready-to-use empty Store.
func New() *Store {
	return &Store{threads: make(map[string]*memory.Thread)}
}

// LoadThread returns a defensive copy of the thread's current snapshot, or
// a zero-value Thread (ThreadID set, no error) if it doesn't exist yet.
func (s *Store) LoadThread(_ context.Context, threadID string) (memory.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[threadID]
	if !ok {
		return memory.Thread{ThreadID: threadID}, nil
	}
	return cloneThread(*th), nil
}

// AppendMessages appends msgs to the thread, creating it if it doesn't
// exist yet, then trims per MaxRetainedMessages.
func (s *Store) AppendMessages(_ context.Context, threadID, title string, msgs ...memory.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	copied := make([]memory.Message, len(msgs))
	copy(copied, msgs)

	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[threadID]
	if !ok {
		now := time.Now()
		if len(copied) > 0 {
			now = copied[0].Timestamp
		}
		th = &memory.Thread{ThreadID: threadID, Title: title, CreatedAt: now}
		s.threads[threadID] = th
	}
	th.Messages = append(th.Messages, copied...)
	th.Messages = trim(th.Messages)
	th.LastActive = copied[len(copied)-1].Timestamp
	return nil
}

// Reset clears all threads. Useful in tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = make(map[string]*memory.Thread)
}

func cloneThread(th memory.Thread) memory.Thread {
	th.Messages = append([]memory.Message(nil), th.Messages...)
	return th
}

// trim applies spec.md §3's policy: retain the system prompt plus the last
// MaxRetainedMessages non-system messages, and never cut the window so it
// starts on a tool result — a tool message's preceding assistant message
// (the one that issued the tool call) is pulled back in with it.
func trim(msgs []memory.Message) []memory.Message {
	var system []memory.Message
	var rest []memory.Message
	for _, m := range msgs {
		if m.Role == memory.RoleSystem {
			system = append(system, m)
			continue
		}
		rest = append(rest, m)
	}
	if len(rest) <= MaxRetainedMessages {
		return append(system, rest...)
	}
	cut := len(rest) - MaxRetainedMessages
	for cut > 0 && rest[cut].Role == memory.RoleTool {
		cut--
	}
	return append(system, rest[cut:]...)
}
