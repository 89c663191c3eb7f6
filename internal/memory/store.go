package memory

import "sync"

// Store holds one conversation per session key. Conversations are created on
// first use and live for the lifetime of the process.
type Store struct {
	systemPrompt string
	limit        int

	mu       sync.Mutex
	sessions map[string]*Conversation
}

// NewStore creates a store whose conversations start with systemPrompt and
// send at most limit recent entries per request.
func NewStore(systemPrompt string, limit int) *Store {
	return &Store{
		systemPrompt: systemPrompt,
		limit:        limit,
		sessions:     make(map[string]*Conversation),
	}
}

// Get returns the conversation for key, creating it if needed.
func (s *Store) Get(key string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.sessions[key]
	if !ok {
		conv = NewConversation(key, s.systemPrompt, s.limit)
		s.sessions[key] = conv
	}
	return conv
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
