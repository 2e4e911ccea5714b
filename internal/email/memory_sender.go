package email

import (
	"context"
	"sync"
)

// MemorySender keeps sent messages in memory. Err, when set, is returned
// by Send and no message is kept.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy of the sent messages.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
