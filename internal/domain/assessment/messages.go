package assessment

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageLog is the ordered, append-only list of conversation turns. The
// only way to drop history is Reset.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
	newID    func() string
	now      func() time.Time
}

// NewMessageLog returns an empty log that assigns random UUIDs to messages.
func NewMessageLog() *MessageLog {
	return &MessageLog{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Append adds a message and returns the stored copy.
func (l *MessageLog) Append(role Role, content string, options []string, contextRef string) Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := Message{
		ID:               l.newID(),
		Role:             role,
		Content:          content,
		Options:          cloneStrings(options),
		ContextReference: contextRef,
		CreatedAt:        l.now().UTC(),
	}
	l.messages = append(l.messages, m)
	return copyMessage(m)
}

// Messages returns a copy of the log in append order.
func (l *MessageLog) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = copyMessage(m)
	}
	return out
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Last returns the most recent message, if any.
func (l *MessageLog) Last() (Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return copyMessage(l.messages[len(l.messages)-1]), true
}

// Reset discards every message.
func (l *MessageLog) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}

func copyMessage(m Message) Message {
	m.Options = cloneStrings(m.Options)
	return m
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
