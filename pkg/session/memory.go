package session

import (
	"slices"
	"time"

	"github.com/m-mizutani/knowbot/pkg/cache"
	"github.com/m-mizutani/knowbot/pkg/model"
)

const (
	DefaultMemoryTTL         = time.Hour
	DefaultMemoryCapacity    = 1000
	DefaultMemoryMaxMessages = 20
)

// Memory keeps the rolling message history of each conversation.
type Memory struct {
	cache       *cache.Cache[string, []model.Message]
	maxMessages int
}

// NewMemory creates a history store. maxMessages 0 keeps every message.
// Exchanges are dropped whole, so an odd limit keeps one message less.
func NewMemory(capacity int, ttl time.Duration, maxMessages int) *Memory {
	if maxMessages < 0 {
		maxMessages = 0
	}
	return &Memory{
		cache:       cache.New[string, []model.Message](capacity, ttl),
		maxMessages: maxMessages,
	}
}

// GetMessages returns a copy of the history, oldest first. Unknown sessions
// have an empty history.
func (m *Memory) GetMessages(sessionID string) []model.Message {
	msgs, ok := m.cache.Get(sessionID)
	if !ok {
		return []model.Message{}
	}
	return slices.Clone(msgs)
}

// AddExchange appends a question and its answer as one unit, then trims the
// oldest exchanges beyond the configured limit.
func (m *Memory) AddExchange(sessionID, question, answer string) {
	m.cache.Update(sessionID, func(current []model.Message, _ bool) []model.Message {
		next := make([]model.Message, 0, len(current)+2)
		next = append(next, current...)
		next = append(next, model.HumanMessage(question), model.AssistantMessage(answer))

		if m.maxMessages > 0 {
			for len(next) > m.maxMessages {
				next = next[2:]
			}
		}
		return next
	})
}

func (m *Memory) Clear(sessionID string) {
	m.cache.Delete(sessionID)
}
