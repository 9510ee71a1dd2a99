// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/chorus/internal/chat"
)

type mockConversation struct {
	conv      *chat.Conversation
	createdAt time.Time
	updatedAt time.Time
}

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	conversations map[string]*mockConversation // keyed by conversation ID
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[string]*mockConversation),
	}
}

// CreateConversation stores a copy of conv.
func (m *MockStore) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; ok {
		return ErrDuplicate
	}

	seen := make(map[string]bool, len(conv.Messages))
	for _, msg := range conv.Messages {
		if seen[msg.ID] {
			return ErrDuplicate
		}
		seen[msg.ID] = true
	}

	now := time.Now()
	m.conversations[conv.ID] = &mockConversation{
		conv:      conv.Clone(),
		createdAt: now,
		updatedAt: now,
	}
	return nil
}

// GetConversation returns a copy of the stored conversation.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c.conv.Clone()
	if out.Messages == nil {
		out.Messages = []chat.Message{}
	}
	return out, nil
}

// ListConversations returns summaries, most recently active first.
func (m *MockStore) ListConversations(ctx context.Context, limit int) ([]*ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	out := make([]*ConversationSummary, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, &ConversationSummary{
			ID:                    c.conv.ID,
			Participants:          append([]string(nil), c.conv.Participants...),
			SuppressNotifications: c.conv.SuppressNotifications,
			MessageCount:          len(c.conv.Messages),
			CreatedAt:             c.createdAt,
			UpdatedAt:             c.updatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetSuppressNotifications toggles the mute flag.
func (m *MockStore) SetSuppressNotifications(ctx context.Context, id string, suppress bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.conv.SuppressNotifications = suppress
	c.updatedAt = time.Now()
	return nil
}

// AppendMessage adds a copy of msg to the conversation.
func (m *MockStore) AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range c.conv.Messages {
		if existing.ID == msg.ID {
			return ErrDuplicate
		}
	}
	c.conv.Messages = append(c.conv.Messages, msg.Clone())
	c.updatedAt = time.Now()
	return nil
}

// SetReactions replaces a message's reactions.
func (m *MockStore) SetReactions(ctx context.Context, conversationID, messageID string, reactions []chat.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	for i := range c.conv.Messages {
		if c.conv.Messages[i].ID == messageID {
			c.conv.Messages[i].Reactions = append([]chat.Reaction(nil), reactions...)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteConversation removes a conversation.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
