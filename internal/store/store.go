// ABOUTME: Store interface and data types for chorus transcript persistence
// ABOUTME: Defines conversation summaries, sentinel errors and the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/chorus/internal/chat"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when creating a conversation or message whose ID is taken
var ErrDuplicate = errors.New("already exists")

// ConversationSummary is the listing view of a conversation without its history.
type ConversationSummary struct {
	ID                    string    `json:"id"`
	Participants          []string  `json:"participants"`
	SuppressNotifications bool      `json:"suppress_notifications"`
	MessageCount          int       `json:"message_count"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Store persists conversations and their transcripts.
type Store interface {
	// CreateConversation stores a new conversation and any messages it already carries.
	// Returns ErrDuplicate if the ID is taken.
	CreateConversation(ctx context.Context, conv *chat.Conversation) error

	// GetConversation returns the conversation with its messages in append order.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)

	// ListConversations returns summaries ordered by most recent activity.
	ListConversations(ctx context.Context, limit int) ([]*ConversationSummary, error)

	// SetSuppressNotifications toggles the mute flag.
	SetSuppressNotifications(ctx context.Context, id string, suppress bool) error

	// AppendMessage adds a message to the end of a conversation's history.
	AppendMessage(ctx context.Context, conversationID string, msg chat.Message) error

	// SetReactions replaces the reaction list of a stored message.
	SetReactions(ctx context.Context, conversationID, messageID string, reactions []chat.Reaction) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	Close() error
}
