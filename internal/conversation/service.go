// ABOUTME: Service is the host-side conversation layer in front of the turn engine
// ABOUTME: Records the human's message first, then hands the stored snapshot to the engine

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/orchestrator"
	"github.com/2389/chorus/internal/store"
)

// ErrInvalid is returned for requests the service refuses before touching storage.
var ErrInvalid = errors.New("invalid request")

// Engine is what the service needs from the orchestrator.
type Engine interface {
	SubmitUserMessage(conv *chat.Conversation)
	ProcessMessage(ctx context.Context, id string, conv *chat.Conversation) error
	SetActiveConversation(id string)
	ActiveConversation() string
	Destroy(id string)
	Stats() orchestrator.Stats
}

// Service records human messages and drives the engine from stored snapshots.
type Service struct {
	store       store.Store
	engine      Engine
	broadcaster *EventBroadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a new conversation Service.
func New(s store.Store, engine Engine, b *EventBroadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       s,
		engine:      engine,
		broadcaster: b,
		logger:      logger.With("component", "conversation"),
		now:         time.Now,
	}
}

// CreateRequest describes a new conversation.
type CreateRequest struct {
	ID           string   `json:"id,omitempty"`
	Participants []string `json:"participants"`
	Self         string   `json:"self,omitempty"`
}

// Create stores a new conversation. An ID is generated when none is given.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*chat.Conversation, error) {
	participants := make([]string, 0, len(req.Participants))
	seen := make(map[string]bool, len(req.Participants))
	for _, p := range req.Participants {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if p == chat.SenderSelf || p == chat.SenderSystem {
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalid, p)
		}
		seen[p] = true
		participants = append(participants, p)
	}

	conv := &chat.Conversation{
		ID:           req.ID,
		Participants: participants,
		Self:         req.Self,
		Messages:     []chat.Message{},
	}
	if len(conv.Agents()) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", ErrInvalid)
	}
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"participants", len(conv.Participants),
		"group", conv.IsGroup())
	return conv, nil
}

// Get returns a stored conversation with its history.
func (s *Service) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// List returns conversation summaries, most recently active first.
func (s *Service) List(ctx context.Context, limit int) ([]*store.ConversationSummary, error) {
	return s.store.ListConversations(ctx, limit)
}

// Send records a message from the human and submits the updated snapshot.
//
// Key principle: Record first, then act. The message is stored before the
// engine sees it, so the transcript has it even if the turn never runs.
func (s *Service) Send(ctx context.Context, conversationID, content string) (*chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalid)
	}

	msg := chat.Message{
		ID:        uuid.New().String(),
		Content:   content,
		Sender:    chat.SenderSelf,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, conversationID, msg); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	s.logger.Debug("user message recorded",
		"conversation_id", conversationID,
		"message_id", msg.ID)

	m := msg.Clone()
	s.broadcaster.Publish(&Event{
		Type:           EventMessage,
		ConversationID: conversationID,
		Message:        &m,
	})

	// The snapshot includes anything the engine delivered before this message
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	s.engine.SubmitUserMessage(conv)

	return &msg, nil
}

// Continue runs one turn immediately from the stored snapshot without a new
// message. Returns orchestrator.ErrBusy if a run is already in progress.
func (s *Service) Continue(ctx context.Context, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if len(conv.Messages) == 0 {
		return fmt.Errorf("%w: conversation has no messages", ErrInvalid)
	}
	return s.engine.ProcessMessage(ctx, conversationID, conv)
}

// SetNotifications toggles notification suppression. The engine picks the
// new value up from the next snapshot it is handed.
func (s *Service) SetNotifications(ctx context.Context, conversationID string, suppress bool) error {
	if err := s.store.SetSuppressNotifications(ctx, conversationID, suppress); err != nil {
		return fmt.Errorf("updating notifications: %w", err)
	}
	s.logger.Debug("notifications updated", "conversation_id", conversationID, "suppressed", suppress)
	return nil
}

// Delete stops all engine work for the conversation and removes it.
func (s *Service) Delete(ctx context.Context, conversationID string) error {
	s.engine.Destroy(conversationID)
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	s.logger.Info("conversation deleted", "conversation_id", conversationID)
	return nil
}

// Activate marks the conversation the human is looking at. An empty ID clears it.
func (s *Service) Activate(ctx context.Context, conversationID string) error {
	if conversationID != "" {
		if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
			return err
		}
	}
	s.engine.SetActiveConversation(conversationID)
	return nil
}

// Active returns the conversation the human is looking at.
func (s *Service) Active() string {
	return s.engine.ActiveConversation()
}

// Stats exposes the engine registry counters.
func (s *Service) Stats() orchestrator.Stats {
	return s.engine.Stats()
}
