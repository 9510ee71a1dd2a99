// ABOUTME: Hub receives engine callbacks, persists their results and fans them out
// ABOUTME: Generated messages and reaction updates are saved before being published

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/orchestrator"
	"github.com/2389/chorus/internal/store"
)

// saveTimeout bounds each persistence call made from an engine callback.
const saveTimeout = 5 * time.Second

// Hub implements orchestrator.Callbacks on top of a store and a broadcaster.
type Hub struct {
	store       store.Store
	broadcaster *EventBroadcaster
	logger      *slog.Logger
}

var _ orchestrator.Callbacks = (*Hub)(nil)

// NewHub creates a Hub. Pass nil logger for default.
func NewHub(s store.Store, b *EventBroadcaster, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:       s,
		broadcaster: b,
		logger:      logger.With("component", "hub"),
	}
}

// OnMessageGenerated records the message, then publishes it.
func (h *Hub) OnMessageGenerated(conversationID string, msg chat.Message) {
	// Detached from any request: the engine runs turns on its own
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := h.store.AppendMessage(ctx, conversationID, msg); err != nil {
		h.logger.Error("failed to persist generated message",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"error", err)
	}

	h.logger.Debug("message generated",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender", msg.Sender,
		"kind", msg.Kind)

	m := msg.Clone()
	h.broadcaster.Publish(&Event{
		Type:           EventMessage,
		ConversationID: conversationID,
		Message:        &m,
	})
}

// OnTypingStatusChange publishes typing start/stop.
func (h *Hub) OnTypingStatusChange(conversationID, participant string) {
	h.broadcaster.Publish(&Event{
		Type:           EventTyping,
		ConversationID: conversationID,
		Participant:    participant,
	})
}

// OnMessageUpdated stores the new reaction list and publishes it.
func (h *Hub) OnMessageUpdated(conversationID, messageID string, update chat.MessageUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := h.store.SetReactions(ctx, conversationID, messageID, update.Reactions); err != nil {
		h.logger.Error("failed to persist reactions",
			"conversation_id", conversationID,
			"message_id", messageID,
			"error", err)
	}

	h.broadcaster.Publish(&Event{
		Type:           EventUpdated,
		ConversationID: conversationID,
		MessageID:      messageID,
		Reactions:      append([]chat.Reaction(nil), update.Reactions...),
	})
}

// OnError publishes turn failures to the conversation they belong to.
func (h *Hub) OnError(err error) {
	var convID string
	var turnErr *orchestrator.TurnError
	if errors.As(err, &turnErr) {
		convID = turnErr.ConversationID
	}

	h.logger.Warn("turn failed", "conversation_id", convID, "error", err)

	if convID == "" {
		return
	}
	h.broadcaster.Publish(&Event{
		Type:           EventError,
		ConversationID: convID,
		Error:          err.Error(),
	})
}

// ShouldMuteIncomingSound mutes exactly the conversations with notifications suppressed.
func (h *Hub) ShouldMuteIncomingSound(suppressNotifications bool) bool {
	return suppressNotifications
}
