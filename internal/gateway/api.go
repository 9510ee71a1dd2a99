// ABOUTME: HTTP API handlers for conversations, messages and live events
// ABOUTME: JSON request/response endpoints plus an SSE stream of engine events

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/conversation"
	"github.com/2389/chorus/internal/orchestrator"
	"github.com/2389/chorus/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// SendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// NotificationsRequest is the JSON request body for PUT /api/conversations/{id}/notifications.
type NotificationsRequest struct {
	Suppress bool `json:"suppress"`
}

// ActiveRequest is the JSON request body for PUT /api/active.
type ActiveRequest struct {
	ConversationID string `json:"conversation_id"`
}

// MessageResponse is a message as returned to clients, with rendered markdown.
type MessageResponse struct {
	chat.Message
	ContentHTML string `json:"content_html"`
}

// ConversationResponse is the JSON response for a single conversation.
type ConversationResponse struct {
	ID                    string            `json:"id"`
	Participants          []string          `json:"participants"`
	Self                  string            `json:"self,omitempty"`
	SuppressNotifications bool              `json:"suppress_notifications"`
	Group                 bool              `json:"group"`
	Messages              []MessageResponse `json:"messages"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []*store.ConversationSummary `json:"conversations"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string             `json:"status"`
	Engine orchestrator.Stats `json:"engine"`
}

// handleHealth reports liveness along with engine registry counters.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, HealthResponse{Status: "ok", Engine: g.conversation.Stats()})
}

// handleCreateConversation handles POST /api/conversations.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversation.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := g.conversation.Create(r.Context(), &req)
	if err != nil {
		g.sendServiceError(w, "create conversation", err)
		return
	}

	g.sendJSON(w, http.StatusCreated, g.conversationResponse(conv))
}

// handleListConversations handles GET /api/conversations?limit=N.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := g.conversation.List(r.Context(), limit)
	if err != nil {
		g.sendServiceError(w, "list conversations", err)
		return
	}
	if list == nil {
		list = []*store.ConversationSummary{}
	}

	g.sendJSON(w, http.StatusOK, ListConversationsResponse{Conversations: list})
}

// handleGetConversation handles GET /api/conversations/{id}.
func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := g.conversation.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, "get conversation", err)
		return
	}
	g.sendJSON(w, http.StatusOK, g.conversationResponse(conv))
}

// handleDeleteConversation handles DELETE /api/conversations/{id}.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := g.conversation.Delete(r.Context(), r.PathValue("id")); err != nil {
		g.sendServiceError(w, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage handles POST /api/conversations/{id}/messages.
// The reply arrives later on the event stream; this returns the recorded message.
// A retry carrying the same Idempotency-Key gets the original message back
// instead of recording it twice.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	key := r.Header.Get("Idempotency-Key")
	if len(key) > maxIdempotencyKeyLen {
		g.sendJSONError(w, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}
	if key == "" {
		msg, err := g.conversation.Send(r.Context(), id, req.Content)
		if err != nil {
			g.sendServiceError(w, "send message", err)
			return
		}
		g.sendJSON(w, http.StatusAccepted, g.messageResponse(*msg))
		return
	}

	pending := &pendingSend{done: make(chan struct{})}
	if existing, loaded := g.idempotency.PutIfAbsent(id+"\x00"+key, pending); loaded {
		select {
		case <-existing.done:
		case <-r.Context().Done():
			return
		}
		if existing.err != nil {
			g.sendServiceError(w, "send message", existing.err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		g.sendJSON(w, http.StatusAccepted, g.messageResponse(*existing.msg))
		return
	}

	pending.msg, pending.err = g.conversation.Send(r.Context(), id, req.Content)
	close(pending.done)
	if pending.err != nil {
		// failures are not remembered so the client can retry
		g.idempotency.Delete(id + "\x00" + key)
		g.sendServiceError(w, "send message", pending.err)
		return
	}
	g.sendJSON(w, http.StatusAccepted, g.messageResponse(*pending.msg))
}

const maxIdempotencyKeyLen = 100

// pendingSend is the shared outcome of a send made under an Idempotency-Key.
// msg and err are set before done is closed.
type pendingSend struct {
	done chan struct{}
	msg  *chat.Message
	err  error
}

// handleContinue handles POST /api/conversations/{id}/continue.
func (g *Gateway) handleContinue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// The turn runs detached from the request so a disconnecting client does not cancel it
	conv, err := g.conversation.Get(r.Context(), id)
	if err != nil {
		g.sendServiceError(w, "continue conversation", err)
		return
	}
	if len(conv.Messages) == 0 {
		g.sendJSONError(w, http.StatusBadRequest, "conversation has no messages")
		return
	}

	go func() {
		if err := g.conversation.Continue(context.WithoutCancel(r.Context()), id); err != nil &&
			!errors.Is(err, orchestrator.ErrBusy) && !errors.Is(err, orchestrator.ErrShutdown) {
			g.logger.Warn("continue failed", "conversation_id", id, "error", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// handleSetNotifications handles PUT /api/conversations/{id}/notifications.
func (g *Gateway) handleSetNotifications(w http.ResponseWriter, r *http.Request) {
	var req NotificationsRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.conversation.SetNotifications(r.Context(), r.PathValue("id"), req.Suppress); err != nil {
		g.sendServiceError(w, "set notifications", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetActive handles PUT /api/active.
func (g *Gateway) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.conversation.Activate(r.Context(), req.ConversationID); err != nil {
		g.sendServiceError(w, "set active conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams engine events as SSE. Without conversation_id every
// conversation's events are streamed.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("conversation_id")
	if key == "" {
		key = conversation.AllConversations
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, _ := g.broadcaster.Subscribe(r.Context(), key)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"conversation_id": key})
	flusher.Flush()

	heartbeat := time.NewTicker(g.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(ev.Type), g.eventPayload(ev))
			flusher.Flush()
		}
	}
}

// eventPayload adds rendered HTML to message events.
func (g *Gateway) eventPayload(ev *conversation.Event) any {
	if ev.Message == nil {
		return ev
	}
	return struct {
		*conversation.Event
		Message MessageResponse `json:"message"`
	}{Event: ev, Message: g.messageResponse(*ev.Message)}
}

func (g *Gateway) conversationResponse(conv *chat.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:                    conv.ID,
		Participants:          conv.Participants,
		Self:                  conv.Self,
		SuppressNotifications: conv.SuppressNotifications,
		Group:                 conv.IsGroup(),
		Messages:              make([]MessageResponse, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		resp.Messages = append(resp.Messages, g.messageResponse(m))
	}
	return resp
}

func (g *Gateway) messageResponse(m chat.Message) MessageResponse {
	return MessageResponse{Message: m, ContentHTML: g.renderMarkdown(m.Content)}
}

// renderMarkdown converts message content to HTML. Raw HTML in the source is
// not passed through.
func (g *Gateway) renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(content), &buf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		return ""
	}
	return buf.String()
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// sendServiceError maps service and store errors onto HTTP statuses.
func (g *Gateway) sendServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, store.ErrDuplicate):
		g.sendJSONError(w, http.StatusConflict, "conversation already exists")
	case errors.Is(err, conversation.ErrInvalid):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	default:
		g.logger.Error("request failed", "op", op, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON parses a bounded JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
