// ABOUTME: Test doubles for the orchestrator: recording callbacks and scripted completers
// ABOUTME: Also provides millisecond timings and conversation builders

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/completion"
)

type recordedEvent struct {
	Kind        string // message, typing, updated, error
	ConvID      string
	Participant string
	Message     chat.Message
	MessageID   string
	Update      chat.MessageUpdate
	Err         error
}

// recorder implements Callbacks and keeps every call in order.
type recorder struct {
	mu         sync.Mutex
	events     []recordedEvent
	mute       bool
	muteChecks []bool
}

func (r *recorder) OnMessageGenerated(conversationID string, msg chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Kind: "message", ConvID: conversationID, Message: msg})
}

func (r *recorder) OnTypingStatusChange(conversationID, participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Kind: "typing", ConvID: conversationID, Participant: participant})
}

func (r *recorder) OnMessageUpdated(conversationID, messageID string, update chat.MessageUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Kind: "updated", ConvID: conversationID, MessageID: messageID, Update: update})
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Kind: "error", Err: err})
}

func (r *recorder) ShouldMuteIncomingSound(suppress bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muteChecks = append(r.muteChecks, suppress)
	return r.mute || suppress
}

func (r *recorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) ofKind(kind string) []recordedEvent {
	var out []recordedEvent
	for _, ev := range r.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) messages() []chat.Message {
	var out []chat.Message
	for _, ev := range r.ofKind("message") {
		out = append(out, ev.Message)
	}
	return out
}

// typingStarts returns the participants named by typing-start events.
func (r *recorder) typingStarts() []string {
	var out []string
	for _, ev := range r.ofKind("typing") {
		if ev.Participant != "" {
			out = append(out, ev.Participant)
		}
	}
	return out
}

// scriptedCompleter answers each call with respond(call index, request).
type scriptedCompleter struct {
	mu      sync.Mutex
	calls   []*completion.Request
	respond func(ctx context.Context, call int, req *completion.Request) (*completion.Response, error)
}

func (s *scriptedCompleter) Complete(ctx context.Context, req *completion.Request) (*completion.Response, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.respond(ctx, call, req)
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedCompleter) request(i int) *completion.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func (s *scriptedCompleter) lastRequest() *completion.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func actions(acts ...completion.Action) *completion.Response {
	return &completion.Response{Actions: acts}
}

func respond(participant, message string) completion.Action {
	return completion.Action{Kind: completion.ActionRespond, Participant: participant, Message: message}
}

func react(participant, reaction string) completion.Action {
	return completion.Action{Kind: completion.ActionReact, Participant: participant, Reaction: reaction}
}

// always returns the same response for every call.
func always(resp *completion.Response) *scriptedCompleter {
	return &scriptedCompleter{respond: func(context.Context, int, *completion.Request) (*completion.Response, error) {
		return resp, nil
	}}
}

// blocking returns a completer that waits for ctx cancellation or release.
func blocking(release <-chan struct{}, resp *completion.Response) *scriptedCompleter {
	return &scriptedCompleter{respond: func(ctx context.Context, _ int, _ *completion.Request) (*completion.Response, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return resp, nil
		}
	}}
}

func fastTiming() Timing {
	return Timing{
		DebounceDelay:      20 * time.Millisecond,
		ReactionInterval:   5 * time.Millisecond,
		TypingDelayMin:     5 * time.Millisecond,
		TypingDelayMax:     10 * time.Millisecond,
		TurnDelay:          5 * time.Millisecond,
		WrapUpDelay:        10 * time.Millisecond,
		SilenceDelay:       10 * time.Millisecond,
		MaxAutonomousTurns: 10,
		IdleTTL:            24 * time.Hour,
	}
}

var idCounter atomic.Int64

func sequentialIDs() string {
	return fmt.Sprintf("gen-%d", idCounter.Add(1))
}

func newTestEngine(t *testing.T, c completion.Completer, rec *recorder, opts ...Option) *Engine {
	t.Helper()
	base := []Option{WithTiming(fastTiming()), WithIDGenerator(sequentialIDs)}
	e := New(c, rec, append(base, opts...)...)
	t.Cleanup(e.Shutdown)
	return e
}

func userMessage(id, content string) chat.Message {
	return chat.Message{ID: id, Content: content, Sender: chat.SenderSelf, Timestamp: time.Now()}
}

func oneOnOne(id string, msgs ...chat.Message) *chat.Conversation {
	return &chat.Conversation{ID: id, Participants: []string{"Ada"}, Messages: msgs}
}

func group(id string, msgs ...chat.Message) *chat.Conversation {
	return &chat.Conversation{ID: id, Participants: []string{"Ada", "Grace"}, Messages: msgs}
}

// soundCounter implements SoundPlayer.
type soundCounter struct{ n atomic.Int32 }

func (s *soundCounter) PlayIncoming() { s.n.Add(1) }
