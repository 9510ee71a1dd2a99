// ABOUTME: Completion request/response types and the action list decoder
// ABOUTME: Accepts both the wrapped {"actions": [...]} form and a single legacy action

package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/chorus/internal/chat"
)

// ErrMalformedResponse is returned when a response body is not a recognizable action payload.
var ErrMalformedResponse = errors.New("malformed completion response")

// ErrMalformedAction is returned by Action.Validate for actions missing required fields.
var ErrMalformedAction = errors.New("malformed action")

// ActionKind names what a participant wants to do.
type ActionKind string

// Action kinds understood by the engine.
const (
	ActionRespond ActionKind = "respond"
	ActionWrapUp  ActionKind = "wrap_up"
	ActionReact   ActionKind = "react"
	ActionWait    ActionKind = "wait"
)

// Action is one instruction from the completion service.
type Action struct {
	Kind        ActionKind `json:"action"`
	Participant string     `json:"participant,omitempty"`
	Message     string     `json:"message,omitempty"`
	Reaction    string     `json:"reaction,omitempty"`
}

// Validate checks the fields required by the action's kind.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionRespond, ActionWrapUp:
		if a.Participant == "" || a.Message == "" {
			return fmt.Errorf("%w: %s requires participant and message", ErrMalformedAction, a.Kind)
		}
	case ActionReact:
		if a.Participant == "" || a.Reaction == "" {
			return fmt.Errorf("%w: react requires participant and reaction", ErrMalformedAction)
		}
	case ActionWait:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedAction, a.Kind)
	}
	return nil
}

// Request is the payload sent to the completion service.
type Request struct {
	Participants []string       `json:"participants"`
	Messages     []chat.Message `json:"messages"`
	IsOneOnOne   bool           `json:"isOneOnOne"`
}

// NewRequest builds a request from a conversation snapshot. Only the
// non-human participants are offered as speakers.
func NewRequest(c *chat.Conversation) *Request {
	return &Request{
		Participants: c.Agents(),
		Messages:     c.Messages,
		IsOneOnOne:   c.IsOneOnOne(),
	}
}

// Response is the decoded action list.
type Response struct {
	Actions []Action `json:"actions"`
}

// Completer calls the completion service.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req *Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// DecodeResponse parses a response body in either the wrapped or legacy form.
func DecodeResponse(data []byte) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if raw, ok := fields["actions"]; ok {
		var resp Response
		if err := json.Unmarshal(raw, &resp.Actions); err != nil {
			return nil, fmt.Errorf("%w: actions: %v", ErrMalformedResponse, err)
		}
		return &resp, nil
	}

	if _, ok := fields["action"]; ok {
		var single Action
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("%w: legacy action: %v", ErrMalformedResponse, err)
		}
		return &Response{Actions: []Action{single}}, nil
	}

	return nil, fmt.Errorf("%w: neither actions nor action present", ErrMalformedResponse)
}

// Plan is an action list sorted into the order the engine applies it.
type Plan struct {
	Reactions []Action
	// Reply is the first respond or wrap_up action, nil if there is none.
	Reply *Action
	Wait  bool
	// Unknown holds actions whose kind the engine does not understand.
	Unknown []Action
}

// Plan groups the response's actions. Only the first respond/wrap_up is kept;
// a turn delivers at most one message.
func (r *Response) Plan() Plan {
	var p Plan
	for i := range r.Actions {
		a := r.Actions[i]
		switch a.Kind {
		case ActionReact:
			p.Reactions = append(p.Reactions, a)
		case ActionWait:
			p.Wait = true
		case ActionRespond, ActionWrapUp:
			if p.Reply == nil {
				p.Reply = &a
			}
		default:
			p.Unknown = append(p.Unknown, a)
		}
	}
	return p
}

// ReactionsOnly reports whether the plan applies reactions and nothing else.
func (p Plan) ReactionsOnly() bool {
	return len(p.Reactions) > 0 && p.Reply == nil && !p.Wait
}
