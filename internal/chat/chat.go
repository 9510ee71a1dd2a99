// ABOUTME: Conversation, Message and Reaction types shared by the engine and its callers
// ABOUTME: Includes snapshot cloning, one-to-one detection and trailing agent turn counting

package chat

import (
	"slices"
	"time"
)

// Synthetic senders that are never participants.
const (
	SenderSelf   = "self"
	SenderSystem = "system"
)

// KindSilenced marks the system notice emitted when a participant stops talking.
const KindSilenced = "silenced"

// Reaction is a single emoji-style reaction attached to a message.
type Reaction struct {
	Type      string    `json:"type"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is one entry in a conversation's history.
type Message struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Sender    string     `json:"sender"`
	Timestamp time.Time  `json:"timestamp"`
	Kind      string     `json:"kind,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// MessageUpdate carries the fields of an existing message that changed.
// Reactions is always the complete list, not a delta.
type MessageUpdate struct {
	Reactions []Reaction `json:"reactions"`
}

// Conversation is a thread with a fixed participant set and an append-only history.
// Participants normally lists only the non-human members. Self optionally names
// the human when it appears in Participants or as a message sender under a name
// other than SenderSelf.
type Conversation struct {
	ID                    string    `json:"id"`
	Participants          []string  `json:"participants"`
	Messages              []Message `json:"messages"`
	SuppressNotifications bool      `json:"suppress_notifications"`
	Self                  string    `json:"self,omitempty"`
}

// IsHuman reports whether sender is the human side of the conversation.
func (c *Conversation) IsHuman(sender string) bool {
	return sender == SenderSelf || (c.Self != "" && sender == c.Self)
}

// Agents returns the non-human participants.
func (c *Conversation) Agents() []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if !c.IsHuman(p) {
			out = append(out, p)
		}
	}
	return out
}

// IsOneOnOne reports whether the conversation has a single non-human participant.
func (c *Conversation) IsOneOnOne() bool {
	return len(c.Agents()) <= 1
}

// IsGroup reports whether autonomous continuation is possible.
func (c *Conversation) IsGroup() bool {
	return !c.IsOneOnOne()
}

// HasParticipant reports whether name is one of the conversation's participants.
func (c *Conversation) HasParticipant(name string) bool {
	return slices.Contains(c.Participants, name)
}

// IsAgent reports whether name is a non-human participant, the only names
// allowed to speak or react.
func (c *Conversation) IsAgent(name string) bool {
	return c.HasParticipant(name) && !c.IsHuman(name)
}

// LastMessage returns a pointer into Messages for the newest entry, or nil.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// TrailingAgentTurns counts consecutive messages at the end of the history that
// were written by a participant, stopping at the first human message or
// system notice. It also returns the most recent of those speakers.
func (c *Conversation) TrailingAgentTurns() (int, string) {
	count := 0
	last := ""
	for i := len(c.Messages) - 1; i >= 0; i-- {
		m := c.Messages[i]
		if c.IsHuman(m.Sender) || m.IsSystemNotice() {
			break
		}
		if count == 0 {
			last = m.Sender
		}
		count++
	}
	return count, last
}

// WithMessage returns a copy of the conversation with msg appended.
// The receiver is left untouched.
func (c *Conversation) WithMessage(msg Message) *Conversation {
	next := c.Clone()
	next.Messages = append(next.Messages, msg.Clone())
	return next
}

// Clone returns a deep copy, so the engine can mutate reactions without
// racing the caller's copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := &Conversation{
		ID:                    c.ID,
		Participants:          slices.Clone(c.Participants),
		SuppressNotifications: c.SuppressNotifications,
		Self:                  c.Self,
		Messages:              make([]Message, len(c.Messages), len(c.Messages)+1),
	}
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// IsSystemNotice reports whether the message was generated by the system
// rather than written by a participant.
func (m Message) IsSystemNotice() bool {
	return m.Sender == SenderSystem || m.Kind != ""
}

// Clone returns a copy of the message with its own reaction slice.
func (m Message) Clone() Message {
	m.Reactions = slices.Clone(m.Reactions)
	return m
}

// NewSilencedNotice builds the system message announcing that participant has
// muted itself. The notice is attributed to the participant so callers can
// render "<participant> silenced notifications".
func NewSilencedNotice(id, participant string, at time.Time) Message {
	return Message{
		ID:        id,
		Content:   participant + " has silenced notifications",
		Sender:    participant,
		Timestamp: at,
		Kind:      KindSilenced,
	}
}
