// ABOUTME: Decides the scripted actions returned by fake-completion
// ABOUTME: Someone other than the last speaker replies until the turn limit, then everyone waits

package main

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/completion"
)

var reactions = []string{"👍", "😂", "❤️", "🎉", "🤔"}

type responder struct {
	maxTurns   int
	reactEvery int

	mu  sync.Mutex
	rng *rand.Rand
}

func (r *responder) respond(req *completion.Request) *completion.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Participants holds only the agents; anyone else who wrote a message is the human.
	agents := req.Participants
	if len(agents) == 0 || len(req.Messages) == 0 {
		return &completion.Response{Actions: []completion.Action{{Kind: completion.ActionWait}}}
	}
	last := &req.Messages[len(req.Messages)-1]

	turns, lastSpeaker := trailingTurns(agents, req.Messages)
	if turns >= r.maxTurns {
		return &completion.Response{Actions: []completion.Action{{Kind: completion.ActionWait}}}
	}

	speaker := r.pick(agents, lastSpeaker)

	var actions []completion.Action
	if r.reactEvery > 0 && last.Sender != speaker && r.rng.IntN(r.reactEvery) == 0 {
		actions = append(actions, completion.Action{
			Kind:        completion.ActionReact,
			Participant: speaker,
			Reaction:    reactions[r.rng.IntN(len(reactions))],
		})
	}

	kind := completion.ActionRespond
	if len(agents) > 1 && turns == r.maxTurns-1 {
		kind = completion.ActionWrapUp
	}
	actions = append(actions, completion.Action{
		Kind:        kind,
		Participant: speaker,
		Message:     r.line(speaker, agents, last),
	})

	return &completion.Response{Actions: actions}
}

// trailingTurns counts the agent messages at the end of the history and
// returns the most recent agent speaker.
func trailingTurns(agents []string, msgs []chat.Message) (int, string) {
	count, last := 0, ""
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.IsSystemNotice() || !slices.Contains(agents, m.Sender) {
			break
		}
		if count == 0 {
			last = m.Sender
		}
		count++
	}
	return count, last
}

// pick chooses a speaker, avoiding the previous one when there is a choice.
func (r *responder) pick(agents []string, previous string) string {
	candidates := make([]string, 0, len(agents))
	for _, a := range agents {
		if a != previous {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		candidates = agents
	}
	return candidates[r.rng.IntN(len(candidates))]
}

func (r *responder) line(speaker string, agents []string, last *chat.Message) string {
	if !slices.Contains(agents, last.Sender) {
		return fmt.Sprintf("%s here. You said: *%s*", speaker, last.Content)
	}
	return fmt.Sprintf("Good point, **%s**.", last.Sender)
}
