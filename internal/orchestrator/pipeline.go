// ABOUTME: Response pipeline: one completion call turned into reactions and at most one message
// ABOUTME: Enforces a single concurrent run per conversation and drops stale results

package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/completion"
)

// ProcessMessage runs one turn for conv immediately, bypassing the debounce
// gate. It blocks until the turn is complete and returns ErrBusy if another
// run is active for the conversation. Completion failures are reported
// through Callbacks.OnError, not returned.
func (e *Engine) ProcessMessage(ctx context.Context, id string, conv *chat.Conversation) error {
	if conv == nil {
		return ErrNoConversation
	}
	return e.process(ctx, id, conv.Clone(), nil)
}

// process is the pipeline state machine. conv must be owned by the engine.
// When expect is non-nil the run only starts if the version still matches.
func (e *Engine) process(ctx context.Context, id string, conv *chat.Conversation, expect *uint64) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrShutdown
	}
	if expect != nil {
		if st, ok := e.states[id]; !ok || st.version != *expect {
			e.mu.Unlock()
			return errStale
		}
	}
	st := e.getOrCreateLocked(id)
	if st.phase == phaseProcessing {
		e.mu.Unlock()
		return ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	st.phase = phaseProcessing
	st.cancel = cancel
	version := st.version
	e.mu.Unlock()

	logger := e.logger.With("conversation_id", id, "version", version)
	logger.Debug("run started", "messages", len(conv.Messages), "group", conv.IsGroup())

	next := e.runTurn(runCtx, logger, id, st, version, conv)

	cancel()
	e.mu.Lock()
	st.phase = phaseIdle
	st.cancel = nil
	e.mu.Unlock()

	logger.Debug("run finished", "follow_up", next != nil)

	if next != nil {
		e.after(id, st, version, next)
	}
	return nil
}

// runTurn performs the body of a run and returns the continuation to
// schedule once the conversation is idle again, if any.
func (e *Engine) runTurn(ctx context.Context, logger *slog.Logger, id string, st *convState, version uint64, conv *chat.Conversation) *followUp {
	resp, err := e.completer.Complete(ctx, completion.NewRequest(conv))
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			logger.Debug("completion cancelled")
			return nil
		}
		logger.Error("completion failed", "error", err)
		e.callbacks.OnError(&TurnError{ConversationID: id, Err: err})
		return nil
	}
	if ctx.Err() != nil {
		logger.Debug("discarding completion for cancelled run")
		return nil
	}

	plan := resp.Plan()
	for _, a := range plan.Unknown {
		logger.Warn("ignoring unknown action", "action", a.Kind)
	}

	if !e.applyReactions(ctx, logger, id, st, version, conv, plan.Reactions) {
		return nil
	}

	if plan.ReactionsOnly() {
		if conv.IsGroup() {
			return e.scheduleNextTurn(logger, id, st, version, conv)
		}
		return nil
	}

	if plan.Reply == nil {
		logger.Debug("waiting for user")
		return nil
	}

	reply := *plan.Reply
	if err := reply.Validate(); err != nil {
		logger.Warn("ignoring malformed action", "error", err)
		e.callbacks.OnTypingStatusChange(id, "")
		return nil
	}
	if !conv.IsAgent(reply.Participant) {
		logger.Warn("ignoring reply from non-agent", "participant", reply.Participant, "action", reply.Kind)
		e.callbacks.OnTypingStatusChange(id, "")
		return nil
	}

	started := e.emitIfCurrent(id, st, version, func() {
		e.callbacks.OnTypingStatusChange(id, reply.Participant)
	})
	if !started {
		return nil
	}

	if !sleep(ctx, e.typingDelay()) {
		logger.Debug("typing interrupted")
		return nil
	}

	msg := chat.Message{
		ID:        e.newID(),
		Content:   reply.Message,
		Sender:    reply.Participant,
		Timestamp: e.now(),
	}
	delivered := e.emitIfCurrent(id, st, version, func() {
		e.callbacks.OnMessageGenerated(id, msg)
		e.callbacks.OnTypingStatusChange(id, "")
	})
	if !delivered {
		logger.Debug("dropping stale reply", "participant", reply.Participant)
		return nil
	}
	e.playIncoming(conv)

	logger.Info("reply delivered",
		"participant", reply.Participant,
		"action", reply.Kind,
		"message_id", msg.ID)

	if reply.Kind == completion.ActionWrapUp {
		return &followUp{
			delay: e.timing.WrapUpDelay,
			fn:    func() { e.emitSilenced(id, st, version, reply.Participant) },
		}
	}
	if conv.IsOneOnOne() {
		return nil
	}
	return e.scheduleNextTurn(logger, id, st, version, conv.WithMessage(msg))
}

// applyReactions appends each reaction to the last message, pausing between
// them. It returns false if the run went stale or was cancelled.
func (e *Engine) applyReactions(ctx context.Context, logger *slog.Logger, id string, st *convState, version uint64, conv *chat.Conversation, reactions []completion.Action) bool {
	applied := 0
	for _, a := range reactions {
		if err := a.Validate(); err != nil {
			logger.Warn("ignoring malformed reaction", "error", err)
			continue
		}
		if !conv.IsAgent(a.Participant) {
			logger.Warn("ignoring reaction from non-agent", "participant", a.Participant)
			continue
		}
		target := conv.LastMessage()
		if target == nil {
			logger.Warn("no message to react to")
			return true
		}
		if applied > 0 && !sleep(ctx, e.timing.ReactionInterval) {
			return false
		}

		reaction := chat.Reaction{Type: a.Reaction, Sender: a.Participant, Timestamp: e.now()}
		ok := e.emitIfCurrent(id, st, version, func() {
			target.Reactions = append(target.Reactions, reaction)
			e.callbacks.OnMessageUpdated(id, target.ID, chat.MessageUpdate{
				Reactions: slices.Clone(target.Reactions),
			})
		})
		if !ok {
			return false
		}
		applied++
		e.playIncoming(conv)
		logger.Debug("reaction applied", "participant", a.Participant, "reaction", a.Reaction, "message_id", target.ID)
	}
	return true
}

// emitSilenced delivers the "notifications silenced" notice for participant.
func (e *Engine) emitSilenced(id string, st *convState, version uint64, participant string) {
	notice := chat.NewSilencedNotice(e.newID(), participant, e.now())
	if e.emitIfCurrent(id, st, version, func() {
		e.callbacks.OnMessageGenerated(id, notice)
	}) {
		e.logger.Info("participant silenced", "conversation_id", id, "participant", participant)
	}
}
