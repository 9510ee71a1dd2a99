// ABOUTME: Debounce gate that coalesces rapid user submissions into one pipeline run
// ABOUTME: Every submission preempts in-flight work and restarts the debounce window

package orchestrator

import (
	"errors"
	"time"

	"github.com/2389/chorus/internal/chat"
)

// SubmitUserMessage records a new user-authored snapshot of conv. Any
// in-flight run is cancelled immediately; the completion service is called
// once the debounce window passes without another submission, with the
// newest snapshot.
func (e *Engine) SubmitUserMessage(conv *chat.Conversation) {
	if conv == nil || conv.ID == "" {
		return
	}
	id := conv.ID
	snapshot := conv.Clone()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	st := e.getOrCreateLocked(id)
	wasProcessing := st.phase == phaseProcessing
	e.invalidateLocked(st)
	if st.debounce != nil {
		st.debounce.Stop()
	}
	st.pending = snapshot
	e.armDebounceLocked(id, st, e.timing.DebounceDelay)
	e.mu.Unlock()

	st.barrier()
	e.callbacks.OnTypingStatusChange(id, "")

	e.logger.Debug("user message submitted",
		"conversation_id", id,
		"messages", len(snapshot.Messages),
		"preempted", wasProcessing)
}

// armDebounceLocked (re)starts the debounce timer. Must be called with mu held.
func (e *Engine) armDebounceLocked(id string, st *convState, delay time.Duration) {
	st.debounceSeq++
	seq := st.debounceSeq
	st.debounce = time.AfterFunc(delay, func() { e.flush(id, st, seq) })
}

// flush hands the pending snapshot to the pipeline when the window closes.
func (e *Engine) flush(id string, st *convState, seq uint64) {
	e.mu.Lock()
	if e.closed || e.states[id] != st || st.debounceSeq != seq || st.pending == nil {
		e.mu.Unlock()
		return
	}
	if st.phase == phaseProcessing {
		// A cancelled run has not unwound yet; try again shortly.
		e.armDebounceLocked(id, st, e.timing.DebounceDelay)
		e.mu.Unlock()
		e.logger.Debug("debounce flush deferred, previous run still unwinding", "conversation_id", id)
		return
	}
	snapshot := st.pending
	st.pending = nil
	st.debounce = nil
	st.version = e.nextVersionLocked()
	v := st.version
	st.lastActivity = e.now()
	e.mu.Unlock()

	e.logger.Debug("debounce flushed", "conversation_id", id, "version", v)

	if err := e.process(e.ctx, id, snapshot, &v); err != nil && !errors.Is(err, errStale) {
		e.logger.Warn("debounced run not started", "conversation_id", id, "error", err)
	}
}
