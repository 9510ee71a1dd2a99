// ABOUTME: Per-conversation orchestration state and the registry that owns it
// ABOUTME: Lazy creation, activity tracking, version bumps, guarded timers and destruction

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/2389/chorus/internal/chat"
)

type phase int

const (
	phaseIdle phase = iota
	phaseProcessing
)

func (p phase) String() string {
	if p == phaseProcessing {
		return "processing"
	}
	return "idle"
}

// convState is the engine-private bookkeeping for one conversation.
// All fields except emitMu are guarded by Engine.mu.
type convState struct {
	phase   phase
	version uint64
	// cancel aborts the in-flight completion call; nil when none is cancellable.
	cancel context.CancelFunc

	pending     *chat.Conversation
	debounce    *time.Timer
	debounceSeq uint64

	// timers holds scheduled continuations (next turn, silenced notices).
	timers map[*time.Timer]struct{}

	lastActivity time.Time

	// emitMu serializes version-guarded callbacks against invalidation so
	// that once a cancellation returns no stale result can still be emitted.
	emitMu sync.Mutex
}

// barrier waits for any guarded emission in progress to finish.
func (st *convState) barrier() {
	st.emitMu.Lock()
	st.emitMu.Unlock()
}

// followUp is a continuation to arm once a run has returned to idle.
type followUp struct {
	delay time.Duration
	fn    func()
}

// nextVersionLocked returns a version unique across the engine, so a
// destroyed-and-recreated conversation never reuses an old version.
func (e *Engine) nextVersionLocked() uint64 {
	e.lastGen++
	return e.lastGen
}

// getOrCreateLocked returns the state for id, creating it on first use, and
// refreshes its activity timestamp. Must be called with mu held.
func (e *Engine) getOrCreateLocked(id string) *convState {
	st, ok := e.states[id]
	if !ok {
		st = &convState{
			version: e.nextVersionLocked(),
			timers:  make(map[*time.Timer]struct{}),
		}
		e.states[id] = st
		e.logger.Debug("conversation registered", "conversation_id", id, "total", len(e.states))
	}
	st.lastActivity = e.now()
	return st
}

// invalidateLocked aborts the in-flight call and bumps the version, which
// makes every outstanding continuation a no-op. Must be called with mu held.
// The caller emits the typing stop after unlocking.
func (e *Engine) invalidateLocked(st *convState) {
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.version = e.nextVersionLocked()
}

// destroyLocked cancels everything owned by st and removes it from the
// registry. Must be called with mu held.
func (e *Engine) destroyLocked(id string, st *convState) {
	e.invalidateLocked(st)
	if st.debounce != nil {
		st.debounce.Stop()
		st.debounce = nil
	}
	st.pending = nil
	for t := range st.timers {
		t.Stop()
	}
	clear(st.timers)
	delete(e.states, id)
}

// Destroy removes a conversation's state, cancelling its timers and any
// in-flight call. Destroying the active conversation clears the active
// pointer and stops its typing indicator.
func (e *Engine) Destroy(id string) {
	e.mu.Lock()
	st, ok := e.states[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	e.destroyLocked(id, st)
	wasActive := e.active == id
	if wasActive {
		e.active = ""
	}
	e.mu.Unlock()

	st.barrier()
	e.callbacks.OnTypingStatusChange(id, "")
	e.logger.Debug("conversation destroyed", "conversation_id", id, "was_active", wasActive)
}

// isCurrentLocked reports whether st is still registered under id at version v.
func (e *Engine) isCurrentLocked(id string, st *convState, v uint64) bool {
	return !e.closed && e.states[id] == st && st.version == v
}

// emitIfCurrent runs emit only if st is still current at version v, and
// holds emitMu so invalidation cannot slip between the check and the emit.
func (e *Engine) emitIfCurrent(id string, st *convState, v uint64, emit func()) bool {
	st.emitMu.Lock()
	defer st.emitMu.Unlock()

	e.mu.Lock()
	ok := e.isCurrentLocked(id, st, v)
	e.mu.Unlock()

	if ok {
		emit()
	}
	return ok
}

// after arms a timer that runs fn if the conversation is still at version v
// when it fires. Timers are owned by the state so destruction stops them.
func (e *Engine) after(id string, st *convState, v uint64, next *followUp) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isCurrentLocked(id, st, v) {
		return
	}
	st.lastActivity = e.now()

	var t *time.Timer
	t = time.AfterFunc(next.delay, func() {
		e.mu.Lock()
		delete(st.timers, t)
		ok := e.isCurrentLocked(id, st, v)
		e.mu.Unlock()

		if ok {
			next.fn()
		}
	})
	st.timers[t] = struct{}{}
}
