// ABOUTME: Idle sweeper that evicts conversations untouched for longer than the TTL
// ABOUTME: Runs on a ticker in the background and can be triggered directly with Sweep

package orchestrator

import (
	"time"
)

// sweepLoop runs in a background goroutine until Shutdown.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.timing.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Sweep()
		case <-e.done:
			return
		}
	}
}

// Sweep destroys every conversation whose last activity is older than the
// idle TTL and returns how many were removed.
func (e *Engine) Sweep() int {
	start := e.now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0
	}
	var evicted []string
	var states []*convState
	activeEvicted := false
	for id, st := range e.states {
		if start.Sub(st.lastActivity) <= e.timing.IdleTTL {
			continue
		}
		e.destroyLocked(id, st)
		evicted = append(evicted, id)
		states = append(states, st)
		if e.active == id {
			e.active = ""
			activeEvicted = true
		}
	}
	remaining := len(e.states)
	e.mu.Unlock()

	for i, st := range states {
		st.barrier()
		e.callbacks.OnTypingStatusChange(evicted[i], "")
	}

	if len(evicted) > 0 {
		e.logger.Info("evicted idle conversations",
			"removed", len(evicted),
			"remaining", remaining,
			"active_evicted", activeEvicted)
	}
	return len(evicted)
}
