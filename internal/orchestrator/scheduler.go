// ABOUTME: Turn scheduler deciding whether another participant speaks after a delivered turn
// ABOUTME: Caps consecutive autonomous messages and silences the last speaker at the cap

package orchestrator

import (
	"errors"
	"log/slog"

	"github.com/2389/chorus/internal/chat"
)

// scheduleNextTurn returns the continuation that follows a group turn: either
// another pipeline run after TurnDelay, or, once MaxAutonomousTurns
// consecutive participant messages have accumulated, a silenced notice for
// the last speaker and no further turn.
func (e *Engine) scheduleNextTurn(logger *slog.Logger, id string, st *convState, version uint64, conv *chat.Conversation) *followUp {
	count, last := conv.TrailingAgentTurns()
	if count >= e.timing.MaxAutonomousTurns {
		logger.Info("autonomous turn limit reached", "turns", count, "participant", last)
		return &followUp{
			delay: e.timing.SilenceDelay,
			fn:    func() { e.emitSilenced(id, st, version, last) },
		}
	}

	logger.Debug("next turn scheduled", "turns", count, "delay", e.timing.TurnDelay)
	return &followUp{
		delay: e.timing.TurnDelay,
		fn: func() {
			v := version
			err := e.process(e.ctx, id, conv, &v)
			switch {
			case err == nil, errors.Is(err, errStale), errors.Is(err, ErrShutdown):
			default:
				logger.Warn("scheduled turn not started", "error", err)
			}
		},
	}
}
