// ABOUTME: Engine construction, options, callback interface and caller-facing controls
// ABOUTME: Owns the conversation registry, the sweeper goroutine and shutdown

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chorus/internal/chat"
	"github.com/2389/chorus/internal/completion"
)

// ErrBusy is returned by ProcessMessage when a run is already in progress
// for the conversation.
var ErrBusy = errors.New("conversation is already processing")

// ErrShutdown is returned once the engine has been shut down.
var ErrShutdown = errors.New("engine is shut down")

// ErrNoConversation is returned by ProcessMessage for a nil conversation.
var ErrNoConversation = errors.New("conversation is required")

// errStale marks a scheduled run whose version was superseded.
var errStale = errors.New("stale turn")

// TurnError wraps a completion failure with the conversation it belongs to.
type TurnError struct {
	ConversationID string
	Err            error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("conversation %s: %v", e.ConversationID, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// Callbacks receives everything the engine produces.
type Callbacks interface {
	// OnMessageGenerated is called for replies and system notices.
	OnMessageGenerated(conversationID string, msg chat.Message)
	// OnTypingStatusChange starts (participant set) or stops (participant
	// empty) the typing indicator. An empty conversationID means all.
	OnTypingStatusChange(conversationID, participant string)
	// OnMessageUpdated reports changed reactions on an existing message.
	OnMessageUpdated(conversationID, messageID string, update chat.MessageUpdate)
	// OnError reports non-cancellation failures as *TurnError.
	OnError(err error)
	// ShouldMuteIncomingSound decides whether the incoming sound is skipped.
	ShouldMuteIncomingSound(suppressNotifications bool) bool
}

// SoundPlayer plays the incoming message/reaction sound.
type SoundPlayer interface {
	PlayIncoming()
}

// Timing holds every delay and limit the engine uses.
type Timing struct {
	DebounceDelay      time.Duration
	ReactionInterval   time.Duration
	TypingDelayMin     time.Duration
	TypingDelayMax     time.Duration
	TurnDelay          time.Duration
	WrapUpDelay        time.Duration
	SilenceDelay       time.Duration
	MaxAutonomousTurns int
	SweepInterval      time.Duration
	IdleTTL            time.Duration
}

// DefaultTiming returns the production defaults.
func DefaultTiming() Timing {
	return Timing{
		DebounceDelay:      500 * time.Millisecond,
		ReactionInterval:   800 * time.Millisecond,
		TypingDelayMin:     2 * time.Second,
		TypingDelayMax:     3 * time.Second,
		TurnDelay:          time.Second,
		WrapUpDelay:        time.Second,
		SilenceDelay:       time.Second,
		MaxAutonomousTurns: 10,
		SweepInterval:      30 * time.Minute,
		IdleTTL:            24 * time.Hour,
	}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Conversations   int    `json:"conversations"`
	Processing      int    `json:"processing"`
	PendingDebounce int    `json:"pending_debounce"`
	Active          string `json:"active,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithTiming overrides the default timing.
func WithTiming(t Timing) Option {
	return func(e *Engine) { e.timing = t }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With("component", "orchestrator")
		}
	}
}

// WithClock replaces time.Now for activity tracking and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand replaces the source for the typing delay jitter. It must return
// a value in [0, n).
func WithRand(int64n func(n int64) int64) Option {
	return func(e *Engine) { e.int64n = int64n }
}

// WithSoundPlayer enables incoming sounds.
func WithSoundPlayer(p SoundPlayer) Option {
	return func(e *Engine) { e.sound = p }
}

// WithIDGenerator replaces the message ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// Engine orchestrates turns for any number of independent conversations.
type Engine struct {
	completer completion.Completer
	callbacks Callbacks
	sound     SoundPlayer
	timing    Timing
	logger    *slog.Logger
	now       func() time.Time
	int64n    func(n int64) int64
	newID     func() string

	mu      sync.Mutex
	states  map[string]*convState
	active  string
	lastGen uint64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates an engine and starts its idle sweeper.
func New(completer completion.Completer, callbacks Callbacks, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		completer: completer,
		callbacks: callbacks,
		timing:    DefaultTiming(),
		logger:    slog.Default().With("component", "orchestrator"),
		now:       time.Now,
		int64n:    rand.Int64N,
		newID:     func() string { return uuid.New().String() },
		states:    make(map[string]*convState),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.timing.MaxAutonomousTurns <= 0 {
		e.timing.MaxAutonomousTurns = DefaultTiming().MaxAutonomousTurns
	}

	if e.timing.SweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepLoop()
	}
	return e
}

// SetActiveConversation marks which conversation is in the foreground.
// Switching away from a conversation that is mid-run stops its typing
// indicator; the run itself keeps going.
func (e *Engine) SetActiveConversation(id string) {
	e.mu.Lock()
	prev := e.active
	e.active = id
	stopPrev := false
	if prev != "" && prev != id {
		if st, ok := e.states[prev]; ok && st.phase == phaseProcessing {
			stopPrev = true
		}
	}
	if st, ok := e.states[id]; ok {
		st.lastActivity = e.now()
	}
	e.mu.Unlock()

	if stopPrev {
		e.callbacks.OnTypingStatusChange(prev, "")
	}
	e.logger.Debug("active conversation changed", "from", prev, "to", id)
}

// ActiveConversation returns the foreground conversation ID, or "".
func (e *Engine) ActiveConversation() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Stats reports registry counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{Conversations: len(e.states), Active: e.active}
	for _, st := range e.states {
		if st.phase == phaseProcessing {
			s.Processing++
		}
		if st.pending != nil {
			s.PendingDebounce++
		}
	}
	return s
}

// Shutdown cancels every timer and in-flight call and empties the registry.
// It is safe to call more than once.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	destroyed := make([]*convState, 0, len(e.states))
	for id, st := range e.states {
		e.destroyLocked(id, st)
		destroyed = append(destroyed, st)
	}
	e.active = ""
	e.mu.Unlock()

	close(e.done)
	e.cancel()
	for _, st := range destroyed {
		st.barrier()
	}
	e.wg.Wait()

	if len(destroyed) > 0 {
		e.callbacks.OnTypingStatusChange("", "")
	}
	e.logger.Info("engine shut down", "conversations", len(destroyed))
}

// playIncoming plays the incoming sound unless the caller's policy mutes it.
func (e *Engine) playIncoming(conv *chat.Conversation) {
	if e.sound == nil {
		return
	}
	if e.callbacks.ShouldMuteIncomingSound(conv.SuppressNotifications) {
		return
	}
	e.sound.PlayIncoming()
}

// typingDelay picks a duration in [TypingDelayMin, TypingDelayMax).
func (e *Engine) typingDelay() time.Duration {
	lo, hi := e.timing.TypingDelayMin, e.timing.TypingDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.int64n(int64(hi-lo)))
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
