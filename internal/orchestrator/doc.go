// Package orchestrator runs the per-conversation turn engine.
//
// # Overview
//
// For every conversation the Engine decides when to call the completion
// service, coalesces bursts of user input, lets non-human participants take
// turns on their own in group chats, and throws away work that a newer event
// has made stale.
//
//	engine := orchestrator.New(completer, callbacks,
//	    orchestrator.WithTiming(timing),
//	    orchestrator.WithLogger(logger))
//	defer engine.Shutdown()
//
//	engine.SubmitUserMessage(conv)
//
// # Flow
//
//  1. SubmitUserMessage cancels any in-flight run and (re)starts the
//     debounce timer with the newest snapshot.
//  2. When the debounce window closes the snapshot is handed to the
//     response pipeline.
//  3. The pipeline calls the completion service, applies reactions,
//     simulates typing and delivers at most one message.
//  4. In group conversations the turn scheduler may start the next turn,
//     until the service says "wait" or the autonomous turn cap is hit.
//
// # Versions
//
// Every conversation carries a version. Cancellation bumps it. Each deferred
// step (debounce flush, typing delay, next turn, silenced notice) remembers
// the version it was scheduled under and does nothing if it changed.
//
// # Callbacks
//
// Results are reported through the Callbacks interface. Callbacks are
// invoked synchronously from engine goroutines and must not call back into
// the Engine for the same conversation.
//
// # Idle sweeping
//
// A background goroutine destroys conversations that have not been touched
// for the configured TTL, cancelling their timers and in-flight calls.
package orchestrator
