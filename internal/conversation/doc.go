// Package conversation connects the turn engine to storage and live clients.
//
// # Overview
//
// The package sits between the HTTP handlers and the orchestrator. The
// orchestrator keeps no transcript; this layer does.
//
// # Service
//
//	svc := conversation.New(store, engine, broadcaster, logger)
//
// Key operations:
//
//   - Create(ctx, req): Store a new conversation
//   - Send(ctx, id, content): Record a human message, then submit the snapshot
//   - Continue(ctx, id): Run one turn now from the stored snapshot
//   - Delete(ctx, id): Destroy engine state and remove the transcript
//   - Activate(ctx, id): Mark the conversation the human is viewing
//
// # Hub
//
// Hub implements orchestrator.Callbacks. Generated messages and reaction
// updates are persisted before they are published, each save bounded by its
// own timeout since turns run outside any request.
//
// # Event Broadcasting
//
// EventBroadcaster fans events out per conversation ID, or to every
// conversation for AllConversations subscribers:
//
//   - message: A message was recorded (human, participant or system)
//   - typing: A participant started typing, or typing stopped
//   - updated: A message's reactions changed
//   - error: A turn failed
//
// Slow subscribers drop events rather than block the engine.
package conversation
