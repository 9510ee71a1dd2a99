// Package gateway serves the chorus HTTP API.
//
// # Overview
//
// The gateway owns the SQLite store, the completion client, the turn engine
// and the HTTP server, and shuts them down in that reverse order.
//
// # HTTP API
//
//	GET    /health                                 Liveness plus engine counters
//	POST   /api/conversations                      Create a conversation
//	GET    /api/conversations                      List conversations
//	GET    /api/conversations/{id}                 Conversation with history
//	DELETE /api/conversations/{id}                 Stop engine work and delete
//	POST   /api/conversations/{id}/messages        Send a message as the human
//	POST   /api/conversations/{id}/continue        Run a turn now, no new message
//	PUT    /api/conversations/{id}/notifications   Suppress or restore notifications
//	PUT    /api/active                             Set the conversation being viewed
//	GET    /api/events?conversation_id=ID          SSE stream of engine events
//
// Sending returns 202 as soon as the message is recorded. Replies, typing
// indicators, reactions and errors arrive on the event stream.
//
// When auth.jwt_secret is set every /api/ route requires an HS256 bearer
// token (or an access_token query parameter). /health is always open.
//
// A send carrying an Idempotency-Key header is recorded once per key and
// conversation for ten minutes. Repeats return the original message with
// Idempotent-Replayed: true.
//
// Message bodies are markdown; responses carry a content_html rendering.
package gateway
