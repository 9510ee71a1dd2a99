// Package completion defines the contract with the external completion service
// that decides what non-human participants say or do next.
//
// A request carries the participant list, the full message history and a
// one-to-one flag. The response is a list of actions:
//
//	{"actions": [
//	  {"action": "react",   "participant": "Ada", "reaction": "heart"},
//	  {"action": "respond", "participant": "Ada", "message": "Hello!"}
//	]}
//
// For backward compatibility a bare action object without the "actions"
// wrapper is accepted and treated as a single-element list.
//
// Client is the HTTP implementation. It performs exactly one attempt per
// call and sets no timeout of its own; the caller's context is the only way
// to abort a request.
package completion
