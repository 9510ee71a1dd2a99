// Package store persists chorus conversations using SQLite.
//
// The orchestrator keeps no history of its own: every turn works on the
// snapshot it is handed. The store is where the host keeps the transcript
// between turns and across restarts.
//
// # Data Models
//
//   - conversations: participants (JSON), the human's alias, the mute flag
//   - messages: sender, content, kind and reactions (JSON), kept in append order
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
//   - ErrNotFound: Requested conversation or message does not exist
//   - ErrDuplicate: Conversation or message ID is already taken
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
