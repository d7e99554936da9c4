// Package store provides persistent storage for the chat gateway using SQLite.
//
// # Data Models
//
//   - Conversation: durable pairing of two participants, optionally scoped to a
//     job. The (participants, job) key is unique; an absent job is its own
//     scoping value. Created lazily on first contact, never deleted, mutated
//     only to advance the last-message pointer.
//   - Message: one entry in a conversation's ordered log. Immutable once
//     written except for the isRead/readAt transition, which is monotonic.
//
// # Invariants enforced here
//
// Conversation uniqueness is enforced by a UNIQUE index, not an application
// check-then-insert, so concurrent GetOrCreateConversation callers converge on
// one row. Message validation (content-or-file, 2000-character cap) happens
// before any insert.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Testing
//
// Use NewMockStore() for unit tests; use NewSQLiteStore with a temp-dir path
// for integration tests with real SQLite.
package store
