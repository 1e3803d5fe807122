// Package store persists the reference agent server's sessions.
//
// # Architecture
//
// SessionStore is the only interface. SQLiteStore implements it on top of
// modernc.org/sqlite and MockStore keeps everything in memory for tests.
//
// # Data Model
//
// A Session holds the latest progress snapshot published by the runner:
// status, answer content, the step list and the index of the running step.
// Steps are stored as a JSON array in the steps_json column using the same
// wire form the HTTP API emits.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode and a single connection:
//
//	PRAGMA journal_mode=WAL;
//
// Timestamps are stored as fixed-width UTC text so that ORDER BY updated_at
// sorts chronologically.
//
// # Error Handling
//
//   - ErrNotFound: requested session does not exist
//   - ErrDuplicateSession: session id already taken
//
// # Migrations
//
// Columns added after the first release are applied in runMigrations,
// which checks pragma_table_info before altering the table.
package store
