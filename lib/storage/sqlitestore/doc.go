// Package sqlitestore implements storage.Backend on a single SQLite file
// using the pure Go driver modernc.org/sqlite.
//
// All blobs live in one table:
//
//	CREATE TABLE blobs (key TEXT PRIMARY KEY, value BLOB NOT NULL)
//
// The database runs in WAL mode with a single connection. Compared to
// diskstore it trades some write throughput for far fewer files, which suits
// dictionaries with many small values.
package sqlitestore
