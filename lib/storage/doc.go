// Package storage defines the blob backends a LargeDict pages values to.
//
// A Backend stores opaque blobs under canonical string keys. On top of it a
// Store[K, V] composes a KeyCodec (typed key <-> blob name) and a ValueCodec
// (value <-> bytes), providing save, load, remove and exists for typed keys.
//
// Implementations live in sub packages:
//
//   - diskstore: one file per key in a directory, atomic replace, flock
//   - sqlitestore: one row per key in a SQLite database file
//   - memstore: sharded in-process map, for tests and ephemeral use
//
// Every backend runs the conformance suite in storage/testing.
//
// Errors returned by a Store are *Error values and match ErrStorage with
// errors.Is. Missing blobs additionally match ErrNotFound.
package storage
