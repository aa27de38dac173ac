// Package memstore implements storage.Backend in process memory.
//
// Blobs are spread over a fixed number of shards by a seeded FNV-1a hash of
// their key. Each shard is an xsync.MapOf, a concurrent map that itself
// stripes its buckets, so readers never block and writers only contend on the
// same bucket.
//
// The backend is meant for tests and for dictionaries whose spilled values
// do not need to leave the process (e.g. to trade encode cost for lower GC
// pressure). Nothing survives Close.
package memstore
