// Package diskstore implements storage.Backend as one file per key in a
// single directory.
//
// Layout of a blob directory:
//
//	<dir>/.lock       advisory lock held by the owning process
//	<dir>/.tmp-*      blobs being written (removed on the next Open)
//	<dir>/<key>       one blob per canonical key
//
// Writes go to a temp file in the same directory which is synced and then
// renamed over the target (github.com/natefinch/atomic), so a reader sees
// either the old or the new blob. The directory is owned by one process at
// a time: Open takes an exclusive flock on the lock file and fails with
// storage.ErrDirLocked if another instance holds it.
package diskstore
