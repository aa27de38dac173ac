package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage is matched by every error of a failed backend operation
	ErrStorage = errors.New("storage error")
	// ErrNotFound is returned by Load for a missing key
	ErrNotFound = errors.New("blob not found")
	// ErrDirLocked is returned when the storage location is owned by another instance
	ErrDirLocked = errors.New("storage directory locked by another instance")
	// ErrClosed is returned by backends after Close or Destroy
	ErrClosed = errors.New("storage backend closed")
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error describes a failed backend operation on one key.
// errors.Is matches both ErrStorage and the underlying cause.
type Error struct {
	Op  string // save, load, remove, keys, ...
	Key string // canonical key, empty for whole-backend operations
	Err error  // the cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes ErrStorage and the cause to errors.Is and errors.As
func (e *Error) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// NewError creates a new *Error. A nil err yields a nil error.
func NewError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) && serr.Op == op && serr.Key == key {
		return err
	}
	return &Error{Op: op, Key: key, Err: err}
}
