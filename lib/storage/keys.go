package storage

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// KeyCodec maps keys to their canonical string form and back. The canonical
// form is the blob name, so it must be a valid file name and Parse(Format(k))
// must return k.
type KeyCodec[K comparable] interface {
	Format(key K) string
	Parse(name string) (K, error)
}

// emptyKey is the blob name of the empty string key
const emptyKey = "%EMPTY"

// --------------------------------------------------------------------------
// Integer keys
// --------------------------------------------------------------------------

type integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IntKeys formats integer keys in decimal
type IntKeys[K integer] struct{}

func (IntKeys[K]) Format(key K) string {
	if K(0)-1 < 0 { // signed
		return strconv.FormatInt(int64(key), 10)
	}
	return strconv.FormatUint(uint64(key), 10)
}

// Parse accepts canonical names only ("5", not "05" or "+5"), so a parsed key
// always maps back to the blob it was read from.
func (c IntKeys[K]) Parse(name string) (K, error) {
	var (
		zero K
		key  K
	)
	if K(0)-1 < 0 {
		v, err := strconv.ParseInt(name, 10, 64)
		if err != nil || int64(K(v)) != v {
			return zero, fmt.Errorf("invalid integer key %q", name)
		}
		key = K(v)
	} else {
		v, err := strconv.ParseUint(name, 10, 64)
		if err != nil || uint64(K(v)) != v {
			return zero, fmt.Errorf("invalid integer key %q", name)
		}
		key = K(v)
	}
	if c.Format(key) != name {
		return zero, fmt.Errorf("non-canonical integer key %q", name)
	}
	return key, nil
}

// --------------------------------------------------------------------------
// String keys
// --------------------------------------------------------------------------

// StringKeys path-escapes string keys so any string is a safe blob name.
// A leading dot is escaped so keys never collide with hidden files.
type StringKeys[K ~string] struct{}

func (StringKeys[K]) Format(key K) string {
	if key == "" {
		return emptyKey
	}
	escaped := url.PathEscape(string(key))
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return escaped
}

// Parse accepts canonical names only, "a%2fb" is rejected in favour of "a%2Fb"
func (c StringKeys[K]) Parse(name string) (K, error) {
	if name == emptyKey {
		return "", nil
	}
	s, err := url.PathUnescape(name)
	if err != nil || s == "" {
		return "", fmt.Errorf("invalid string key %q", name)
	}
	if c.Format(K(s)) != name {
		return "", fmt.Errorf("non-canonical string key %q", name)
	}
	return K(s), nil
}

// --------------------------------------------------------------------------
// Default selection
// --------------------------------------------------------------------------

// DefaultKeyCodec returns a codec for the built-in integer and string key
// types, nil for anything else.
func DefaultKeyCodec[K comparable]() KeyCodec[K] {
	var zero K
	var codec any
	switch any(zero).(type) {
	case int:
		codec = IntKeys[int]{}
	case int8:
		codec = IntKeys[int8]{}
	case int16:
		codec = IntKeys[int16]{}
	case int32:
		codec = IntKeys[int32]{}
	case int64:
		codec = IntKeys[int64]{}
	case uint:
		codec = IntKeys[uint]{}
	case uint8:
		codec = IntKeys[uint8]{}
	case uint16:
		codec = IntKeys[uint16]{}
	case uint32:
		codec = IntKeys[uint32]{}
	case uint64:
		codec = IntKeys[uint64]{}
	case string:
		codec = StringKeys[string]{}
	default:
		return nil
	}
	return codec.(KeyCodec[K])
}
