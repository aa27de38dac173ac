package storage

import (
	"errors"
	"fmt"
)

// Store is the typed view of a Backend: it encodes keys with a KeyCodec and
// values with a ValueCodec.
//
// Thread-safety: Store adds no state, it is as safe as the backend below it.
type Store[K comparable, V any] struct {
	backend Backend
	keys    KeyCodec[K]
	values  ValueCodec[V]
}

// NewStore creates a typed store. A nil key codec falls back to
// DefaultKeyCodec, a nil value codec to GobCodec.
func NewStore[K comparable, V any](backend Backend, keys KeyCodec[K], values ValueCodec[V]) (*Store[K, V], error) {
	if backend == nil {
		return nil, errors.New("storage: nil backend")
	}
	if keys == nil {
		keys = DefaultKeyCodec[K]()
		if keys == nil {
			var zero K
			return nil, fmt.Errorf("storage: no default key codec for %T", zero)
		}
	}
	if values == nil {
		values = GobCodec[V]{}
	}
	return &Store[K, V]{backend: backend, keys: keys, values: values}, nil
}

// Backend returns the underlying backend
func (s *Store[K, V]) Backend() Backend {
	return s.backend
}

// Name returns the canonical blob name of key
func (s *Store[K, V]) Name(key K) string {
	return s.keys.Format(key)
}

// Save encodes and stores value, returning the blob size
func (s *Store[K, V]) Save(key K, value V) (int, error) {
	name := s.keys.Format(key)
	blob, err := s.values.Encode(value)
	if err != nil {
		return 0, NewError("encode", name, err)
	}
	if err := s.backend.Save(name, blob); err != nil {
		return 0, NewError("save", name, err)
	}
	return len(blob), nil
}

// Load reads and decodes the value of key
func (s *Store[K, V]) Load(key K) (V, error) {
	name := s.keys.Format(key)
	var zero V

	blob, err := s.backend.Load(name)
	if err != nil {
		return zero, NewError("load", name, err)
	}
	value, err := s.values.Decode(blob)
	if err != nil {
		return zero, NewError("decode", name, err)
	}
	return value, nil
}

// Remove deletes the blob of key, a missing blob is not an error
func (s *Store[K, V]) Remove(key K) error {
	name := s.keys.Format(key)
	return NewError("remove", name, s.backend.Remove(name))
}

// Exists reports whether a blob exists for key
func (s *Store[K, V]) Exists(key K) bool {
	return s.backend.Exists(s.keys.Format(key))
}

// Keys lists the keys of all stored blobs. Names that do not parse are
// returned separately.
func (s *Store[K, V]) Keys() (keys []K, invalid []string, err error) {
	names, err := s.backend.Keys()
	if err != nil {
		return nil, nil, NewError("keys", "", err)
	}
	keys = make([]K, 0, len(names))
	for _, name := range names {
		key, perr := s.keys.Parse(name)
		if perr != nil {
			invalid = append(invalid, name)
			continue
		}
		keys = append(keys, key)
	}
	return keys, invalid, nil
}
