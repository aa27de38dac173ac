package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/goccy/go-json"
)

// ValueCodec turns values into blobs and back
type ValueCodec[V any] interface {
	Encode(value V) ([]byte, error)
	Decode(blob []byte) (V, error)
}

// --------------------------------------------------------------------------
// Gob
// --------------------------------------------------------------------------

// GobCodec encodes values with Go's binary gob format.
// It handles any gob-encodable type and is the default codec.
type GobCodec[V any] struct{}

func (GobCodec[V]) Encode(value V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec[V]) Decode(blob []byte) (V, error) {
	var value V
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&value); err != nil {
		return value, fmt.Errorf("gob decode: %w", err)
	}
	return value, nil
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// JSONCodec encodes values as JSON, useful when blobs should stay human readable
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(value V) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return b, nil
}

func (JSONCodec[V]) Decode(blob []byte) (V, error) {
	var value V
	if err := json.Unmarshal(blob, &value); err != nil {
		return value, fmt.Errorf("json decode: %w", err)
	}
	return value, nil
}

// --------------------------------------------------------------------------
// Raw bytes
// --------------------------------------------------------------------------

// BytesCodec stores []byte values as they are
type BytesCodec struct{}

func (BytesCodec) Encode(value []byte) ([]byte, error) {
	return value, nil
}

func (BytesCodec) Decode(blob []byte) ([]byte, error) {
	return blob, nil
}
