package codec

import (
	"bytes"
	"encoding/json"
	"io"
)

// JSON is a Codec backed by encoding/json. The zero value is ready to use.
// Decode rejects trailing data after the first JSON value.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	// More() misses a stray ']' or '}'; anything but EOF is trailing data
	if _, err := dec.Token(); err != io.EOF {
		return v, errTrailing
	}
	return v, nil
}
