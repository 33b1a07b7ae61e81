// Package codec turns flag payloads into Go values and back.
//
// Sources decode with a Codec; the Encode side exists so publishers and tests
// can produce the exact bytes a source expects. Wrap any codec with
// LimitCodec when the bytes come from the network.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
