package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var errNilMessage = errors.New("codec: nil protobuf message")

// Protobuf is a Codec for a concrete generated message type T, e.g. the
// google.protobuf.ListValue a flag server sends in protobuf mode.
//
// Decode discards unknown fields so a server that grows its message does
// not break older clients.
type Protobuf[T proto.Message] struct {
	new func() T
}

// NewProtobuf takes a constructor for an empty T,
// e.g. func() *structpb.ListValue { return &structpb.ListValue{} }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

var unmarshal = proto.UnmarshalOptions{DiscardUnknown: true}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	if !v.ProtoReflect().IsValid() {
		return nil, errNilMessage
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := unmarshal.Unmarshal(b, m)
	return m, err
}
