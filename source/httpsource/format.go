package httpsource

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/flagcache/codec"
)

// Format selects the body encoding of the full fetch.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMsgpack  Format = "msgpack"
	FormatCBOR     Format = "cbor"
	FormatProtobuf Format = "protobuf" // google.protobuf.ListValue of strings
)

// Payload is the body of a full fetch for the map-shaped formats.
type Payload struct {
	Flags []string `json:"flags"`
}

type decoder interface {
	decode([]byte) ([]string, error)
}

type payloadDecoder struct{ c codec.Codec[Payload] }

func (d payloadDecoder) decode(b []byte) ([]string, error) {
	p, err := d.c.Decode(b)
	if err != nil {
		return nil, err
	}
	if p.Flags == nil {
		return nil, fmt.Errorf("payload has no flags field")
	}
	return p.Flags, nil
}

type listDecoder struct {
	c codec.Codec[*structpb.ListValue]
}

func (d listDecoder) decode(b []byte) ([]string, error) {
	lv, err := d.c.Decode(b)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("list element %d is not a string", i)
		}
		out = append(out, sv.StringValue)
	}
	return out, nil
}

func newDecoder(f Format, maxBody int) (decoder, string, error) {
	switch f {
	case "", FormatJSON:
		return payloadDecoder{codec.LimitCodec[Payload]{Inner: codec.JSON[Payload]{}, MaxDecode: maxBody}}, "application/json", nil
	case FormatMsgpack:
		return payloadDecoder{codec.LimitCodec[Payload]{Inner: codec.Msgpack[Payload]{}, MaxDecode: maxBody}}, "application/msgpack", nil
	case FormatCBOR:
		c, err := codec.NewCBOR[Payload](0)
		if err != nil {
			return nil, "", err
		}
		return payloadDecoder{codec.LimitCodec[Payload]{Inner: c, MaxDecode: maxBody}}, "application/cbor", nil
	case FormatProtobuf:
		pb := codec.NewProtobuf(func() *structpb.ListValue { return &structpb.ListValue{} })
		return listDecoder{codec.LimitCodec[*structpb.ListValue]{Inner: pb, MaxDecode: maxBody}}, "application/x-protobuf", nil
	default:
		return nil, "", fmt.Errorf("httpsource: unknown format %q", f)
	}
}
