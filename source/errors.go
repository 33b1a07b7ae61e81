package source

import (
	"errors"
	"fmt"
)

// TransportError reports a failure to reach the flag backend at all
// (dial, TLS, connection reset, redis outage...).
type TransportError struct {
	Op        string // "version" or "snapshot"
	Namespace string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flag source %s %q: transport: %v", e.Op, e.Namespace, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response of the wrong shape: non-success status,
// missing version marker, empty body.
type ProtocolError struct {
	Op        string
	Namespace string
	Status    int // transport status code when there is one; 0 otherwise
	Reason    string
}

func (e *ProtocolError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("flag source %s %q: protocol: status %d: %s", e.Op, e.Namespace, e.Status, e.Reason)
	}
	return fmt.Sprintf("flag source %s %q: protocol: %s", e.Op, e.Namespace, e.Reason)
}

// DecodeError reports a payload that does not parse into a flag set.
type DecodeError struct {
	Namespace string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("flag source snapshot %q: decode: %v", e.Namespace, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const (
	KindTransport = "transport"
	KindProtocol  = "protocol"
	KindDecode    = "decode"
	KindUnknown   = "unknown"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var (
		te *TransportError
		pe *ProtocolError
		de *DecodeError
	)
	switch {
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &pe):
		return KindProtocol
	case errors.As(err, &de):
		return KindDecode
	default:
		return KindUnknown
	}
}
