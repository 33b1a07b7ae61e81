package flagcache

import (
	"errors"

	"github.com/unkn0wn-root/flagcache/source"
)

var (
	ErrSourceRequired   = errors.New("flagcache: source is required")
	ErrInvalidNamespace = source.ErrInvalidNamespace
	ErrNegativeInterval = errors.New("flagcache: refresh interval must not be negative")
)

// The loop treats all three as recoverable: it logs, keeps the cached
// snapshot and tries again next cycle.
type (
	TransportError = source.TransportError
	ProtocolError  = source.ProtocolError
	DecodeError    = source.DecodeError
)
