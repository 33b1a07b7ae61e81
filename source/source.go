// Package source defines where flag sets come from.
//
// A Source answers two questions about a namespace: what is the current
// version marker (cheap), and what is the full flag set (expensive). The
// cache calls FetchVersion every cycle and FetchSnapshot only when the marker
// moved, so implementations must keep FetchVersion strictly cheaper.
//
// Errors must be reported as *TransportError, *ProtocolError or *DecodeError
// so callers can tell them apart. All three are recoverable for the cache.
package source

import (
	"context"
	"sort"
)

// Source fetches version markers and flag snapshots for a namespace.
// Must be safe for concurrent use. Implementations keep no state between
// calls that would change their answers.
type Source interface {
	// FetchVersion returns the opaque version marker of the namespace's flag set.
	// The marker changes if and only if the flag set may have changed.
	FetchVersion(ctx context.Context, namespace string) (string, error)

	// FetchSnapshot returns the full flag set together with the version marker
	// the transport reported for it. A missing marker is a *ProtocolError.
	FetchSnapshot(ctx context.Context, namespace string) (Snapshot, error)
}

// Snapshot is one generation of a namespace's flag set.
// It is immutable; the zero value is the empty set with version "".
type Snapshot struct {
	flags   map[string]struct{}
	version string
}

// NewSnapshot builds a Snapshot. Duplicate names collapse.
func NewSnapshot(version string, flags ...string) Snapshot {
	set := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		set[f] = struct{}{}
	}
	return Snapshot{flags: set, version: version}
}

// Has reports whether flag is a member of the set.
func (s Snapshot) Has(flag string) bool {
	_, ok := s.flags[flag]
	return ok
}

func (s Snapshot) Version() string { return s.version }
func (s Snapshot) Len() int        { return len(s.flags) }

// Flags returns the members sorted ascending. The slice is a copy.
func (s Snapshot) Flags() []string {
	out := make([]string, 0, len(s.flags))
	for f := range s.flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
