package flagcache

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/unkn0wn-root/flagcache/source"
)

type (
	Snapshot = source.Snapshot // immutable (flags, version) pair
	Source   = source.Source
)

// FlagCache is the query surface. Safe for any number of concurrent callers.
type FlagCache interface {
	// IsEnabled starts the refresh loop on first use and reports whether flag
	// is in the currently cached snapshot. Never blocks on a fetch.
	IsEnabled(flag string) bool

	// Snapshot returns the currently cached snapshot without starting the loop.
	Snapshot() Snapshot

	// Close stops the refresh loop and waits for it to exit or ctx to expire.
	// IsEnabled keeps answering from the last snapshot afterwards.
	Close(ctx context.Context) error
}

// Options configure a FlagCache.
// Only Namespace and Source are required; others have sensible defaults.
type Options struct {
	// Required
	Namespace string // which flag set to track, e.g. "checkout"
	Source    Source

	RefreshInterval time.Duration // fixed polling period; 0 => 30s
	FetchTimeout    time.Duration // per-fetch deadline; 0 => whatever the source enforces
	Logger          Logger        // if nil, NopLogger is used
	Hooks           Hooks         // if nil, NopHooks is used
	Clock           clock.Clock   // if nil, the wall clock is used
}

// New validates opts and returns a FlagCache. The refresh loop is not
// started until the first IsEnabled call.
func New(opts Options) (FlagCache, error) {
	return newCache(opts)
}
