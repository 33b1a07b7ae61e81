// Package memo deduplicates full flag fetches through a byte store.
//
// Several caches tracking the same namespace (in one process with an
// in-process store, or across replicas with the redis store) download each
// version's flag set once: the first fetch stores a framed snapshot under
// (namespace, version); the rest read it back.
//
// Entries are immutable per version, so a hit is never stale. Corrupt or
// mismatching entries are deleted on read and refetched.
package memo

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/flagcache/internal/util"
	"github.com/unkn0wn-root/flagcache/internal/wire"
	"github.com/unkn0wn-root/flagcache/source"
	"github.com/unkn0wn-root/flagcache/store"
)

const (
	defaultTTL = 10 * time.Minute
	keyPrefix  = "snap"
)

type Options struct {
	TTL time.Duration // lifetime of a stored snapshot; 0 => 10m

	// OnSelfHeal is called when a stored entry was dropped on read.
	// reason ∈ {"corrupt", "version_mismatch"}
	OnSelfHeal func(key, reason string)
}

// Source wraps another source.Source. FetchVersion always goes to the inner
// source; FetchSnapshot consults the store first, keyed by the last version
// this Source saw for the namespace.
type Source struct {
	inner source.Source
	st    store.Store
	ttl   time.Duration
	heal  func(key, reason string)

	mu   sync.RWMutex
	seen map[string]string // namespace -> last version from FetchVersion
}

var _ source.Source = (*Source)(nil)

func New(inner source.Source, st store.Store, opts Options) *Source {
	s := &Source{
		inner: inner,
		st:    st,
		ttl:   opts.TTL,
		heal:  opts.OnSelfHeal,
		seen:  make(map[string]string),
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.heal == nil {
		s.heal = func(string, string) {}
	}
	return s
}

func (s *Source) FetchVersion(ctx context.Context, ns string) (string, error) {
	v, err := s.inner.FetchVersion(ctx, ns)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.seen[ns] = v
	s.mu.Unlock()
	return v, nil
}

func (s *Source) FetchSnapshot(ctx context.Context, ns string) (source.Snapshot, error) {
	s.mu.RLock()
	v, known := s.seen[ns]
	s.mu.RUnlock()

	if known {
		if snap, ok := s.lookup(ctx, ns, v); ok {
			return snap, nil
		}
	}

	snap, err := s.inner.FetchSnapshot(ctx, ns)
	if err != nil {
		return source.Snapshot{}, err
	}
	s.remember(ctx, ns, snap)
	return snap, nil
}

// Close closes the store.
func (s *Source) Close(ctx context.Context) error {
	return s.st.Close(ctx)
}

func (s *Source) lookup(ctx context.Context, ns, version string) (source.Snapshot, bool) {
	k := util.SnapshotKey(keyPrefix, ns, version)
	raw, ok, err := s.st.Get(ctx, k)
	if err != nil || !ok {
		return source.Snapshot{}, false
	}
	ver, flags, err := wire.DecodeSnapshot(raw)
	if err != nil {
		_ = s.st.Del(ctx, k) // self-heal corrupt
		s.heal(k, "corrupt")
		return source.Snapshot{}, false
	}
	// hash collision or foreign write
	if ver != version {
		_ = s.st.Del(ctx, k)
		s.heal(k, "version_mismatch")
		return source.Snapshot{}, false
	}
	return source.NewSnapshot(ver, flags...), true
}

// remember stores snap best-effort; store failures never fail the fetch.
func (s *Source) remember(ctx context.Context, ns string, snap source.Snapshot) {
	raw, err := wire.EncodeSnapshot(snap.Version(), snap.Flags())
	if err != nil {
		return
	}
	k := util.SnapshotKey(keyPrefix, ns, snap.Version())
	_, _ = s.st.Set(ctx, k, raw, int64(len(raw)), s.ttl)
}
