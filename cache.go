package flagcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/unkn0wn-root/flagcache/source"
)

// unfetched is published until the first successful full fetch. Compared by
// pointer, so a fetched snapshot with version "" still counts as fetched.
var unfetched = &Snapshot{}

type cache struct {
	ns           string
	src          Source
	log          Logger
	hooks        Hooks
	clock        clock.Clock
	interval     time.Duration
	fetchTimeout time.Duration

	snap    atomic.Pointer[Snapshot]
	started atomic.Bool

	ctx       context.Context // loop lifetime; canceled by Close
	cancel    context.CancelFunc
	done      chan struct{} // closed when the loop has exited (or never will run)
	closeOnce sync.Once
}

func newCache(opts Options) (*cache, error) {
	if opts.Source == nil {
		return nil, ErrSourceRequired
	}
	if err := source.ValidateNamespace(opts.Namespace); err != nil {
		return nil, fmt.Errorf("flagcache: namespace %q: %w", opts.Namespace, err)
	}
	if opts.RefreshInterval < 0 {
		return nil, ErrNegativeInterval
	}

	c := &cache{
		ns:           opts.Namespace,
		src:          opts.Source,
		fetchTimeout: opts.FetchTimeout,
		done:         make(chan struct{}),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.clock = coalesce[clock.Clock](opts.Clock, clock.New())
	c.interval = coalesce[time.Duration](opts.RefreshInterval, defaultRefreshInterval)

	c.snap.Store(unfetched)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

func (c *cache) IsEnabled(flag string) bool {
	c.startOnce()
	return c.snap.Load().Has(flag)
}

func (c *cache) Snapshot() Snapshot { return *c.snap.Load() }

// startOnce spawns the loop iff this caller wins the started flag.
// Losers return immediately.
func (c *cache) startOnce() {
	if c.started.Load() || !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(c.ctx)
}

func (c *cache) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		// never started: claim the gate so no loop is ever spawned
		if c.started.CompareAndSwap(false, true) {
			close(c.done)
		}
	})
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *cache) run(ctx context.Context) {
	defer close(c.done)

	c.hooks.LoopStarted(c.ns)
	c.log.Info("refresh loop started", Fields{"ns": c.ns, "interval": c.interval.String()})

	for {
		c.cycle(ctx)

		t := c.clock.Timer(c.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			c.hooks.LoopStopped(c.ns)
			c.log.Info("refresh loop stopped", Fields{"ns": c.ns})
			return
		case <-t.C:
		}
	}
}

// cycle runs one version check and, when the version moved, one full fetch.
// Failures are recorded and leave the cached snapshot untouched.
func (c *cache) cycle(ctx context.Context) {
	defer c.hooks.CycleCompleted(c.ns)

	cur := c.snap.Load()

	vctx, cancel := c.fetchContext(ctx)
	ver, err := c.src.FetchVersion(vctx, c.ns)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return // shutting down
		}
		c.hooks.VersionCheckFailed(c.ns, err)
		c.log.Warn("version check failed", Fields{"ns": c.ns, "kind": source.Kind(err), "err": err})
		return
	}

	if cur != unfetched && cur.Version() == ver {
		c.hooks.SnapshotUnchanged(c.ns, ver)
		c.log.Debug("flags unchanged; full fetch skipped", Fields{"ns": c.ns, "version": ver})
		return
	}

	sctx, cancel := c.fetchContext(ctx)
	next, err := c.src.FetchSnapshot(sctx, c.ns)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.hooks.SnapshotFetchFailed(c.ns, ver, err)
		c.log.Warn("snapshot fetch failed", Fields{"ns": c.ns, "version": ver, "kind": source.Kind(err), "err": err})
		return
	}

	// HEAD and GET may land on replicas at different generations
	if cur != unfetched && next.Version() == cur.Version() {
		c.hooks.SnapshotUnchanged(c.ns, next.Version())
		c.log.Debug("full fetch returned the cached version; kept", Fields{"ns": c.ns, "version": next.Version(), "checked": ver})
		return
	}

	c.snap.Store(&next)
	c.hooks.SnapshotSwapped(c.ns, cur.Version(), next.Version(), next.Len())
	c.log.Info("flags updated", Fields{"ns": c.ns, "old": cur.Version(), "new": next.Version(), "flags": next.Len()})
}

func (c *cache) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.fetchTimeout > 0 {
		return context.WithTimeout(ctx, c.fetchTimeout)
	}
	return context.WithCancel(ctx)
}
