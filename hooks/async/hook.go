// Package asynchook moves hook delivery off the refresh loop.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{UnchangedEvery: 20})
//	hooks := asynchook.New(raw, 1, 256) // 1 worker; queue 256 events
//	defer hooks.Close()
//
//	fc, _ := flagcache.New(flagcache.Options{
//	    Namespace: "checkout",
//	    Source:    src,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full; the loop never waits on a sink.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/flagcache"
)

type Hooks struct {
	inner   flagcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ flagcache.Hooks = (*Hooks)(nil)

func New(inner flagcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	// a send on a closed channel panics
	defer func() {
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) LoopStarted(ns string) { h.try(func() { h.inner.LoopStarted(ns) }) }
func (h *Hooks) LoopStopped(ns string) { h.try(func() { h.inner.LoopStopped(ns) }) }
func (h *Hooks) CycleCompleted(ns string) {
	h.try(func() { h.inner.CycleCompleted(ns) })
}
func (h *Hooks) VersionCheckFailed(ns string, err error) {
	h.try(func() { h.inner.VersionCheckFailed(ns, err) })
}
func (h *Hooks) SnapshotFetchFailed(ns, version string, err error) {
	h.try(func() { h.inner.SnapshotFetchFailed(ns, version, err) })
}
func (h *Hooks) SnapshotUnchanged(ns, version string) {
	h.try(func() { h.inner.SnapshotUnchanged(ns, version) })
}
func (h *Hooks) SnapshotSwapped(ns, oldVersion, newVersion string, flags int) {
	h.try(func() { h.inner.SnapshotSwapped(ns, oldVersion, newVersion, flags) })
}
