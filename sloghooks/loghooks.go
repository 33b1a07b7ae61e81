// Package sloghooks logs refresh-loop events to a *slog.Logger.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/flagcache"
	"github.com/unkn0wn-root/flagcache/source"
)

type Options struct {
	// Sampling to avoid floods on short intervals; 0/1 = log all.
	UnchangedEvery uint64
	CycleEvery     uint64
	// Shared by both failure events. A source that is down fails every cycle.
	FailureEvery uint64
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	unchangedCtr atomic.Uint64
	cycleCtr     atomic.Uint64
	failureCtr   atomic.Uint64
}

var _ flagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LoopStarted(ns string) {
	if h.l == nil {
		return
	}
	h.l.Info("flagcache.loop_started", "ns", ns)
}

func (h *Hooks) LoopStopped(ns string) {
	if h.l == nil {
		return
	}
	h.l.Info("flagcache.loop_stopped", "ns", ns)
}

func (h *Hooks) VersionCheckFailed(ns string, err error) {
	if h.l == nil || !sample(h.opts.FailureEvery, &h.failureCtr) {
		return
	}
	h.l.Warn("flagcache.version_check_failed",
		"ns", ns,
		"kind", source.Kind(err),
		"err", err)
}

func (h *Hooks) SnapshotFetchFailed(ns, version string, err error) {
	if h.l == nil || !sample(h.opts.FailureEvery, &h.failureCtr) {
		return
	}
	h.l.Warn("flagcache.snapshot_fetch_failed",
		"ns", ns,
		"version", version,
		"kind", source.Kind(err),
		"err", err)
}

func (h *Hooks) SnapshotUnchanged(ns, version string) {
	if h.l == nil || !sample(h.opts.UnchangedEvery, &h.unchangedCtr) {
		return
	}
	h.l.Debug("flagcache.snapshot_unchanged",
		"ns", ns,
		"version", version)
}

func (h *Hooks) SnapshotSwapped(ns, oldVersion, newVersion string, flags int) {
	if h.l == nil {
		return
	}
	h.l.Info("flagcache.snapshot_swapped",
		"ns", ns,
		"old_version", oldVersion,
		"new_version", newVersion,
		"flags", flags)
}

func (h *Hooks) CycleCompleted(ns string) {
	if h.l == nil || !sample(h.opts.CycleEvery, &h.cycleCtr) {
		return
	}
	h.l.Debug("flagcache.cycle_completed", "ns", ns)
}
