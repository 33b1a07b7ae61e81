package flagcache

// Hooks lightweight callbacks for refresh-loop events.
// Implementations MUST be cheap and non-blocking: they run on the loop
// goroutine between fetches. Wrap slow sinks with hooks/async.
type Hooks interface {
	// The refresh loop goroutine was spawned (at most once per cache).
	LoopStarted(namespace string)
	// The refresh loop exited after Close.
	LoopStopped(namespace string)

	// FetchVersion failed; the cached snapshot was kept.
	VersionCheckFailed(namespace string, err error)
	// FetchSnapshot failed after the version moved to version; the cached snapshot was kept.
	SnapshotFetchFailed(namespace, version string, err error)

	// The version matched the cached one and the snapshot was kept. Usually
	// the full fetch was skipped; it also fires when a full fetch came back at
	// the cached version.
	SnapshotUnchanged(namespace, version string)
	// A new snapshot was published. oldVersion is "" on the first fetch.
	SnapshotSwapped(namespace, oldVersion, newVersion string, flags int)

	// One cycle finished, successful or not.
	CycleCompleted(namespace string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LoopStarted(string)                          {}
func (NopHooks) LoopStopped(string)                          {}
func (NopHooks) VersionCheckFailed(string, error)            {}
func (NopHooks) SnapshotFetchFailed(string, string, error)   {}
func (NopHooks) SnapshotUnchanged(string, string)            {}
func (NopHooks) SnapshotSwapped(string, string, string, int) {}
func (NopHooks) CycleCompleted(string)                       {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) LoopStarted(ns string) {
	for _, h := range m {
		h.LoopStarted(ns)
	}
}

func (m MultiHooks) LoopStopped(ns string) {
	for _, h := range m {
		h.LoopStopped(ns)
	}
}

func (m MultiHooks) VersionCheckFailed(ns string, err error) {
	for _, h := range m {
		h.VersionCheckFailed(ns, err)
	}
}

func (m MultiHooks) SnapshotFetchFailed(ns, version string, err error) {
	for _, h := range m {
		h.SnapshotFetchFailed(ns, version, err)
	}
}

func (m MultiHooks) SnapshotUnchanged(ns, version string) {
	for _, h := range m {
		h.SnapshotUnchanged(ns, version)
	}
}

func (m MultiHooks) SnapshotSwapped(ns, oldVersion, newVersion string, flags int) {
	for _, h := range m {
		h.SnapshotSwapped(ns, oldVersion, newVersion, flags)
	}
}

func (m MultiHooks) CycleCompleted(ns string) {
	for _, h := range m {
		h.CycleCompleted(ns)
	}
}
