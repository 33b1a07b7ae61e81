package flagcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/unkn0wn-root/flagcache/source"
)

// scriptedSource hands out one queued answer per call. Calls block until the
// test feeds an answer, so the test decides exactly what each cycle sees.
type scriptedSource struct {
	versions  chan versionAnswer
	snapshots chan snapshotAnswer

	versionCalls  atomic.Int32
	snapshotCalls atomic.Int32
}

type versionAnswer struct {
	version string
	err     error
}

type snapshotAnswer struct {
	snap source.Snapshot
	err  error
}

var _ source.Source = (*scriptedSource)(nil)

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		versions:  make(chan versionAnswer),
		snapshots: make(chan snapshotAnswer),
	}
}

func (s *scriptedSource) FetchVersion(ctx context.Context, _ string) (string, error) {
	s.versionCalls.Add(1)
	select {
	case a := <-s.versions:
		return a.version, a.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *scriptedSource) FetchSnapshot(ctx context.Context, _ string) (source.Snapshot, error) {
	s.snapshotCalls.Add(1)
	select {
	case a := <-s.snapshots:
		return a.snap, a.err
	case <-ctx.Done():
		return source.Snapshot{}, ctx.Err()
	}
}

// countingHooks records loop events for assertions.
type countingHooks struct {
	NopHooks
	started        atomic.Int32
	stopped        atomic.Int32
	cycles         atomic.Int32
	versionFails   atomic.Int32
	snapshotFails  atomic.Int32
	unchanged      atomic.Int32
	swaps          atomic.Int32
	lastFailedKind atomic.Value // string
}

func (h *countingHooks) LoopStarted(string)    { h.started.Add(1) }
func (h *countingHooks) LoopStopped(string)    { h.stopped.Add(1) }
func (h *countingHooks) CycleCompleted(string) { h.cycles.Add(1) }
func (h *countingHooks) VersionCheckFailed(_ string, err error) {
	h.lastFailedKind.Store(source.Kind(err))
	h.versionFails.Add(1)
}
func (h *countingHooks) SnapshotFetchFailed(_, _ string, err error) {
	h.lastFailedKind.Store(source.Kind(err))
	h.snapshotFails.Add(1)
}
func (h *countingHooks) SnapshotUnchanged(string, string) { h.unchanged.Add(1) }
func (h *countingHooks) SnapshotSwapped(string, string, string, int) {
	h.swaps.Add(1)
}

const testInterval = time.Second

type harness struct {
	cache *cache
	src   *scriptedSource
	hooks *countingHooks
	clock *clock.Mock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		src:   newScriptedSource(),
		hooks: &countingHooks{},
		clock: clock.NewMock(),
	}
	fc, err := New(Options{
		Namespace:       "checkout",
		RefreshInterval: testInterval,
		Source:          h.src,
		Hooks:           h.hooks,
		Clock:           h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.cache = fc.(*cache)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := fc.Close(ctx); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) waitCycles(t *testing.T, n int32) {
	t.Helper()
	waitFor(t, "cycle completion", func() bool { return h.hooks.cycles.Load() >= n })
}

// advanceToVersionCall moves the mock clock one interval at a time until the
// loop has issued its n-th version check. The check blocks on the script, so
// the loop cannot run ahead of the test.
func (h *harness) advanceToVersionCall(t *testing.T, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.src.versionCalls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for version check #%d", n)
		}
		h.clock.Add(testInterval)
	}
}

// First fetch, unchanged check and failed check run back to back on one cache.
func TestRefreshCycleSequence(t *testing.T) {
	h := newHarness(t)
	c := h.cache

	// default-deny before anything was fetched; first call starts the loop
	if c.IsEnabled("dark_mode") {
		t.Fatalf("IsEnabled before first fetch must be false")
	}

	// first cycle fetches v1
	h.src.versions <- versionAnswer{version: "v1"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "dark_mode", "beta")}
	h.waitCycles(t, 1)

	if !c.IsEnabled("dark_mode") || !c.IsEnabled("beta") {
		t.Fatalf("flags from v1 not visible: %v", c.Snapshot().Flags())
	}
	if c.IsEnabled("other") {
		t.Fatalf("unknown flag must be false")
	}
	if got := c.Snapshot().Version(); got != "v1" {
		t.Fatalf("version=%q want v1", got)
	}

	// unchanged marker skips the full fetch
	h.advanceToVersionCall(t, 2)
	h.src.versions <- versionAnswer{version: "v1"}
	h.waitCycles(t, 2)

	if n := h.src.snapshotCalls.Load(); n != 1 {
		t.Fatalf("FetchSnapshot calls=%d want 1 after unchanged cycle", n)
	}
	if h.hooks.unchanged.Load() != 1 {
		t.Fatalf("SnapshotUnchanged not reported")
	}

	// transport failure keeps the cached flags
	h.advanceToVersionCall(t, 3)
	h.src.versions <- versionAnswer{err: &source.TransportError{Op: "version", Namespace: "checkout", Err: errors.New("connection refused")}}
	h.waitCycles(t, 3)

	if !c.IsEnabled("dark_mode") || !c.IsEnabled("beta") || c.Snapshot().Version() != "v1" {
		t.Fatalf("cached snapshot changed after failure: %v @%s", c.Snapshot().Flags(), c.Snapshot().Version())
	}
	if h.hooks.versionFails.Load() != 1 || h.hooks.lastFailedKind.Load() != source.KindTransport {
		t.Fatalf("transport failure not reported: fails=%d kind=%v", h.hooks.versionFails.Load(), h.hooks.lastFailedKind.Load())
	}

	// the next cycle waits for the interval, not sooner
	time.Sleep(20 * time.Millisecond)
	if n := h.src.versionCalls.Load(); n != 3 {
		t.Fatalf("cycle ran before the interval elapsed: version calls=%d", n)
	}

	// cycle 4 still runs after one more interval and picks up v2
	h.advanceToVersionCall(t, 4)
	h.src.versions <- versionAnswer{version: "v2"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v2", "beta")}
	h.waitCycles(t, 4)

	if c.IsEnabled("dark_mode") || !c.IsEnabled("beta") {
		t.Fatalf("v2 not applied: %v", c.Snapshot().Flags())
	}
	if h.hooks.started.Load() != 1 || h.hooks.swaps.Load() != 2 {
		t.Fatalf("started=%d swaps=%d", h.hooks.started.Load(), h.hooks.swaps.Load())
	}
}

// Concurrent first calls start exactly one loop.
func TestConcurrentFirstCallsStartOneLoop(t *testing.T) {
	h := newHarness(t)

	const callers = 10
	var (
		wg    sync.WaitGroup
		ready = make(chan struct{})
		seen  atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			if h.cache.IsEnabled("dark_mode") {
				seen.Add(1)
			}
		}()
	}
	close(ready)
	wg.Wait()

	if seen.Load() != 0 {
		t.Fatalf("%d callers saw a flag before the first cycle completed", seen.Load())
	}
	waitFor(t, "loop start", func() bool { return h.hooks.started.Load() == 1 })
	waitFor(t, "first version check", func() bool { return h.src.versionCalls.Load() == 1 })

	// first cycle is in flight and blocked; still nothing enabled
	if h.cache.IsEnabled("dark_mode") {
		t.Fatalf("flag visible while first fetch in flight")
	}

	h.src.versions <- versionAnswer{version: "v1"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "dark_mode")}
	h.waitCycles(t, 1)

	if !h.cache.IsEnabled("dark_mode") {
		t.Fatalf("flag not visible after first cycle")
	}
	time.Sleep(10 * time.Millisecond)
	if n := h.hooks.started.Load(); n != 1 {
		t.Fatalf("loop started %d times", n)
	}
	if n := h.src.versionCalls.Load(); n != 1 {
		t.Fatalf("more than one loop polling: version calls=%d", n)
	}
}

func TestSnapshotFetchFailureKeepsPrevious(t *testing.T) {
	h := newHarness(t)
	c := h.cache
	c.IsEnabled("x")

	h.src.versions <- versionAnswer{version: "v1"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "a")}
	h.waitCycles(t, 1)

	h.advanceToVersionCall(t, 2)
	h.src.versions <- versionAnswer{version: "v2"}
	h.src.snapshots <- snapshotAnswer{err: &source.DecodeError{Namespace: "checkout", Err: errors.New("bad json")}}
	h.waitCycles(t, 2)

	if !c.IsEnabled("a") || c.Snapshot().Version() != "v1" {
		t.Fatalf("decode failure replaced snapshot: %v @%s", c.Snapshot().Flags(), c.Snapshot().Version())
	}
	if h.hooks.snapshotFails.Load() != 1 || h.hooks.lastFailedKind.Load() != source.KindDecode {
		t.Fatalf("decode failure not reported")
	}

	// version still v2 remotely and cache still at v1 => retry the full fetch
	h.advanceToVersionCall(t, 3)
	h.src.versions <- versionAnswer{version: "v2"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v2", "b")}
	h.waitCycles(t, 3)

	if c.IsEnabled("a") || !c.IsEnabled("b") {
		t.Fatalf("retry after failed fetch not applied: %v", c.Snapshot().Flags())
	}
}

func TestFetchAtCachedVersionIsNotSwapped(t *testing.T) {
	h := newHarness(t)
	c := h.cache
	c.IsEnabled("a")

	h.src.versions <- versionAnswer{version: "v1"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "a")}
	h.waitCycles(t, 1)

	// the check saw v2 but the full fetch still reports v1
	h.advanceToVersionCall(t, 2)
	h.src.versions <- versionAnswer{version: "v2"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "b")}
	h.waitCycles(t, 2)

	if !c.IsEnabled("a") || c.IsEnabled("b") || c.Snapshot().Version() != "v1" {
		t.Fatalf("snapshot replaced at the same version: %v @%s", c.Snapshot().Flags(), c.Snapshot().Version())
	}
	if h.hooks.swaps.Load() != 1 || h.hooks.unchanged.Load() != 1 {
		t.Fatalf("swaps=%d unchanged=%d", h.hooks.swaps.Load(), h.hooks.unchanged.Load())
	}

	// the next cycle retries the full fetch and picks up v2
	h.advanceToVersionCall(t, 3)
	h.src.versions <- versionAnswer{version: "v2"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v2", "b")}
	h.waitCycles(t, 3)
	if !c.IsEnabled("b") || c.Snapshot().Version() != "v2" {
		t.Fatalf("v2 not applied: %v @%s", c.Snapshot().Flags(), c.Snapshot().Version())
	}
}

func TestFirstFetchWithEmptyVersionIsPublished(t *testing.T) {
	h := newHarness(t)
	h.cache.IsEnabled("x")

	h.src.versions <- versionAnswer{version: ""}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("", "x")}
	h.waitCycles(t, 1)

	if !h.cache.IsEnabled("x") {
		t.Fatalf("first snapshot with empty version must still be published")
	}
	if n := h.src.snapshotCalls.Load(); n != 1 {
		t.Fatalf("snapshot calls=%d", n)
	}
}

func TestFirstVersionFailureThenSuccess(t *testing.T) {
	h := newHarness(t)
	h.cache.IsEnabled("x")

	h.src.versions <- versionAnswer{err: &source.ProtocolError{Op: "version", Namespace: "checkout", Status: 503, Reason: "unavailable"}}
	h.waitCycles(t, 1)
	if h.cache.IsEnabled("x") || h.src.snapshotCalls.Load() != 0 {
		t.Fatalf("failed version check must not fetch or publish")
	}

	h.advanceToVersionCall(t, 2)
	h.src.versions <- versionAnswer{version: "v1"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "x")}
	h.waitCycles(t, 2)
	if !h.cache.IsEnabled("x") {
		t.Fatalf("flag not visible after recovery")
	}
}

// Readers only ever see whole snapshots.
func TestReadersNeverSeeTornSnapshot(t *testing.T) {
	h := newHarness(t)
	c := h.cache
	c.IsEnabled("x")

	stop := make(chan struct{})
	var torn atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := c.Snapshot()
				switch s.Version() {
				case "":
				case "even":
					if !s.Has("even") || s.Has("odd") {
						torn.Add(1)
					}
				case "odd":
					if !s.Has("odd") || s.Has("even") {
						torn.Add(1)
					}
				}
			}
		}()
	}

	for i := int32(1); i <= 20; i++ {
		if i > 1 {
			h.advanceToVersionCall(t, i)
		}
		v := "even"
		if i%2 == 1 {
			v = "odd"
		}
		h.src.versions <- versionAnswer{version: v}
		h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot(v, v)}
		h.waitCycles(t, i)
	}
	close(stop)
	wg.Wait()

	if torn.Load() != 0 {
		t.Fatalf("observed %d torn snapshots", torn.Load())
	}
}

func TestCloseStopsLoopAndKeepsAnswering(t *testing.T) {
	h := newHarness(t)
	c := h.cache
	c.IsEnabled("a")

	h.src.versions <- versionAnswer{version: "v1"}
	h.src.snapshots <- snapshotAnswer{snap: source.NewSnapshot("v1", "a")}
	h.waitCycles(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.hooks.stopped.Load() != 1 {
		t.Fatalf("LoopStopped not reported")
	}

	h.clock.Add(10 * testInterval)
	time.Sleep(10 * time.Millisecond)
	if n := h.src.versionCalls.Load(); n != 1 {
		t.Fatalf("loop kept polling after Close: %d calls", n)
	}
	if !c.IsEnabled("a") {
		t.Fatalf("IsEnabled after Close must answer from last snapshot")
	}
	if h.hooks.started.Load() != 1 {
		t.Fatalf("IsEnabled after Close restarted the loop")
	}
}

func TestCloseWhileFetchInFlight(t *testing.T) {
	h := newHarness(t)
	h.cache.IsEnabled("a")
	waitFor(t, "version check", func() bool { return h.src.versionCalls.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.cache.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.hooks.versionFails.Load() != 0 {
		t.Fatalf("cancellation during shutdown reported as a failure")
	}
}

func TestCloseBeforeStartPreventsLoop(t *testing.T) {
	h := newHarness(t)

	if err := h.cache.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.cache.IsEnabled("a") {
		t.Fatalf("unexpected flag")
	}
	time.Sleep(10 * time.Millisecond)
	if h.hooks.started.Load() != 0 || h.src.versionCalls.Load() != 0 {
		t.Fatalf("loop started after Close")
	}
}

func TestSnapshotDoesNotStartLoop(t *testing.T) {
	h := newHarness(t)
	if s := h.cache.Snapshot(); s.Len() != 0 || s.Version() != "" {
		t.Fatalf("initial snapshot not empty: %v", s.Flags())
	}
	time.Sleep(10 * time.Millisecond)
	if h.hooks.started.Load() != 0 {
		t.Fatalf("Snapshot() must not start the loop")
	}
}

func TestFetchTimeoutBoundsEachFetch(t *testing.T) {
	src := newScriptedSource()
	hooks := &countingHooks{}
	fc, err := New(Options{
		Namespace:       "checkout",
		RefreshInterval: time.Hour,
		FetchTimeout:    20 * time.Millisecond,
		Source:          src,
		Hooks:           hooks,
		Clock:           clock.NewMock(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer fc.Close(context.Background())

	fc.IsEnabled("x") // nobody answers the script; the fetch must time out
	waitFor(t, "timed out version check", func() bool { return hooks.versionFails.Load() == 1 })
	if hooks.lastFailedKind.Load() != source.KindUnknown {
		t.Fatalf("deadline exceeded should surface as an unclassified error, got %v", hooks.lastFailedKind.Load())
	}
}

func TestNewValidatesOptions(t *testing.T) {
	src := newScriptedSource()
	cases := []struct {
		name string
		opts Options
		want error
	}{
		{"no source", Options{Namespace: "ns"}, ErrSourceRequired},
		{"empty namespace", Options{Source: src}, ErrInvalidNamespace},
		{"bad namespace", Options{Namespace: "a/b", Source: src}, ErrInvalidNamespace},
		{"negative interval", Options{Namespace: "ns", Source: src, RefreshInterval: -time.Second}, ErrNegativeInterval},
	}
	for _, tc := range cases {
		if _, err := New(tc.opts); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}

	fc, err := New(Options{Namespace: "ns", Source: src})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := fc.(*cache).interval; got != defaultRefreshInterval {
		t.Fatalf("default interval=%v", got)
	}
	_ = fc.Close(context.Background())
}
