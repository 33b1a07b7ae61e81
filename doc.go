// Package flagcache implements a client-side feature-flag cache for one namespace.
// A background loop polls a Source and keeps the latest flag set in memory;
// IsEnabled answers from that in-memory snapshot and never does I/O.
//
// Components:
//   - Source: where flags come from (HTTP, Redis, in-memory; see source/...).
//   - refresh loop: started lazily by the first IsEnabled call, exactly once.
//     Each cycle checks the cheap version marker and downloads the full flag
//     set only when the marker moved.
//   - Snapshot: immutable (flags, version) pair, published by atomic swap.
//
// Failures never stop the loop and never touch the cached snapshot. The
// interval is fixed; there is no backoff. Before the first successful fetch
// every flag reads as disabled.
//
// Usage:
//
//	src, _ := httpsource.New(httpsource.Config{BaseURL: "https://flags.internal"})
//	flags, _ := flagcache.New(flagcache.Options{
//	    Namespace:       "checkout",
//	    RefreshInterval: 30 * time.Second,
//	    Source:          src,
//	})
//	defer flags.Close(ctx)
//
//	if flags.IsEnabled("dark_mode") { ... }
package flagcache
