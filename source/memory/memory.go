// Package memory is an in-process flag source and publisher.
// Useful for tests, local development and single-binary deployments where
// the flags are toggled from inside the process.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/unkn0wn-root/flagcache/source"
)

type namespaceEntry struct {
	flags map[string]struct{}
	gen   uint64
}

// Source keeps flag sets in-process. The version of a namespace is its
// generation in hex; it is bumped only when the set actually changes.
// Unknown namespaces read as the empty set at version "0".
type Source struct {
	mu  sync.RWMutex
	nss map[string]*namespaceEntry
}

var _ source.Source = (*Source)(nil)

func New() *Source {
	return &Source{nss: make(map[string]*namespaceEntry)}
}

func (s *Source) FetchVersion(_ context.Context, ns string) (string, error) {
	var gen uint64
	s.mu.RLock()
	if e := s.nss[ns]; e != nil {
		gen = e.gen // publishers bump under the write lock
	}
	s.mu.RUnlock()
	return version(gen), nil
}

// FetchSnapshot reads flags and version under one lock, so they always agree.
func (s *Source) FetchSnapshot(_ context.Context, ns string) (source.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.nss[ns]
	if e == nil {
		return source.NewSnapshot(version(0)), nil
	}
	flags := make([]string, 0, len(e.flags))
	for f := range e.flags {
		flags = append(flags, f)
	}
	return source.NewSnapshot(version(e.gen), flags...), nil
}

// Enable adds flag to ns. Reports whether the set changed.
func (s *Source) Enable(ns, flag string) (bool, error) {
	if err := validate(ns, flag); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(ns)
	if _, ok := e.flags[flag]; ok {
		return false, nil
	}
	e.flags[flag] = struct{}{}
	e.bump()
	return true, nil
}

// Disable removes flag from ns. Reports whether the set changed.
func (s *Source) Disable(ns, flag string) (bool, error) {
	if err := validate(ns, flag); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nss[ns]
	if e == nil {
		return false, nil
	}
	if _, ok := e.flags[flag]; !ok {
		return false, nil
	}
	delete(e.flags, flag)
	e.bump()
	return true, nil
}

// Replace sets the whole flag set of ns at once. The version is bumped only
// when the new set differs from the current one.
func (s *Source) Replace(ns string, flags ...string) (bool, error) {
	if err := source.ValidateNamespace(ns); err != nil {
		return false, err
	}
	next := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		if err := source.ValidateFlag(f); err != nil {
			return false, err
		}
		next[f] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(ns)
	if sameSet(e.flags, next) {
		return false, nil
	}
	e.flags = next
	e.bump()
	return true, nil
}

// caller holds s.mu
func (s *Source) entry(ns string) *namespaceEntry {
	e := s.nss[ns]
	if e == nil {
		e = &namespaceEntry{flags: make(map[string]struct{})}
		s.nss[ns] = e
	}
	return e
}

func (e *namespaceEntry) bump() {
	e.gen++
}

func version(gen uint64) string { return strconv.FormatUint(gen, 16) }

func validate(ns, flag string) error {
	if err := source.ValidateNamespace(ns); err != nil {
		return err
	}
	return source.ValidateFlag(flag)
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
