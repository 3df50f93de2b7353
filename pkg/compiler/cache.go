package compiler

import (
	"sort"
	"sync"
)

// DependencyMap maps template names to version hashes. A template's map
// always contains its own name.
type DependencyMap map[string]string

// Clone returns a copy of the map.
func (d DependencyMap) Clone() DependencyMap {
	out := make(DependencyMap, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into d.
func (d DependencyMap) Merge(other DependencyMap) {
	for k, v := range other {
		d[k] = v
	}
}

// Names returns the template names in sorted order.
func (d DependencyMap) Names() []string {
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// VersionCache maps template names to their dependency maps.
type VersionCache interface {
	Get(name string) (DependencyMap, bool)
	Set(name string, deps DependencyMap)
	Has(name string) bool
}

// Replacer is implemented by caches that can be pre-seeded wholesale.
type Replacer interface {
	Replace(table map[string]DependencyMap)
}

// MemoryCache is an in-process VersionCache. It is safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]DependencyMap
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]DependencyMap)}
}

func (c *MemoryCache) Get(name string) (DependencyMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	deps, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return deps.Clone(), true
}

func (c *MemoryCache) Set(name string, deps DependencyMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = deps.Clone()
}

func (c *MemoryCache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Replace discards every entry and installs table in its place.
func (c *MemoryCache) Replace(table map[string]DependencyMap) {
	entries := make(map[string]DependencyMap, len(table))
	for name, deps := range table {
		entries[name] = deps.Clone()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
}

// Snapshot returns a copy of the whole table.
func (c *MemoryCache) Snapshot() map[string]DependencyMap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]DependencyMap, len(c.entries))
	for name, deps := range c.entries {
		out[name] = deps.Clone()
	}
	return out
}
