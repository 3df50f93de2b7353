package versions

import (
	"context"
	"time"

	"github.com/CTAG07/Sluice/pkg/compiler"
)

const writeTimeout = 5 * time.Second

// Cache is a compiler.VersionCache that serves reads from memory and writes
// every change through to a Store.
type Cache struct {
	mem   *compiler.MemoryCache
	store *Store
}

// NewCache returns an empty Cache that writes through to store. Nothing
// persisted by an earlier process is served until Seed is called.
func NewCache(store *Store) *Cache {
	return &Cache{mem: compiler.NewMemoryCache(), store: store}
}

// Seed replaces the in-memory table with everything in the store and returns
// the number of templates loaded. Only seed when the template sources are
// known to match the ones the table was computed from.
func (c *Cache) Seed(ctx context.Context) (int, error) {
	table, err := c.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	c.mem.Replace(table)
	return len(table), nil
}

// Reset empties the table in memory and in the store.
func (c *Cache) Reset(ctx context.Context) error {
	c.mem.Replace(map[string]compiler.DependencyMap{})
	return c.store.ReplaceAll(ctx, map[string]compiler.DependencyMap{})
}

func (c *Cache) Get(name string) (compiler.DependencyMap, bool) {
	return c.mem.Get(name)
}

func (c *Cache) Has(name string) bool {
	return c.mem.Has(name)
}

// Set stores deps in memory and then in the Store. A failed write is logged;
// the in-memory entry stays.
func (c *Cache) Set(name string, deps compiler.DependencyMap) {
	c.mem.Set(name, deps)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.store.Save(ctx, name, deps); err != nil {
		c.store.logger.Error("Failed to persist template versions", "template", name, "error", err)
	}
}

// Replace swaps the whole table, in memory and in the Store.
func (c *Cache) Replace(table map[string]compiler.DependencyMap) {
	c.mem.Replace(table)
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := c.store.ReplaceAll(ctx, table); err != nil {
		c.store.logger.Error("Failed to persist template versions", "error", err)
	}
}

// Snapshot returns a copy of the whole table.
func (c *Cache) Snapshot() map[string]compiler.DependencyMap {
	return c.mem.Snapshot()
}
