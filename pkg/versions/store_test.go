package versions

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/CTAG07/Sluice/pkg/compiler"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore opens a fresh SQLite file and a Store over it.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// Idempotent.
	if err := SetupSchema(db); err != nil {
		t.Fatalf("second SetupSchema() error = %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)
	return db, s
}

func TestStore_SaveGetLoad(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "page"); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	page := compiler.DependencyMap{"page": "v1", "lib": "v2"}
	if err := s.Save(ctx, "page", page); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Saving again replaces, it does not merge.
	page = compiler.DependencyMap{"page": "v3"}
	if err := s.Save(ctx, "page", page); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "lib", compiler.DependencyMap{"lib": "v2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Get(ctx, "page")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if !reflect.DeepEqual(got, page) {
		t.Errorf("Get() = %v, want %v", got, page)
	}

	table, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := map[string]compiler.DependencyMap{
		"page": {"page": "v3"},
		"lib":  {"lib": "v2"},
	}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("Load() = %v, want %v", table, want)
	}
}

func TestStore_ReplaceAll(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "old", compiler.DependencyMap{"old": "v0"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	want := map[string]compiler.DependencyMap{"new": {"new": "v1", "lib": "v2"}}
	if err := s.ReplaceAll(ctx, want); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	table, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("Load() = %v, want %v", table, want)
	}
}

func TestCache_WriteThrough(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, "seeded", compiler.DependencyMap{"seeded": "v0"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cache := NewCache(s)
	if cache.Has("seeded") {
		t.Error("NewCache() served a persisted entry without Seed()")
	}
	if n, err := cache.Seed(ctx); err != nil || n != 1 || !cache.Has("seeded") {
		t.Fatalf("Seed() = %d, %v; want the persisted entry", n, err)
	}

	c := compiler.NewCompiler(nil, compiler.MapLoader{"page": "import lib\nP", "lib": "L"}, cache, compiler.DefaultConfig())
	deps, err := c.Dependencies("page")
	if err != nil {
		t.Fatalf("Dependencies() error = %v", err)
	}

	// A second process that seeds sees what the first computed.
	reloaded := NewCache(s)
	if _, err = reloaded.Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	got, ok := reloaded.Get("page")
	if !ok || !reflect.DeepEqual(got, deps) {
		t.Errorf("reloaded Get(page) = %v, %v; want %v", got, ok, deps)
	}
	if !reloaded.Has("lib") {
		t.Error("dependency lib was not persisted")
	}

	cache.Replace(map[string]compiler.DependencyMap{"only": {"only": "v9"}})
	table, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(table) != 1 || table["only"]["only"] != "v9" {
		t.Errorf("Load() after Replace = %v", table)
	}
	if cache.Has("page") {
		t.Error("Replace() kept an old entry in memory")
	}
}

func TestCache_EditedSourceAcrossSessions(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	first := compiler.NewCompiler(nil, compiler.MapLoader{"page": "import lib\nP", "lib": "L1"}, NewCache(s), compiler.DefaultConfig())
	old, err := first.Dependencies("page")
	if err != nil {
		t.Fatalf("Dependencies() error = %v", err)
	}

	cache := NewCache(s)
	if err = cache.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	second := compiler.NewCompiler(nil, compiler.MapLoader{"page": "import lib\nP", "lib": "L2"}, cache, compiler.DefaultConfig())
	deps, err := second.Dependencies("page")
	if err != nil {
		t.Fatalf("Dependencies() error = %v", err)
	}
	u, err := second.Unit("page")
	if err != nil {
		t.Fatal(err)
	}
	if deps["page"] != u.Version() {
		t.Errorf("served version %s, compiled version %s", deps["page"], u.Version())
	}
	if deps["page"] == old["page"] || deps["lib"] == old["lib"] {
		t.Errorf("second session served the first session's versions: %v", deps)
	}

	table, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(table["page"], deps) {
		t.Errorf("persisted page = %v, want %v", table["page"], deps)
	}
}
