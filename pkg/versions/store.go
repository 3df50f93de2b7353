// Package versions persists template dependency maps in SQLite, so a
// process can pre-seed its version cache from what an earlier one computed.
package versions

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/CTAG07/Sluice/pkg/compiler"
)

// SetupSchema creates the version table. It is idempotent.
func SetupSchema(db *sql.DB) error {
	const schemaVersions = `
CREATE TABLE IF NOT EXISTS template_versions (
    template_name TEXT NOT NULL,
    dep_name TEXT NOT NULL,
    dep_version TEXT NOT NULL,
    PRIMARY KEY (template_name, dep_name)
);
`
	if _, err := db.Exec(schemaVersions); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	return nil
}

// Store reads and writes dependency maps with prepared statements.
type Store struct {
	db         *sql.DB
	stmtGet    *sql.Stmt
	stmtAll    *sql.Stmt
	stmtDelete *sql.Stmt
	stmtInsert *sql.Stmt
	logger     *slog.Logger
}

// NewStore prepares the store's statements. SetupSchema must have run.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGet, err := db.Prepare(`SELECT dep_name, dep_version FROM template_versions WHERE template_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtAll, err := db.Prepare(`SELECT template_name, dep_name, dep_version FROM template_versions;`)
	if err != nil {
		return nil, err
	}

	stmtDelete, err := db.Prepare(`DELETE FROM template_versions WHERE template_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtInsert, err := db.Prepare(`INSERT INTO template_versions (template_name, dep_name, dep_version) VALUES (?, ?, ?) ON CONFLICT DO UPDATE SET dep_version = excluded.dep_version;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		stmtGet:    stmtGet,
		stmtAll:    stmtAll,
		stmtDelete: stmtDelete,
		stmtInsert: stmtInsert,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements.
func (s *Store) Close() {
	_ = s.stmtGet.Close()
	_ = s.stmtAll.Close()
	_ = s.stmtDelete.Close()
	_ = s.stmtInsert.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Get returns the stored map for name, or false if none is stored.
func (s *Store) Get(ctx context.Context, name string) (compiler.DependencyMap, bool, error) {
	rows, err := s.stmtGet.QueryContext(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("could not query versions of %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	deps := compiler.DependencyMap{}
	for rows.Next() {
		var dep, version string
		if err = rows.Scan(&dep, &version); err != nil {
			return nil, false, fmt.Errorf("could not scan version row: %w", err)
		}
		deps[dep] = version
	}
	if err = rows.Err(); err != nil {
		return nil, false, err
	}
	if len(deps) == 0 {
		return nil, false, nil
	}
	return deps, true, nil
}

// Load returns every stored map.
func (s *Store) Load(ctx context.Context) (map[string]compiler.DependencyMap, error) {
	rows, err := s.stmtAll.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not query versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	table := make(map[string]compiler.DependencyMap)
	for rows.Next() {
		var name, dep, version string
		if err = rows.Scan(&name, &dep, &version); err != nil {
			return nil, fmt.Errorf("could not scan version row: %w", err)
		}
		if table[name] == nil {
			table[name] = compiler.DependencyMap{}
		}
		table[name][dep] = version
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("Loaded template versions", "templates", len(table))
	return table, nil
}

// Save replaces the stored map for name.
func (s *Store) Save(ctx context.Context, name string, deps compiler.DependencyMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if err = s.save(ctx, tx, name, deps); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// ReplaceAll discards every stored map and stores table instead.
func (s *Store) ReplaceAll(ctx context.Context, table map[string]compiler.DependencyMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, `DELETE FROM template_versions;`); err != nil {
		return fmt.Errorf("could not clear versions: %w", err)
	}
	for name, deps := range table {
		if err = s.save(ctx, tx, name, deps); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	s.logger.Info("Replaced stored template versions", "templates", len(table))
	return nil
}

func (s *Store) save(ctx context.Context, tx *sql.Tx, name string, deps compiler.DependencyMap) error {
	if _, err := tx.StmtContext(ctx, s.stmtDelete).ExecContext(ctx, name); err != nil {
		return fmt.Errorf("could not clear versions of %q: %w", name, err)
	}
	insert := tx.StmtContext(ctx, s.stmtInsert)
	for _, dep := range deps.Names() {
		if _, err := insert.ExecContext(ctx, name, dep, deps[dep]); err != nil {
			return fmt.Errorf("could not store version of %q for %q: %w", dep, name, err)
		}
	}
	return nil
}
