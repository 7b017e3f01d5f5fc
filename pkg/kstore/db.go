package kstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var validDatabaseName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store owns one SQLite database file and every typed CRUD surface over it.
type Store struct {
	db     *sql.DB
	name   string
	path   string
	logger *slog.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default slog.Logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func dbPathFor(root, name string) string {
	return filepath.Join(root, name+".db")
}

// Create creates a new database file under root named "<name>.db", runs the
// full forward migration chain, and returns an opened handle. Fails with
// AlreadyExists if the file is already present.
func Create(ctx context.Context, root, name string, opts ...Option) (*Store, error) {
	if !validDatabaseName.MatchString(name) {
		return nil, InvalidName("name", fmt.Errorf("database name %q must match [A-Za-z0-9_-]+", name))
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, PermissionDenied("mkdir "+root, err)
	}

	path := dbPathFor(root, name)
	if _, err := os.Stat(path); err == nil {
		return nil, AlreadyExists("file", fmt.Errorf("%s already exists", path))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, PermissionDenied("create "+path, err)
	}
	f.Close()

	store, err := openStore(path, name, opts...)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	now := time.Now().UTC()
	_, err = store.db.ExecContext(ctx,
		`INSERT INTO database_metadata (id, name, created_at, updated_at) VALUES (1, ?, ?, ?)`,
		name, now, now)
	if err != nil {
		store.Close()
		return nil, IntegrityViolation("database_metadata seed", err)
	}

	store.logger.Info("database created", "name", name, "path", path)
	return store, nil
}

// Open opens an existing database file, runs migrations to the current
// version, and verifies every required table is present (indexes are not
// checked). Fails with
// NotFound if the file is absent, SchemaMismatch if verification fails.
func Open(ctx context.Context, root, name string, opts ...Option) (*Store, error) {
	if !validDatabaseName.MatchString(name) {
		return nil, InvalidName("name", fmt.Errorf("database name %q must match [A-Za-z0-9_-]+", name))
	}

	path := dbPathFor(root, name)
	if _, err := os.Stat(path); err != nil {
		return nil, NotFound("file", fmt.Errorf("%s: %w", path, err))
	}

	store, err := openStore(path, name, opts...)
	if err != nil {
		return nil, err
	}

	for _, table := range requiredTables {
		if !tableExists(store.db, table) {
			store.Close()
			return nil, SchemaMismatch("table", fmt.Errorf("required table %q missing", table))
		}
	}

	store.logger.Info("database opened", "name", name, "path", path)
	return store, nil
}

// openStore opens the sqlite3 connection, applies pragmas, and migrates to
// the current schema version inside a single transaction per pending step.
func openStore(path, name string, opts ...Option) (*Store, error) {
	db, err := sql.Open(sqliteDriverName, path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, PermissionDenied("open "+path, err)
	}
	db.SetMaxOpenConns(1) // single-writer path per the concurrency model

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, IntegrityViolation("enable foreign keys", err)
	}

	store := &Store{db: db, name: name, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.migrateToLatest(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// migrateToLatest applies every pending migration step atomically. Each step
// is idempotent: re-running at the target version is a no-op. schema_version
// is a single-row table and never decreases.
func (s *Store) migrateToLatest() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (id INTEGER PRIMARY KEY CHECK (id = 1), version INTEGER NOT NULL)`); err != nil {
		return SchemaMismatch("schema_version table", err)
	}

	var current int
	err := s.db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&current)
	if err == sql.ErrNoRows {
		current = 0
		if _, err := s.db.Exec(`INSERT INTO schema_version (id, version) VALUES (1, 0)`); err != nil {
			return SchemaMismatch("schema_version seed", err)
		}
	} else if err != nil {
		return SchemaMismatch("schema_version read", err)
	}

	sorted := append([]migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].version < sorted[j].version })

	for _, m := range sorted {
		if m.version <= current {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return IntegrityViolation("begin migration tx", err)
		}

		if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
			tx.Rollback()
			return IntegrityViolation("migration pragma", err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return SchemaMismatch(fmt.Sprintf("migration %d (%s)", m.version, m.name), err)
		}

		if _, err := tx.Exec(`UPDATE schema_version SET version = ? WHERE id = 1`, m.version); err != nil {
			tx.Rollback()
			return SchemaMismatch("schema_version bump", err)
		}

		if err := tx.Commit(); err != nil {
			return SchemaMismatch(fmt.Sprintf("commit migration %d", m.version), err)
		}

		s.logger.Info("migration applied", "version", m.version, "name", m.name)
		current = m.version
	}

	var fkViolations int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_foreign_key_check`)
	if err := row.Scan(&fkViolations); err == nil && fkViolations > 0 {
		return IntegrityViolation("post-migration fk check", fmt.Errorf("%d violations", fkViolations))
	}

	return nil
}

// DatabaseInfo is the read-only metadata summary List returns per database.
type DatabaseInfo struct {
	Name          string
	Path          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DocumentCount int64
	NodeCount     int64
	EdgeCount     int64
}

// List enumerates *.db files under root and reads their metadata read-only.
// Files that fail to open are skipped, not fatal.
func List(ctx context.Context, root string) ([]DatabaseInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, PermissionDenied("readdir "+root, err)
	}

	var out []DatabaseInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".db")

		db, err := sql.Open(sqliteDriverName, "file:"+filepath.Join(root, entry.Name())+"?mode=ro")
		if err != nil {
			continue
		}

		var info DatabaseInfo
		info.Name = name
		info.Path = filepath.Join(root, entry.Name())
		row := db.QueryRowContext(ctx,
			`SELECT created_at, updated_at, document_count, node_count, edge_count FROM database_metadata WHERE id = 1`)
		err = row.Scan(&info.CreatedAt, &info.UpdatedAt, &info.DocumentCount, &info.NodeCount, &info.EdgeCount)
		db.Close()
		if err != nil {
			continue
		}

		out = append(out, info)
	}

	return out, nil
}

// Delete removes the database file and any journal/shared-memory siblings.
func Delete(root, name string) error {
	if !validDatabaseName.MatchString(name) {
		return InvalidName("name", fmt.Errorf("database name %q must match [A-Za-z0-9_-]+", name))
	}

	path := dbPathFor(root, name)
	siblings := []string{path, path + "-wal", path + "-shm", path + "-journal"}
	for _, p := range siblings {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return PermissionDenied("remove "+p, err)
		}
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying connection. Shared with collaborating packages
// (knowledgegraph, extraction) that need ad-hoc read queries; must not be
// closed by consumers.
func (s *Store) DB() *sql.DB { return s.db }

// touchMetadata refreshes updated_at and the denormalized totals under the
// same transaction as the write operation that triggered it, per the
// concurrency model's "recomputed under the same transaction" rule.
func touchMetadata(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE database_metadata SET
			updated_at = ?,
			document_count = (SELECT COUNT(*) FROM documents),
			node_count = (SELECT COUNT(*) FROM kg_nodes),
			edge_count = (SELECT COUNT(*) FROM kg_edges)
		WHERE id = 1`, time.Now().UTC())
	return err
}
