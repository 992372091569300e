package database

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

// MigrationTable stores the versions applied to a database, per namespace.
const MigrationTable = "nookcore_migrations"

// CoreNamespace is the migration namespace of NookCore itself.
const CoreNamespace = "core"

// Migration is a versioned schema change. MySQL and SQLite replace SQL for
// their provider when set.
type Migration struct {
	Version     int
	Description string
	SQL         string
	MySQL       string
	SQLite      string
}

func (m Migration) statement(p Provider) string {
	switch {
	case p == MySQL && m.MySQL != "":
		return m.MySQL
	case p == SQLite && m.SQLite != "":
		return m.SQLite
	}
	return m.SQL
}

// AddMigrations appends migrations applied by the next Migrate call.
func (c *Connection) AddMigrations(migrations ...Migration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.migrations = append(c.migrations, migrations...)
}

// Pending returns the migrations not yet applied, ordered by version.
func (c *Connection) Pending(ctx context.Context) ([]Migration, error) {
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	create := "CREATE TABLE IF NOT EXISTS " + MigrationTable +
		" (namespace VARCHAR(64) NOT NULL, version INTEGER NOT NULL, description VARCHAR(255) NOT NULL," +
		" applied_at BIGINT NOT NULL, PRIMARY KEY (namespace, version))"
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, xerrors.Errorf("create migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM "+MigrationTable+" WHERE namespace = ?", c.Namespace())
	if err != nil {
		return nil, xerrors.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()
	applied := map[int]struct{}{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, xerrors.Errorf("scan migration version: %w", err)
		}
		applied[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Errorf("query applied migrations: %w", err)
	}

	c.mu.RLock()
	pending := make([]Migration, 0, len(c.migrations))
	for _, m := range c.migrations {
		if _, ok := applied[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	c.mu.RUnlock()
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending, nil
}

// Apply runs a single migration in a transaction and records its version.
func (c *Connection) Apply(ctx context.Context, m Migration) error {
	db, err := c.DB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if stmt := strings.TrimSpace(m.statement(c.Provider())); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return xerrors.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	insert := "INSERT INTO " + MigrationTable + " (namespace, version, description, applied_at) VALUES (?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, insert, c.Namespace(), m.Version, m.Description, time.Now().Unix()); err != nil {
		return xerrors.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// Migrate applies every pending migration and returns how many were applied.
func (c *Connection) Migrate(ctx context.Context) (int, error) {
	pending, err := c.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for i, m := range pending {
		if err := c.Apply(ctx, m); err != nil {
			return i, err
		}
		c.log.Debug("Applied migration.", "namespace", c.Namespace(), "version", m.Version, "description", m.Description)
	}
	if len(pending) > 0 {
		c.log.Info("Database migrated.", "applied", len(pending))
	}
	return len(pending), nil
}

// LoadMigrations reads migrations from the files in dir. Files are named
// <version>_<description>.up.sql, and <version>_<description>.mysql.up.sql or
// .sqlite.up.sql hold provider specific statements.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, xerrors.Errorf("read migrations: %w", err)
	}
	byVersion := map[int]*Migration{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(name, ".up.sql")
		var provider Provider
		switch {
		case strings.HasSuffix(base, ".mysql"):
			provider, base = MySQL, strings.TrimSuffix(base, ".mysql")
		case strings.HasSuffix(base, ".sqlite"):
			provider, base = SQLite, strings.TrimSuffix(base, ".sqlite")
		}
		prefix, desc, _ := strings.Cut(base, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, xerrors.Errorf("migration %s: invalid version %q", name, prefix)
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, xerrors.Errorf("read migration %s: %w", name, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Description: strings.ReplaceAll(desc, "_", " ")}
			byVersion[version] = m
		}
		switch provider {
		case MySQL:
			m.MySQL = string(b)
		case SQLite:
			m.SQLite = string(b)
		default:
			m.SQL = string(b)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
