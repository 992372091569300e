// Package database manages the SQL connection of a plugin. MySQL and MariaDB
// are supported, and SQLite is used as a fallback whenever the configured
// server cannot be reached.
package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/xerrors"

	_ "modernc.org/sqlite"
)

const (
	// SQLiteFileName is the name of the SQLite database inside the data
	// directory.
	SQLiteFileName = "database.db"

	maxOpenConns   = 20
	connectTimeout = 30 * time.Second
)

// ErrNotConnected is returned by DB when Connect was not called or failed.
var ErrNotConnected = errors.New("database is not connected")

// Connection owns the *sql.DB of a plugin.
type Connection struct {
	log     *slog.Logger
	dataDir string

	mu         sync.RWMutex
	namespace  string
	db         *sql.DB
	provider   Provider
	migrations []Migration
}

// New returns a Connection storing its SQLite database in dataDir. Connect
// must be called before it can be used.
func New(log *slog.Logger, dataDir string, migrations ...Migration) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{
		log:        log.With("subsystem", "database"),
		dataDir:    dataDir,
		namespace:  CoreNamespace,
		migrations: migrations,
	}
}

// SetNamespace sets the namespace the migrations of c are recorded under.
// Plugins use their name so their versions do not collide with the core ones.
func (c *Connection) SetNamespace(namespace string) {
	if namespace == "" {
		namespace = CoreNamespace
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.namespace = namespace
}

// Namespace returns the namespace migrations of c are recorded under.
func (c *Connection) Namespace() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.namespace
}

// Connect opens the database described by cfg. Connecting while connected is a
// no-op. If the MySQL server cannot be reached, the SQLite database in the data
// directory is used instead.
func (c *Connection) Connect(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return nil
	}

	provider, err := ParseProvider(cfg.Type)
	if err != nil {
		c.log.Warn("Unknown database type, using SQLite.", "type", cfg.Type)
		provider = SQLite
	}

	if provider == MySQL {
		db, err := openMySQL(ctx, cfg)
		if err == nil {
			c.db, c.provider = db, MySQL
			c.log.Info("Connected to database.", "provider", MySQL, "host", cfg.Host, "database", cfg.Database)
			return nil
		}
		c.log.Error("An error occurred while connecting to the database.", "error", err)
		c.log.Error("Now trying to connect to SQLite.")
	}

	path := filepath.Join(c.dataDir, SQLiteFileName)
	db, err := openSQLite(ctx, path)
	if err != nil {
		c.log.Error("*****************************************")
		c.log.Error("Could not open the SQLite database.", "path", path, "error", err)
		c.log.Error("The plugin cannot store any data.")
		c.log.Error("*****************************************")
		return err
	}
	c.db, c.provider = db, SQLite
	c.log.Info("Connected to database.", "provider", SQLite, "path", path)
	return nil
}

func openMySQL(ctx context.Context, cfg Config) (*sql.DB, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.Timeout = connectTimeout
	mc.ParseTime = true
	mc.MultiStatements = true
	mc.Params = map[string]string{"charset": "utf8mb4"}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, xerrors.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("mysql ping: %w", err)
	}
	return db, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Errorf("failed to mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("can't open db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=true"); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("failed to enable 'foreign_keys': %w", err)
	}
	return db, nil
}

// DB returns the underlying *sql.DB.
func (c *Connection) DB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}

// Connected reports whether the connection is open.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// Provider returns the provider in use. It is empty while not connected.
func (c *Connection) Provider() Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider
}

// Reload closes the connection and connects again with cfg.
func (c *Connection) Reload(ctx context.Context, cfg Config) error {
	if err := c.Close(); err != nil {
		c.log.Warn("Close database before reload.", "error", err)
	}
	return c.Connect(ctx, cfg)
}

// Close closes the connection. Closing a closed connection is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db, c.provider = nil, ""
	if err != nil {
		return xerrors.Errorf("close database: %w", err)
	}
	return nil
}
