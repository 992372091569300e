package database

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{in: "mysql", want: MySQL},
		{in: "MariaDB", want: MySQL},
		{in: " sqlite ", want: SQLite},
		{in: "", want: SQLite},
		{in: "postgres", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigStringRedactsPassword(t *testing.T) {
	s := DefaultConfig().String()
	assert.NotContains(t, s, "yourSecurePassword")
	assert.Contains(t, s, "Password=***")
	assert.Contains(t, s, "Host=localhost")
}

func TestConnectSQLite(t *testing.T) {
	dir := t.TempDir()
	conn := New(discardLogger(), dir)

	_, err := conn.DB()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, conn.Connect(context.Background(), DefaultConfig()))
	t.Cleanup(func() { _ = conn.Close() })
	assert.True(t, conn.Connected())
	assert.Equal(t, SQLite, conn.Provider())
	assert.FileExists(t, filepath.Join(dir, SQLiteFileName))

	db, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background(), DefaultConfig()))
	again, err := conn.DB()
	require.NoError(t, err)
	assert.Same(t, db, again)
}

func TestConnectFallsBackToSQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = "MYSQL"
	cfg.Host = "127.0.0.1"
	cfg.Port = 1

	conn := New(discardLogger(), t.TempDir())
	require.NoError(t, conn.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, SQLite, conn.Provider())
}

func TestCloseAndReload(t *testing.T) {
	conn := New(discardLogger(), t.TempDir())
	require.NoError(t, conn.Close())

	require.NoError(t, conn.Connect(context.Background(), DefaultConfig()))
	require.NoError(t, conn.Close())
	assert.False(t, conn.Connected())
	assert.Empty(t, conn.Provider())

	require.NoError(t, conn.Reload(context.Background(), DefaultConfig()))
	assert.True(t, conn.Connected())
	require.NoError(t, conn.Close())
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_add_index.up.sql":        {Data: []byte("CREATE INDEX a ON t (a);")},
		"sql/0002_add_index.mysql.up.sql":  {Data: []byte("CREATE INDEX a ON t (a(16));")},
		"sql/0001_create_t.up.sql":         {Data: []byte("CREATE TABLE t (a TEXT);")},
		"sql/0003_seed.sqlite.up.sql":      {Data: []byte("INSERT INTO t VALUES ('x');")},
		"sql/README.md":                    {Data: []byte("ignored")},
		"sql/0001_create_t.down.sql":       {Data: []byte("DROP TABLE t;")},
	}
	migrations, err := LoadMigrations(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create t", migrations[0].Description)
	assert.Equal(t, "CREATE INDEX a ON t (a(16));", migrations[1].statement(MySQL))
	assert.Equal(t, "CREATE INDEX a ON t (a);", migrations[1].statement(SQLite))
	assert.Empty(t, migrations[2].statement(MySQL))
	assert.Equal(t, "INSERT INTO t VALUES ('x');", migrations[2].statement(SQLite))

	_, err = LoadMigrations(fstest.MapFS{"sql/abc_x.up.sql": {Data: []byte("")}}, "sql")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	conn := New(discardLogger(), t.TempDir(), CoreMigrations()...)
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx, DefaultConfig()))
	t.Cleanup(func() { _ = conn.Close() })

	n, err := conn.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = conn.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	conn.AddMigrations(Migration{Version: 10, Description: "broken", SQL: "CREATE TABLE"})
	pending, err := conn.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = conn.Migrate(ctx)
	assert.Error(t, err)

	pending, err = conn.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestMigrateNamespaces(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	coreConn := New(discardLogger(), dir, CoreMigrations()...)
	require.NoError(t, coreConn.Connect(ctx, DefaultConfig()))
	n, err := coreConn.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(CoreMigrations()), n)
	require.NoError(t, coreConn.Close())

	demo := New(discardLogger(), dir, Migration{
		Version:     1,
		Description: "create demo visits",
		SQL:         "CREATE TABLE demo_visits (uuid VARCHAR(36) PRIMARY KEY)",
	})
	demo.SetNamespace("demo")
	require.NoError(t, demo.Connect(ctx, DefaultConfig()))
	t.Cleanup(func() { _ = demo.Close() })
	assert.Equal(t, "demo", demo.Namespace())

	n, err = demo.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	db, err := demo.DB()
	require.NoError(t, err)
	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM demo_visits").Scan(&count))

	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+MigrationTable+" WHERE version = 1").Scan(&count))
	assert.Equal(t, 2, count)

	// The core namespace is untouched by the plugin migrations.
	coreConn.SetNamespace("")
	assert.Equal(t, CoreNamespace, coreConn.Namespace())
	require.NoError(t, coreConn.Connect(ctx, DefaultConfig()))
	t.Cleanup(func() { _ = coreConn.Close() })
	pending, err := coreConn.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPlayers(t *testing.T) {
	dir := t.TempDir()
	conn := New(discardLogger(), dir, CoreMigrations()...)
	ctx := context.Background()
	require.NoError(t, conn.Connect(ctx, DefaultConfig()))
	t.Cleanup(func() { _ = conn.Close() })
	_, err := conn.Migrate(ctx)
	require.NoError(t, err)

	players := NewPlayers(conn)
	id := uuid.New()
	first := time.Unix(1_700_000_000, 0)
	require.NoError(t, players.Seen(ctx, id, "Steve", first))
	require.NoError(t, players.Seen(ctx, id, "Steve2", first.Add(time.Hour)))

	rec, ok, err := players.Player(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Steve2", rec.Name)
	assert.Equal(t, first, rec.FirstSeen)
	assert.Equal(t, first.Add(time.Hour), rec.LastSeen)

	_, ok, err = players.Player(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := players.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, conn.Close())
	_, err = os.Stat(filepath.Join(dir, SQLiteFileName))
	assert.NoError(t, err)
	assert.ErrorIs(t, players.Seen(ctx, id, "x", first), ErrNotConnected)
}
