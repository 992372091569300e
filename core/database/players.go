package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// CoreMigrations returns the migrations creating the tables of NookCore itself.
func CoreMigrations() []Migration {
	m, err := LoadMigrations(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	return m
}

// PlayerRecord is a row of the nookcore_players table.
type PlayerRecord struct {
	UUID      uuid.UUID
	Name      string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Players stores the players seen by the server.
type Players struct {
	conn *Connection
}

// NewPlayers ...
func NewPlayers(conn *Connection) *Players {
	return &Players{conn: conn}
}

// Seen records that the player with id and name was online at t.
func (p *Players) Seen(ctx context.Context, id uuid.UUID, name string, t time.Time) error {
	db, err := p.conn.DB()
	if err != nil {
		return err
	}
	var query string
	switch p.conn.Provider() {
	case MySQL:
		query = `INSERT INTO nookcore_players (uuid, name, first_seen, last_seen) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), last_seen = VALUES(last_seen)`
	default:
		query = `INSERT INTO nookcore_players (uuid, name, first_seen, last_seen) VALUES (?, ?, ?, ?)
ON CONFLICT(uuid) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`
	}
	if _, err := db.ExecContext(ctx, query, id.String(), name, t.Unix(), t.Unix()); err != nil {
		return xerrors.Errorf("store player %s: %w", name, err)
	}
	return nil
}

// Player returns the record of the player with id. The boolean is false if the
// player was never seen.
func (p *Players) Player(ctx context.Context, id uuid.UUID) (PlayerRecord, bool, error) {
	db, err := p.conn.DB()
	if err != nil {
		return PlayerRecord{}, false, err
	}
	row := db.QueryRowContext(ctx, "SELECT name, first_seen, last_seen FROM nookcore_players WHERE uuid = ?", id.String())
	rec := PlayerRecord{UUID: id}
	var first, last int64
	if err := row.Scan(&rec.Name, &first, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PlayerRecord{}, false, nil
		}
		return PlayerRecord{}, false, xerrors.Errorf("query player %s: %w", id, err)
	}
	rec.FirstSeen, rec.LastSeen = time.Unix(first, 0), time.Unix(last, 0)
	return rec, true, nil
}

// Count returns the number of players stored.
func (p *Players) Count(ctx context.Context) (int, error) {
	db, err := p.conn.DB()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nookcore_players").Scan(&n); err != nil {
		return 0, xerrors.Errorf("count players: %w", err)
	}
	return n, nil
}
