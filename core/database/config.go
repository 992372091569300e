package database

import (
	"fmt"
	"strings"
)

// Provider is the SQL server a Connection talks to.
type Provider string

const (
	MySQL  Provider = "MYSQL"
	SQLite Provider = "SQLITE"
)

// ParseProvider parses a configured database type. MariaDB is served by the
// MySQL provider.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MYSQL", "MARIADB":
		return MySQL, nil
	case "SQLITE", "":
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown database type %q", s)
}

// Config holds the connection settings of the database.
type Config struct {
	Type     string `toml:"type" yaml:"type" comment:"Database type: MYSQL, MARIADB or SQLITE."`
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	Database string `toml:"database" yaml:"database"`
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Type:     string(SQLite),
		Host:     "localhost",
		Port:     3306,
		Username: "nookure",
		Password: "yourSecurePassword",
		Database: "database",
	}
}

// String returns the settings with the password redacted.
func (c Config) String() string {
	return fmt.Sprintf("Config{Type=%s, Host=%s, Port=%d, Username=%s, Password=***, Database=%s}",
		c.Type, c.Host, c.Port, c.Username, c.Database)
}
