package plugin

import (
	"log/slog"
	"time"

	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/nookure/nookcore/core/player"
)

// Host is the core runtime as seen by the plugin manager and the plugin APIs.
type Host[S any, C any] interface {
	// Instance returns the runtime itself.
	Instance() S
	// Config returns a snapshot of the runtime configuration.
	Config() C
	Logger() *slog.Logger
	// StartTime reports when the runtime started.
	StartTime() time.Time
	// Debug reports whether debug mode is enabled.
	Debug() bool
	Events() *event.Manager
	Commands() *command.Manager
	Players() player.Directory
	// Database returns the shared database connection. It may be nil when
	// the database feature is off.
	Database() *database.Connection
	// Messenger returns the event messenger. It may be nil when the
	// messenger feature is off.
	Messenger() *messenger.EventMessenger
	// Close shuts the runtime down.
	Close() error
	PluginsEnabled() bool
}
