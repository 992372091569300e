package plugin

import (
	"errors"

	"github.com/google/uuid"
)

// Plugin is an extension loaded from a Go plugin file at runtime. Plugins
// register listeners and commands through their API and release everything
// else in Close.
type Plugin interface {
	// Name returns the name the plugin is managed under. Names are compared
	// case-insensitively.
	Name() string
	// Close is called once when the plugin is disabled or the core shuts
	// down. Listeners and commands of the plugin are removed afterwards.
	Close() error
}

// VersionedPlugin is implemented by plugins that report a version.
type VersionedPlugin interface {
	Version() string
}

// DescribedPlugin is implemented by plugins that describe themselves in the
// plugin list.
type DescribedPlugin interface {
	Description() string
}

// PluginFactory is the constructor looked up in a plugin file. The Plugin
// returned is considered enabled.
type PluginFactory[S any, C any] func(api *API[S, C]) (Plugin, error)

// Info describes a loaded plugin.
type Info struct {
	Name        string
	Version     string
	Description string
	Path        string
}

// Config configures the plugin loader.
type Config struct {
	// Enabled turns the loader on. Without it no plugin is discovered.
	Enabled bool
	// Directory holds the plugin files. Relative entries of Files are
	// resolved against it.
	Directory string
	// DataDirectory is the root of the per-plugin data directories. It
	// defaults to Directory/data and is relative to Directory unless
	// absolute.
	DataDirectory string
	// Autoload loads every .so file found in Directory.
	Autoload bool
	// Files lists plugin files loaded in addition to the autoloaded ones.
	Files []string
}

// PlayerSummary is a snapshot of an online player.
type PlayerSummary struct {
	UUID        uuid.UUID
	Name        string
	DisplayName string
	Ping        int
}

var (
	// ErrDisabled is returned while the plugin loader is turned off.
	ErrDisabled = errors.New("plugin subsystem disabled")
	// ErrAlreadyLoaded is returned when enabling a file that is loaded.
	ErrAlreadyLoaded = errors.New("plugin already loaded")
	// ErrNameConflict is returned when another plugin uses the same name.
	ErrNameConflict = errors.New("plugin name already registered")
	// ErrNotFound is returned for names of plugins that are not loaded.
	ErrNotFound = errors.New("plugin not found")
	// ErrMessengerDisabled is returned when publishing without a messenger.
	ErrMessengerDisabled = errors.New("messenger disabled")
)
