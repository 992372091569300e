package core

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nookure/nookcore/core/boot"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/logger"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/nookure/nookcore/core/player"
	"github.com/nookure/nookcore/core/plugin"
	"github.com/samber/lo"
)

// TransportKind selects the transport the event messenger uses.
type TransportKind string

const (
	TransportLocal    TransportKind = "local"
	TransportChannel  TransportKind = "channel"
	TransportSocketIO TransportKind = "socketio"
)

// ParseTransportKind ...
func ParseTransportKind(s string) (TransportKind, error) {
	switch k := TransportKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", TransportLocal:
		return TransportLocal, nil
	case TransportChannel, TransportSocketIO:
		return k, nil
	case "socket.io":
		return TransportSocketIO, nil
	}
	return "", fmt.Errorf("unknown messenger transport %q", s)
}

// Config contains the options of a Core. The zero value is usable: every
// feature is enabled and data is stored in the working directory.
type Config struct {
	// Log is the logger of the core. If nil, Log is built from Logger, or
	// slog.Default() is used when both are nil.
	Log *slog.Logger
	// Logger provides the debug switch. When nil, debug mode only affects
	// the debug flag handed to plugins.
	Logger *logger.Logger
	// DataFolder holds the configuration files and the SQLite database.
	DataFolder string
	// Debug enables debug mode. The NOOKCORE_DEBUG environment variable
	// enables it as well.
	Debug bool
	// Features lists the features to start. Requirements are added
	// automatically. If empty, every feature is started.
	Features []boot.Feature
	// Plugins configures the plugin loader.
	Plugins plugin.Config
	// Database is used when the DATABASE feature is enabled.
	Database database.Config
	// Transport is the kind of transport the messenger uses.
	Transport TransportKind
	// SocketIO configures the socket.io transport.
	SocketIO messenger.SocketIOConfig
	// DedupeWindow is the window in which duplicate plugin channel messages
	// are dropped.
	DedupeWindow time.Duration
	// MessengerTransport overrides the transport selected by Transport.
	MessengerTransport messenger.Transport
	// Players is the directory of online players. Platform adapters pass
	// their wrapper manager. If nil, an empty WrapperManager is used.
	Players player.Directory
	// UpdateCheck enables the periodic update check.
	UpdateCheck bool
	// UpdateRepository is the repository the update check queries.
	UpdateRepository string
	// UpdateInterval is the time between two update checks.
	UpdateInterval time.Duration
	// Operators are the names of players granted every permission.
	Operators []string
	// Platform describes the server software. When nil, its capabilities
	// are not checked.
	Platform *Platform
}

// Platform describes the capabilities of the server software NookCore runs
// on.
type Platform struct {
	Name           string
	// PluginChannels is true if the platform exchanges plugin messages with
	// player connections and passes inbound ones to Core.ChannelTransport.
	PluginChannels bool
}

// UserConfig is the user configuration of NookCore. It may be serialised and
// converted to a Config by calling UserConfig.Config().
type UserConfig struct {
	Core struct {
		// DataFolder is the folder holding configuration files and the
		// SQLite database.
		DataFolder string
		// Debug enables debug messages.
		Debug bool
		// Features lists the features to start, for example "DATABASE" or
		// "NookCore-Messenger". Leave empty to start every feature.
		Features []string
	}
	Plugins struct {
		// Enabled controls if plugins are loaded.
		Enabled bool
		// Folder is the folder plugin files are loaded from.
		Folder string
		// DataFolder holds the data folders of plugins. It is relative to
		// Folder unless absolute.
		DataFolder string
		// Autoload loads every .so file in Folder.
		Autoload bool
		// Files lists plugin files to load in addition to the autoloaded ones.
		Files []string
	}
	Database database.Config
	Messenger struct {
		// Transport is one of "local", "channel" or "socketio".
		Transport string
		// URL is the address of the socket.io relay.
		URL string
		// Namespace is the socket.io namespace joined.
		Namespace string
		// ConnectTimeout is the number of seconds to wait for the relay.
		ConnectTimeout int
		// DedupeWindow is the number of seconds duplicate plugin channel
		// messages are dropped for.
		DedupeWindow int
	}
	Permissions struct {
		// Operators are the names of players granted every permission.
		Operators []string
	}
	UpdateCheck struct {
		// Enabled controls if new versions are looked up.
		Enabled bool
		// Repository is the repository queried.
		Repository string
		// Interval is the number of hours between two checks.
		Interval int
	}
}

// Config converts a UserConfig to a Config. An error is returned if a value
// could not be parsed.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	features := make([]boot.Feature, 0, len(uc.Core.Features))
	for _, name := range uc.Core.Features {
		f, err := boot.ParseFeature(name)
		if err != nil {
			return Config{}, fmt.Errorf("parse features: %w", err)
		}
		features = append(features, f)
	}
	if _, err := database.ParseProvider(uc.Database.Type); err != nil {
		return Config{}, fmt.Errorf("parse database type: %w", err)
	}
	transport, err := ParseTransportKind(uc.Messenger.Transport)
	if err != nil {
		return Config{}, err
	}

	conf := Config{
		Log:        log,
		DataFolder: uc.Core.DataFolder,
		Debug:      uc.Core.Debug,
		Features:   lo.Uniq(features),
		Plugins: plugin.Config{
			Enabled:       uc.Plugins.Enabled,
			Directory:     uc.Plugins.Folder,
			DataDirectory: uc.Plugins.DataFolder,
			Autoload:      uc.Plugins.Autoload,
			Files:         uc.Plugins.Files,
		},
		Database:  uc.Database,
		Transport: transport,
		SocketIO: messenger.SocketIOConfig{
			URL:            uc.Messenger.URL,
			Namespace:      uc.Messenger.Namespace,
			ConnectTimeout: time.Duration(uc.Messenger.ConnectTimeout) * time.Second,
		},
		DedupeWindow:     time.Duration(uc.Messenger.DedupeWindow) * time.Second,
		UpdateCheck:      uc.UpdateCheck.Enabled,
		UpdateRepository: uc.UpdateCheck.Repository,
		UpdateInterval:   time.Duration(uc.UpdateCheck.Interval) * time.Hour,
		Operators:        lo.Uniq(uc.Permissions.Operators),
	}
	if transport == TransportSocketIO && strings.TrimSpace(conf.SocketIO.URL) == "" {
		return conf, fmt.Errorf("messenger transport %s requires a url", transport)
	}
	return conf, nil
}

// DefaultConfig returns a configuration with the default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Core.DataFolder = "nookcore"
	c.Plugins.Enabled = true
	c.Plugins.Folder = "plugins"
	c.Plugins.DataFolder = "data"
	c.Plugins.Autoload = true
	c.Database = database.DefaultConfig()
	c.Messenger.Transport = string(TransportLocal)
	c.Messenger.URL = "http://localhost:3000"
	c.Messenger.Namespace = "/"
	c.Messenger.ConnectTimeout = 15
	c.Messenger.DedupeWindow = 5
	c.UpdateCheck.Enabled = true
	c.UpdateCheck.Repository = boot.DefaultRepository
	c.UpdateCheck.Interval = 6
	return c
}

func (conf Config) dataFolder() string {
	if conf.DataFolder == "" {
		return "."
	}
	return filepath.Clean(conf.DataFolder)
}
