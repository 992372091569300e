// Package core wires the NookCore subsystems together. A Core owns the event
// and command managers, the player directory, the database, the event
// messenger and the plugin loader, and starts them through a Bootstrapper.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/boot"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/nookure/nookcore/core/player"
	"github.com/nookure/nookcore/core/plugin"
	"k8s.io/utils/clock"
)

// Version is the version of NookCore.
const Version = boot.Version

var (
	// ErrNotStarted is returned by operations that need a started Core.
	ErrNotStarted = errors.New("core not started")
	// ErrNoPluginChannels is returned by Start when the channel transport is
	// configured on a platform without plugin channels.
	ErrNoPluginChannels = errors.New("platform has no plugin channels")
)

// Core is a running NookCore instance.
type Core struct {
	conf  Config
	log   *slog.Logger
	debug atomic.Bool
	start time.Time

	boot     *boot.Bootstrapper
	events   *event.Manager
	commands *command.Manager
	players  player.Directory
	codec    *messenger.Codec
	plugins  *plugin.Manager[*Core, Config]

	mu        sync.RWMutex
	db        *database.Connection
	seen      *database.Players
	messenger *messenger.EventMessenger
	channel   *messenger.ChannelTransport
	updates   *boot.UpdateChecker

	started   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Core using the fields of conf. Subsystems are started by
// calling Start.
func New(conf Config) *Core {
	if conf.Log == nil {
		if conf.Logger != nil {
			conf.Log = conf.Logger.Slog()
		} else {
			conf.Log = slog.Default()
		}
	}
	if conf.Players == nil {
		conf.Players = player.NewWrapperManager[uuid.UUID, player.Wrapper]()
	}
	if len(conf.Features) == 0 {
		conf.Features = boot.AllFeatures()
	}
	if conf.UpdateRepository == "" {
		conf.UpdateRepository = boot.DefaultRepository
	}
	if conf.UpdateInterval <= 0 {
		conf.UpdateInterval = boot.DefaultUpdateInterval
	}
	if conf.DedupeWindow <= 0 {
		conf.DedupeWindow = messenger.DefaultDedupeWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Core{
		conf:    conf,
		log:     conf.Log,
		boot:    boot.New(conf.Log, conf.Features...),
		events:  event.NewManager(conf.Log, event.DefaultAsyncLimit),
		players: conf.Players,
		codec:   messenger.NewCodec(),
		ctx:     ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	c.debug.Store(conf.Debug || c.boot.Debug())
	c.commands = command.NewManager(conf.Log, nil)
	c.plugins = plugin.NewManager[*Core, Config](pluginHost{c: c}, conf.Plugins)

	c.boot.Register(boot.Logger, c.startLogger)
	c.boot.Register(boot.Config, c.startConfig)
	c.boot.Register(boot.Database, c.startDatabase)
	c.boot.Register(boot.Messenger, c.startMessenger)
	c.boot.Register(boot.Core, c.startCore)
	return c
}

// Start starts the enabled features and loads the configured plugins.
func (c *Core) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}
	c.start = time.Now()
	if err := c.boot.Start(ctx); err != nil {
		return fmt.Errorf("start core: %w", err)
	}
	c.log.Info("NookCore started.", "version", Version, "features", c.boot.Features(), "debug", c.Debug())
	c.plugins.LoadConfigured()
	return nil
}

func (c *Core) startLogger(context.Context) error {
	if c.conf.Logger != nil {
		c.conf.Logger.SetDebug(c.Debug())
	}
	return nil
}

func (c *Core) startConfig(context.Context) error {
	cfg, err := command.LoadConfig(c.conf.dataFolder())
	if err != nil {
		return err
	}
	c.commands.SetConfig(cfg)
	return nil
}

func (c *Core) startDatabase(ctx context.Context) error {
	conn := database.New(c.log, c.conf.dataFolder(), database.CoreMigrations()...)
	if err := conn.Connect(ctx, c.conf.Database); err != nil {
		return err
	}
	n, err := conn.Migrate(ctx)
	if err != nil {
		_ = conn.Close()
		return err
	}
	if n > 0 {
		c.log.Info("Applied database migrations.", "count", n, "provider", conn.Provider())
	}
	c.mu.Lock()
	c.db, c.seen = conn, database.NewPlayers(conn)
	c.mu.Unlock()
	return nil
}

func (c *Core) startMessenger(ctx context.Context) error {
	transport := c.conf.MessengerTransport
	var channel *messenger.ChannelTransport
	if transport == nil {
		switch c.conf.Transport {
		case TransportChannel:
			if p := c.conf.Platform; p != nil && !p.PluginChannels {
				return fmt.Errorf("%w: %s cannot use the %s transport", ErrNoPluginChannels, p.Name, TransportChannel)
			}
			channel = messenger.NewChannelTransport(c.players, clock.RealClock{}, c.conf.DedupeWindow)
			transport = channel
		case TransportSocketIO:
			transport = messenger.NewSocketIOTransport(c.log, c.conf.SocketIO)
		default:
			transport = messenger.NewLocalTransport()
		}
	}
	m := messenger.New(c.log, c.events, c.codec, transport, messenger.WithDebug(c.Debug))
	if err := m.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare messenger: %w", err)
	}
	c.mu.Lock()
	c.messenger, c.channel = m, channel
	c.mu.Unlock()
	return nil
}

func (c *Core) startCore(context.Context) error {
	if !c.conf.UpdateCheck {
		return nil
	}
	u := boot.NewUpdateChecker(c.log, Version,
		boot.WithRepository(c.conf.UpdateRepository),
		boot.WithInterval(c.conf.UpdateInterval),
	)
	c.mu.Lock()
	c.updates = u
	c.mu.Unlock()
	go u.Run(c.ctx)
	return nil
}

// Close disables every plugin and stops the subsystems. Only the first call
// has an effect.
func (c *Core) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.plugins.Shutdown()
		c.cancel()

		c.mu.Lock()
		m, db := c.messenger, c.db
		c.messenger, c.db, c.seen, c.channel = nil, nil, nil, nil
		c.mu.Unlock()

		if m != nil {
			if err := m.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close messenger: %w", err))
			}
		}
		if db != nil {
			if err := db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
		c.log.Info("NookCore stopped.")
		close(c.closed)
	})
	return errors.Join(errs...)
}

// Done returns a channel closed once the Core was closed.
func (c *Core) Done() <-chan struct{} { return c.closed }

// Context returns a context cancelled when the Core closes.
func (c *Core) Context() context.Context { return c.ctx }

// Log ...
func (c *Core) Log() *slog.Logger { return c.log }

// Config returns the configuration the Core was created with.
func (c *Core) Config() Config { return c.conf }

// StartTime returns the time Start was called.
func (c *Core) StartTime() time.Time { return c.start }

// Debug reports whether debug mode is enabled.
func (c *Core) Debug() bool { return c.debug.Load() }

// SetDebug toggles debug mode.
func (c *Core) SetDebug(debug bool) {
	c.debug.Store(debug)
	if c.conf.Logger != nil {
		c.conf.Logger.SetDebug(debug)
	}
}

// Bootstrapper returns the bootstrapper of the enabled features.
func (c *Core) Bootstrapper() *boot.Bootstrapper { return c.boot }

// Events ...
func (c *Core) Events() *event.Manager { return c.events }

// Commands ...
func (c *Core) Commands() *command.Manager { return c.commands }

// Players returns the directory of online players.
func (c *Core) Players() player.Directory { return c.players }

// Codec returns the codec of the event messenger. Events sent across servers
// must be registered with it.
func (c *Core) Codec() *messenger.Codec { return c.codec }

// Plugins returns the plugin loader.
func (c *Core) Plugins() *plugin.Manager[*Core, Config] { return c.plugins }

// Database returns the database connection, or nil if the DATABASE feature is
// not running.
func (c *Core) Database() *database.Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Messenger returns the event messenger, or nil if the MESSENGER feature is
// not running.
func (c *Core) Messenger() *messenger.EventMessenger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messenger
}

// ChannelTransport returns the plugin channel transport if the messenger
// uses one. Platform adapters pass inbound plugin messages to it.
func (c *Core) ChannelTransport() (*messenger.ChannelTransport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel, c.channel != nil
}

// UpdateChecker returns the update checker, or nil if update checks are off.
func (c *Core) UpdateChecker() *boot.UpdateChecker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updates
}

// PlayerSeen records that a player was seen online. It is a no-op while the
// database is not running.
func (c *Core) PlayerSeen(ctx context.Context, id uuid.UUID, name string) error {
	c.mu.RLock()
	seen := c.seen
	c.mu.RUnlock()
	if seen == nil {
		return nil
	}
	return seen.Seen(ctx, id, name, time.Now())
}

// PlayerRecord returns what the database knows about a player.
func (c *Core) PlayerRecord(ctx context.Context, id uuid.UUID) (database.PlayerRecord, bool, error) {
	c.mu.RLock()
	seen := c.seen
	c.mu.RUnlock()
	if seen == nil {
		return database.PlayerRecord{}, false, ErrNotStarted
	}
	return seen.Player(ctx, id)
}

// PluginsEnabled reports whether the plugin loader is turned on.
func (c *Core) PluginsEnabled() bool { return c.plugins.Enabled() }
