package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/config"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/nookure/nookcore/core/player"
)

// API is handed to a plugin's factory. It gives the plugin access to the core
// services and attributes everything the plugin registers to it.
type API[S any, C any] struct {
	manager *Manager[S, C]
	host    Host[S, C]
	name    atomic.Value // string
	ctx     atomic.Value // context.Context
	dataDir atomic.Value // string

	mu        sync.Mutex
	databases []*database.Connection
}

func newAPI[S any, C any](manager *Manager[S, C], host Host[S, C], name string) *API[S, C] {
	api := &API[S, C]{manager: manager, host: host}
	api.name.Store(name)
	api.ctx.Store(context.Background())
	api.dataDir.Store("")
	return api
}

func (api *API[S, C]) setName(name string) {
	if name == "" {
		return
	}
	api.name.Store(name)
}

func (api *API[S, C]) pluginName() string {
	if s, ok := api.name.Load().(string); ok && s != "" {
		return s
	}
	return "plugin"
}

func (api *API[S, C]) setContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	api.ctx.Store(ctx)
}

// release closes the databases opened by the plugin.
func (api *API[S, C]) release() {
	api.mu.Lock()
	dbs := api.databases
	api.databases = nil
	api.mu.Unlock()
	for _, db := range dbs {
		if err := db.Close(); err != nil {
			api.Logger().Error("Close plugin database.", "error", err)
		}
	}
}

// Name returns the name the plugin is managed under.
func (api *API[S, C]) Name() string {
	return api.pluginName()
}

// Context returns a context cancelled when the plugin is disabled.
func (api *API[S, C]) Context() context.Context {
	if ctx, ok := api.ctx.Load().(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

func (api *API[S, C]) setDataDirectory(dir string) {
	if dir != "" {
		dir = filepath.Clean(dir)
	}
	api.dataDir.Store(dir)
}

// DataDirectory returns the directory the plugin stores its data in.
func (api *API[S, C]) DataDirectory() string {
	if dir, ok := api.dataDir.Load().(string); ok && dir != "" {
		return dir
	}
	return api.manager.pluginDataDirectory(api.pluginName())
}

func (api *API[S, C]) resolveDataPath(name string) (string, error) {
	if name == "" {
		return "", errors.New("data path is empty")
	}
	if filepath.IsAbs(name) {
		return "", errors.New("data path must be relative")
	}
	base := api.DataDirectory()
	target := filepath.Join(base, filepath.Clean(name))
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errors.New("data path escapes plugin directory")
	}
	return target, nil
}

// EnsureDataSubdir creates a directory inside the data directory and returns
// its path. An empty name creates the data directory itself.
func (api *API[S, C]) EnsureDataSubdir(name string) (string, error) {
	path := api.DataDirectory()
	if name != "" {
		var err error
		if path, err = api.resolveDataPath(name); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// OpenDataFile opens a file inside the data directory, creating parent
// directories as needed.
func (api *API[S, C]) OpenDataFile(name string, flag int, perm fs.FileMode) (*os.File, error) {
	path, err := api.resolveDataPath(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if perm == 0 {
		perm = 0o644
	}
	return os.OpenFile(path, flag, perm)
}

// Go runs fn on a new goroutine with the plugin's context. A panic in fn
// disables the plugin.
func (api *API[S, C]) Go(fn func(context.Context)) {
	if fn == nil {
		return
	}
	ctx, name := api.Context(), api.pluginName()
	go api.manager.owners.invoke(name, func() { fn(ctx) })
}

// Server returns the runtime instance.
func (api *API[S, C]) Server() S {
	return api.host.Instance()
}

// Config returns a snapshot of the runtime configuration.
func (api *API[S, C]) Config() C {
	return api.host.Config()
}

// StartTime ...
func (api *API[S, C]) StartTime() time.Time {
	return api.host.StartTime()
}

// Debug reports whether debug mode is enabled.
func (api *API[S, C]) Debug() bool {
	return api.host.Debug()
}

// Logger returns a logger whose records carry the plugin's name.
func (api *API[S, C]) Logger() *slog.Logger {
	log := api.host.Logger()
	if log == nil {
		log = slog.Default()
	}
	return log.With("plugin", api.pluginName())
}

// Events returns the plugin's view of the event manager.
func (api *API[S, C]) Events() *PluginEvents[S, C] {
	return &PluginEvents[S, C]{api: api}
}

// RegisterCommand registers cmd as a command of the plugin.
func (api *API[S, C]) RegisterCommand(cmd command.Command) error {
	return api.host.Commands().RegisterFor(api.pluginName(), cmd)
}

// UnregisterCommand ...
func (api *API[S, C]) UnregisterCommand(cmd command.Command) {
	api.host.Commands().Unregister(cmd)
}

// Commands returns the data of every registered command.
func (api *API[S, C]) Commands() []command.Data {
	return api.host.Commands().Commands()
}

// ExecuteCommand runs a command line on behalf of sender and reports whether a
// command was found.
func (api *API[S, C]) ExecuteCommand(sender player.Sender, line string) bool {
	return api.host.Commands().Dispatch(sender, line)
}

// Players returns the online players.
func (api *API[S, C]) Players() player.Directory {
	return api.host.Players()
}

// Player returns the online player with the UUID passed.
func (api *API[S, C]) Player(id uuid.UUID) (player.Wrapper, bool) {
	return api.host.Players().Find(id)
}

// PlayerSummaries returns a snapshot of every online player.
func (api *API[S, C]) PlayerSummaries() []PlayerSummary {
	wrappers := api.host.Players().Wrappers()
	summaries := make([]PlayerSummary, 0, len(wrappers))
	for _, w := range wrappers {
		summaries = append(summaries, PlayerSummary{
			UUID:        w.UUID(),
			Name:        w.Name(),
			DisplayName: w.DisplayName(),
			Ping:        w.Ping(),
		})
	}
	return summaries
}

// MessagePlayer sends a colour tagged message to a player. It reports whether
// the player is online.
func (api *API[S, C]) MessagePlayer(id uuid.UUID, message string, placeholders ...string) (bool, error) {
	w, ok := api.Player(id)
	if !ok {
		return false, nil
	}
	return true, player.SendMiniMessage(w, message, placeholders...)
}

// Broadcast sends a colour tagged message to every online player.
func (api *API[S, C]) Broadcast(message string, placeholders ...string) error {
	for _, w := range api.host.Players().Wrappers() {
		if err := player.SendMiniMessage(w, message, placeholders...); err != nil {
			return err
		}
	}
	return nil
}

// Database returns the shared database of the core, or nil.
func (api *API[S, C]) Database() *database.Connection {
	return api.host.Database()
}

// OpenDatabase connects to a database for the plugin alone. SQLite files are
// stored in the plugin's data directory. The connection is migrated with
// migrations, recorded under the plugin name, and closed when the plugin is
// disabled.
func (api *API[S, C]) OpenDatabase(ctx context.Context, cfg database.Config, migrations ...database.Migration) (*database.Connection, error) {
	conn := database.New(api.Logger(), api.DataDirectory(), migrations...)
	conn.SetNamespace(strings.ToLower(api.pluginName()))
	if err := conn.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	if _, err := conn.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	api.mu.Lock()
	api.databases = append(api.databases, conn)
	api.mu.Unlock()
	return conn, nil
}

// Messenger returns the event messenger, or nil.
func (api *API[S, C]) Messenger() *messenger.EventMessenger {
	return api.host.Messenger()
}

// PublishEvent sends e to the other servers of the network.
func (api *API[S, C]) PublishEvent(ctx context.Context, sender player.Wrapper, e event.Event) error {
	m := api.host.Messenger()
	if m == nil {
		return ErrMessengerDisabled
	}
	return m.PublishEvent(ctx, sender, e)
}

// CloseServer shuts the runtime down.
func (api *API[S, C]) CloseServer() error {
	return api.host.Close()
}

// PluginsEnabled ...
func (api *API[S, C]) PluginsEnabled() bool {
	return api.host.PluginsEnabled()
}

// Plugins returns the loaded plugins.
func (api *API[S, C]) Plugins() []Info {
	return api.manager.Infos()
}

// Plugin returns a loaded plugin by name.
func (api *API[S, C]) Plugin(name string) (Plugin, bool) {
	return api.manager.Plugin(name)
}

// EnablePlugin ...
func (api *API[S, C]) EnablePlugin(path string) (Info, error) {
	return api.manager.Enable(path)
}

// DisablePlugin ...
func (api *API[S, C]) DisablePlugin(name string) (Info, error) {
	return api.manager.Disable(name)
}

// ReloadPlugin ...
func (api *API[S, C]) ReloadPlugin(name string) (Info, error) {
	return api.manager.Reload(name)
}

// DisableAllPlugins ...
func (api *API[S, C]) DisableAllPlugins() ([]Info, error) {
	return api.manager.DisableAll()
}

// PluginDirectory returns the directory plugin files are loaded from.
func (api *API[S, C]) PluginDirectory() string {
	return api.manager.Directory()
}

// PluginDataRoot ...
func (api *API[S, C]) PluginDataRoot() string {
	return api.manager.DataRoot()
}

// ResolvePluginPath ...
func (api *API[S, C]) ResolvePluginPath(path string) string {
	return api.manager.ResolvePath(path)
}

// LoadConfig loads the configuration file of a plugin from its data directory,
// writing defaults for missing keys.
func LoadConfig[T any, S any, C any](api *API[S, C], defaults func() T, opts ...config.Option) (*config.Container[T], error) {
	dir, err := api.EnsureDataSubdir("")
	if err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}
	return config.Load(dir, defaults, opts...)
}

// PluginEvents registers event handlers on behalf of a plugin.
type PluginEvents[S any, C any] struct {
	api *API[S, C]
}

// Register registers the handler methods of listener.
func (pe *PluginEvents[S, C]) Register(listener any) error {
	return pe.api.host.Events().RegisterListenerFor(pe.api.pluginName(), listener)
}

// Unregister removes the handlers of listener.
func (pe *PluginEvents[S, C]) Unregister(listener any) {
	pe.api.host.Events().UnregisterListener(listener)
}

// Fire fires e on the event manager.
func (pe *PluginEvents[S, C]) Fire(ctx context.Context, e event.Event) error {
	return pe.api.host.Events().Fire(ctx, e)
}

// FireAsync fires e on another goroutine.
func (pe *PluginEvents[S, C]) FireAsync(ctx context.Context, e event.Event) <-chan error {
	return pe.api.host.Events().FireAsync(ctx, e)
}

// Clear removes every handler of the plugin.
func (pe *PluginEvents[S, C]) Clear() {
	pe.api.host.Events().UnregisterOwner(pe.api.pluginName())
}

// Subscribe adds fn as handler of events of type E on behalf of the plugin.
// The function returned removes the handler.
func Subscribe[E event.Event, S any, C any](api *API[S, C], fn func(E) error, opts ...event.SubscribeOption) func() {
	return event.Subscribe(api.host.Events(), api.pluginName(), fn, opts...)
}
