// Package plugin loads NookCore plugins from Go plugin files and manages their
// lifecycle. Every listener, command and database opened through a plugin's
// API belongs to that plugin and is released when it is disabled.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goplugin "plugin"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

var pluginFactorySymbols = []string{"InitPlugin", "Init", "NewPlugin", "New"}

type pluginInstance[S any, C any] struct {
	name        string
	version     string
	description string
	path        string
	plugin      Plugin
	api         *API[S, C]
	cancel      context.CancelFunc
}

func (pi pluginInstance[S, C]) info() Info {
	return Info{Name: pi.name, Version: pi.version, Description: pi.description, Path: pi.path}
}

// Manager discovers, enables and disables plugins.
type Manager[S any, C any] struct {
	host       Host[S, C]
	cfg        Config
	log        *slog.Logger
	runtimeLog *slog.Logger

	once    sync.Once
	mu      sync.RWMutex
	plugins []pluginInstance[S, C]
	owners  *owners[S, C]
}

// NewManager returns a Manager for host. Panics of plugin listeners and
// commands disable the plugin from then on.
func NewManager[S any, C any](host Host[S, C], cfg Config) *Manager[S, C] {
	m := &Manager[S, C]{host: host, cfg: cfg}
	m.cfg.Files = slices.Clone(cfg.Files)

	log := host.Logger()
	if log == nil {
		log = slog.Default()
	}
	m.log = log
	m.runtimeLog = log.With("subsystem", "plugin.runtime")
	m.owners = newOwners(m, host, log)
	return m
}

// Enabled reports whether the plugin loader is turned on.
func (m *Manager[S, C]) Enabled() bool {
	return m.cfg.Enabled
}

// Directory returns the directory plugin files are loaded from.
func (m *Manager[S, C]) Directory() string {
	return m.directory()
}

// DataRoot returns the directory holding the plugin data directories.
func (m *Manager[S, C]) DataRoot() string {
	return m.dataRoot()
}

// ResolvePath resolves a relative path against the plugin directory.
func (m *Manager[S, C]) ResolvePath(path string) string {
	return m.resolvePath(path)
}

// LoadConfigured enables the configured plugins. Only the first call has an
// effect.
func (m *Manager[S, C]) LoadConfigured() {
	m.once.Do(m.loadConfigured)
}

// Infos returns the loaded plugins in load order.
func (m *Manager[S, C]) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(m.plugins, func(p pluginInstance[S, C], _ int) Info { return p.info() })
}

// Plugin returns a loaded plugin by name.
func (m *Manager[S, C]) Plugin(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := lo.Find(m.plugins, func(p pluginInstance[S, C]) bool { return strings.EqualFold(p.name, name) })
	return p.plugin, ok
}

// Enable opens the plugin file at path and enables the plugin it exports.
func (m *Manager[S, C]) Enable(path string) (Info, error) {
	if !m.Enabled() {
		return Info{}, ErrDisabled
	}
	if err := m.ensureDirectory(); err != nil {
		return Info{}, fmt.Errorf("prepare plugin directory: %w", err)
	}
	resolved := m.resolvePath(path)
	if info, ok := m.loadedPath(resolved); ok {
		return info, ErrAlreadyLoaded
	}

	mod, err := goplugin.Open(resolved)
	if err != nil {
		return Info{}, fmt.Errorf("open plugin: %w", err)
	}
	factory, symbol, err := lookupPluginFactory[S, C](mod)
	if err != nil {
		return Info{}, fmt.Errorf("locate plugin factory: %w", err)
	}
	return m.enable(resolved, symbol, factory)
}

func (m *Manager[S, C]) loadedPath(resolved string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, existing := range m.plugins {
		if existing.path == resolved {
			return existing.info(), true
		}
	}
	return Info{}, false
}

// enable runs factory and registers the plugin it returns under resolved.
func (m *Manager[S, C]) enable(resolved, symbol string, factory PluginFactory[S, C]) (info Info, err error) {
	if err := m.ensureDataRoot(); err != nil {
		return Info{}, fmt.Errorf("prepare plugin data storage: %w", err)
	}

	initialName := pluginBaseName(resolved)
	ctx, cancel := context.WithCancel(context.Background())
	api := newAPI(m, m.host, initialName)
	api.setContext(ctx)
	initialDataDir := m.pluginDataDirectory(initialName)
	if err := os.MkdirAll(initialDataDir, 0o755); err != nil {
		cancel()
		return Info{}, fmt.Errorf("create plugin data directory: %w", err)
	}
	api.setDataDirectory(initialDataDir)
	defer func() {
		if err != nil {
			cancel()
			m.owners.clear(api.pluginName())
			api.release()
		}
	}()

	inst, err := callFactory(factory, api)
	if err != nil {
		return Info{}, fmt.Errorf("initialise plugin via %s: %w", symbol, err)
	}
	if inst == nil {
		return Info{}, fmt.Errorf("initialise plugin via %s: factory returned nil", symbol)
	}

	name := inst.Name()
	if name == "" {
		name = api.pluginName()
	}
	entry := pluginInstance[S, C]{name: name, path: resolved, plugin: inst, api: api, cancel: cancel}
	if v, ok := inst.(VersionedPlugin); ok {
		entry.version = v.Version()
	}
	if d, ok := inst.(DescribedPlugin); ok {
		entry.description = d.Description()
	}

	m.mu.Lock()
	if slices.ContainsFunc(m.plugins, func(p pluginInstance[S, C]) bool { return strings.EqualFold(p.name, name) }) {
		m.mu.Unlock()
		if err := m.closePlugin(entry); err != nil {
			m.log.Error("Close conflicting plugin instance.", "error", err, "name", name, "path", resolved)
		}
		return Info{}, fmt.Errorf("%w: %s", ErrNameConflict, name)
	}
	m.owners.rename(api.pluginName(), name)
	api.setName(name)
	if targetDir := m.pluginDataDirectory(name); targetDir != api.DataDirectory() {
		if err := m.migrateDataDirectory(api.DataDirectory(), targetDir); err != nil {
			m.runtimeLog.Error("Migrate plugin data directory.", "plugin", name, "error", err)
		} else {
			api.setDataDirectory(targetDir)
		}
	}
	m.plugins = append(m.plugins, entry)
	m.mu.Unlock()

	attrs := []any{"name", entry.name, "path", entry.path}
	if entry.version != "" {
		attrs = append(attrs, "version", entry.version)
	}
	attrs = append(attrs, "symbol", symbol)
	m.log.Info("Plugin enabled.", attrs...)
	return entry.info(), nil
}

func callFactory[S any, C any](factory PluginFactory[S, C], api *API[S, C]) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	return factory(api)
}

// Disable closes a plugin by name and removes everything it registered.
func (m *Manager[S, C]) Disable(name string) (Info, error) {
	if !m.Enabled() {
		return Info{}, ErrDisabled
	}

	m.mu.Lock()
	index := slices.IndexFunc(m.plugins, func(p pluginInstance[S, C]) bool { return strings.EqualFold(p.name, name) })
	if index == -1 {
		m.mu.Unlock()
		return Info{}, ErrNotFound
	}
	entry := m.plugins[index]
	m.plugins = slices.Delete(m.plugins, index, index+1)
	m.mu.Unlock()

	if err := m.closePlugin(entry); err != nil {
		m.mu.Lock()
		m.plugins = append(m.plugins, entry)
		m.mu.Unlock()
		return Info{}, fmt.Errorf("close plugin: %w", err)
	}
	m.release(entry)

	m.log.Info("Plugin disabled.", "name", entry.name, "path", entry.path)
	return entry.info(), nil
}

func (m *Manager[S, C]) closePlugin(entry pluginInstance[S, C]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return entry.plugin.Close()
}

func (m *Manager[S, C]) release(entry pluginInstance[S, C]) {
	if entry.cancel != nil {
		entry.cancel()
	}
	m.owners.clear(entry.name)
	if entry.api != nil {
		entry.api.release()
	}
}

// Reload disables a plugin and enables its file again.
func (m *Manager[S, C]) Reload(name string) (Info, error) {
	info, err := m.Disable(name)
	if err != nil {
		return Info{}, err
	}
	reloaded, err := m.Enable(info.Path)
	if err != nil {
		return Info{}, err
	}

	attrs := []any{"name", reloaded.Name, "path", reloaded.Path}
	if reloaded.Version != "" {
		attrs = append(attrs, "version", reloaded.Version)
	}
	m.log.Info("Plugin reloaded.", attrs...)
	return reloaded, nil
}

// DisableAll disables every plugin in reverse load order and returns the
// plugins disabled, in the order they were disabled.
func (m *Manager[S, C]) DisableAll() ([]Info, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}

	m.mu.RLock()
	names := lo.Map(m.plugins, func(p pluginInstance[S, C], _ int) string { return p.name })
	m.mu.RUnlock()

	infos := make([]Info, 0, len(names))
	for _, name := range lo.Reverse(names) {
		info, err := m.Disable(name)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Shutdown disables every plugin in reverse load order, ignoring errors.
func (m *Manager[S, C]) Shutdown() {
	m.mu.Lock()
	plugins := slices.Clone(m.plugins)
	m.plugins = nil
	m.mu.Unlock()

	for i := len(plugins) - 1; i >= 0; i-- {
		entry := plugins[i]
		err := m.closePlugin(entry)
		m.release(entry)
		if err != nil {
			m.log.Error("Disable plugin.", "error", err, "name", entry.name, "path", entry.path)
			continue
		}
		m.log.Info("Plugin disabled.", "name", entry.name, "path", entry.path)
	}
}

func (m *Manager[S, C]) loadConfigured() {
	cfg := m.cfg
	if !cfg.Enabled {
		m.log.Debug("Plugin system disabled.")
		return
	}

	dir := m.directory()
	if err := m.ensureDirectory(); err != nil {
		m.log.Error("Create plugin directory.", "error", err, "dir", dir)
		return
	}

	var paths []string
	if cfg.Autoload {
		entries, err := os.ReadDir(dir)
		if err != nil {
			m.log.Error("Read plugin directory.", "error", err, "dir", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".so") {
				continue
			}
			paths = append(paths, filepath.Clean(filepath.Join(dir, entry.Name())))
		}
	}
	for _, file := range cfg.Files {
		paths = append(paths, m.resolvePath(file))
	}
	paths = lo.Uniq(paths)

	if len(paths) == 0 {
		m.log.Debug("No plugins discovered.")
		return
	}

	slices.Sort(paths)
	for _, path := range paths {
		if _, err := m.Enable(path); err != nil {
			m.log.Error("Enable plugin.", "error", err, "path", path)
		}
	}
}

func (m *Manager[S, C]) directory() string {
	if m.cfg.Directory == "" {
		return "plugins"
	}
	return m.cfg.Directory
}

func (m *Manager[S, C]) ensureDirectory() error {
	return os.MkdirAll(m.directory(), 0o755)
}

func (m *Manager[S, C]) resolvePath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) {
		return cleaned
	}
	dir := filepath.Clean(m.directory())
	if cleaned == dir {
		return dir
	}
	// "plugins/demo.so" is already relative to the plugin directory.
	if rel, err := filepath.Rel(dir, cleaned); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return cleaned
	}
	return filepath.Clean(filepath.Join(dir, cleaned))
}

func (m *Manager[S, C]) dataRoot() string {
	dir := m.cfg.DataDirectory
	if dir == "" {
		dir = filepath.Join(m.directory(), "data")
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.directory(), dir)
	}
	return filepath.Clean(dir)
}

func (m *Manager[S, C]) ensureDataRoot() error {
	return os.MkdirAll(m.dataRoot(), 0o755)
}

func (m *Manager[S, C]) pluginDataDirectory(name string) string {
	return filepath.Join(m.dataRoot(), sanitizePluginDirectory(name))
}

func (m *Manager[S, C]) migrateDataDirectory(from, to string) error {
	if from == to {
		return nil
	}
	if to == "" {
		return errors.New("empty target data directory")
	}
	if from == "" {
		return os.MkdirAll(to, 0o755)
	}
	info, err := os.Stat(from)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(to, 0o755)
		}
		return fmt.Errorf("stat source data directory: %w", err)
	}
	if !info.IsDir() {
		return errors.New("source data directory is not a directory")
	}
	if _, err := os.Stat(to); err == nil {
		// Keep the data the plugin stored under its final name.
		return os.RemoveAll(from)
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("ensure target parent: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename data directory: %w", err)
	}
	return nil
}

// handlePluginPanic removes the listeners and commands of a plugin that
// panicked and disables it. Panics of handlers without owner are only logged.
func (m *Manager[S, C]) handlePluginPanic(name string, reason any) {
	stack := debug.Stack()
	if name == "" {
		m.runtimeLog.Error("Core handler panic.", "panic", reason, "stack", string(stack))
		return
	}
	m.owners.clear(name)
	m.runtimeLog.Error("Plugin panic.", "plugin", name, "panic", reason, "stack", string(stack))
	go func() {
		info, err := m.Disable(name)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.runtimeLog.Error("Disable panic plugin.", "plugin", name, "error", err)
			}
			return
		}
		attrs := []any{"name", info.Name, "path", info.Path}
		if info.Version != "" {
			attrs = append(attrs, "version", info.Version)
		}
		m.runtimeLog.Warn("Plugin disabled after panic.", attrs...)
	}()
}

func pluginBaseName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" {
		return "plugin"
	}
	return base
}

func sanitizePluginDirectory(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(strings.TrimSpace(name)))
	sanitized = strings.Trim(sanitized, "-_.")
	if sanitized == "" {
		return "plugin"
	}
	return sanitized
}

var errSymbolNotFound = errors.New("symbol not found")

func lookupPluginFactory[S any, C any](mod *goplugin.Plugin) (PluginFactory[S, C], string, error) {
	for _, symbol := range pluginFactorySymbols {
		sym, err := mod.Lookup(symbol)
		if err != nil {
			continue
		}
		factory, err := asPluginFactory[S, C](symbol, sym)
		if err != nil {
			return nil, symbol, err
		}
		return factory, symbol, nil
	}
	return nil, "", errSymbolNotFound
}

// asPluginFactory converts an exported symbol to a PluginFactory. Functions and
// pointers to function variables are accepted, with or without error result.
func asPluginFactory[S any, C any](symbol string, sym any) (PluginFactory[S, C], error) {
	nonNil := func(ctor func(*API[S, C]) Plugin) PluginFactory[S, C] {
		return func(api *API[S, C]) (Plugin, error) {
			p := ctor(api)
			if p == nil {
				return nil, fmt.Errorf("%s returned nil plugin", symbol)
			}
			return p, nil
		}
	}
	switch fn := sym.(type) {
	case PluginFactory[S, C]:
		return fn, nil
	case *PluginFactory[S, C]:
		return *fn, nil
	case func(*API[S, C]) (Plugin, error):
		return fn, nil
	case *func(*API[S, C]) (Plugin, error):
		return *fn, nil
	case func(*API[S, C]) Plugin:
		return nonNil(fn), nil
	case *func(*API[S, C]) Plugin:
		return nonNil(*fn), nil
	default:
		return nil, fmt.Errorf("symbol %s has incompatible type %T", symbol, sym)
	}
}
