package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/nookure/nookcore/core/player"
)

type testServer struct{}
type testConfig struct{}

type testHost struct {
	log      *slog.Logger
	events   *event.Manager
	commands *command.Manager
	players  *player.WrapperManager[uuid.UUID, player.Wrapper]
}

func newTestHost() *testHost {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &testHost{
		log:      log,
		events:   event.NewManager(log, event.DefaultAsyncLimit),
		commands: command.NewManager(log, nil),
		players:  player.NewWrapperManager[uuid.UUID, player.Wrapper](),
	}
}

func (h *testHost) Instance() testServer                  { return testServer{} }
func (h *testHost) Config() testConfig                    { return testConfig{} }
func (h *testHost) Logger() *slog.Logger                  { return h.log }
func (h *testHost) StartTime() time.Time                  { return time.Time{} }
func (h *testHost) Debug() bool                           { return true }
func (h *testHost) Events() *event.Manager                { return h.events }
func (h *testHost) Commands() *command.Manager            { return h.commands }
func (h *testHost) Players() player.Directory             { return h.players }
func (h *testHost) Database() *database.Connection        { return nil }
func (h *testHost) Messenger() *messenger.EventMessenger  { return nil }
func (h *testHost) Close() error                          { return nil }
func (h *testHost) PluginsEnabled() bool                  { return true }

func newTestManager(t *testing.T, cfg Config) (*Manager[testServer, testConfig], *testHost) {
	t.Helper()
	if cfg.Directory == "" {
		cfg.Directory = t.TempDir()
	}
	host := newTestHost()
	return NewManager[testServer, testConfig](host, cfg), host
}

type pingEvent struct{ n int }

func (*pingEvent) EventName() string { return "test:ping" }

func TestSanitizePluginDirectory(t *testing.T) {
	cases := map[string]string{
		"":                  "plugin",
		"   ":               "plugin",
		"Example Plugin":    "example-plugin",
		"Example_Plugin":    "example_plugin",
		"Example.Plugin":    "example.plugin",
		"Example@Plugin#":   "example-plugin",
		"--Already-Safe--":  "already-safe",
		"MiXeD CaSe Name":   "mixed-case-name",
		"    dots...here  ": "dots...here",
	}

	for input, want := range cases {
		if got := sanitizePluginDirectory(input); got != want {
			t.Fatalf("sanitizePluginDirectory(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPluginBaseName(t *testing.T) {
	cases := map[string]string{
		"":                  "plugin",
		"file":              "file",
		"file.so":           "file",
		"path/to/plugin":    "plugin",
		"path/to/plugin.so": "plugin",
		"path/.hidden.so":   ".hidden",
	}

	for input, want := range cases {
		if got := pluginBaseName(input); got != want {
			t.Fatalf("pluginBaseName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestManagerPluginDataDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	manager, _ := newTestManager(t, Config{Enabled: true, Directory: root})

	if got, want := manager.pluginDataDirectory("Staff Mode"), filepath.Join(root, "data", "staff-mode"); got != want {
		t.Fatalf("pluginDataDirectory returned %q, want %q", got, want)
	}

	manager.cfg.DataDirectory = "custom"
	if got, want := manager.pluginDataDirectory("Another Plugin"), filepath.Join(root, "custom", "another-plugin"); got != want {
		t.Fatalf("pluginDataDirectory with custom root returned %q, want %q", got, want)
	}
}

func TestManagerMigrateDataDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	manager, _ := newTestManager(t, Config{Enabled: true, Directory: root})

	from := filepath.Join(root, "old")
	to := filepath.Join(root, "new")
	if err := os.MkdirAll(from, 0o755); err != nil {
		t.Fatalf("create source directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(from, "config.toml"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source data: %v", err)
	}

	if err := manager.migrateDataDirectory(from, to); err != nil {
		t.Fatalf("migrate data directory: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(to, "config.toml"))
	if err != nil {
		t.Fatalf("read migrated file: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("migrated data mismatch: got %q", string(data))
	}
	if _, err := os.Stat(from); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("source directory still exists after migrate")
	}

	target := filepath.Join(root, "generated")
	if err := manager.migrateDataDirectory("", target); err != nil {
		t.Fatalf("migrateDataDirectory should create target when source empty: %v", err)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Fatalf("generated target missing: %v", err)
	}
}

func TestManagerDirectoryResolution(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	manager, _ := newTestManager(t, Config{Enabled: true, Directory: root, DataDirectory: "state"})

	if got, want := manager.Directory(), root; got != want {
		t.Fatalf("Directory() = %q, want %q", got, want)
	}
	if got, want := manager.DataRoot(), filepath.Join(root, "state"); got != want {
		t.Fatalf("DataRoot() = %q, want %q", got, want)
	}
	if got, want := manager.ResolvePath("example.so"), filepath.Join(root, "example.so"); got != want {
		t.Fatalf("ResolvePath relative = %q, want %q", got, want)
	}
	abs := filepath.Join(root, "other.so")
	if got := manager.ResolvePath(abs); got != abs {
		t.Fatalf("ResolvePath absolute = %q, want %q", got, abs)
	}
}

type closingPlugin struct {
	name   string
	closed chan struct{}
}

func newClosingPlugin(name string) *closingPlugin {
	return &closingPlugin{name: name, closed: make(chan struct{})}
}

func (p *closingPlugin) Name() string    { return p.name }
func (p *closingPlugin) Version() string { return "1.0.0" }

func (p *closingPlugin) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func factoryFor(p Plugin, setup func(api *API[testServer, testConfig]) error) PluginFactory[testServer, testConfig] {
	return func(api *API[testServer, testConfig]) (Plugin, error) {
		if setup != nil {
			if err := setup(api); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}

func TestManagerEnableRegistersOwnedHandlers(t *testing.T) {
	t.Parallel()

	manager, host := newTestManager(t, Config{Enabled: true})
	path := manager.ResolvePath("staff-file.so")

	var got []int
	info, err := manager.enable(path, "New", factoryFor(newClosingPlugin("StaffMode"), func(api *API[testServer, testConfig]) error {
		Subscribe(api, func(e *pingEvent) error {
			got = append(got, e.n)
			return nil
		})
		return api.RegisterCommand(command.Func{D: command.Data{Name: "staff"}, Fn: func(player.Sender, string, []string) {}})
	}))
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if info.Name != "StaffMode" || info.Version != "1.0.0" || info.Path != path {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(manager.DataRoot(), "staffmode")); err != nil {
		t.Fatalf("data directory was not migrated to the plugin name: %v", err)
	}

	if err := host.events.Fire(context.Background(), &pingEvent{n: 1}); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if _, _, ok := host.commands.Lookup("staff"); !ok {
		t.Fatalf("command was not registered")
	}

	if _, err := manager.Disable("staffmode"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if n := host.events.HandlerCount(&pingEvent{}); n != 0 {
		t.Fatalf("expected handlers to be cleared, got %d", n)
	}
	if _, _, ok := host.commands.Lookup("staff"); ok {
		t.Fatalf("command still registered after disable")
	}
}

func TestManagerEnableNameConflict(t *testing.T) {
	t.Parallel()

	manager, host := newTestManager(t, Config{Enabled: true})
	first := newClosingPlugin("demo")
	if _, err := manager.enable(manager.ResolvePath("a.so"), "New", factoryFor(first, nil)); err != nil {
		t.Fatalf("enable first: %v", err)
	}

	second := newClosingPlugin("Demo")
	_, err := manager.enable(manager.ResolvePath("b.so"), "New", factoryFor(second, func(api *API[testServer, testConfig]) error {
		Subscribe(api, func(*pingEvent) error { return nil })
		return nil
	}))
	if !errors.Is(err, ErrNameConflict) {
		t.Fatalf("enable second = %v, want ErrNameConflict", err)
	}
	select {
	case <-second.closed:
	default:
		t.Fatalf("conflicting plugin was not closed")
	}
	if n := host.events.HandlerCount(&pingEvent{}); n != 0 {
		t.Fatalf("handlers of the conflicting plugin were kept: %d", n)
	}
	if len(manager.Infos()) != 1 {
		t.Fatalf("expected one loaded plugin, got %d", len(manager.Infos()))
	}
}

func TestManagerEnableFactoryFailure(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, Config{Enabled: true})
	_, err := manager.enable(manager.ResolvePath("bad.so"), "New", func(*API[testServer, testConfig]) (Plugin, error) {
		panic("broken")
	})
	if err == nil {
		t.Fatalf("expected an error from a panicking factory")
	}
	_, err = manager.enable(manager.ResolvePath("nil.so"), "New", func(*API[testServer, testConfig]) (Plugin, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatalf("expected an error from a nil plugin")
	}
}

func TestManagerDisableAll(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, Config{Enabled: true})
	first := newClosingPlugin("first")
	second := newClosingPlugin("second")
	manager.plugins = []pluginInstance[testServer, testConfig]{
		{name: first.name, plugin: first, path: "first.so"},
		{name: second.name, plugin: second, path: "second.so"},
	}

	infos, err := manager.DisableAll()
	if err != nil {
		t.Fatalf("DisableAll() error = %v", err)
	}
	if len(infos) != 2 || infos[0].Name != "second" || infos[1].Name != "first" {
		t.Fatalf("DisableAll() order = %v", infos)
	}
	for _, p := range []*closingPlugin{first, second} {
		select {
		case <-p.closed:
		default:
			t.Fatalf("%s plugin was not closed", p.name)
		}
	}
	if got := manager.Infos(); len(got) != 0 {
		t.Fatalf("DisableAll() left %d plugins loaded", len(got))
	}
}

func TestManagerDisabled(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, Config{Enabled: false})
	if infos, err := manager.DisableAll(); !errors.Is(err, ErrDisabled) || infos != nil {
		t.Fatalf("DisableAll() = (%v, %v), want (nil, ErrDisabled)", infos, err)
	}
	if _, err := manager.Enable("x.so"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Enable() = %v, want ErrDisabled", err)
	}
	if _, err := manager.Disable("x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Disable() = %v, want ErrDisabled", err)
	}
}

func TestManagerHandlerPanicDisablesPlugin(t *testing.T) {
	t.Parallel()

	manager, host := newTestManager(t, Config{Enabled: true})
	p := newClosingPlugin("panic")
	_, err := manager.enable(manager.ResolvePath("panic.so"), "New", factoryFor(p, func(api *API[testServer, testConfig]) error {
		Subscribe(api, func(*pingEvent) error { panic("boom") })
		return nil
	}))
	if err != nil {
		t.Fatalf("enable: %v", err)
	}

	if err := host.events.Fire(context.Background(), &pingEvent{}); err == nil {
		t.Fatalf("expected the panic to be reported")
	}

	select {
	case <-p.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("plugin close was not invoked after panic")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(manager.Infos()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("plugin was not removed after panic")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := host.events.HandlerCount(&pingEvent{}); n != 0 {
		t.Fatalf("expected handlers to be cleared, got %d", n)
	}
}

func TestAPIOpenDatabaseClosedOnDisable(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, Config{Enabled: true})
	var conn *database.Connection
	_, err := manager.enable(manager.ResolvePath("db.so"), "New", factoryFor(newClosingPlugin("db"), func(api *API[testServer, testConfig]) error {
		var err error
		conn, err = api.OpenDatabase(api.Context(), database.DefaultConfig(), database.CoreMigrations()...)
		return err
	}))
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !conn.Connected() {
		t.Fatalf("database is not connected")
	}
	if ns := conn.Namespace(); ns != "db" {
		t.Fatalf("expected migrations recorded under %q, got %q", "db", ns)
	}
	if _, err := manager.Disable("db"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if conn.Connected() {
		t.Fatalf("database still connected after disable")
	}
}

type demoConfig struct {
	Greeting string `toml:"greeting"`
}

func TestAPILoadConfigAndDataPaths(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, Config{Enabled: true})
	api := newAPI(manager, manager.host, "Config Plugin")

	cfg, err := LoadConfig(api, func() demoConfig { return demoConfig{Greeting: "hi"} })
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Get().Greeting != "hi" {
		t.Fatalf("unexpected greeting %q", cfg.Get().Greeting)
	}
	if want := filepath.Join(manager.DataRoot(), "config-plugin"); filepath.Dir(cfg.Path()) != want {
		t.Fatalf("config stored in %q, want %q", filepath.Dir(cfg.Path()), want)
	}

	if _, err := api.OpenDataFile("../escape.txt", os.O_CREATE|os.O_WRONLY, 0); err == nil {
		t.Fatalf("expected escaping data path to fail")
	}
	f, err := api.OpenDataFile("nested/file.txt", os.O_CREATE|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenDataFile: %v", err)
	}
	_ = f.Close()
}

func TestAsPluginFactory(t *testing.T) {
	p := newClosingPlugin("x")
	plain := func(*API[testServer, testConfig]) Plugin { return p }
	withErr := func(*API[testServer, testConfig]) (Plugin, error) { return p, nil }
	nilPlugin := func(*API[testServer, testConfig]) Plugin { return nil }

	for _, sym := range []any{plain, &plain, withErr, &withErr, PluginFactory[testServer, testConfig](withErr)} {
		f, err := asPluginFactory[testServer, testConfig]("New", sym)
		if err != nil {
			t.Fatalf("asPluginFactory(%T): %v", sym, err)
		}
		if got, err := f(nil); err != nil || got != p {
			t.Fatalf("factory of %T returned (%v, %v)", sym, got, err)
		}
	}

	f, err := asPluginFactory[testServer, testConfig]("New", nilPlugin)
	if err != nil {
		t.Fatalf("asPluginFactory: %v", err)
	}
	if _, err := f(nil); err == nil {
		t.Fatalf("expected an error for a nil plugin")
	}
	if _, err := asPluginFactory[testServer, testConfig]("New", 42); err == nil {
		t.Fatalf("expected an error for an incompatible symbol")
	}
}

var _ Host[testServer, testConfig] = (*testHost)(nil)
