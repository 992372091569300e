package command

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/nookure/nookcore/core/config"
	"github.com/nookure/nookcore/core/player"
	"github.com/samber/lo"
	"golang.org/x/text/cases"
)

var (
	// ErrInvalidCommand is returned when registering a command without a name.
	ErrInvalidCommand = errors.New("command has no name")
	// ErrAlreadyRegistered is returned when the name or an alias of a command
	// is already taken by another command.
	ErrAlreadyRegistered = errors.New("command already registered")
)

// NoCommandPermissionMessage is sent when a sender lacks the permission of a
// command.
const NoCommandPermissionMessage = "<red>You don't have permission to execute this command"

// InternalErrorMessage is sent when a command panics.
const InternalErrorMessage = "<red>An internal error occurred while executing this command"

// Registrar makes commands known to the platform the server runs on, so that
// players can run them and see them in their command list.
type Registrar interface {
	RegisterCommand(cmd Command, data Data) error
	UnregisterCommand(data Data)
}

type entry struct {
	cmd   Command
	data  Data
	owner string
}

// Manager keeps track of registered commands and runs them.
type Manager struct {
	log *slog.Logger
	cfg *config.Container[Config]

	mu        sync.RWMutex
	registrar Registrar
	entries   []*entry
	labels    map[string]*entry
	// reserved holds the labels of commands being registered with the
	// platform.
	reserved map[string]struct{}
	onPanic  func(owner string, reason any)
}

// NewManager returns a Manager applying the overrides in cfg. cfg may be nil,
// in which case commands are registered as they are.
func NewManager(log *slog.Logger, cfg *config.Container[Config]) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:    log.With("subsystem", "commands"),
		cfg:      cfg,
		labels:   make(map[string]*entry),
		reserved: make(map[string]struct{}),
	}
}

// SetRegistrar sets the platform registrar and forwards every command
// registered so far to it.
func (m *Manager) SetRegistrar(r Registrar) {
	m.mu.Lock()
	m.registrar = r
	entries := slices.Clone(m.entries)
	m.mu.Unlock()

	if r == nil {
		return
	}
	for _, e := range entries {
		if err := r.RegisterCommand(e.cmd, e.data); err != nil {
			m.log.Error("Register command with platform.", "command", e.data.Name, "error", err)
		}
	}
}

// SetConfig sets the overrides applied to commands registered from now on.
func (m *Manager) SetConfig(cfg *config.Container[Config]) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// SetPanicHandler sets a function called with the owner of a command that
// panicked while executing.
func (m *Manager) SetPanicHandler(fn func(owner string, reason any)) {
	m.mu.Lock()
	m.onPanic = fn
	m.mu.Unlock()
}

// Register registers cmd without an owner.
func (m *Manager) Register(cmd Command) error {
	return m.RegisterFor("", cmd)
}

// RegisterFor registers cmd on behalf of owner. The command configuration is
// consulted first: a command missing from it is added with the data from
// code, otherwise the configured overrides are applied. Commands disabled in
// the configuration are skipped without error. The command's Prepare method
// runs once it is registered.
func (m *Manager) RegisterFor(owner string, cmd Command) error {
	data := cmd.Data()
	if strings.TrimSpace(data.Name) == "" {
		return ErrInvalidCommand
	}
	partial, err := m.partial(data)
	if err != nil {
		return err
	}
	if !partial.Enabled {
		m.log.Info("Command disabled in configuration.", "command", data.Name)
		return nil
	}
	effective := partial.apply(data)

	labels := lo.Uniq(lo.Map(effective.Labels(), func(l string, _ int) string { return fold(l) }))
	m.mu.Lock()
	for _, label := range labels {
		if existing, ok := m.labels[label]; ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s (taken by %s)", ErrAlreadyRegistered, label, existing.data.Name)
		}
		if _, ok := m.reserved[label]; ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, label)
		}
	}
	for _, label := range labels {
		m.reserved[label] = struct{}{}
	}
	registrar := m.registrar
	m.mu.Unlock()

	if registrar != nil {
		if err := registrar.RegisterCommand(cmd, effective); err != nil {
			m.mu.Lock()
			for _, label := range labels {
				delete(m.reserved, label)
			}
			m.mu.Unlock()
			return fmt.Errorf("register command with platform: %w", err)
		}
	}

	e := &entry{cmd: cmd, data: effective, owner: owner}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	for _, label := range labels {
		delete(m.reserved, label)
		m.labels[label] = e
	}
	m.mu.Unlock()

	if p, ok := cmd.(Preparer); ok {
		p.Prepare()
	}
	m.log.Debug("Registered command.", "command", effective.Name, "aliases", effective.Aliases, "owner", owner)
	return nil
}

// partial returns the configured overrides for data, adding an entry to the
// configuration if there is none yet. The example entry is removed on the
// first registration.
func (m *Manager) partial(data Data) (Partial, error) {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()
	if cfg == nil {
		return partialOf(data), nil
	}

	conf := cfg.Get()
	_, example := conf.Commands[exampleCommand]
	if p, ok := conf.Commands[data.Name]; ok && !example {
		return p, nil
	}
	var p Partial
	err := cfg.Update(func(c *Config) {
		commands := maps.Clone(c.Commands)
		if commands == nil {
			commands = make(map[string]Partial)
		}
		delete(commands, exampleCommand)
		var ok bool
		if p, ok = commands[data.Name]; !ok {
			p = partialOf(data)
			commands[data.Name] = p
		}
		c.Commands = commands
	})
	if err != nil {
		return Partial{}, err
	}
	return p, nil
}

// Unregister removes cmd.
func (m *Manager) Unregister(cmd Command) {
	m.unregister(func(e *entry) bool { return sameCommand(e.cmd, cmd) })
}

// UnregisterOwner removes every command registered on behalf of owner.
func (m *Manager) UnregisterOwner(owner string) {
	m.unregister(func(e *entry) bool { return e.owner == owner })
}

// RenameOwner moves the commands of oldOwner to newOwner.
func (m *Manager) RenameOwner(oldOwner, newOwner string) {
	if newOwner == "" || oldOwner == newOwner {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.owner == oldOwner {
			e.owner = newOwner
		}
	}
}

func (m *Manager) unregister(match func(*entry) bool) {
	m.mu.Lock()
	var removed []*entry
	m.entries = slices.DeleteFunc(m.entries, func(e *entry) bool {
		if match(e) {
			removed = append(removed, e)
			return true
		}
		return false
	})
	for _, e := range removed {
		for _, label := range e.data.Labels() {
			if m.labels[fold(label)] == e {
				delete(m.labels, fold(label))
			}
		}
	}
	registrar := m.registrar
	m.mu.Unlock()

	for _, e := range removed {
		if registrar != nil {
			registrar.UnregisterCommand(e.data)
		}
		m.log.Debug("Unregistered command.", "command", e.data.Name)
	}
}

// Lookup returns a command by its name or one of its aliases.
func (m *Manager) Lookup(label string) (Command, Data, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.labels[fold(label)]
	if !ok {
		return nil, Data{}, false
	}
	return e.cmd, e.data, true
}

// Commands returns the data of all registered commands sorted by name.
func (m *Manager) Commands() []Data {
	m.mu.RLock()
	out := lo.Map(m.entries, func(e *entry, _ int) Data { return e.data })
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Data) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Execute runs the command registered under label. It returns false if no
// such command exists.
func (m *Manager) Execute(sender player.Sender, label string, args []string) bool {
	m.mu.RLock()
	e, ok := m.labels[fold(label)]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !allowed(sender, e.data.Permission) {
		_ = player.SendMiniMessage(sender, NoCommandPermissionMessage)
		return true
	}
	m.run(e, sender, label, args)
	return true
}

// Dispatch parses line, with or without a leading slash, and executes it.
func (m *Manager) Dispatch(sender player.Sender, line string) bool {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return false
	}
	return m.Execute(sender, fields[0], fields[1:])
}

// Complete returns suggestions for the last word of line. While the first word
// is typed, matching command labels are suggested.
func (m *Manager) Complete(sender player.Sender, line string) []string {
	line = strings.TrimPrefix(strings.TrimLeft(line, " "), "/")
	fields := strings.Fields(line)
	if strings.HasSuffix(line, " ") || len(fields) == 0 {
		fields = append(fields, "")
	}
	if len(fields) == 1 {
		var labels []string
		for _, d := range m.Commands() {
			if allowed(sender, d.Permission) {
				labels = append(labels, d.Labels()...)
			}
		}
		slices.Sort(labels)
		return SuggestionFilter(labels, fields[0])
	}

	m.mu.RLock()
	e, ok := m.labels[fold(fields[0])]
	m.mu.RUnlock()
	if !ok || !allowed(sender, e.data.Permission) {
		return nil
	}
	tc, ok := e.cmd.(TabCompleter)
	if !ok {
		return nil
	}
	return tc.TabComplete(sender, fields[0], fields[1:])
}

func (m *Manager) run(e *entry, sender player.Sender, label string, args []string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Command panicked.", "command", e.data.Name, "owner", e.owner, "panic", r, "stack", string(debug.Stack()))
			_ = player.SendMiniMessage(sender, InternalErrorMessage)
			m.mu.RLock()
			fn := m.onPanic
			m.mu.RUnlock()
			if fn != nil && e.owner != "" {
				fn(e.owner, r)
			}
		}
	}()
	e.cmd.Execute(sender, label, args)
}

func fold(label string) string {
	return cases.Fold().String(strings.TrimSpace(label))
}

func sameCommand(a, b Command) bool {
	if a == nil || b == nil {
		return false
	}
	t := reflect.TypeOf(a)
	if t == reflect.TypeOf(b) && t.Comparable() {
		return a == b
	}
	return a.Data().Name == b.Data().Name
}
