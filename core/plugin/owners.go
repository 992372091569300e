package plugin

import (
	"log/slog"

	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/event"
)

// owners keeps the listeners and commands registered by plugins attributed to
// the plugin's current name so that they can be removed together.
type owners[S any, C any] struct {
	log      *slog.Logger
	manager  *Manager[S, C]
	events   *event.Manager
	commands *command.Manager
}

func newOwners[S any, C any](manager *Manager[S, C], host Host[S, C], log *slog.Logger) *owners[S, C] {
	o := &owners[S, C]{
		log:      log.With("subsystem", "plugin.owners"),
		manager:  manager,
		events:   host.Events(),
		commands: host.Commands(),
	}
	if o.events != nil {
		o.events.SetPanicHandler(manager.handlePluginPanic)
	}
	if o.commands != nil {
		o.commands.SetPanicHandler(manager.handlePluginPanic)
	}
	return o
}

// clear removes everything owned by plugin.
func (o *owners[S, C]) clear(plugin string) {
	if plugin == "" {
		return
	}
	if o.events != nil {
		o.events.UnregisterOwner(plugin)
	}
	if o.commands != nil {
		o.commands.UnregisterOwner(plugin)
	}
}

// rename moves everything owned by oldName to newName.
func (o *owners[S, C]) rename(oldName, newName string) {
	if oldName == newName {
		return
	}
	if o.events != nil {
		o.events.RenameOwner(oldName, newName)
	}
	if o.commands != nil {
		o.commands.RenameOwner(oldName, newName)
	}
	o.log.Debug("Renamed plugin owner.", "from", oldName, "to", newName)
}

// invoke runs call on behalf of plugin, disabling the plugin if call panics.
func (o *owners[S, C]) invoke(plugin string, call func()) {
	if call == nil {
		return
	}
	if plugin == "" {
		call()
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.manager.handlePluginPanic(plugin, r)
		}
	}()
	call()
}
