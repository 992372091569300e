package core

import (
	"log/slog"
	"time"

	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/database"
	"github.com/nookure/nookcore/core/event"
	"github.com/nookure/nookcore/core/messenger"
	"github.com/nookure/nookcore/core/player"
	"github.com/nookure/nookcore/core/plugin"
)

type pluginHost struct {
	c *Core
}

func (h pluginHost) Instance() *Core {
	return h.c
}

func (h pluginHost) Config() Config {
	return h.c.conf
}

func (h pluginHost) Logger() *slog.Logger {
	return h.c.log
}

func (h pluginHost) StartTime() time.Time {
	return h.c.StartTime()
}

func (h pluginHost) Debug() bool {
	return h.c.Debug()
}

func (h pluginHost) Events() *event.Manager {
	return h.c.events
}

func (h pluginHost) Commands() *command.Manager {
	return h.c.commands
}

func (h pluginHost) Players() player.Directory {
	return h.c.players
}

func (h pluginHost) Database() *database.Connection {
	return h.c.Database()
}

func (h pluginHost) Messenger() *messenger.EventMessenger {
	return h.c.Messenger()
}

func (h pluginHost) Close() error {
	return h.c.Close()
}

func (h pluginHost) PluginsEnabled() bool {
	return h.c.PluginsEnabled()
}

var _ plugin.Host[*Core, Config] = pluginHost{}
