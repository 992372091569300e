package builtin

import (
	"context"
	"time"

	"github.com/nookure/nookcore/core/boot"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/player"
	"github.com/nookure/nookcore/core/plugin"
)

type coreAdapter interface {
	Context() context.Context
	Commands() *command.Manager
	Players() player.Directory
	StartTime() time.Time
	Debug() bool
	SetDebug(debug bool)
	Bootstrapper() *boot.Bootstrapper
	UpdateChecker() *boot.UpdateChecker
}

type pluginAdapter interface {
	Enabled() bool
	Infos() []plugin.Info
	Enable(path string) (plugin.Info, error)
	Disable(name string) (plugin.Info, error)
	Reload(name string) (plugin.Info, error)
	DisableAll() ([]plugin.Info, error)
}
