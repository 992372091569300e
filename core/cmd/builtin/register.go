// Package builtin holds the commands every NookCore server has: help, the
// nookcore administration command and the plugin command.
package builtin

import (
	"errors"
)

// Register registers the built-in command set.
func Register(srv coreAdapter, plugins pluginAdapter) error {
	m := srv.Commands()
	return errors.Join(
		m.Register(newHelpCommand(m)),
		m.Register(newNookCoreCommand(srv)),
		m.Register(newPluginCommand(plugins)),
	)
}
