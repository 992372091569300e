// Package command implements platform independent commands. Commands are
// registered with a Manager, which applies overrides from the command
// configuration file and forwards them to the platform through a Registrar.
package command

import (
	"strings"

	"github.com/nookure/nookcore/core/player"
	"github.com/samber/lo"
)

// Data describes a command.
type Data struct {
	// Name is the label the command is registered under.
	Name    string
	Aliases []string
	// Permission is required to run the command. An empty permission allows
	// every sender.
	Permission  string
	Usage       string
	Description string
	// SubCommands are the children of a Parent command.
	SubCommands []Command
}

// Labels returns the name followed by the aliases of the command.
func (d Data) Labels() []string {
	return append([]string{d.Name}, d.Aliases...)
}

// Command is a command that can be executed by a player.Sender.
type Command interface {
	// Data returns the description of the command.
	Data() Data
	// Execute runs the command. label is the name or alias the command was
	// invoked with, args the remaining words of the command line.
	Execute(sender player.Sender, label string, args []string)
}

// TabCompleter may be implemented by a Command to suggest arguments. args
// always holds at least one element: the argument being completed, which may
// be empty.
type TabCompleter interface {
	TabComplete(sender player.Sender, label string, args []string) []string
}

// Preparer may be implemented by a Command that needs to set itself up once it
// has been registered, for example to index its sub-commands.
type Preparer interface {
	Prepare()
}

// SuggestionFilter returns the suggestions starting with message.
func SuggestionFilter(suggestions []string, message string) []string {
	return lo.Filter(suggestions, func(s string, _ int) bool {
		return strings.HasPrefix(s, message)
	})
}

// Func adapts a function to a Command.
type Func struct {
	D  Data
	Fn func(sender player.Sender, label string, args []string)
}

// Data ...
func (f Func) Data() Data { return f.D }

// Execute ...
func (f Func) Execute(sender player.Sender, label string, args []string) {
	if f.Fn != nil {
		f.Fn(sender, label, args)
	}
}

func allowed(sender player.Sender, permission string) bool {
	return permission == "" || sender.HasPermission(permission)
}
