package builtin

import (
	"strings"

	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/player"
)

type helpCommand struct {
	commands *command.Manager
}

func newHelpCommand(commands *command.Manager) command.Command {
	return helpCommand{commands: commands}
}

func (helpCommand) Data() command.Data {
	return command.Data{
		Name:        "help",
		Aliases:     []string{"?"},
		Usage:       "/help [command]",
		Description: "Shows available commands and their usage.",
	}
}

func (h helpCommand) Execute(sender player.Sender, _ string, args []string) {
	if len(args) > 0 {
		name := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		_, data, found := h.commands.Lookup(name)
		if !found || !permitted(sender, data.Permission) {
			reply(sender, "<red>Unknown command: %s", name)
			return
		}
		if data.Description != "" {
			reply(sender, "<white>%s", data.Description)
		}
		if data.Usage != "" {
			for _, line := range strings.Split(data.Usage, "\n") {
				reply(sender, "<gray>%s", line)
			}
		}
		if len(data.Aliases) > 0 {
			reply(sender, "<gray>Aliases: %s", strings.Join(data.Aliases, ", "))
		}
		return
	}

	var visible []command.Data
	for _, data := range h.commands.Commands() {
		if permitted(sender, data.Permission) {
			visible = append(visible, data)
		}
	}
	if len(visible) == 0 {
		reply(sender, "No commands available.")
		return
	}
	reply(sender, "<gold>Available commands (%d):", len(visible))
	for _, data := range visible {
		line := "<white>/" + data.Name
		if data.Description != "" {
			line += " <gray>- " + data.Description
		}
		reply(sender, "%s", line)
	}
}

func (h helpCommand) TabComplete(sender player.Sender, _ string, args []string) []string {
	if len(args) != 1 {
		return nil
	}
	var names []string
	for _, data := range h.commands.Commands() {
		if permitted(sender, data.Permission) {
			names = append(names, data.Name)
		}
	}
	return command.SuggestionFilter(names, args[0])
}

func permitted(sender player.Sender, permission string) bool {
	return permission == "" || sender.HasPermission(permission)
}
