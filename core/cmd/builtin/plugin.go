package builtin

import (
	"slices"
	"strings"

	"github.com/nookure/nookcore/core/boot"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/player"
	"github.com/nookure/nookcore/core/plugin"
)

// PluginPermission is required for the plugin command.
const PluginPermission = "nookcore.plugins"

func newPluginCommand(plugins pluginAdapter) command.Command {
	sub := func(name, usage, description string, fn func(pluginAdapter, player.Sender, []string)) command.Command {
		return command.Func{
			D: command.Data{Name: name, Usage: usage, Description: description},
			Fn: func(sender player.Sender, _ string, args []string) {
				if !plugins.Enabled() {
					reply(sender, "<red>Plugin subsystem disabled.")
					return
				}
				fn(plugins, sender, args)
			},
		}
	}
	return command.NewParent(command.Data{
		Name:        "plugin",
		Aliases:     []string{"pl", "plugins"},
		Permission:  PluginPermission,
		Usage:       "/plugin <sub-command>",
		Description: "Manages dynamic plugins.",
		SubCommands: []command.Command{
			sub("list", "/plugin list", "Lists the loaded plugins.", pluginList),
			sub("enable", "/plugin enable <file>", "Loads and enables a plugin file.", pluginEnable),
			sub("disable", "/plugin disable <name>", "Disables a plugin.", pluginDisable),
			sub("reload", "/plugin reload <name>", "Disables a plugin and loads it again.", pluginReload),
			sub("disableall", "/plugin disableall", "Disables every plugin.", pluginDisableAll),
		},
	}, command.Info{Name: "NookCore", ColoredName: "<gold>NookCore</gold>", Version: boot.Version})
}

func pluginList(plugins pluginAdapter, sender player.Sender, _ []string) {
	infos := slices.Clone(plugins.Infos())
	if len(infos) == 0 {
		reply(sender, "No plugins loaded.")
		return
	}
	slices.SortStableFunc(infos, func(a, b plugin.Info) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	reply(sender, "<gold>Plugins (%d):", len(infos))
	for _, info := range infos {
		if info.Version != "" {
			reply(sender, "<white>%s v%s <gray>(%s)", info.Name, info.Version, info.Path)
			continue
		}
		reply(sender, "<white>%s <gray>(%s)", info.Name, info.Path)
	}
}

func pluginEnable(plugins pluginAdapter, sender player.Sender, args []string) {
	file := strings.TrimSpace(strings.Join(args, " "))
	if file == "" {
		reply(sender, "<red>Plugin file path is required.")
		return
	}
	info, err := plugins.Enable(file)
	if err != nil {
		replyError(sender, err)
		return
	}
	if info.Version != "" {
		reply(sender, "<green>Enabled %s v%s from %s.", info.Name, info.Version, info.Path)
		return
	}
	reply(sender, "<green>Enabled %s from %s.", info.Name, info.Path)
}

func pluginDisable(plugins pluginAdapter, sender player.Sender, args []string) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		reply(sender, "<red>Plugin name is required.")
		return
	}
	info, err := plugins.Disable(args[0])
	if err != nil {
		replyError(sender, err)
		return
	}
	reply(sender, "<yellow>Disabled %s.", info.Name)
}

func pluginReload(plugins pluginAdapter, sender player.Sender, args []string) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		reply(sender, "<red>Plugin name is required.")
		return
	}
	info, err := plugins.Reload(args[0])
	if err != nil {
		replyError(sender, err)
		return
	}
	if info.Version != "" {
		reply(sender, "<green>Reloaded %s v%s.", info.Name, info.Version)
		return
	}
	reply(sender, "<green>Reloaded %s.", info.Name)
}

func pluginDisableAll(plugins pluginAdapter, sender player.Sender, _ []string) {
	infos, err := plugins.DisableAll()
	for _, info := range infos {
		reply(sender, "<yellow>Disabled %s.", info.Name)
	}
	if err != nil {
		replyError(sender, err)
		return
	}
	if len(infos) == 0 {
		reply(sender, "No plugins loaded.")
	}
}
