package command

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nookure/nookcore/core/player"
	"github.com/samber/lo"
)

// NoPermissionMessage is sent when a sender lacks the permission of a
// sub-command.
const NoPermissionMessage = "<red>You don't have permission to execute this sub-command"

// Info identifies the plugin owning a Parent command in its help output.
type Info struct {
	Name string
	// ColoredName is Name with colour tags, shown in the help header.
	ColoredName string
	Version     string
}

// Parent is a command made up of sub-commands, for example "/nookcore reload".
// Running it without arguments or with an unknown sub-command shows a help
// listing, as does the implicit "help" sub-command.
type Parent struct {
	data Data
	info Info

	once  sync.Once
	subs  map[string]Command
	help  map[string]Data
	names []string
}

// NewParent returns a Parent for the sub-commands in data.SubCommands.
func NewParent(data Data, info Info) *Parent {
	if info.ColoredName == "" {
		info.ColoredName = info.Name
	}
	return &Parent{data: data, info: info}
}

// Data ...
func (p *Parent) Data() Data {
	return p.data
}

// Prepare indexes the sub-commands by name and alias. It is called by the
// Manager on registration and runs only once.
func (p *Parent) Prepare() {
	p.once.Do(func() {
		p.subs = make(map[string]Command)
		p.help = make(map[string]Data)
		for _, sub := range p.data.SubCommands {
			d := sub.Data()
			p.subs[d.Name] = sub
			p.help[d.Name] = d
			for _, alias := range d.Aliases {
				p.subs[alias] = sub
			}
		}
		h := helpCommand{parent: p}
		p.subs["help"] = h
		p.help["help"] = h.Data()

		p.names = lo.Keys(p.subs)
		slices.Sort(p.names)
	})
}

// Execute ...
func (p *Parent) Execute(sender player.Sender, label string, args []string) {
	p.Prepare()
	if len(args) == 0 {
		p.SendHelp(sender, label)
		return
	}
	sub, ok := p.subs[args[0]]
	if !ok {
		p.SendHelp(sender, label)
		return
	}
	if !allowed(sender, sub.Data().Permission) {
		_ = player.SendMiniMessage(sender, NoPermissionMessage)
		return
	}
	sub.Execute(sender, label, args[1:])
}

// SendHelp sends the help listing of the command to sender.
func (p *Parent) SendHelp(sender player.Sender, label string) {
	p.Prepare()
	_ = player.SendMiniMessage(sender, p.info.ColoredName+" <gray>- <white>v"+p.info.Version)

	names := lo.Keys(p.help)
	slices.Sort(names)
	for _, name := range names {
		d := p.help[name]
		_ = player.SendMiniMessage(sender, fmt.Sprintf("<b>|</b> <white>/%s %s</white> - <gray>%s</gray>", label, d.Name, d.Description))
	}
}

// TabComplete suggests sub-command names for the first argument and delegates
// further arguments to the sub-command.
func (p *Parent) TabComplete(sender player.Sender, label string, args []string) []string {
	p.Prepare()
	if len(args) <= 1 {
		return slices.Clone(p.names)
	}
	sub, ok := p.subs[args[0]]
	if !ok {
		return nil
	}
	if tc, ok := sub.(TabCompleter); ok {
		return tc.TabComplete(sender, label, args[1:])
	}
	return nil
}

type helpCommand struct {
	parent *Parent
}

func (helpCommand) Data() Data {
	return Data{Name: "help", Description: "Shows the help message"}
}

func (h helpCommand) Execute(sender player.Sender, label string, _ []string) {
	h.parent.SendHelp(sender, label)
}
