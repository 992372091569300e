package dragonfly

import (
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
	"github.com/nookure/nookcore/core/command"
	nplayer "github.com/nookure/nookcore/core/player"
)

// registrar registers the commands of the command manager with dragonfly.
// Dragonfly cannot remove commands, so unregistered commands stay known to
// the client but are no longer runnable.
type registrar struct {
	a *Adapter
}

func (r registrar) RegisterCommand(_ command.Command, data command.Data) error {
	cmd.Register(cmd.New(data.Name, data.Description, data.Aliases, bridge{a: r.a, label: data.Name}))
	return nil
}

func (registrar) UnregisterCommand(command.Data) {}

// bridge runs a command of the command manager with the arguments typed in
// game.
type bridge struct {
	a     *Adapter
	label string
	Args  cmd.Optional[cmd.Varargs] `cmd:"args"`
}

func (b bridge) Run(src cmd.Source, o *cmd.Output, tx *world.Tx) {
	args, _ := b.Args.Load()
	if !b.a.core.Commands().Execute(b.a.sender(src, tx, o), b.label, strings.Fields(string(args))) {
		o.Errorf("Unknown command: %s", b.label)
	}
}

func (b bridge) Allow(src cmd.Source) bool {
	_, data, ok := b.a.core.Commands().Lookup(b.label)
	if !ok {
		return false
	}
	p, isPlayer := src.(*player.Player)
	if !isPlayer || data.Permission == "" {
		return true
	}
	return b.a.wrapper(p).HasPermission(data.Permission)
}

// sender returns the sender for src within tx.
func (a *Adapter) sender(src cmd.Source, tx *world.Tx, o *cmd.Output) nplayer.Sender {
	if p, ok := src.(*player.Player); ok {
		return a.wrapper(p).bind(tx, p)
	}
	name := "Server"
	if n, ok := src.(interface{ Name() string }); ok {
		name = n.Name()
	}
	return outputSender{src: src, o: o, name: name}
}

// outputSender writes messages to the output of a command run by a source
// that is not a player, such as the console. It holds every permission.
type outputSender struct {
	src  cmd.Source
	o    *cmd.Output
	name string
}

func (s outputSender) SendMessage(message string) {
	if s.o != nil {
		s.o.Print(message)
		return
	}
	// Detached: the output of the command was already sent.
	o := &cmd.Output{}
	o.Print(message)
	s.src.SendCommandOutput(o)
}

// Detach returns a sender writing each message as its own output.
func (s outputSender) Detach() nplayer.Sender {
	s.o = nil
	return s
}

func (s outputSender) SendActionbar(string)      {}
func (s outputSender) Ping() int                 { return -1 }
func (s outputSender) DisplayName() string       { return s.name }
func (s outputSender) Name() string              { return s.name }
func (s outputSender) UUID() uuid.UUID           { return uuid.Nil }
func (s outputSender) HasPermission(string) bool { return true }
func (s outputSender) IsPlayer() bool            { return false }

var (
	_ command.Registrar = registrar{}
	_ nplayer.Detacher  = outputSender{}
)
