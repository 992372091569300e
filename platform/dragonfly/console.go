package dragonfly

import (
	"log/slog"
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
)

// ExecuteConsole runs a dragonfly command typed into the console. It reports
// false if no such command exists. It is meant as the fallback of a
// console.Console.
func (a *Adapter) ExecuteConsole(line string) bool {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	c, ok := cmd.ByAlias(strings.TrimPrefix(name, "/"))
	if !ok {
		return false
	}
	src := consoleSource{log: a.log}
	<-a.srv.World().Exec(func(tx *world.Tx) {
		c.Execute(strings.TrimSpace(args), src, tx)
	})
	return true
}

type consoleSource struct {
	log *slog.Logger
}

func (c consoleSource) Position() mgl64.Vec3 { return mgl64.Vec3{} }

func (c consoleSource) Name() string { return "Console" }

func (c consoleSource) SendCommandOutput(o *cmd.Output) {
	for _, msg := range o.Messages() {
		c.log.Info(msg.String())
	}
	for _, err := range o.Errors() {
		c.log.Error(err.Error())
	}
}
