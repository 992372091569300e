package builtin

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nookure/nookcore/core/boot"
	"github.com/nookure/nookcore/core/command"
	"github.com/nookure/nookcore/core/player"
)

// AdminPermission is required for the nookcore command.
const AdminPermission = "nookcore.admin"

func newNookCoreCommand(srv coreAdapter) command.Command {
	return command.NewParent(command.Data{
		Name:        "nookcore",
		Aliases:     []string{"nc"},
		Permission:  AdminPermission,
		Usage:       "/nookcore <sub-command>",
		Description: "Manages NookCore.",
		SubCommands: []command.Command{
			command.Func{
				D:  command.Data{Name: "version", Aliases: []string{"about"}, Description: "Shows the NookCore version."},
				Fn: func(sender player.Sender, _ string, _ []string) { versionCommand(srv, sender) },
			},
			command.Func{
				D:  command.Data{Name: "status", Description: "Shows runtime statistics."},
				Fn: func(sender player.Sender, _ string, _ []string) { statusCommand(srv, sender) },
			},
			command.Func{
				D:  command.Data{Name: "features", Description: "Lists the running features."},
				Fn: func(sender player.Sender, _ string, _ []string) { featuresCommand(srv, sender) },
			},
			debugCommand{srv: srv},
		},
	}, command.Info{Name: "NookCore", ColoredName: "<gold>NookCore</gold>", Version: boot.Version})
}

func versionCommand(srv coreAdapter, sender player.Sender) {
	reply(sender, "<gold>NookCore <white>v%s", boot.Version)

	goVersion := runtime.Version()
	info, ok := debug.ReadBuildInfo()
	if ok && info != nil && info.GoVersion != "" {
		goVersion = info.GoVersion
	}
	reply(sender, "<gray>Go runtime: <white>%s", goVersion)
	if info != nil {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				reply(sender, "<gray>Commit: <white>%s", setting.Value)
				break
			}
		}
	}

	u := srv.UpdateChecker()
	if u == nil {
		return
	}
	sender = player.Detach(sender)
	go func() {
		ctx, cancel := context.WithTimeout(srv.Context(), 30*time.Second)
		defer cancel()
		res, err := u.Check(ctx)
		switch {
		case err != nil:
			reply(sender, "<red>Could not check for updates: %v", err)
		case res.Outdated:
			reply(sender, "<yellow>A new version is available: <white>v%s", res.Latest)
		default:
			reply(sender, "<green>NookCore is up to date.")
		}
	}()
}

func statusCommand(srv coreAdapter, sender player.Sender) {
	if start := srv.StartTime(); !start.IsZero() {
		reply(sender, "<gray>Uptime: <white>%s", time.Since(start).Round(time.Second))
	}
	reply(sender, "<gray>Players online: <white>%d", len(srv.Players().Wrappers()))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	lastGC := "never"
	if mem.LastGC != 0 {
		lastGC = fmt.Sprintf("%s ago", time.Since(time.Unix(0, int64(mem.LastGC))).Round(time.Second))
	}
	reply(sender, "<gray>Memory: <white>%.2f MiB heap used / %.2f MiB reserved", bytesToMiB(mem.HeapAlloc), bytesToMiB(mem.HeapSys))
	reply(sender, "<gray>Goroutines: <white>%d <gray>| GC cycles: <white>%d <gray>| Last GC: <white>%s", runtime.NumGoroutine(), mem.NumGC, lastGC)
}

func featuresCommand(srv coreAdapter, sender player.Sender) {
	b := srv.Bootstrapper()
	for _, f := range b.Features() {
		state := "<red>stopped"
		if b.Started(f) {
			state = "<green>running"
		}
		reply(sender, "<white>%s <gray>(%s) %s", f, boot.Coordinate(f, boot.Version), state)
	}
}

type debugCommand struct {
	srv coreAdapter
}

func (debugCommand) Data() command.Data {
	return command.Data{Name: "debug", Usage: "/nookcore debug [on|off]", Description: "Toggles debug mode."}
}

func (d debugCommand) Execute(sender player.Sender, _ string, args []string) {
	enabled := !d.srv.Debug()
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on", "true", "enable":
			enabled = true
		case "off", "false", "disable":
			enabled = false
		default:
			reply(sender, "<red>Usage: /nookcore debug [on|off]")
			return
		}
	}
	d.srv.SetDebug(enabled)
	if enabled {
		reply(sender, "<green>Debug mode enabled.")
		return
	}
	reply(sender, "<yellow>Debug mode disabled.")
}

func (debugCommand) TabComplete(_ player.Sender, _ string, args []string) []string {
	if len(args) != 1 {
		return nil
	}
	return command.SuggestionFilter([]string{"off", "on"}, args[0])
}
