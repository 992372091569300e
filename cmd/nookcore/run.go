package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/df-mc/dragonfly/server"
	"github.com/df-mc/dragonfly/server/player/chat"
	"github.com/nookure/nookcore/core"
	"github.com/nookure/nookcore/core/cmd/builtin"
	"github.com/nookure/nookcore/core/config"
	"github.com/nookure/nookcore/core/console"
	"github.com/nookure/nookcore/platform/dragonfly"
	"github.com/spf13/cobra"
)

// ServerConfigFileName is the dragonfly configuration file inside the working
// directory.
const ServerConfigFileName = "config.toml"

func newRunCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd, o)
		},
	}
}

func runServer(cmd *cobra.Command, o *options) error {
	lg := newLogger(cmd.ErrOrStderr(), o.debug)
	log := lg.Slog()
	chat.Global.Subscribe(chat.StdoutSubscriber{})

	conf, err := coreConfig(o, lg)
	if err != nil {
		return err
	}
	dfConf, err := config.Load(o.dir, server.DefaultConfig, config.WithFileName(ServerConfigFileName))
	if err != nil {
		return fmt.Errorf("load %s: %w", ServerConfigFileName, err)
	}
	srvConf, err := dfConf.Get().Config(lg.Named("Server").Slog())
	if err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	players := dragonfly.NewPlayers()
	conf.Players = players
	conf.Platform = &core.Platform{Name: "dragonfly"}
	c := core.New(conf)

	srv := srvConf.New()
	srv.CloseOnProgramEnd()
	adapter := dragonfly.New(c, srv, players,
		dragonfly.WithLogger(log),
		dragonfly.WithPermissions(dragonfly.Operators(conf.Operators...)),
	)

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return err
	}
	if err := builtin.Register(c, c.Plugins()); err != nil {
		log.Error("Register built-in commands.", "error", err)
	}
	srv.Listen()

	go console.New(c.Commands(), log).WithFallback(adapter.ExecuteConsole).Run(ctx)
	go closeOnDone(ctx, c.Done(), srv)

	adapter.Run()
	return c.Close()
}

// closeOnDone closes srv once the core was closed, for example by a plugin,
// or once ctx is cancelled.
func closeOnDone(ctx context.Context, done <-chan struct{}, srv *server.Server) {
	select {
	case <-done:
	case <-ctx.Done():
	}
	_ = srv.Close()
}
