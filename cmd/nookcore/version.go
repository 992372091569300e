package main

import (
	"fmt"
	"runtime"

	"github.com/nookure/nookcore/core"
	"github.com/nookure/nookcore/core/boot"
	"github.com/spf13/cobra"
)

func newVersionCommand(o *options) *cobra.Command {
	var check bool
	var repository string
	c := &cobra.Command{
		Use:   "version",
		Short: "Print the NookCore version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "NookCore %s (%s, %s/%s)\n", core.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if !check {
				return nil
			}
			lg := newLogger(cmd.ErrOrStderr(), o.debug)
			u := boot.NewUpdateChecker(lg.Slog(), core.Version, boot.WithRepository(repository))
			res, err := u.Check(cmd.Context())
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			if res.Outdated {
				fmt.Fprintf(out, "A new version is available: %s.\n", res.Latest)
			} else {
				fmt.Fprintln(out, "NookCore is up to date.")
			}
			return nil
		},
	}
	c.Flags().BoolVar(&check, "check", false, "look up the latest released version")
	c.Flags().StringVar(&repository, "repository", boot.DefaultRepository, "repository queried by --check")
	return c
}
