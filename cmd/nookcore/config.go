package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(o *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage the NookCore configuration",
	}
	c.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write " + ConfigFileName + ", adding missing keys to an existing file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc, err := loadConfig(o.dir)
			if err != nil {
				return err
			}
			if _, err := uc.Get().Config(newLogger(cmd.ErrOrStderr(), o.debug).Slog()); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s.\n", uc.Path())
			return err
		},
	})
	return c
}
