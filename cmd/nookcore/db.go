package main

import (
	"fmt"

	"github.com/cheggaaa/pb/v3"
	"github.com/nookure/nookcore/core/database"
	"github.com/spf13/cobra"
)

func newDBCommand(o *options) *cobra.Command {
	c := &cobra.Command{
		Use:   "db",
		Short: "Maintain the NookCore database",
	}
	var dryRun bool
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrateDatabase(cmd, o, dryRun)
		},
	}
	migrate.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	c.AddCommand(migrate)
	return c
}

func migrateDatabase(cmd *cobra.Command, o *options, dryRun bool) error {
	lg := newLogger(cmd.ErrOrStderr(), o.debug)
	conf, err := coreConfig(o, lg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	conn := database.New(lg.Slog(), conf.DataFolder, database.CoreMigrations()...)
	if err := conn.Connect(ctx, conf.Database); err != nil {
		return err
	}
	defer conn.Close()

	pending, err := conn.Pending(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(pending) == 0 {
		_, err := fmt.Fprintln(out, "Database is up to date.")
		return err
	}
	if dryRun {
		for _, m := range pending {
			fmt.Fprintf(out, "%d %s\n", m.Version, m.Description)
		}
		return nil
	}

	bar := pb.New(len(pending)).SetWriter(cmd.ErrOrStderr()).Start()
	for _, m := range pending {
		if err := conn.Apply(ctx, m); err != nil {
			bar.Finish()
			return err
		}
		bar.Increment()
	}
	bar.Finish()
	_, err = fmt.Fprintf(out, "Applied %d migration(s) to %s.\n", len(pending), conn.Provider())
	return err
}
