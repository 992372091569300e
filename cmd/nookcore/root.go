package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/nookure/nookcore/core"
	"github.com/nookure/nookcore/core/config"
	"github.com/nookure/nookcore/core/logger"
	"github.com/spf13/cobra"
)

// ConfigFileName is the configuration file of NookCore inside the working
// directory.
const ConfigFileName = "nookcore.toml"

const configHeader = "NookCore configuration. Missing keys are added with their default value on start."

type options struct {
	dir   string
	debug bool
}

func newRootCommand() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:          "nookcore",
		Short:        "Run a dragonfly server with NookCore",
		Version:      core.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd, o)
		},
	}
	root.PersistentFlags().StringVarP(&o.dir, "dir", "d", ".", "directory holding the configuration files")
	root.PersistentFlags().BoolVar(&o.debug, "debug", false, "enable debug messages")

	root.AddCommand(
		newRunCommand(o),
		newConfigCommand(o),
		newDBCommand(o),
		newVersionCommand(o),
	)
	return root
}

// newLogger returns the logger of the process. Its debug switch is shared with
// the core, so the debug command toggles output for every subsystem.
func newLogger(w io.Writer, debug bool) *logger.Logger {
	l := logger.New("NookCore", logger.Options{Writer: w, Level: new(slog.LevelVar)})
	l.SetDebug(debug)
	return l
}

func loadConfig(dir string) (*config.Container[core.UserConfig], error) {
	c, err := config.Load(dir, core.DefaultConfig,
		config.WithFileName(ConfigFileName),
		config.WithHeader(configHeader),
	)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ConfigFileName, err)
	}
	return c, nil
}

// coreConfig reads the NookCore configuration in o.dir and resolves its
// folders relative to that directory.
func coreConfig(o *options, log *logger.Logger) (core.Config, error) {
	uc, err := loadConfig(o.dir)
	if err != nil {
		return core.Config{}, err
	}
	conf, err := uc.Get().Config(log.Slog())
	if err != nil {
		return core.Config{}, err
	}
	conf.Logger = log
	conf.Debug = conf.Debug || o.debug
	conf.DataFolder = resolve(o.dir, conf.DataFolder)
	conf.Plugins.Directory = resolve(o.dir, conf.Plugins.Directory)
	return conf, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
