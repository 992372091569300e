package command

import (
	"slices"

	"github.com/nookure/nookcore/core/config"
)

// ConfigFileName is the name of the file holding command overrides.
const ConfigFileName = "commands.toml"

const exampleCommand = "example"

// Config holds per-command overrides, keyed by the name the command is
// registered with in code.
type Config struct {
	Commands map[string]Partial `toml:"commands" yaml:"commands"`
}

// Partial overrides the data of a single command. Empty fields keep the value
// from code.
type Partial struct {
	Name        string   `toml:"name" yaml:"name"`
	Aliases     []string `toml:"aliases" yaml:"aliases"`
	Permission  string   `toml:"permission" yaml:"permission"`
	Description string   `toml:"description" yaml:"description"`
	Usage       string   `toml:"usage" yaml:"usage"`
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
}

// DefaultConfig returns a Config with a single example entry. The entry is
// removed as soon as the first command is registered.
func DefaultConfig() Config {
	return Config{Commands: map[string]Partial{
		exampleCommand: {
			Name:        "example",
			Aliases:     []string{},
			Permission:  "example.permission",
			Description: "Example command",
			Usage:       "An example command",
			Enabled:     true,
		},
	}}
}

// LoadConfig loads the command configuration from dir.
func LoadConfig(dir string) (*config.Container[Config], error) {
	return config.Load(dir, DefaultConfig,
		config.WithFileName(ConfigFileName),
		config.WithHeader("Command overrides. Change the name, aliases, permission,\ndescription or usage of a command, or disable it."),
	)
}

func partialOf(d Data) Partial {
	return Partial{
		Name:        d.Name,
		Aliases:     slices.Clone(d.Aliases),
		Permission:  d.Permission,
		Description: d.Description,
		Usage:       d.Usage,
		Enabled:     true,
	}
}

func (p Partial) apply(d Data) Data {
	if p.Name != "" {
		d.Name = p.Name
	}
	if len(p.Aliases) > 0 {
		d.Aliases = slices.Clone(p.Aliases)
	}
	if p.Permission != "" {
		d.Permission = p.Permission
	}
	if p.Description != "" {
		d.Description = p.Description
	}
	if p.Usage != "" {
		d.Usage = p.Usage
	}
	return d
}
