package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kbukum/gowizard/config"
	apperrors "github.com/kbukum/gowizard/errors"
)

// Namespace carries the parsed command line to a command.
type Namespace struct {
	// Args are the positional arguments after the command name.
	Args []string
	// Flags holds the command's parsed flags.
	Flags *pflag.FlagSet
	// Overrides were gathered from the environment, --env-file and -D.
	Overrides config.Overrides
	Stdout    io.Writer
	Stderr    io.Writer
}

// Command is a named CLI subcommand.
type Command[C Config] interface {
	Name() string
	Description() string
	// Configure registers the command's flags.
	Configure(fs *pflag.FlagSet)
	Run(ctx context.Context, b *Bootstrap[C], ns *Namespace) error
}

// ConfiguredRunFunc runs a command once the configuration has been loaded.
type ConfiguredRunFunc[C Config] func(ctx context.Context, b *Bootstrap[C], ns *Namespace, cfg C) error

// ConfiguredCommand is a Command taking an optional configuration file as
// its single positional argument.
type ConfiguredCommand[C Config] struct {
	name        string
	description string
	configure   func(fs *pflag.FlagSet)
	run         ConfiguredRunFunc[C]
}

// NewConfiguredCommand creates a command that loads the configuration before
// calling run. configure may be nil.
func NewConfiguredCommand[C Config](name, description string, configure func(fs *pflag.FlagSet), run ConfiguredRunFunc[C]) *ConfiguredCommand[C] {
	return &ConfiguredCommand[C]{name: name, description: description, configure: configure, run: run}
}

func (c *ConfiguredCommand[C]) Name() string        { return c.name }
func (c *ConfiguredCommand[C]) Description() string { return c.description }

func (c *ConfiguredCommand[C]) Configure(fs *pflag.FlagSet) {
	if c.configure != nil {
		c.configure(fs)
	}
}

// Run loads the configuration named by the first argument and runs the
// command with it. Load failures are returned as CONFIGURATION_ERROR
// application errors wrapping the configuration error.
func (c *ConfiguredCommand[C]) Run(ctx context.Context, b *Bootstrap[C], ns *Namespace) error {
	path, rest := "", ns.Args
	if len(rest) > 0 {
		path, rest = rest[0], rest[1:]
	}
	if len(rest) > 0 {
		return fmt.Errorf("unrecognized arguments: %s", strings.Join(rest, " "))
	}
	cfg, err := b.LoadConfiguration(path, ns.Overrides)
	if err != nil {
		return apperrors.Configuration(err)
	}
	return c.run(ctx, b, ns, cfg)
}
