// Package cli is the command-line entry point of gowizard applications.
//
//	func main() {
//	    cli.Main[*HelloConfig](HelloApp{})
//	}
//
// The built-in commands are "server [file]" and "check [file]". Bundles add
// their own, such as "db migrate". Configuration overrides are collected
// from the process environment, an optional --env-file and -D key=value
// flags, with later sources winning.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/config"
	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/version"
)

// ErrUsage marks errors caused by an invalid command line.
var ErrUsage = errors.New("usage error")

// Cli parses the command line and dispatches to a command.
type Cli[C bootstrap.Config] struct {
	app     *bootstrap.App[C]
	stdout  io.Writer
	stderr  io.Writer
	environ []string
}

// Option configures a Cli.
type Option func(*options)

type options struct {
	stdout  io.Writer
	stderr  io.Writer
	environ []string
	app     []bootstrap.Option
}

// WithOutput sets the writers for normal and error output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithEnviron replaces os.Environ() as the source of overrides.
func WithEnviron(environ []string) Option {
	return func(o *options) { o.environ = environ }
}

// WithAppOptions passes options to the underlying bootstrap.App.
func WithAppOptions(opts ...bootstrap.Option) Option {
	return func(o *options) { o.app = append(o.app, opts...) }
}

// New creates the App, registers the built-in commands and initializes the
// application so that bundle commands are registered too.
func New[C bootstrap.Config](app bootstrap.Application[C], opts ...Option) (*Cli[C], error) {
	o := &options{stdout: os.Stdout, stderr: os.Stderr, environ: os.Environ()}
	for _, opt := range opts {
		opt(o)
	}
	a := bootstrap.NewApp(app, o.app...)
	a.Bootstrap().AddCommand(NewServerCommand(a))
	a.Bootstrap().AddCommand(NewCheckCommand[C]())
	if err := a.Initialize(); err != nil {
		return nil, err
	}
	return &Cli[C]{app: a, stdout: o.stdout, stderr: o.stderr, environ: o.environ}, nil
}

// App returns the application driven by the command line.
func (c *Cli[C]) App() *bootstrap.App[C] { return c.app }

type globalFlags struct {
	help    bool
	version bool
	envFile string
	defines []string
}

// merge combines flags given before the command with those given after it.
// Later -D values win and a command-level --env-file replaces a global one.
func (g globalFlags) merge(cmd globalFlags) globalFlags {
	g.help = g.help || cmd.help
	g.defines = append(g.defines, cmd.defines...)
	if cmd.envFile != "" {
		g.envFile = cmd.envFile
	}
	return g
}

func addCommonFlags(fs *pflag.FlagSet, g *globalFlags) {
	fs.BoolVarP(&g.help, "help", "h", false, "show this help message and exit")
	fs.StringVar(&g.envFile, "env-file", "", "read configuration overrides from a .env file")
	fs.StringArrayVarP(&g.defines, "define", "D", nil, "override a configuration value (key=value)")
}

// Run executes the command named by args. Errors are printed to stderr and
// returned; help and version requests return nil.
func (c *Cli[C]) Run(ctx context.Context, args []string) error {
	var g globalFlags
	fs := pflag.NewFlagSet(c.app.Name(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	addCommonFlags(fs, &g)
	fs.BoolVarP(&g.version, "version", "v", false, "show the application version and exit")

	if err := fs.Parse(args); err != nil {
		return c.usageError(fs, err)
	}
	if g.version {
		fmt.Fprintln(c.stdout, version.Get().String())
		return nil
	}
	rest := fs.Args()
	if len(rest) == 0 {
		c.printHelp(fs)
		if g.help {
			return nil
		}
		return c.onError(fmt.Errorf("%w: a command is required", ErrUsage))
	}

	cmd, ok := c.app.Bootstrap().Command(rest[0])
	if !ok {
		c.printHelp(fs)
		return c.onError(fmt.Errorf("%w: unknown command %q", ErrUsage, rest[0]))
	}

	var cg globalFlags
	cfs := pflag.NewFlagSet(c.app.Name()+" "+cmd.Name(), pflag.ContinueOnError)
	cfs.SetOutput(io.Discard)
	addCommonFlags(cfs, &cg)
	cmd.Configure(cfs)
	if err := cfs.Parse(rest[1:]); err != nil {
		return c.usageError(cfs, err)
	}
	g = g.merge(cg)
	if g.help {
		c.printCommandHelp(cmd, cfs)
		return nil
	}

	overrides, err := c.overrides(g)
	if err != nil {
		return c.onError(err)
	}
	ns := &bootstrap.Namespace{
		Args:      cfs.Args(),
		Flags:     cfs,
		Overrides: overrides,
		Stdout:    c.stdout,
		Stderr:    c.stderr,
	}
	if err := cmd.Run(ctx, c.app.Bootstrap(), ns); err != nil {
		return c.onError(err)
	}
	return nil
}

func (c *Cli[C]) overrides(g globalFlags) (config.Overrides, error) {
	prefix := c.app.Bootstrap().ConfigurationFactory().Prefix()
	out := config.OverridesFromEnviron(c.environ, prefix)
	if g.envFile != "" {
		fromFile, err := config.OverridesFromDotEnv(g.envFile, prefix)
		if err != nil {
			return nil, err
		}
		out = out.Merge(fromFile)
	}
	defined, err := config.ParseOverrideFlags(g.defines)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return out.Merge(defined), nil
}

func (c *Cli[C]) usageError(fs *pflag.FlagSet, err error) error {
	fmt.Fprintf(c.stderr, "%s\n\n", err)
	fmt.Fprint(c.stderr, fs.FlagUsages())
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

// onError prints err to stderr. Configuration errors already carry a full
// report, so they are printed as is.
func (c *Cli[C]) onError(err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.ErrCodeConfiguration && appErr.Cause != nil {
		fmt.Fprintln(c.stderr, appErr.Cause)
		return err
	}
	fmt.Fprintln(c.stderr, err)
	return err
}

func (c *Cli[C]) printHelp(fs *pflag.FlagSet) {
	cmds := c.app.Bootstrap().Commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })
	names := make([]string, len(cmds))
	width := 0
	for i, cmd := range cmds {
		names[i] = cmd.Name()
		width = max(width, len(cmd.Name()))
	}

	w := c.stdout
	fmt.Fprintf(w, "usage: %s [-h] [-v] {%s} ...\n\n", c.app.Name(), strings.Join(names, ","))
	fmt.Fprintf(w, "positional arguments:\n  {%s}\n", strings.Join(names, ","))
	for _, cmd := range cmds {
		fmt.Fprintf(w, "    %-*s  %s\n", width, cmd.Name(), cmd.Description())
	}
	fmt.Fprintf(w, "\nnamed arguments:\n%s", fs.FlagUsages())
}

func (c *Cli[C]) printCommandHelp(cmd bootstrap.Command[C], fs *pflag.FlagSet) {
	fmt.Fprintf(c.stdout, "usage: %s %s [flags] [file]\n\n%s\n\nnamed arguments:\n%s",
		c.app.Name(), cmd.Name(), cmd.Description(), fs.FlagUsages())
}

// Main runs the command line of app and exits the process: 0 on success,
// 1 on any error.
func Main[C bootstrap.Config](app bootstrap.Application[C], opts ...Option) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	c, err := New(app, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
	err = c.Run(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
