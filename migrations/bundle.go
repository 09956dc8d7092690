package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/pflag"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/db"
	apperrors "github.com/kbukum/gowizard/errors"
	"github.com/kbukum/gowizard/logger"
)

// DefaultDir is the directory of fsys holding migrations.
const DefaultDir = "migrations"

// Bundle adds the db command and optionally migrates on startup.
type Bundle[C bootstrap.Config] struct {
	dataSource func(C) *db.DataSourceFactory
	fsys       fs.FS
	dir        string
	onRun      bool
}

// Option configures a Bundle.
type Option func(*options)

type options struct {
	dir   string
	onRun bool
}

// WithDir sets the directory of fsys holding migrations.
func WithDir(dir string) Option { return func(o *options) { o.dir = dir } }

// MigrateOnStart applies pending migrations while the application starts,
// before the objects managed after this bundle.
func MigrateOnStart() Option { return func(o *options) { o.onRun = true } }

// NewBundle creates a bundle migrating the data source returned by
// dataSource with the migrations in fsys.
func NewBundle[C bootstrap.Config](dataSource func(C) *db.DataSourceFactory, fsys fs.FS, opts ...Option) *Bundle[C] {
	o := options{dir: DefaultDir}
	for _, opt := range opts {
		opt(&o)
	}
	return &Bundle[C]{dataSource: dataSource, fsys: fsys, dir: o.dir, onRun: o.onRun}
}

func (b *Bundle[C]) Initialize(bs *bootstrap.Bootstrap[C]) {
	bs.AddCommand(&dbCommand[C]{bundle: b})
}

func (b *Bundle[C]) Run(cfg C, env *bootstrap.Environment) error {
	if !b.onRun {
		return nil
	}
	f := *b.dataSource(cfg)
	env.Lifecycle().ManageFuncs("migrations", func(ctx context.Context) error {
		return b.withMigrator(ctx, f, env.Logger(), func(mg *Migrator) error {
			_, err := mg.Migrate()
			return err
		})
	}, nil)
	return nil
}

// withMigrator opens a dedicated pool for the duration of fn.
func (b *Bundle[C]) withMigrator(ctx context.Context, f db.DataSourceFactory, log *logger.Logger, fn func(*Migrator) error) error {
	f.MaxSize, f.MinSize = 1, 1
	ds, err := f.Open("migrations", log)
	if err != nil {
		return err
	}
	if err := ds.Start(ctx); err != nil {
		return err
	}
	mg, err := New(ds, b.fsys, b.dir, log)
	if err != nil {
		_ = ds.Stop(ctx)
		return err
	}
	defer mg.Close()
	return fn(mg)
}

// dbCommand runs migration actions from the command line.
type dbCommand[C bootstrap.Config] struct {
	bundle *Bundle[C]
}

func (c *dbCommand[C]) Name() string { return "db" }

func (c *dbCommand[C]) Description() string {
	return "Manage the database schema: migrate [--to N], rollback [--steps N] or version"
}

func (c *dbCommand[C]) Configure(fs *pflag.FlagSet) {
	fs.Int("steps", 1, "number of migrations to roll back")
	fs.Uint("to", 0, "migrate up or down to this version instead of the latest")
}

func (c *dbCommand[C]) Run(ctx context.Context, b *bootstrap.Bootstrap[C], ns *bootstrap.Namespace) error {
	if len(ns.Args) == 0 {
		return fmt.Errorf("db: missing action, expected one of migrate, rollback, version")
	}
	action, args := ns.Args[0], ns.Args[1:]
	path := ""
	if len(args) > 0 {
		path, args = args[0], args[1:]
	}
	if len(args) > 0 {
		return fmt.Errorf("unrecognized arguments: %s", strings.Join(args, " "))
	}

	var run func(mg *Migrator) error
	switch action {
	case "migrate":
		to, _ := ns.Flags.GetUint("to")
		run = func(mg *Migrator) error {
			var changed bool
			var err error
			if ns.Flags.Changed("to") {
				changed, err = mg.MigrateTo(to)
			} else {
				changed, err = mg.Migrate()
			}
			if err != nil {
				return err
			}
			return report(ns, mg, changed)
		}
	case "rollback":
		steps, _ := ns.Flags.GetInt("steps")
		run = func(mg *Migrator) error {
			changed, err := mg.Rollback(steps)
			if err != nil {
				return err
			}
			return report(ns, mg, changed)
		}
	case "version":
		run = func(mg *Migrator) error { return report(ns, mg, true) }
	default:
		return fmt.Errorf("db: unknown action %q, expected one of migrate, rollback, version", action)
	}

	cfg, err := b.LoadConfiguration(path, ns.Overrides)
	if err != nil {
		return apperrors.Configuration(err)
	}
	return c.bundle.withMigrator(ctx, *c.bundle.dataSource(cfg), b.Logger(), run)
}

func report(ns *bootstrap.Namespace, mg *Migrator, changed bool) error {
	version, dirty, err := mg.Version()
	switch {
	case errors.Is(err, ErrNoVersion):
		fmt.Fprintln(ns.Stdout, "No migrations applied")
		return nil
	case err != nil:
		return err
	}
	state := ""
	if dirty {
		state = " (dirty)"
	}
	if !changed {
		fmt.Fprintf(ns.Stdout, "No change, database at version %d%s\n", version, state)
		return nil
	}
	fmt.Fprintf(ns.Stdout, "Database at version %d%s\n", version, state)
	return nil
}
