// Package orm provides gorm sessions over a managed data source.
//
//	var people = orm.NewBundle(func(c *HelloConfig) *db.DataSourceFactory { return &c.Database },
//	    orm.WithModels(&Person{}))
//
//	func (HelloApp) Initialize(b *bootstrap.Bootstrap[*HelloConfig]) {
//	    b.AddConfiguredBundle(people)
//	}
//
//	func (HelloApp) Run(ctx context.Context, cfg *HelloConfig, env *bootstrap.Environment) error {
//	    env.Rest().Register(NewPeopleResource(people.SessionFactory()))
//	    return nil
//	}
//
// Resources wrap handlers with UnitOfWork to run each request in a
// transaction and fetch it with Session.
package orm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/logger"
)

const DefaultName = "orm"

// Dialector creates the gorm dialect over an open pool.
type Dialector func(driver string, pool *sql.DB) (gorm.Dialector, error)

// DefaultDialector supports sqlite3. Other databases need WithDialector.
func DefaultDialector(driver string, pool *sql.DB) (gorm.Dialector, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return sqlite.New(sqlite.Config{DriverName: driver, Conn: pool}), nil
	default:
		return nil, fmt.Errorf("orm: no dialector for driver %q, configure one with WithDialector", driver)
	}
}

type options struct {
	name          string
	models        []any
	dialector     Dialector
	logLevel      string
	slowThreshold time.Duration
}

func defaultOptions(opts []Option) options {
	o := options{name: DefaultName, dialector: DefaultDialector, logLevel: "warn", slowThreshold: 200 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Bundle.
type Option func(*options)

// WithName names the data source, health check and metrics. Defaults to
// "orm".
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithModels auto-migrates models when the application starts.
func WithModels(models ...any) Option {
	return func(o *options) { o.models = append(o.models, models...) }
}

// WithDialector sets the gorm dialect factory.
func WithDialector(d Dialector) Option { return func(o *options) { o.dialector = d } }

// WithLogLevel sets gorm's log level: silent, error, warn or info.
func WithLogLevel(level string) Option { return func(o *options) { o.logLevel = level } }

// WithSlowThreshold logs queries slower than d at warn. Defaults to 200ms.
func WithSlowThreshold(d time.Duration) Option { return func(o *options) { o.slowThreshold = d } }

// Bundle builds a SessionFactory from the application's configuration.
type Bundle[C bootstrap.Config] struct {
	dataSource func(C) *db.DataSourceFactory
	opts       options
	factory    *SessionFactory
}

// NewBundle creates a bundle reading its data source from the configuration
// with dataSource.
func NewBundle[C bootstrap.Config](dataSource func(C) *db.DataSourceFactory, opts ...Option) *Bundle[C] {
	return &Bundle[C]{dataSource: dataSource, opts: defaultOptions(opts)}
}

func (b *Bundle[C]) Initialize(*bootstrap.Bootstrap[C]) {}

// Run opens the data source and gorm session. Models are migrated after
// the data source has started.
func (b *Bundle[C]) Run(cfg C, env *bootstrap.Environment) error {
	ds, err := b.dataSource(cfg).Build(env, b.opts.name)
	if err != nil {
		return err
	}
	factory, err := newSessionFactory(ds, env.Logger(), b.opts)
	if err != nil {
		return err
	}
	if len(b.opts.models) > 0 {
		env.Lifecycle().ManageFuncs(b.opts.name+"-migrate", func(ctx context.Context) error {
			return factory.AutoMigrate(ctx, b.opts.models...)
		}, nil)
	}
	b.factory = factory
	return nil
}

// SessionFactory returns the factory created by Run.
func (b *Bundle[C]) SessionFactory() *SessionFactory { return b.factory }

// SessionFactory hands out gorm sessions.
type SessionFactory struct {
	db     *gorm.DB
	source *db.ManagedDataSource
	log    *logger.Logger
}

func newSessionFactory(ds *db.ManagedDataSource, log *logger.Logger, opts options) (*SessionFactory, error) {
	if log == nil {
		log = logger.Get(DefaultName)
	}
	log = log.WithComponent("orm")
	dialector, err := opts.dialector(ds.Driver(), ds.DB())
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: &gormLogger{log: log, level: parseLogLevel(opts.logLevel), slowThreshold: opts.slowThreshold},
	})
	if err != nil {
		return nil, fmt.Errorf("orm: open session: %w", err)
	}
	return &SessionFactory{db: gdb, source: ds, log: log}, nil
}

// Open opens a SessionFactory over ds outside a bundle.
func Open(ds *db.ManagedDataSource, log *logger.Logger, opts ...Option) (*SessionFactory, error) {
	o := defaultOptions(opts)
	return newSessionFactory(ds, log, o)
}

// Session returns a session bound to ctx. When ctx carries a unit of work
// the session joins its transaction.
func (f *SessionFactory) Session(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return f.db.WithContext(ctx)
}

// Source returns the underlying data source.
func (f *SessionFactory) Source() *db.ManagedDataSource { return f.source }

// AutoMigrate creates or updates the tables of models.
func (f *SessionFactory) AutoMigrate(ctx context.Context, models ...any) error {
	f.log.Info("Running auto-migration", map[string]interface{}{"models": len(models)})
	for _, model := range models {
		if err := f.db.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("orm: migrate %T: %w", model, err)
		}
	}
	return nil
}

// InTransaction runs fn in a transaction, committing when it returns nil.
// A panic in fn rolls back and is re-raised.
func (f *SessionFactory) InTransaction(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	tx := f.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("orm: begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			f.log.Error("Transaction rolled back due to panic", map[string]interface{}{"panic": fmt.Sprint(r)})
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return fmt.Errorf("orm: %w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("orm: commit transaction: %w", err)
	}
	return nil
}
