// Package migrations applies versioned SQL migrations with golang-migrate
// and adds a "db" command to the application:
//
//	hello db migrate config.yml
//	hello db rollback --steps 2 config.yml
//	hello db version config.yml
//
// Migration files follow golang-migrate's naming, e.g. 1_people.up.sql and
// 1_people.down.sql, and are read from an fs.FS such as an embed.FS.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"

	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/logger"
)

// ErrNoVersion is returned by Version before the first migration.
var ErrNoVersion = migrate.ErrNilVersion

// DriverFunc creates the golang-migrate driver for an open pool.
type DriverFunc func(pool *sql.DB) (database.Driver, error)

// DriverFor returns the migration driver of the postgres and sqlite3
// database drivers.
func DriverFor(driver string) (DriverFunc, error) {
	switch driver {
	case "postgres":
		return func(pool *sql.DB) (database.Driver, error) {
			return postgres.WithInstance(pool, &postgres.Config{})
		}, nil
	case "sqlite3":
		return func(pool *sql.DB) (database.Driver, error) {
			return sqlite3.WithInstance(pool, &sqlite3.Config{})
		}, nil
	default:
		return nil, fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Migrator applies the migrations in a source directory to a data source.
type Migrator struct {
	m   *migrate.Migrate
	log *logger.Logger
}

// New creates a migrator for the migrations under dir in fsys. Closing the
// migrator closes the data source's pool.
func New(ds *db.ManagedDataSource, fsys fs.FS, dir string, log *logger.Logger) (*Migrator, error) {
	driverFunc, err := DriverFor(ds.Driver())
	if err != nil {
		return nil, err
	}
	return NewWithDriver(ds.DB(), driverFunc, fsys, dir, log)
}

// NewWithDriver creates a migrator using driverFunc.
func NewWithDriver(pool *sql.DB, driverFunc DriverFunc, fsys fs.FS, dir string, log *logger.Logger) (*Migrator, error) {
	if log == nil {
		log = logger.Get("migrations")
	}
	driver, err := driverFunc(pool)
	if err != nil {
		return nil, fmt.Errorf("migrations: database driver: %w", err)
	}
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: source %s: %w", dir, err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "database", driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	mg := &Migrator{m: m, log: log.WithComponent("migrations")}
	m.Log = migrateLogger{mg.log}
	return mg, nil
}

// Migrate applies every pending migration. It reports whether anything
// changed.
func (mg *Migrator) Migrate() (bool, error) {
	return changed(mg.m.Up())
}

// MigrateTo migrates up or down to version.
func (mg *Migrator) MigrateTo(version uint) (bool, error) {
	return changed(mg.m.Migrate(version))
}

// Rollback reverts the last steps migrations.
func (mg *Migrator) Rollback(steps int) (bool, error) {
	if steps <= 0 {
		return false, fmt.Errorf("migrations: steps must be positive, got %d", steps)
	}
	return changed(mg.m.Steps(-steps))
}

// Version returns the applied version and whether the last migration
// failed halfway.
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	return mg.m.Version()
}

// Close releases the source and database driver.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return multierr.Combine(srcErr, dbErr)
}

func changed(err error) (bool, error) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("migrations: %w", err)
	}
	return true, nil
}

type migrateLogger struct{ log *logger.Logger }

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l migrateLogger) Verbose() bool { return false }
