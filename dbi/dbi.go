// Package dbi exposes a managed data source through sqlx.
//
//	people, err := dbi.New(env, &cfg.Database, "people")
//	var names []string
//	err = people.SelectContext(ctx, &names, "SELECT name FROM people")
package dbi

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/logger"
)

// DB is an sqlx handle over a managed data source.
type DB struct {
	*sqlx.DB
	source *db.ManagedDataSource
	log    *logger.Logger
}

// New builds the data source described by f with db.Build and wraps it.
func New(env *bootstrap.Environment, f *db.DataSourceFactory, name string) (*DB, error) {
	ds, err := f.Build(env, name)
	if err != nil {
		return nil, err
	}
	return Wrap(ds, env.Logger()), nil
}

// Wrap adapts an existing data source.
func Wrap(ds *db.ManagedDataSource, log *logger.Logger) *DB {
	if log == nil {
		log = logger.Get("dbi")
	}
	return &DB{
		DB:     sqlx.NewDb(ds.DB(), ds.Driver()),
		source: ds,
		log:    log.WithComponent("dbi"),
	}
}

// Source returns the managed data source.
func (d *DB) Source() *db.ManagedDataSource { return d.source }

// InTransaction runs fn in a transaction, committing when it returns nil
// and rolling back otherwise. A panic in fn rolls back and is re-raised.
func (d *DB) InTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbi: begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			d.log.Error("Transaction rolled back due to panic", map[string]interface{}{"panic": fmt.Sprint(r)})
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("dbi: %w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbi: commit transaction: %w", err)
	}
	return nil
}

// Get queries a single row into a value of type T.
func Get[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (T, error) {
	var out T
	err := sqlx.GetContext(ctx, q, &out, query, args...)
	return out, err
}

// Select queries every row into a slice of T.
func Select[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]T, error) {
	var out []T
	err := sqlx.SelectContext(ctx, q, &out, query, args...)
	return out, err
}
