package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/logger"
)

// ManagedDataSource is a connection pool started and stopped with the
// application.
type ManagedDataSource struct {
	name    string
	factory DataSourceFactory
	db      *sql.DB
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewManagedDataSource manages an already opened pool, applying the pool
// limits of f. f should have its defaults applied.
func NewManagedDataSource(name string, f DataSourceFactory, db *sql.DB, log *logger.Logger) *ManagedDataSource {
	if log == nil {
		log = logger.Get("db")
	}
	db.SetMaxOpenConns(f.MaxSize)
	db.SetMaxIdleConns(f.MinSize)
	db.SetConnMaxLifetime(f.MaxConnectionAge.Std())
	db.SetConnMaxIdleTime(f.MaxIdleTime.Std())
	return &ManagedDataSource{
		name:    name,
		factory: f,
		db:      db,
		log:     log.WithComponent("db").WithFields(map[string]interface{}{"dataSource": name}),
	}
}

// Build opens the pool and registers it with env: managed in the lifecycle,
// a health check named after the data source and pool statistics.
func (f *DataSourceFactory) Build(env *bootstrap.Environment, name string) (*ManagedDataSource, error) {
	ds, err := f.Open(name, env.Logger())
	if err != nil {
		return nil, err
	}

	executor, err := env.Lifecycle().ExecutorService("db-health-" + name + "-%d").
		MinThreads(1).
		MaxThreads(1).
		Build()
	if err != nil {
		return nil, fmt.Errorf("db %s: health check executor: %w", name, err)
	}
	env.Health().Register(name, NewValidationQueryHealthCheck(ds.db, ds.factory.ValidationQuery, ds.factory.ValidationQueryTimeout.Std(), executor))

	if _, err := env.Metrics().Register(collectors.NewDBStatsCollector(ds.db, name)); err != nil {
		return nil, fmt.Errorf("db %s: register pool metrics: %w", name, err)
	}

	env.Lifecycle().Manage(ds)
	return ds, nil
}

// Name returns the data source name.
func (m *ManagedDataSource) Name() string { return "db:" + m.name }

// DB returns the pool.
func (m *ManagedDataSource) DB() *sql.DB { return m.db }

// Driver returns the driver name.
func (m *ManagedDataSource) Driver() string { return m.factory.Driver }

// Factory returns the configuration the pool was built from.
func (m *ManagedDataSource) Factory() DataSourceFactory { return m.factory }

// Start validates the connection, retrying ConnectionRetries times with a
// linear backoff.
func (m *ManagedDataSource) Start(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= m.factory.ConnectionRetries; attempt++ {
		if err = m.Validate(ctx); err == nil {
			m.log.Info("Database connection established", map[string]interface{}{
				"attempt": attempt,
				"url":     m.factory.Redacted(),
			})
			return nil
		}
		if attempt == m.factory.ConnectionRetries {
			break
		}
		backoff := time.Duration(attempt) * m.factory.RetryBackoff.Std()
		m.log.Warn("Database connection attempt failed, retrying", map[string]interface{}{
			"attempt":         attempt,
			logger.FieldError: err.Error(),
			"backoff":         backoff.String(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("db %s: connection canceled: %w", m.name, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("db %s: failed to connect after %d attempts: %w", m.name, m.factory.ConnectionRetries, err)
}

// Stop closes the pool. It is safe to call more than once.
func (m *ManagedDataSource) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.log.Info("Closing database connection pool")
	return m.db.Close()
}

// Validate runs the validation query within ValidationQueryTimeout.
func (m *ManagedDataSource) Validate(ctx context.Context) error {
	return validate(ctx, m.db, m.factory.ValidationQuery, m.factory.ValidationQueryTimeout.Std())
}

// Conn borrows a connection from the pool, validating it first when
// CheckConnectionOnBorrow is set. Close the connection to return it.
func (m *ManagedDataSource) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if !m.factory.CheckConnectionOnBorrow {
		return conn, nil
	}
	if err := validate(ctx, conn, m.factory.ValidationQuery, m.factory.ValidationQueryTimeout.Std()); err != nil {
		// a broken connection is discarded rather than returned to the pool
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		return nil, fmt.Errorf("db %s: borrowed connection failed validation: %w", m.name, err)
	}
	return conn, nil
}

func (m *ManagedDataSource) String() string { return m.Name() }

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func validate(ctx context.Context, q Execer, query string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	_, err := q.ExecContext(ctx, query)
	return err
}
