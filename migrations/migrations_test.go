package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/kbukum/gowizard/bootstrap"
	"github.com/kbukum/gowizard/cli"
	"github.com/kbukum/gowizard/config"
	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/logger"
	"github.com/kbukum/gowizard/testutil"
)

var migrationFS = fstest.MapFS{
	"migrations/1_people.up.sql":     {Data: []byte("CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
	"migrations/1_people.down.sql":   {Data: []byte("DROP TABLE people;")},
	"migrations/2_nickname.up.sql":   {Data: []byte("ALTER TABLE people ADD COLUMN nickname TEXT;")},
	"migrations/2_nickname.down.sql": {Data: []byte("ALTER TABLE people DROP COLUMN nickname;")},
	"migrations/3_seed.up.sql":       {Data: []byte("INSERT INTO people (name) VALUES ('ada');")},
	"migrations/3_seed.down.sql":     {Data: []byte("DELETE FROM people;")},
}

func openFile(t *testing.T, path string) *db.ManagedDataSource {
	t.Helper()
	f := db.DataSourceFactory{Driver: "sqlite3", URL: path}
	ds, err := f.Open("test", logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ds
}

func TestMigrator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.db")
	mg, err := New(openFile(t, path), migrationFS, DefaultDir, logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mg.Close()

	if _, _, err := mg.Version(); !errors.Is(err, ErrNoVersion) {
		t.Errorf("expected ErrNoVersion, got %v", err)
	}
	if changed, err := mg.Migrate(); err != nil || !changed {
		t.Fatalf("expected migration, got %v %v", changed, err)
	}
	if changed, err := mg.Migrate(); err != nil || changed {
		t.Errorf("expected no change, got %v %v", changed, err)
	}
	if v, dirty, _ := mg.Version(); v != 3 || dirty {
		t.Errorf("expected version 3, got %d dirty=%v", v, dirty)
	}
	if _, err := mg.Rollback(2); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if v, _, _ := mg.Version(); v != 1 {
		t.Errorf("expected version 1 after rollback, got %d", v)
	}
	if _, err := mg.MigrateTo(2); err != nil {
		t.Fatalf("MigrateTo: %v", err)
	}
	if v, _, _ := mg.Version(); v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}
	if _, err := mg.Rollback(0); err == nil {
		t.Error("expected error for zero steps")
	}
}

func TestDriverFor(t *testing.T) {
	for _, driver := range []string{"postgres", "sqlite3"} {
		if _, err := DriverFor(driver); err != nil {
			t.Errorf("%s: %v", driver, err)
		}
	}
	if _, err := DriverFor("oracle"); err == nil {
		t.Error("expected unsupported driver error")
	}
}

type appConfig struct {
	config.Configuration `yaml:",inline" mapstructure:",squash"`
	Database             db.DataSourceFactory `yaml:"database" mapstructure:"database"`
}

type app struct{ onStart bool }

func (app) Name() string                 { return "people" }
func (app) NewConfiguration() *appConfig { return &appConfig{} }

func (a app) Initialize(b *bootstrap.Bootstrap[*appConfig]) {
	opts := []Option{WithDir(DefaultDir)}
	if a.onStart {
		opts = append(opts, MigrateOnStart())
	}
	b.AddConfiguredBundle(NewBundle(func(c *appConfig) *db.DataSourceFactory { return &c.Database }, migrationFS, opts...))
}

func (app) Run(context.Context, *appConfig, *bootstrap.Environment) error { return nil }

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.yml")
	body := fmt.Sprintf("logging:\n  level: \"off\"\ndatabase:\n  driver: sqlite3\n  url: %s\n", dbPath)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDBCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "people.db")
	cfgPath := writeConfig(t, dbPath)

	run := func(args ...string) (string, error) {
		var stdout, stderr bytes.Buffer
		c, err := cli.New[*appConfig](app{}, cli.WithOutput(&stdout, &stderr))
		if err != nil {
			t.Fatalf("cli.New: %v", err)
		}
		err = c.Run(context.Background(), args)
		return strings.TrimSpace(stdout.String()), err
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"db", "version", cfgPath}, "No migrations applied"},
		{[]string{"db", "migrate", cfgPath}, "Database at version 3"},
		{[]string{"db", "migrate", cfgPath}, "No change, database at version 3"},
		{[]string{"db", "rollback", "--steps", "2", cfgPath}, "Database at version 1"},
		{[]string{"db", "migrate", "--to", "2", cfgPath}, "Database at version 2"},
		{[]string{"db", "version", cfgPath}, "Database at version 2"},
	}
	for _, tc := range tests {
		got, err := run(tc.args...)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if got != tc.want {
			t.Errorf("%v: expected %q, got %q", tc.args, tc.want, got)
		}
	}

	for _, args := range [][]string{{"db"}, {"db", "explode", cfgPath}, {"db", "version", cfgPath, "extra"}} {
		if _, err := run(args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestMigrateOnStart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "people.db")
	testutil.NewAppSupport[*appConfig](t, app{onStart: true}, writeConfig(t, dbPath))

	pool, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pool.Close()
	var name string
	if err := pool.QueryRow("SELECT name FROM people").Scan(&name); err != nil || name != "ada" {
		t.Errorf("expected seeded row, got %q %v", name, err)
	}
}
