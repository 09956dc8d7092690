package dbi

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/kbukum/gowizard/db"
	"github.com/kbukum/gowizard/logger"
)

type person struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	f := db.DataSourceFactory{Driver: "sqlmock", URL: "mock"}
	f.ApplyDefaults()
	return Wrap(db.NewManagedDataSource("people", f, conn, logger.NewNop()), logger.NewNop()), mock
}

func TestSelectAndGet(t *testing.T) {
	d, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM people")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Ada").AddRow(2, "Grace"))
	people, err := Select[person](ctx, d, "SELECT id, name FROM people")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(people) != 2 || people[1].Name != "Grace" {
		t.Errorf("unexpected people %+v", people)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM people")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	n, err := Get[int](ctx, d, "SELECT count(*) FROM people")
	if err != nil || n != 2 {
		t.Errorf("expected 2, got %d %v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	if d.Source().Name() != "db:people" {
		t.Errorf("unexpected source name %s", d.Source().Name())
	}
}

func TestInTransaction(t *testing.T) {
	insert := regexp.QuoteMeta("INSERT INTO people (name) VALUES (?)")

	t.Run("commit", func(t *testing.T) {
		d, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(insert).WithArgs("Ada").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := d.InTransaction(context.Background(), func(tx *sqlx.Tx) error {
			_, err := tx.Exec("INSERT INTO people (name) VALUES (?)", "Ada")
			return err
		})
		if err != nil {
			t.Fatalf("InTransaction: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		d, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		if err := d.InTransaction(context.Background(), func(*sqlx.Tx) error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rollback on panic", func(t *testing.T) {
		d, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		}()
		_ = d.InTransaction(context.Background(), func(*sqlx.Tx) error { panic("boom") })
	})
}
