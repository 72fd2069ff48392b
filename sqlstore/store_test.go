package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/account/accounttest"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "authcore.db")
	s, err := Open(context.Background(), SQLite, path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return s
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, Postgres), mock
}

func TestSQLiteStoreConformance(t *testing.T) {
	accounttest.Run(t, func(t *testing.T) account.Store {
		return openTempStore(t)
	})
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), SQLite, "  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.db")
	ctx := context.Background()

	first, err := Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	created, err := first.Create(ctx, account.Identity{Username: "alice", Email: "alice@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.SetRefreshToken(ctx, created.ID, "r1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, SQLite, path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	token, ok, err := second.GetRefreshToken(ctx, created.ID)
	if err != nil || !ok || token != "r1" {
		t.Fatalf("token after reopen: %q ok=%v err=%v", token, ok, err)
	}
}

func TestRebind(t *testing.T) {
	got := Postgres.rebind(`UPDATE users SET a = ?, b = ? WHERE id = ?`)
	want := `UPDATE users SET a = $1, b = $2 WHERE id = $3`
	if got != want {
		t.Fatalf("rebind = %q, want %q", got, want)
	}
	if SQLite.rebind(want) != want {
		t.Fatal("sqlite rebind must leave the query untouched")
	}
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{"postgres": Postgres, "PGX": Postgres, "sqlite3": SQLite} {
		got, err := ParseDialect(in)
		if err != nil || got != want {
			t.Fatalf("ParseDialect(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDialect("oracle"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.Create(context.Background(), account.Identity{Username: "alice", Email: "alice@example.com"})
	if !errors.Is(err, account.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByIDWrapsDriverErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.FindByID(context.Background(), "u1")
	if !errors.Is(err, account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRotateDistinguishesMismatchFromMissing(t *testing.T) {
	s, mock := newMockStore(t)
	rotate := regexp.QuoteMeta(`UPDATE users SET refresh_token = $1, updated_at = $2 WHERE id = $3 AND refresh_token = $4`)
	exists := regexp.QuoteMeta(`SELECT 1 FROM users WHERE id = $1`)

	mock.ExpectExec(rotate).
		WithArgs("r2", sqlmock.AnyArg(), "u1", "r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	if err := s.RotateRefreshToken(context.Background(), "u1", "r1", "r2"); !errors.Is(err, account.ErrTokenMismatch) {
		t.Fatalf("expected ErrTokenMismatch, got %v", err)
	}

	mock.ExpectExec(rotate).
		WithArgs("r2", sqlmock.AnyArg(), "u2", "r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(exists).WithArgs("u2").WillReturnError(sql.ErrNoRows)

	if err := s.RotateRefreshToken(context.Background(), "u2", "r1", "r2"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectExec(rotate).
		WithArgs("r2", sqlmock.AnyArg(), "u3", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.RotateRefreshToken(context.Background(), "u3", "r1", "r2"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRefreshTokenFailureIsUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET refresh_token = $1`)).
		WillReturnError(errors.New("disk full"))

	err := s.SetRefreshToken(context.Background(), "u1", "r1")
	if !errors.Is(err, account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMigrateSurfacesGooseErrors(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return errors.New("boom")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	err = Migrate(context.Background(), db, Postgres)
	if err == nil || gotDir != "migrations" {
		t.Fatalf("expected goose error for dir migrations, got err=%v dir=%q", err, gotDir)
	}
}
