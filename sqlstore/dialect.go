package sqlstore

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect selects driver-specific SQL details.
type Dialect string

const (
	// Postgres uses the pgx stdlib driver ("pgx").
	Postgres Dialect = "postgres"
	// SQLite uses the pure Go modernc driver ("sqlite").
	SQLite Dialect = "sqlite"
)

// driverName returns the database/sql driver registered for d.
func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// gooseDialect returns the goose dialect name for d.
func (d Dialect) gooseDialect() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ParseDialect maps a store name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", errors.New("sqlstore: unknown dialect " + strconv.Quote(name))
}
