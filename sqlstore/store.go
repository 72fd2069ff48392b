// Package sqlstore implements account.Store over database/sql. PostgreSQL is
// reached through the pgx stdlib driver and SQLite through the pure Go
// modernc driver; both share one schema managed by goose.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/authcore/account"
)

const timeFormat = time.RFC3339Nano

const selectColumns = `id, username, email, password_hash, refresh_token, full_name, avatar, cover_image, created_at, updated_at`

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQL-backed account.Store.
type Store struct {
	db      DBTX
	closer  *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an existing handle. The caller owns its lifecycle and schema.
func New(db DBTX, dialect Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Open connects with the dialect's driver, pings, and applies migrations.
// For SQLite, dsn is a file path; WAL mode and a busy timeout are added.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	if dialect == SQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == SQLite {
		// Writers serialize on the file lock anyway.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := New(db, dialect)
	s.closer = db
	return s, nil
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM users WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return true, nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (account.Identity, error) {
	var (
		out                  account.Identity
		refresh              sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(
		&out.ID, &out.Username, &out.Email, &out.PasswordHash, &refresh,
		&out.Profile.FullName, &out.Profile.Avatar, &out.Profile.CoverImage,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Identity{}, account.ErrNotFound
	}
	if err != nil {
		return account.Identity{}, unavailable(err)
	}
	out.RefreshToken = refresh.String
	out.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	out.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return out, nil
}

// FindByUsernameOrEmail returns the first identity matching either
// identifier, preferring the username match.
func (s *Store) FindByUsernameOrEmail(ctx context.Context, username, email string) (account.Identity, error) {
	username = account.NormalizeIdentifier(username)
	email = account.NormalizeIdentifier(email)
	if username == "" && email == "" {
		return account.Identity{}, account.ErrNotFound
	}

	return s.queryOne(ctx,
		`SELECT `+selectColumns+` FROM users
		 WHERE username = ? OR email = ?
		 ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		 LIMIT 1`,
		username, email, username,
	)
}

// FindByID loads the full record.
func (s *Store) FindByID(ctx context.Context, id string) (account.Identity, error) {
	if id == "" {
		return account.Identity{}, account.ErrNotFound
	}
	return s.queryOne(ctx, `SELECT `+selectColumns+` FROM users WHERE id = ?`, id)
}

// Create inserts a new identity. Uniqueness of username and email is
// enforced by the schema.
func (s *Store) Create(ctx context.Context, in account.Identity) (account.Identity, error) {
	in.Username = account.NormalizeIdentifier(in.Username)
	in.Email = account.NormalizeIdentifier(in.Email)
	if in.Username == "" || in.Email == "" {
		return account.Identity{}, fmt.Errorf("sqlstore: username and email are required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := s.now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	var refresh any
	if in.RefreshToken != "" {
		refresh = in.RefreshToken
	}

	_, err := s.exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, refresh_token, full_name, avatar, cover_image, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Username, in.Email, in.PasswordHash, refresh,
		in.Profile.FullName, in.Profile.Avatar, in.Profile.CoverImage,
		in.CreatedAt.UTC().Format(timeFormat), in.UpdatedAt.UTC().Format(timeFormat),
	)
	if isUniqueViolation(err) {
		return account.Identity{}, account.ErrDuplicate
	}
	if err != nil {
		return account.Identity{}, unavailable(err)
	}

	return in, nil
}

// UpdateProfile applies patch with one UPDATE and reloads the record.
func (s *Store) UpdateProfile(ctx context.Context, id string, patch account.ProfilePatch) (account.Identity, error) {
	if patch.Empty() {
		return s.FindByID(ctx, id)
	}

	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	if patch.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, strings.TrimSpace(*patch.FullName))
	}
	if patch.Email != nil {
		email := account.NormalizeIdentifier(*patch.Email)
		if email == "" {
			return account.Identity{}, fmt.Errorf("sqlstore: email cannot be empty")
		}
		sets = append(sets, "email = ?")
		args = append(args, email)
	}
	if patch.Avatar != nil {
		sets = append(sets, "avatar = ?")
		args = append(args, *patch.Avatar)
	}
	if patch.CoverImage != nil {
		sets = append(sets, "cover_image = ?")
		args = append(args, *patch.CoverImage)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().Format(timeFormat), id)

	n, err := s.exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if isUniqueViolation(err) {
		return account.Identity{}, account.ErrDuplicate
	}
	if err != nil {
		return account.Identity{}, unavailable(err)
	}
	if n == 0 {
		return account.Identity{}, account.ErrNotFound
	}

	return s.FindByID(ctx, id)
}

// UpdatePasswordHash overwrites only the password hash column.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateColumn(ctx, id, "password_hash", hash)
}

// SetRefreshToken overwrites the refresh token column.
func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	var value any
	if token != "" {
		value = token
	}
	return s.updateColumn(ctx, id, "refresh_token", value)
}

// GetRefreshToken returns the stored refresh token, ok=false when absent.
func (s *Store) GetRefreshToken(ctx context.Context, id string) (string, bool, error) {
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT refresh_token FROM users WHERE id = ?`), id).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, account.ErrNotFound
	}
	if err != nil {
		return "", false, unavailable(err)
	}
	if !token.Valid || token.String == "" {
		return "", false, nil
	}
	return token.String, true, nil
}

// ClearRefreshToken sets the refresh token to NULL. Clearing an already
// absent token succeeds.
func (s *Store) ClearRefreshToken(ctx context.Context, id string) error {
	return s.updateColumn(ctx, id, "refresh_token", nil)
}

// RotateRefreshToken is a single conditional UPDATE; zero affected rows
// means either the identity is gone or the token moved on.
func (s *Store) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	if presented == "" {
		return account.ErrTokenMismatch
	}
	n, err := s.exec(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?`,
		next, s.now().Format(timeFormat), id, presented,
	)
	if err != nil {
		return unavailable(err)
	}
	if n == 1 {
		return nil
	}

	found, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return account.ErrNotFound
	}
	return account.ErrTokenMismatch
}

func (s *Store) updateColumn(ctx context.Context, id, column string, value any) error {
	n, err := s.exec(ctx, `UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, s.now().Format(timeFormat), id)
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}

var _ account.Store = (*Store)(nil)
