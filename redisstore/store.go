// Package redisstore implements account.Store on Redis. Each identity is a
// hash; username and email are unique string indexes pointing at the id.
// Every mutation that must be atomic runs as a single Lua script.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/account"
)

const timeFormat = time.RFC3339Nano

const (
	fieldID           = "id"
	fieldUsername     = "username"
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
	fieldRefreshToken = "refresh_token"
	fieldFullName     = "full_name"
	fieldAvatar       = "avatar"
	fieldCoverImage   = "cover_image"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

const (
	statusNotFound int64 = 0
	statusOK       int64 = 1
	statusConflict int64 = 2
	statusRotated  int64 = 3
)

const createScript = `
if redis.call("EXISTS", KEYS[2]) == 1 or redis.call("EXISTS", KEYS[3]) == 1 then
  return 2
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[1])
return 1
`

var createLua = redis.NewScript(createScript)

// setFieldScript writes or removes one field of an existing record.
// ARGV[1] field, ARGV[2] value, ARGV[3] updated_at, ARGV[4] "1" to delete.
const setFieldScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if ARGV[4] == "1" then
  redis.call("HDEL", KEYS[1], ARGV[1])
else
  redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[3])
return 1
`

var setFieldLua = redis.NewScript(setFieldScript)

const rotateRefreshScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local current = redis.call("HGET", KEYS[1], "refresh_token")
if not current or current ~= ARGV[1] then
  return 2
end
redis.call("HSET", KEYS[1], "refresh_token", ARGV[2], "updated_at", ARGV[3])
return 3
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// updateProfileScript applies a profile patch. KEYS[1] record, KEYS[2] new
// email index ("" when email is unchanged). ARGV[1] id, ARGV[2] new email,
// ARGV[3] email index prefix, ARGV[4..] field/value pairs.
const updateProfileScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if ARGV[2] ~= "" then
  local owner = redis.call("GET", KEYS[2])
  if owner and owner ~= ARGV[1] then
    return 2
  end
  local old = redis.call("HGET", KEYS[1], "email")
  if old and old ~= ARGV[2] then
    redis.call("DEL", ARGV[3] .. old)
  end
  redis.call("SET", KEYS[2], ARGV[1])
  redis.call("HSET", KEYS[1], "email", ARGV[2])
end
for i = 4, #ARGV, 2 do
  redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`

var updateProfileLua = redis.NewScript(updateProfileScript)

// Store is a Redis-backed account.Store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a Store. prefix namespaces every key; "ac" is used when empty.
func New(client redis.UniversalClient, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ac"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) userKey(id string) string {
	return s.prefix + ":user:" + id
}

func (s *Store) usernameKey(username string) string {
	return s.prefix + ":uname:" + username
}

func (s *Store) emailPrefix() string {
	return s.prefix + ":email:"
}

func (s *Store) emailKey(email string) string {
	return s.emailPrefix() + email
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", account.ErrUnavailable, err)
}

// FindByUsernameOrEmail resolves the identifier indexes and loads the record.
//
//	Performance: 1–2 GET + 1 HGETALL.
func (s *Store) FindByUsernameOrEmail(ctx context.Context, username, email string) (account.Identity, error) {
	username = account.NormalizeIdentifier(username)
	email = account.NormalizeIdentifier(email)

	lookups := make([]string, 0, 2)
	if username != "" {
		lookups = append(lookups, s.usernameKey(username))
	}
	if email != "" {
		lookups = append(lookups, s.emailKey(email))
	}
	if len(lookups) == 0 {
		return account.Identity{}, account.ErrNotFound
	}

	for _, key := range lookups {
		id, err := s.redis.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return account.Identity{}, unavailable(err)
		}
		found, err := s.FindByID(ctx, id)
		if errors.Is(err, account.ErrNotFound) {
			continue
		}
		return found, err
	}

	return account.Identity{}, account.ErrNotFound
}

// FindByID loads the full record.
func (s *Store) FindByID(ctx context.Context, id string) (account.Identity, error) {
	if id == "" {
		return account.Identity{}, account.ErrNotFound
	}
	fields, err := s.redis.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return account.Identity{}, unavailable(err)
	}
	if len(fields) == 0 {
		return account.Identity{}, account.ErrNotFound
	}
	return decodeIdentity(fields), nil
}

// Create inserts a new record and claims both identifier indexes in one
// script, so two concurrent registrations cannot both win.
func (s *Store) Create(ctx context.Context, in account.Identity) (account.Identity, error) {
	in.Username = account.NormalizeIdentifier(in.Username)
	in.Email = account.NormalizeIdentifier(in.Email)
	if in.Username == "" || in.Email == "" {
		return account.Identity{}, fmt.Errorf("redisstore: username and email are required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	now := s.now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	args := append([]any{in.ID}, encodeIdentity(in)...)
	status, err := createLua.Run(ctx, s.redis,
		[]string{s.userKey(in.ID), s.usernameKey(in.Username), s.emailKey(in.Email)},
		args...,
	).Int64()
	if err != nil {
		return account.Identity{}, unavailable(err)
	}
	if status == statusConflict {
		return account.Identity{}, account.ErrDuplicate
	}

	return in, nil
}

// UpdateProfile applies patch and returns the updated record. It never
// touches the password hash or the refresh token.
func (s *Store) UpdateProfile(ctx context.Context, id string, patch account.ProfilePatch) (account.Identity, error) {
	if patch.Empty() {
		return s.FindByID(ctx, id)
	}

	newEmail := ""
	emailKey := ""
	if patch.Email != nil {
		newEmail = account.NormalizeIdentifier(*patch.Email)
		if newEmail == "" {
			return account.Identity{}, fmt.Errorf("redisstore: email cannot be empty")
		}
		emailKey = s.emailKey(newEmail)
	}

	args := []any{id, newEmail, s.emailPrefix()}
	if patch.FullName != nil {
		args = append(args, fieldFullName, strings.TrimSpace(*patch.FullName))
	}
	if patch.Avatar != nil {
		args = append(args, fieldAvatar, *patch.Avatar)
	}
	if patch.CoverImage != nil {
		args = append(args, fieldCoverImage, *patch.CoverImage)
	}
	args = append(args, fieldUpdatedAt, s.now().Format(timeFormat))

	status, err := updateProfileLua.Run(ctx, s.redis, []string{s.userKey(id), emailKey}, args...).Int64()
	if err != nil {
		return account.Identity{}, unavailable(err)
	}
	switch status {
	case statusNotFound:
		return account.Identity{}, account.ErrNotFound
	case statusConflict:
		return account.Identity{}, account.ErrDuplicate
	}

	return s.FindByID(ctx, id)
}

// UpdatePasswordHash overwrites only the password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.setField(ctx, id, fieldPasswordHash, hash, false)
}

// SetRefreshToken overwrites the stored refresh token.
//
//	Performance: 1 EVALSHA.
func (s *Store) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.setField(ctx, id, fieldRefreshToken, token, false)
}

// GetRefreshToken returns the stored refresh token, ok=false when absent.
func (s *Store) GetRefreshToken(ctx context.Context, id string) (string, bool, error) {
	values, err := s.redis.HMGet(ctx, s.userKey(id), fieldID, fieldRefreshToken).Result()
	if err != nil {
		return "", false, unavailable(err)
	}
	if len(values) != 2 || values[0] == nil {
		return "", false, account.ErrNotFound
	}
	token, _ := values[1].(string)
	return token, token != "", nil
}

// ClearRefreshToken removes the stored refresh token. Clearing an already
// absent token succeeds.
func (s *Store) ClearRefreshToken(ctx context.Context, id string) error {
	return s.setField(ctx, id, fieldRefreshToken, "", true)
}

// RotateRefreshToken swaps presented for next when presented is still the
// stored value.
//
//	Performance: 1 EVALSHA.
func (s *Store) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	if presented == "" {
		return account.ErrTokenMismatch
	}
	status, err := rotateRefreshLua.Run(ctx, s.redis, []string{s.userKey(id)},
		presented, next, s.now().Format(timeFormat),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch status {
	case statusRotated:
		return nil
	case statusNotFound:
		return account.ErrNotFound
	default:
		return account.ErrTokenMismatch
	}
}

func (s *Store) setField(ctx context.Context, id, field, value string, remove bool) error {
	flag := "0"
	if remove || value == "" {
		flag = "1"
	}
	status, err := setFieldLua.Run(ctx, s.redis, []string{s.userKey(id)},
		field, value, s.now().Format(timeFormat), flag,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if status == statusNotFound {
		return account.ErrNotFound
	}
	return nil
}

func encodeIdentity(id account.Identity) []any {
	out := []any{
		fieldID, id.ID,
		fieldUsername, id.Username,
		fieldEmail, id.Email,
		fieldPasswordHash, id.PasswordHash,
		fieldFullName, id.Profile.FullName,
		fieldAvatar, id.Profile.Avatar,
		fieldCoverImage, id.Profile.CoverImage,
		fieldCreatedAt, id.CreatedAt.UTC().Format(timeFormat),
		fieldUpdatedAt, id.UpdatedAt.UTC().Format(timeFormat),
	}
	if id.RefreshToken != "" {
		out = append(out, fieldRefreshToken, id.RefreshToken)
	}
	return out
}

func decodeIdentity(fields map[string]string) account.Identity {
	createdAt, _ := time.Parse(timeFormat, fields[fieldCreatedAt])
	updatedAt, _ := time.Parse(timeFormat, fields[fieldUpdatedAt])
	return account.Identity{
		ID:           fields[fieldID],
		Username:     fields[fieldUsername],
		Email:        fields[fieldEmail],
		PasswordHash: fields[fieldPasswordHash],
		RefreshToken: fields[fieldRefreshToken],
		Profile: account.Profile{
			FullName:   fields[fieldFullName],
			Avatar:     fields[fieldAvatar],
			CoverImage: fields[fieldCoverImage],
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

var _ account.Store = (*Store)(nil)
