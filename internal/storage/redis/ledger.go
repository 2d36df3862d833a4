// Package redis keeps the refresh token ledger in Redis. Each token is a
// hash under a digest of the token string with a PEXPIREAT matching the
// ledger expiry; a per-user set indexes a user's tokens for bulk revocation.
//
// Every key carries the "{rt}" hash tag so that multi-key scripts and
// transactions stay in one slot on Redis Cluster. Scripts only touch keys
// passed in KEYS.
//
// The backend cannot see the users relation, so CreateRefreshToken does not
// check that the owner exists.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

const defaultPrefix = "authcore:"

// KEYS[1] token hash, KEYS[2] owner index set, ARGV[1] owner id.
const deleteTokenScript = `
local uid = redis.call("HGET", KEYS[1], "user_id")
if uid ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], KEYS[1])
return 1
`

// KEYS[1] owner index set, KEYS[2..n] token hashes read from it.
const deleteUserTokensScript = `
local n = 0
for i = 2, #KEYS do
  n = n + redis.call("DEL", KEYS[i])
  redis.call("SREM", KEYS[1], KEYS[i])
end
if redis.call("SCARD", KEYS[1]) == 0 then
  redis.call("DEL", KEYS[1])
end
return n
`

var (
	deleteTokenLua      = redis.NewScript(deleteTokenScript)
	deleteUserTokensLua = redis.NewScript(deleteUserTokensScript)
)

type Ledger struct {
	client redis.UniversalClient
	prefix string
}

// New returns a ledger backend. An empty prefix uses "authcore:".
func New(client redis.UniversalClient, prefix string) *Ledger {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Ledger{client: client, prefix: prefix}
}

func (l *Ledger) tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return l.prefix + "{rt}:t:" + hex.EncodeToString(sum[:])
}

func (l *Ledger) userKeyPrefix() string { return l.prefix + "{rt}:u:" }

func (l *Ledger) userKey(userID int64) string {
	return l.userKeyPrefix() + strconv.FormatInt(userID, 10)
}

func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return apperrors.Unavailable("redis ping", err)
	}
	return nil
}

func (l *Ledger) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) (int64, error) {
	id, err := l.client.Incr(ctx, l.prefix+"{rt}:seq").Result()
	if err != nil {
		return 0, apperrors.Unavailable("create refresh token", err)
	}

	key := l.tokenKey(rt.Token)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", id,
			"user_id", rt.UserID,
			"expires_at", rt.ExpiresAt.UnixMilli(),
			"created_at", rt.CreatedAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, rt.ExpiresAt)
		pipe.SAdd(ctx, l.userKey(rt.UserID), key)
		return nil
	})
	if err != nil {
		return 0, apperrors.Unavailable("create refresh token", err)
	}
	return id, nil
}

func (l *Ledger) RefreshTokenExists(ctx context.Context, token string, userID int64, now time.Time) (bool, error) {
	vals, err := l.client.HMGet(ctx, l.tokenKey(token), "user_id", "expires_at").Result()
	if err != nil {
		return false, apperrors.Unavailable("find refresh token", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return false, nil
	}
	owner, err := strconv.ParseInt(vals[0].(string), 10, 64)
	if err != nil {
		return false, nil
	}
	expires, err := strconv.ParseInt(vals[1].(string), 10, 64)
	if err != nil {
		return false, nil
	}
	return owner == userID && now.UnixMilli() < expires, nil
}

func (l *Ledger) DeleteRefreshToken(ctx context.Context, token string) (bool, error) {
	key := l.tokenKey(token)
	uid, err := l.client.HGet(ctx, key, "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Unavailable("delete refresh token", err)
	}
	owner, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		return false, nil
	}

	// The script re-checks the owner in case the hash changed in between.
	n, err := deleteTokenLua.Run(ctx, l.client, []string{key, l.userKey(owner)}, uid).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, apperrors.Unavailable("delete refresh token", err)
	}
	return n > 0, nil
}

func (l *Ledger) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	setKey := l.userKey(userID)
	members, err := l.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, apperrors.Unavailable("delete user refresh tokens", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := append([]string{setKey}, members...)
	n, err := deleteUserTokensLua.Run(ctx, l.client, keys).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, apperrors.Unavailable("delete user refresh tokens", err)
	}
	return n, nil
}

// DeleteExpiredRefreshTokens drops index entries whose token hash Redis has
// already expired. It returns the number of entries removed.
func (l *Ledger) DeleteExpiredRefreshTokens(ctx context.Context, _ time.Time) (int64, error) {
	var removed int64
	iter := l.client.Scan(ctx, 0, l.userKeyPrefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		members, err := l.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, apperrors.Unavailable("prune refresh tokens", err)
		}
		for _, member := range members {
			exists, err := l.client.Exists(ctx, member).Result()
			if err != nil {
				return removed, apperrors.Unavailable("prune refresh tokens", err)
			}
			if exists == 0 {
				n, err := l.client.SRem(ctx, setKey, member).Result()
				if err != nil {
					return removed, apperrors.Unavailable("prune refresh tokens", err)
				}
				removed += n
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, apperrors.Unavailable("prune refresh tokens", err)
	}
	return removed, nil
}
