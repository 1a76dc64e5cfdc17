// internal/confirm/redis.go
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "resetctl:session:"
	tokenKeyPrefix   = "resetctl:token:"
	usedKeyPrefix    = "resetctl:token-used:"
)

// RedisSessionStore backs sessions with Redis TTLs; use it when running more
// than one controller instance behind a load balancer. Stage submissions are
// serialized per instance, not store-wide: pin a session's requests to one
// instance (sticky routing on the session id). Submissions racing across
// instances can lose at most one stage input; the stage-ordering check keeps
// the flow itself consistent.
type RedisSessionStore struct {
	rdb *redis.Client
}

func NewRedisSessionStore(rdb *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		// Redis TTL eviction makes expiry indistinguishable from deletion.
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, s Session, ttl time.Duration) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKeyPrefix+s.ID, raw, ttl).Err()
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}

// RedisTokenStore backs tokens with Redis. Consume relies on GETDEL being
// atomic; a tombstone key distinguishes "already used" from "never existed"
// for the losing caller.
type RedisTokenStore struct {
	rdb *redis.Client
}

func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (r *RedisTokenStore) Put(ctx context.Context, t Token, ttl time.Duration) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, tokenKeyPrefix+t.ID, raw, ttl).Err()
}

func (r *RedisTokenStore) Get(ctx context.Context, id string) (Token, error) {
	raw, err := r.rdb.Get(ctx, tokenKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, r.notFoundOrUsed(ctx, id)
	}
	if err != nil {
		return Token{}, err
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (r *RedisTokenStore) Consume(ctx context.Context, id string) (Token, error) {
	raw, err := r.rdb.GetDel(ctx, tokenKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, r.notFoundOrUsed(ctx, id)
	}
	if err != nil {
		return Token{}, err
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, err
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl < time.Minute {
		ttl = time.Minute
	}
	_ = r.rdb.Set(ctx, usedKeyPrefix+id, "1", ttl).Err()
	return t, nil
}

func (r *RedisTokenStore) notFoundOrUsed(ctx context.Context, id string) error {
	n, err := r.rdb.Exists(ctx, usedKeyPrefix+id).Result()
	if err == nil && n > 0 {
		return ErrTokenUsed
	}
	return ErrTokenNotFound
}
