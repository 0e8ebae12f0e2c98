package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coupons:applied:"

// redisClient is the subset of redis.Cmdable the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type RedisStore struct {
	rdb redisClient
	ttl time.Duration
}

// NewRedisStore keeps each cart's list for ttl after its last write. Zero means no expiry.
func NewRedisStore(rdb redisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func Key(cartID string) string { return keyPrefix + cartID }

func (s *RedisStore) Load(ctx context.Context, cartID string) ([]string, error) {
	raw, err := s.rdb.Get(ctx, Key(cartID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "load codes for cart %s", cartID)
	}
	return DecodeCodes(raw), nil
}

func (s *RedisStore) Save(ctx context.Context, cartID string, codes []string) error {
	if len(codes) == 0 {
		return s.Clear(ctx, cartID)
	}
	err := s.rdb.Set(ctx, Key(cartID), EncodeCodes(codes), s.ttl).Err()
	return errors.Wrapf(err, "save codes for cart %s", cartID)
}

func (s *RedisStore) Clear(ctx context.Context, cartID string) error {
	err := s.rdb.Del(ctx, Key(cartID)).Err()
	return errors.Wrapf(err, "clear codes for cart %s", cartID)
}
