package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// minBlacklistTTL keeps entries for tokens that are about to expire from
// vanishing before a concurrent refresh can observe them.
const minBlacklistTTL = time.Second

// RedisTokenBlacklist records consumed refresh tokens in redis. Keys expire
// together with the token they block, so no purge job is needed.
type RedisTokenBlacklist struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisClient parses url and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedisTokenBlacklist(rdb redis.UniversalClient, prefix string) *RedisTokenBlacklist {
	if prefix == "" {
		prefix = "bl"
	}
	return &RedisTokenBlacklist{rdb: rdb, prefix: prefix}
}

func (b *RedisTokenBlacklist) key(jti string) string {
	return b.prefix + ":" + jti
}

// Revoke blacklists jti with SETNX. It reports false when jti was already blacklisted.
func (b *RedisTokenBlacklist) Revoke(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < minBlacklistTTL {
		ttl = minBlacklistTTL
	}
	ok, err := b.rdb.SetNX(ctx, b.key(jti), strconv.FormatInt(userID, 10), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist refresh token: %w", err)
	}
	return ok, nil
}
