package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "rbac:grant"

// noFill is handed out when the version could not be read; Set ignores it.
const noFill Token = -1

// RedisCache shares grant lookups between API processes. Each role has a version
// counter folded into its keys; invalidation bumps the counter instead of scanning keys.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewRedisClient creates a client and checks connectivity.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client. Redis failures degrade to cache misses and are logged.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logrus.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, roleID uuid.UUID, page string) (Entry, Token, bool) {
	ver, err := c.version(ctx, roleID)
	if err != nil {
		c.warn(err, "read grant version")
		return Entry{}, noFill, false
	}
	payload, err := c.client.Get(ctx, grantKey(roleID, ver, page)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(err, "read grant")
		}
		return Entry{}, ver, false
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		c.warn(err, "decode grant")
		return Entry{}, ver, false
	}
	return entry, ver, true
}

// Set writes under the version observed by Get. After an invalidation that key
// is never read again, so a late fill only occupies memory until its TTL.
func (c *RedisCache) Set(ctx context.Context, roleID uuid.UUID, page string, token Token, entry Entry) {
	if token == noFill {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		c.warn(err, "encode grant")
		return
	}
	if err := c.client.Set(ctx, grantKey(roleID, token, page), payload, c.ttl).Err(); err != nil {
		c.warn(err, "write grant")
	}
}

func (c *RedisCache) InvalidateRole(ctx context.Context, roleID uuid.UUID) {
	if err := c.client.Incr(ctx, versionKey(roleID)).Err(); err != nil {
		c.warn(err, "bump grant version")
	}
}

func (c *RedisCache) version(ctx context.Context, roleID uuid.UUID) (Token, error) {
	ver, err := c.client.Get(ctx, versionKey(roleID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return Token(ver), nil
}

func (c *RedisCache) warn(err error, op string) {
	if c.log == nil {
		return
	}
	c.log.WithError(err).WithField("op", op).Warn("grant cache degraded")
}

func grantKey(roleID uuid.UUID, ver Token, page string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, roleID, strconv.FormatInt(int64(ver), 10), page)
}

func versionKey(roleID uuid.UUID) string {
	return keyPrefix + ":" + roleID.String() + ":ver"
}
