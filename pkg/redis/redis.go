package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bod9dzys/BasicWFMbb/config"
)

// ErrLockHeld another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another process")

// Client wraps go-redis.
// Used for cross-process import serialisation; callers treat a nil *Client as "no Redis".
type Client struct {
	rdb    goredis.UniversalClient
	logger *zap.Logger
}

// NewClient connects and pings Redis.
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// NewFromUniversal wraps an existing go-redis client.
func NewFromUniversal(rdb goredis.UniversalClient, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// ── distributed lock ──

const lockPrefix = "wfm:lock:"

// releaseScript deletes the key only while it still carries our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held lock; Release is safe to call more than once.
type Lock struct {
	client *Client
	key    string
	token  string
}

// Acquire takes the named lock for ttl, failing fast with ErrLockHeld.
func (c *Client) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := lockPrefix + name
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Release drops the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		l.client.logger.Warn("release lock failed", zap.String("key", l.key), zap.Error(err))
		return err
	}
	return nil
}

// ── rate limit ──

const rateLimitPrefix = "wfm:"

// Allow counts one hit on key in a fixed window and reports whether it is within limit.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = rateLimitPrefix + key

	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if n == 1 {
		if err := c.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit %s: %w", key, err)
		}
	}
	return n <= int64(limit), nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
