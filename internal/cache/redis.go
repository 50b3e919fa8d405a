package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oggyb/event-network/internal/config"
)

// ErrLockHeld is returned when another worker owns a lock.
var ErrLockHeld = errors.New("lock is held by another worker")

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForRecomputeLock generates the lock key guarding an event's recompute.
func (c *RedisCache) KeyForRecomputeLock(eventID uint64) string {
	return fmt.Sprintf("matches:recompute:lock:%d", eventID)
}

// KeyForMatches generates the key of a user's cached first page of matches
// at generation gen. eventID 0 means "all events".
func (c *RedisCache) KeyForMatches(userID, eventID, gen uint64) string {
	return fmt.Sprintf("matches:user:%d:event:%d:gen:%d", userID, eventID, gen)
}

// KeyForMatchGeneration generates the generation counter key of eventID.
// eventID 0 is the counter of the cross-event listing.
func (c *RedisCache) KeyForMatchGeneration(eventID uint64) string {
	return fmt.Sprintf("matches:gen:event:%d", eventID)
}

// AcquireLock takes key for ttl. The returned release func only deletes
// the key while it still belongs to this caller.
func (c *RedisCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := c.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, c.Client, []string{key}, token).Err()
	}, nil
}

// GetJSON decodes key into dst. A miss returns (false, nil).
func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil // cache miss
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// corrupt entry, drop it
		_ = c.Client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON stores v under key with ttl.
func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.Client.Set(ctx, key, raw, ttl).Err()
}

// MatchGeneration returns the cache generation of eventID, 0 when unset.
func (c *RedisCache) MatchGeneration(ctx context.Context, eventID uint64) (uint64, error) {
	gen, err := c.Client.Get(ctx, c.KeyForMatchGeneration(eventID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// BumpMatchGeneration moves eventID and the cross-event listing to a new
// generation. Pages cached under older generations are never read again
// and expire with their TTL, whoever they belong to.
func (c *RedisCache) BumpMatchGeneration(ctx context.Context, eventID uint64) error {
	_, err := c.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, c.KeyForMatchGeneration(eventID))
		if eventID != 0 {
			p.Incr(ctx, c.KeyForMatchGeneration(0))
		}
		return nil
	})
	return err
}
