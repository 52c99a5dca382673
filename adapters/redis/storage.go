// Package redis provides Redis-backed components: the at-most-once review
// ledger and a read-through cache in front of the catalog store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"incentivekit/core"
	"incentivekit/engine"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Connect opens and pings a Redis client.
func Connect(config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Ledger implements engine.ReviewLedger on Redis SETNX. Entries expire so a
// crashed run cannot block a review forever once the retention window
// passes.
type Ledger struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultLedgerTTL keeps processed marks for 90 days.
const DefaultLedgerTTL = 90 * 24 * time.Hour

func NewLedger(client *redis.Client, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &Ledger{client: client, ttl: ttl}
}

func ledgerKey(reviewID int64) string {
	return fmt.Sprintf("incentive:review:%d:processed", reviewID)
}

// MarkProcessed claims the review id. The bool reports whether this call was
// the first claimant.
func (l *Ledger) MarkProcessed(ctx context.Context, reviewID int64) (bool, error) {
	first, err := l.client.SetNX(ctx, ledgerKey(reviewID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark review %d processed: %w", reviewID, err)
	}
	return first, nil
}

// Unmark releases the claim so a failed run can be retried.
func (l *Ledger) Unmark(ctx context.Context, reviewID int64) error {
	if err := l.client.Del(ctx, ledgerKey(reviewID)).Err(); err != nil {
		return fmt.Errorf("unmark review %d: %w", reviewID, err)
	}
	return nil
}

// CatalogCache is a read-through cache in front of a CatalogStore. Ladder and
// badge configs change rarely but are read on every processing run; cache
// misses and decode failures fall through to the backing store.
type CatalogCache struct {
	client  *redis.Client
	backing engine.CatalogStore
	ttl     time.Duration
}

const (
	levelsCacheKey = "incentive:catalog:levels"
	badgesCacheKey = "incentive:catalog:badges"

	// DefaultCatalogTTL bounds staleness after out-of-band catalog edits.
	DefaultCatalogTTL = 5 * time.Minute
)

func NewCatalogCache(client *redis.Client, backing engine.CatalogStore, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CatalogCache{client: client, backing: backing, ttl: ttl}
}

func (c *CatalogCache) GetAllLevels(ctx context.Context) ([]core.Level, error) {
	var levels []core.Level
	if c.readCached(ctx, levelsCacheKey, &levels) {
		return levels, nil
	}
	levels, err := c.backing.GetAllLevels(ctx)
	if err != nil {
		return nil, err
	}
	c.writeCached(ctx, levelsCacheKey, levels)
	return levels, nil
}

func (c *CatalogCache) GetAllBadges(ctx context.Context) ([]core.BadgeSpec, error) {
	var badges []core.BadgeSpec
	if c.readCached(ctx, badgesCacheKey, &badges) {
		return badges, nil
	}
	badges, err := c.backing.GetAllBadges(ctx)
	if err != nil {
		return nil, err
	}
	c.writeCached(ctx, badgesCacheKey, badges)
	return badges, nil
}

// Invalidate drops both cache entries. Call it after catalog writes.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, levelsCacheKey, badgesCacheKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}

func (c *CatalogCache) readCached(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *CatalogCache) writeCached(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	// Best effort: a failed cache write only costs the next read a DB trip.
	_ = c.client.Set(ctx, key, raw, c.ttl).Err()
}

var (
	_ engine.ReviewLedger = (*Ledger)(nil)
	_ engine.CatalogStore = (*CatalogCache)(nil)
)
