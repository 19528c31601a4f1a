package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const statsGenerationKey = "ledger:stats:generation"

// Cache memoises GlobalStats results in Redis. Entries are keyed by the
// reference currency, a fingerprint of the account snapshot and a generation
// counter that Invalidate advances. A nil *Cache is a valid no-op cache.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache wraps client. A non-positive ttl keeps entries for five minutes.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Generation reports the current invalidation generation. Zero means nothing
// has been invalidated yet.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	gen, err := c.client.Get(ctx, statsGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// StatsKey names the entry for one snapshot under the current generation.
func (c *Cache) StatsKey(ctx context.Context, referenceCurrency string, accounts []Account) (string, error) {
	fingerprint := snapshotHash(accounts)
	gen, err := c.Generation(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:stats:%s:%s:g%d", referenceCurrency, fingerprint, gen), nil
}

// Stats returns the entry under key, building and storing it on a miss.
func (c *Cache) Stats(ctx context.Context, key string, build func() Stats) (Stats, error) {
	if !c.enabled() {
		return build(), nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var stats Stats
		if err := json.Unmarshal(payload, &stats); err != nil {
			return Stats{}, fmt.Errorf("ledger cache: decode %s: %w", key, err)
		}
		return stats, nil
	case !errors.Is(err, redis.Nil):
		return Stats{}, err
	}

	stats := build()
	raw, err := json.Marshal(stats)
	if err != nil {
		return Stats{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Invalidate advances the generation so every stored entry is bypassed.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, statsGenerationKey).Err()
}

// snapshotHash fingerprints the fields that feed the totals. Floats are
// written with strconv so NaN and infinities hash like any other value.
func snapshotHash(accounts []Account) string {
	h := sha256.New()
	for _, a := range accounts {
		capital := "-"
		if a.InitialCapital != nil {
			capital = strconv.FormatFloat(*a.InitialCapital, 'g', -1, 64)
		}
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s\n",
			a.ID, a.Currency, a.Category, a.ParentID,
			strconv.FormatFloat(a.Balance, 'g', -1, 64),
			capital,
			strconv.FormatFloat(a.Rate, 'g', -1, 64),
		)
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
