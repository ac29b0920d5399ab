package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

const (
	keyPrefix      = "dataset:"
	staleKeyPrefix = "dataset:stale:"

	// memcached treats larger relative expirations as unix timestamps.
	maxRelativeExp = 30 * 24 * 60 * 60
)

// MemcachedCache stores datasets in memcached as JSON. Every Set also writes
// a stale copy that outlives the fresh one by staleRetention.
type MemcachedCache struct {
	client         *memcache.Client
	staleRetention time.Duration
}

// envelope records when the value was stored so GetStale can apply maxAge.
type envelope struct {
	StoredAt time.Time      `json:"storedAt"`
	Dataset  models.Dataset `json:"dataset"`
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout and
// maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, staleRetention time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, fmt.Errorf("memcached: no server addresses in %q", addrs)
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, staleRetention: staleRetention}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// keyFor hashes source: URLs can exceed memcached's 250-byte key limit and
// contain bytes it rejects.
func keyFor(prefix, source string) string {
	sum := sha256.Sum256([]byte(source))
	return prefix + hex.EncodeToString(sum[:16])
}

// Get returns false, nil on a miss.
func (c *MemcachedCache) Get(ctx context.Context, source string) (models.Dataset, bool, error) {
	env, ok, err := c.load(ctx, keyFor(keyPrefix, source))
	if err != nil || !ok {
		return models.Dataset{}, ok, err
	}
	return env.Dataset, true, nil
}

// Set writes the fresh copy with ttl and the stale copy with ttl+staleRetention.
func (c *MemcachedCache) Set(ctx context.Context, source string, value models.Dataset, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(envelope{StoredAt: time.Now().UTC(), Dataset: value})
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := c.client.Set(&memcache.Item{
		Key:        keyFor(keyPrefix, source),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	}); err != nil {
		return err
	}
	if c.staleRetention <= 0 {
		return nil
	}
	return c.client.Set(&memcache.Item{
		Key:        keyFor(staleKeyPrefix, source),
		Value:      raw,
		Expiration: expirationSeconds(ttl + c.staleRetention),
	})
}

// GetStale reads the stale copy and applies maxAge to its store time.
func (c *MemcachedCache) GetStale(ctx context.Context, source string, maxAge time.Duration) (models.Dataset, bool, error) {
	env, ok, err := c.load(ctx, keyFor(staleKeyPrefix, source))
	if err != nil || !ok {
		return models.Dataset{}, ok, err
	}
	if time.Since(env.StoredAt) > maxAge {
		return models.Dataset{}, false, nil
	}
	ds := env.Dataset
	ds.Stale = true
	return ds, true, nil
}

func (c *MemcachedCache) load(ctx context.Context, key string) (envelope, bool, error) {
	if err := ctx.Err(); err != nil {
		return envelope{}, false, err
	}
	item, err := c.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(item.Value, &env); err != nil {
		return envelope{}, false, fmt.Errorf("decode cached dataset: %w", err)
	}
	return env, true, nil
}

func expirationSeconds(ttl time.Duration) int32 {
	sec := int64(ttl / time.Second)
	if sec <= 0 {
		return 3600
	}
	if sec > maxRelativeExp {
		return maxRelativeExp
	}
	return int32(sec)
}

// Ping checks memcached reachability for /health.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
