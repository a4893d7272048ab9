package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/teslashibe/go-wayfinder/pkg/geo"
)

const routesBucket = "routes"

// CacheConfig configures the persistent route cache.
type CacheConfig struct {
	Path string        `yaml:"path" json:"path"`
	TTL  time.Duration `yaml:"ttl" json:"ttl"`

	// OriginPrecision is the number of decimal places the origin is rounded
	// to when building a key. 4 places is roughly 11 m, so small GPS jitter
	// between repeated searches still hits the cache.
	OriginPrecision int `yaml:"origin_precision" json:"origin_precision" validate:"gte=0,lte=7"`
}

// DefaultCacheConfig returns a one-day cache keyed on ~11 m origin cells.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Path:            "wayfinder-routes.db",
		TTL:             24 * time.Hour,
		OriginPrecision: 4,
	}
}

type cacheEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Provider  string          `json:"provider"`
	Payload   json.RawMessage `json:"payload"`
}

// Cache stores route payloads in a bbolt database.
type Cache struct {
	db     *bolt.DB
	cfg    CacheConfig
	now    func() time.Time
	logger *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// OpenCache opens (or creates) the cache database.
func OpenCache(cfg CacheConfig, logger *slog.Logger) (*Cache, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("route: cache path required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("route: open cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(routesBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("route: init cache: %w", err)
	}
	return &Cache{
		db:     db,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "route.cache"),
	}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key builds the cache key for a request.
func (c *Cache) Key(req Request) string {
	return fmt.Sprintf("%s|%s",
		roundPoint(req.Origin, c.cfg.OriginPrecision),
		roundPoint(req.Destination, 6),
	)
}

func roundPoint(p geo.Point, places int) string {
	scale := math.Pow(10, float64(places))
	lat := math.Round(p.Lat*scale) / scale
	lon := math.Round(p.Lon*scale) / scale
	return fmt.Sprintf("%.*f,%.*f", places, lat, places, lon)
}

// Get returns a fresh payload for the request or ErrCacheMiss.
func (c *Cache) Get(req Request) (Payload, error) {
	key := c.Key(req)
	var entry cacheEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(routesBucket)).Get([]byte(key))
		if v == nil {
			return ErrCacheMiss
		}
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		c.misses.Add(1)
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("cache entry unreadable", "key", key, "error", err)
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	if c.cfg.TTL > 0 && c.now().Sub(entry.FetchedAt) > c.cfg.TTL {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	c.hits.Add(1)
	return Payload(entry.Payload), nil
}

// Put stores a payload for the request.
func (c *Cache) Put(req Request, provider string, payload Payload) error {
	if !json.Valid(payload) {
		return fmt.Errorf("%w: not JSON", ErrMalformedPayload)
	}
	data, err := json.Marshal(cacheEntry{
		FetchedAt: c.now(),
		Provider:  provider,
		Payload:   json.RawMessage(payload),
	})
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(routesBucket)).Put([]byte(c.Key(req)), data)
	})
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune() (int, error) {
	if c.cfg.TTL <= 0 {
		return 0, nil
	}
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(routesBucket))
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var entry cacheEntry
			if err := json.Unmarshal(v, &entry); err != nil || c.now().Sub(entry.FetchedAt) > c.cfg.TTL {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Stats returns cache hit and miss counts since open.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// CachedProvider serves routes from a Cache and falls back to the wrapped
// provider, storing what it fetches.
type CachedProvider struct {
	next   Provider
	cache  *Cache
	logger *slog.Logger
}

// NewCachedProvider wraps next with cache.
func NewCachedProvider(next Provider, cache *Cache, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{
		next:   next,
		cache:  cache,
		logger: logger.With("component", "route.cached"),
	}
}

// Name implements Provider.
func (p *CachedProvider) Name() string {
	return "cached-" + p.next.Name()
}

// Fetch implements Provider.
func (p *CachedProvider) Fetch(ctx context.Context, req Request) (Payload, error) {
	if payload, err := p.cache.Get(req); err == nil {
		p.logger.Debug("route cache hit", "key", p.cache.Key(req))
		return payload, nil
	}

	payload, err := p.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Put(req, p.next.Name(), payload); err != nil {
		p.logger.Warn("route cache store failed", "error", err)
	}
	return payload, nil
}
