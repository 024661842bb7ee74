// Package cache memoizes computed results keyed by column, data
// fingerprint and request parameters.
//
// Results are stored as JSON in one or more layers checked in order (an
// in-process FIFO, optionally Redis). Concurrent misses for one key share
// a single computation. A cached value is always the JSON encoding of what
// the computation returned, so memoization never changes a result.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/okian/spc/pkg/logger"
	"github.com/okian/spc/pkg/metrics"
)

const keyPrefix = "spc"

// Key identifies one computed result.
type Key struct {
	Kind        string // "ichart", "capability", ...
	ColumnID    string
	Fingerprint uint64
	Params      string // canonical encoding of request parameters
}

// String renders the key as used in every layer.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%016x:%s", keyPrefix, k.Kind, k.ColumnID, k.Fingerprint, k.Params)
}

// Layer is one storage tier of the cache.
type Layer interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Stats are lifetime lookup counters.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Computes int64 `json:"computes"`
	Layers   int   `json:"layers"`
}

// Cache is a layered, single-flight result cache.
type Cache struct {
	layers []Layer
	flight singleflight.Group
	logger logger.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	computes atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLayer appends a layer; layers are consulted in the order added.
func WithLayer(l Layer) Option {
	return func(c *Cache) {
		if l != nil {
			c.layers = append(c.layers, l)
		}
	}
}

// New returns a cache over the given layers. With no layers every lookup
// computes, still collapsing concurrent calls for one key.
func New(opts ...Option) *Cache {
	c := &Cache{logger: logger.Get().Named("cache")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the lookup counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
		Layers:   len(c.layers),
	}
}

// Fetch returns the cached result for key, or runs compute, stores its
// result in every layer and returns it. Layer failures are logged and
// treated as misses; only compute's error is returned.
func Fetch[T any](ctx context.Context, c *Cache, key Key, compute func(context.Context) (T, error)) (T, error) {
	k := key.String()
	if v, ok := lookup[T](ctx, c, k); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	shared, err, _ := c.flight.Do(k, func() (any, error) {
		c.computes.Add(1)
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		c.store(ctx, k, v)
		return v, nil
	})
	v, _ := shared.(T)
	return v, err
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	for i, l := range c.layers {
		raw, ok, err := l.Get(ctx, key)
		if err != nil {
			metrics.RecordErrorByComponent("cache", l.Name())
			c.logger.Warn(ctx, "cache layer get failed", logger.String("layer", l.Name()), logger.Error(err))
			continue
		}
		if !ok {
			metrics.RecordCacheMiss(l.Name())
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			c.logger.Warn(ctx, "cache entry undecodable", logger.String("layer", l.Name()), logger.Error(err))
			continue
		}
		metrics.RecordCacheHit(l.Name())
		// promote into the faster layers that missed
		for _, upper := range c.layers[:i] {
			if err := upper.Set(ctx, key, raw); err != nil {
				c.logger.Warn(ctx, "cache promote failed", logger.String("layer", upper.Name()), logger.Error(err))
			}
		}
		return v, true
	}
	return zero, false
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if len(c.layers) == 0 {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn(ctx, "result not cacheable", logger.String("key", key), logger.Error(err))
		return
	}
	for _, l := range c.layers {
		if err := l.Set(ctx, key, raw); err != nil {
			metrics.RecordErrorByComponent("cache", l.Name())
			c.logger.Warn(ctx, "cache layer set failed", logger.String("layer", l.Name()), logger.Error(err))
		}
	}
}
