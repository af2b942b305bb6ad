package marketdata

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/activetick-http/activetick-go/marketdata/table"
)

// Cache is a key/value byte store used for lookaside caching of history
// queries. Implementations must be safe for concurrent use. See the cache
// package for memory, bbolt and redis backed stores.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// cacheLayer wraps an optional Cache. Caching is best effort: store
// failures never fail a request.
type cacheLayer struct {
	backend Cache
	log     Logger
	group   singleflight.Group
}

func newCacheLayer(backend Cache, log Logger) *cacheLayer {
	return &cacheLayer{backend: backend, log: log}
}

// lookup returns the cached result of q. Any failure is reported as a miss.
func (c *cacheLayer) lookup(ctx context.Context, q Query) (*table.Table, bool) {
	key, ok := q.CacheKey()
	if !ok || c.backend == nil {
		return nil, false
	}
	exists, err := c.backend.Exists(ctx, key)
	if err != nil {
		c.log.Warnf("cache lookup %s: %v", key, err)
		return nil, false
	}
	if !exists {
		return nil, false
	}
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warnf("cache get %s: %v", key, err)
		return nil, false
	}
	t, err := table.Unmarshal(data)
	if err != nil {
		c.log.Warnf("cache decode %s: %v", key, err)
		return nil, false
	}
	return t, true
}

// store saves the result of q.
func (c *cacheLayer) store(ctx context.Context, q Query, t *table.Table) {
	key, ok := q.CacheKey()
	if !ok || c.backend == nil {
		return
	}
	data, err := table.Marshal(t)
	if err != nil {
		c.log.Warnf("cache encode %s: %v", key, err)
		return
	}
	if err := c.backend.Set(ctx, key, data); err != nil {
		c.log.Warnf("cache set %s: %v", key, err)
	}
}

// do returns the cached result of q or calls fetch and caches its result.
// Concurrent misses on the same key share a single fetch. The shared fetch
// runs detached from the caller's cancellation, so one caller giving up does
// not fail the others; each caller still stops waiting when its own ctx is
// done. The detached fetch is bounded by the client timeout.
func (c *cacheLayer) do(ctx context.Context, q Query, fetch func(ctx context.Context) (*table.Table, error)) (*table.Table, error) {
	key, ok := q.CacheKey()
	if !ok || c.backend == nil {
		return fetch(ctx)
	}
	if t, hit := c.lookup(ctx, q); hit {
		return t, nil
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		fctx := context.WithoutCancel(ctx)
		t, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.store(fctx, q, t)
		return t, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		t := res.Val.(*table.Table)
		if res.Shared {
			t = t.Clone()
		}
		return t, nil
	}
}
