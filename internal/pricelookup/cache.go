// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package pricelookup

import (
	"context"
	"math"
	"sync"
	"time"
)

// coordPrecision is the precision used to quantize coordinates (0.01 degrees ≈ 1.1 km)
const coordPrecision = 1e-2

type cacheKey struct {
	FuelType string
	LatQ     int32
	LonQ     int32
	RadiusM  int64
}

type cacheEntry struct {
	Result Result
	Expiry time.Time
}

// CachedClient remembers lookup results per fuel type and quantized position. Failed lookups
// are never cached.
type CachedClient struct {
	client  Client
	ttlHit  time.Duration
	ttlMiss time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewCachedClient(client Client, ttlHit, ttlMiss time.Duration) *CachedClient {
	return &CachedClient{
		client:  client,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		now:     time.Now,
		cache:   make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedClient) Name() string {
	return "price lookup cache using " + c.client.Name()
}

func (c *CachedClient) Cheapest(ctx context.Context, req Request) (Result, error) {
	key := newKey(req)

	c.mu.RLock()
	entry, ok := c.cache[key]
	if ok && c.now().Before(entry.Expiry) {
		result := entry.Result
		c.mu.RUnlock()
		result.CacheHit = true
		return result, nil
	}
	c.mu.RUnlock()

	result, err := c.client.Cheapest(ctx, req)
	if err != nil {
		return result, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttlHit
	if !result.Found {
		ttl = c.ttlMiss
	}
	if ttl <= 0 {
		return result, nil
	}
	c.cache[key] = cacheEntry{
		Result: result,
		Expiry: c.now().Add(ttl),
	}

	return result, nil
}

// Purge drops all expired entries and returns how many were dropped.
func (c *CachedClient) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	purged := 0
	for key, entry := range c.cache {
		if !now.Before(entry.Expiry) {
			delete(c.cache, key)
			purged++
		}
	}
	return purged
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(req Request) cacheKey {
	return cacheKey{
		FuelType: req.FuelType,
		LatQ:     quantizeCoord(req.Lat),
		LonQ:     quantizeCoord(req.Lon),
		RadiusM:  int64(math.Round(req.RadiusKm * 1000)),
	}
}
