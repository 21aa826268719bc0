package chart

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/groundwater/internal/models"
)

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache keeps rendered charts keyed by dataset content for a short period.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

// NewCache creates a chart cache with the specified TTL.
func NewCache(ttl time.Duration, clock clockwork.Clock) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Key identifies a dataset by its rows.
func Key(ds models.Dataset) string {
	h := sha256.New()
	for _, r := range ds.Rows {
		fmt.Fprintf(h, "%s|%d|%g|%s\n", r.Location, r.Timestamp.UnixNano(), r.Value, r.Station)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached chart if still valid.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores a chart and drops expired entries.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{data: data, expiresAt: now.Add(c.ttl)}
}

// Render returns the chart for ds, rendering it on a cache miss.
func (c *Cache) Render(ds models.Dataset) ([]byte, error) {
	key := Key(ds)
	if data, ok := c.Get(key); ok {
		return data, nil
	}
	data, err := Render(ds)
	if err != nil {
		return nil, err
	}
	c.Set(key, data)
	return data, nil
}
