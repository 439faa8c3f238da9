package organizations

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// SlugCache maps public slugs to organization ids. Entries are only hints:
// readers re-check the slug on the loaded organization.
type SlugCache struct {
	cache *ttlcache.Cache[string, string]
}

// NewSlugCache creates a cache whose entries expire after ttl.
func NewSlugCache(ttl time.Duration) *SlugCache {
	return &SlugCache{
		cache: ttlcache.New(ttlcache.WithTTL[string, string](ttl)),
	}
}

// Start runs the expiry loop until Stop is called.
func (c *SlugCache) Start() {
	c.cache.Start()
}

// Stop ends the expiry loop.
func (c *SlugCache) Stop() {
	c.cache.Stop()
}

// Get returns the organization id cached for slug.
func (c *SlugCache) Get(slug string) (string, bool) {
	item := c.cache.Get(slug)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Set remembers the organization id for slug.
func (c *SlugCache) Set(slug, orgID string) {
	c.cache.Set(slug, orgID, ttlcache.DefaultTTL)
}

// Invalidate drops slug from the cache.
func (c *SlugCache) Invalidate(slug string) {
	c.cache.Delete(slug)
}
