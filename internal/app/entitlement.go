package app

import (
	"context"
	"sync"
	"time"

	"github.com/avellaneda/modstack/internal/domain"
)

// Compile-time check: EntitlementCache implements domain.EntitlementSource.
var _ domain.EntitlementSource = (*EntitlementCache)(nil)

// EntitlementCache is a read-through cache over a domain.EntitlementSource.
// A tenant's entry expires after a short TTL. Invalidate drops the entry
// synchronously, so a subscription change is observed before the next
// install decision; a fetch that was already in flight when Invalidate ran
// is discarded via a per-tenant generation counter.
type EntitlementCache struct {
	source domain.EntitlementSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	gens    map[string]uint64
	entries map[string]*tenantEntry
}

type tenantEntry struct {
	gen       uint64
	fetchedAt time.Time
	features  map[string]bool
	quotas    map[string]int
}

// NewEntitlementCache wraps source with a TTL cache.
func NewEntitlementCache(source domain.EntitlementSource, ttl time.Duration) *EntitlementCache {
	return &EntitlementCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		gens:    make(map[string]uint64),
		entries: make(map[string]*tenantEntry),
	}
}

// IsEntitled reports whether the feature is granted, reading through to the
// source on a cache miss.
func (c *EntitlementCache) IsEntitled(ctx context.Context, tenantID, featureKey string) (bool, error) {
	if v, ok := c.cachedFeature(tenantID, featureKey); ok {
		return v, nil
	}

	gen := c.generation(tenantID)
	v, err := c.source.IsEntitled(ctx, tenantID, featureKey)
	if err != nil {
		return false, err
	}
	c.storeFeature(tenantID, gen, featureKey, v)
	return v, nil
}

// QuotaRemaining returns the remaining quota balance, reading through to
// the source on a cache miss.
func (c *EntitlementCache) QuotaRemaining(ctx context.Context, tenantID, quotaKey string) (int, error) {
	if n, ok := c.cachedQuota(tenantID, quotaKey); ok {
		return n, nil
	}

	gen := c.generation(tenantID)
	n, err := c.source.QuotaRemaining(ctx, tenantID, quotaKey)
	if err != nil {
		return 0, err
	}
	c.storeQuota(tenantID, gen, quotaKey, n)
	return n, nil
}

// Invalidate drops the tenant's cached entitlements. Called by the
// subscription service on plan change, before any subsequent install
// decision is trusted.
func (c *EntitlementCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, tenantID)
	c.gens[tenantID]++
}

func (c *EntitlementCache) cachedFeature(tenantID, key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.liveEntry(tenantID)
	if e == nil {
		return false, false
	}
	v, ok := e.features[key]
	return v, ok
}

func (c *EntitlementCache) cachedQuota(tenantID, key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.liveEntry(tenantID)
	if e == nil {
		return 0, false
	}
	n, ok := e.quotas[key]
	return n, ok
}

// liveEntry returns the tenant's entry, expiring it if the TTL has passed.
// Caller holds c.mu.
func (c *EntitlementCache) liveEntry(tenantID string) *tenantEntry {
	e, ok := c.entries[tenantID]
	if !ok {
		return nil
	}
	if c.now().Sub(e.fetchedAt) > c.ttl {
		delete(c.entries, tenantID)
		return nil
	}
	return e
}

func (c *EntitlementCache) generation(tenantID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[tenantID]
}

func (c *EntitlementCache) storeFeature(tenantID string, gen uint64, key string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.storableEntry(tenantID, gen)
	if e == nil {
		return
	}
	e.features[key] = v
}

func (c *EntitlementCache) storeQuota(tenantID string, gen uint64, key string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.storableEntry(tenantID, gen)
	if e == nil {
		return
	}
	e.quotas[key] = n
}

// storableEntry returns the entry to write a fetched value into, or nil if
// the tenant was invalidated after the fetch began. Caller holds c.mu.
func (c *EntitlementCache) storableEntry(tenantID string, gen uint64) *tenantEntry {
	if c.gens[tenantID] != gen {
		return nil
	}
	e := c.liveEntry(tenantID)
	if e == nil {
		e = &tenantEntry{
			gen:       gen,
			fetchedAt: c.now(),
			features:  make(map[string]bool),
			quotas:    make(map[string]int),
		}
		c.entries[tenantID] = e
	}
	return e
}
