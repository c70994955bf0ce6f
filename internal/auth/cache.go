package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// keyCache is a TTL cache with stale-while-revalidate, keyed by full API key.
type keyCache struct {
	store sync.Map // map[string]*keyCacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type keyCacheEntry struct {
	caller     *Caller
	expiresAt  time.Time
	refreshing atomic.Bool
}

// cacheLookup is the result of a cache read.
type cacheLookup struct {
	Caller       *Caller
	Hit          bool
	NeedsRefresh bool // stale; exactly one reader gets true
}

func newKeyCache(ttl time.Duration) *keyCache {
	return &keyCache{ttl: ttl, now: time.Now}
}

func (c *keyCache) get(apiKey string) cacheLookup {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return cacheLookup{}
	}
	entry := val.(*keyCacheEntry)
	if c.now().Before(entry.expiresAt) {
		return cacheLookup{Caller: entry.caller, Hit: true}
	}
	return cacheLookup{
		Caller:       entry.caller,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

func (c *keyCache) set(apiKey string, caller *Caller) {
	c.store.Store(apiKey, &keyCacheEntry{
		caller:    caller,
		expiresAt: c.now().Add(c.ttl),
	})
}

func (c *keyCache) delete(apiKey string) {
	c.store.Delete(apiKey)
}
