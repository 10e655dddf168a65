package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/google/uuid"
)

// MemoryCache is a per-process LRU with TTL. Invalidation only reaches this
// process, so it is meant for single-instance deployments.
type MemoryCache struct {
	mu    sync.Mutex
	gens  map[uuid.UUID]Token
	cache *lru.LRU[string, Entry]
}

// NewMemoryCache creates an LRU holding at most size lookups for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 16 {
		size = 16
	}
	return &MemoryCache{
		gens:  make(map[uuid.UUID]Token),
		cache: lru.NewLRU[string, Entry](size, nil, ttl),
	}
}

func (c *MemoryCache) Get(_ context.Context, roleID uuid.UUID, page string) (Entry, Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[roleID]
	entry, ok := c.cache.Get(memoryKey(roleID, gen, page))
	return entry, gen, ok
}

func (c *MemoryCache) Set(_ context.Context, roleID uuid.UUID, page string, token Token, entry Entry) {
	if entry.Permission != nil {
		p := *entry.Permission
		entry.Permission = &p
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[roleID] != token {
		return
	}
	c.cache.Add(memoryKey(roleID, token, page), entry)
}

func (c *MemoryCache) InvalidateRole(_ context.Context, roleID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[roleID]++
	prefix := roleID.String() + ":"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

func memoryKey(roleID uuid.UUID, gen Token, page string) string {
	return roleID.String() + ":" + strconv.FormatInt(int64(gen), 10) + ":" + page
}
