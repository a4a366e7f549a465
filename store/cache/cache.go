package cache

import (
	"sync"
	"time"
)

// Config holds the cache configuration.
type Config struct {
	// DefaultTTL is applied when Set is called with a zero TTL.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
	// MaxItems caps the cache size. Zero means unbounded.
	MaxItems int
	// OnEviction is called for each evicted entry, if set.
	OnEviction func(key string, value any)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory TTL cache with periodic cleanup.
type Cache struct {
	mu     sync.RWMutex
	items  map[string]item
	config Config
	done   chan struct{}
	once   sync.Once
}

// New creates a cache and starts its cleanup goroutine.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	c := &Cache{
		items:  make(map[string]item),
		config: config,
		done:   make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(it.expiresAt) {
		return nil, false
	}
	return it.value, true
}

func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config.MaxItems > 0 && len(c.items) >= c.config.MaxItems {
		if _, exists := c.items[key]; !exists {
			c.evictOneLocked()
		}
	}
	c.items[key] = item{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}

// evictOneLocked removes the entry closest to expiry.
func (c *Cache) evictOneLocked() {
	var oldestKey string
	var oldest time.Time
	for k, it := range c.items {
		if oldestKey == "" || it.expiresAt.Before(oldest) {
			oldestKey = k
			oldest = it.expiresAt
		}
	}
	if oldestKey != "" {
		if c.config.OnEviction != nil {
			c.config.OnEviction(oldestKey, c.items[oldestKey].value)
		}
		delete(c.items, oldestKey)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, it := range c.items {
				if now.After(it.expiresAt) {
					if c.config.OnEviction != nil {
						c.config.OnEviction(k, it.value)
					}
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
