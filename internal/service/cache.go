package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/librarium/internal/domain/model"
)

var (
	bookCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lh_book_cache_hits_total",
		Help: "Total number of book detail cache hits.",
	})
	bookCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lh_book_cache_misses_total",
		Help: "Total number of book detail cache misses.",
	})
)

// BookCache is a per-instance LRU of book details with a TTL.
// Values are copied in and out so callers cannot mutate cached state.
//
// Every Invalidate bumps a generation counter. A reader that loaded a book
// from the database stores it with SetIfCurrent and the generation taken
// before the load, so a row read before a concurrent write commits never
// outlives that write's invalidation.
type BookCache struct {
	mu         sync.Mutex
	generation uint64
	cache      *expirable.LRU[string, model.Book]
}

// NewBookCache creates a cache holding at most maxSize books for ttl each.
func NewBookCache(maxSize int, ttl time.Duration) *BookCache {
	return &BookCache{cache: expirable.NewLRU[string, model.Book](maxSize, nil, ttl)}
}

// Get returns a copy of the cached book.
func (c *BookCache) Get(id string) (*model.Book, bool) {
	b, ok := c.cache.Get(id)
	if !ok {
		bookCacheMissesTotal.Inc()
		return nil, false
	}
	bookCacheHitsTotal.Inc()
	return &b, true
}

// Set stores a copy of b.
func (c *BookCache) Set(b *model.Book) {
	c.cache.Add(b.ID, *b)
}

// Generation returns the invalidation counter. Take it before reading the
// database and pass it to SetIfCurrent.
func (c *BookCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfCurrent stores a copy of b unless some book was invalidated since
// generation was taken. It reports whether b was stored.
func (c *BookCache) SetIfCurrent(b *model.Book, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.cache.Add(b.ID, *b)
	return true
}

// Invalidate drops a book after any change to it, copy counts included.
func (c *BookCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Remove(id)
}

// Len returns the number of live entries.
func (c *BookCache) Len() int {
	return c.cache.Len()
}
