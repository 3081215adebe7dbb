// Package cache implements the freshness cache: a sharded, TTL'd,
// concurrency-safe store mapping (venue, symbol) to the most recent
// TopOfBook, in two namespaces (ticker and orderbook). Entries expire
// lazily on read, with a background sweep for keys that stop being read.
// Values are swapped whole per key, never field-by-field, so a reader can
// never observe a torn snapshot.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/arbiscan/internal/metrics"
	"github.com/sawpanic/arbiscan/internal/model"
)

const shardCount = 32

type namespace int

const (
	namespaceTicker namespace = iota
	namespaceOrderbook
)

func (ns namespace) label() string {
	if ns == namespaceOrderbook {
		return "orderbook"
	}
	return "ticker"
}

type key struct {
	ns     namespace
	venue  model.VenueID
	symbol model.Symbol
}

type entry struct {
	tob       model.TopOfBook
	insertedAt time.Time
}

type shard struct {
	mu   sync.RWMutex
	data map[key]entry
}

// Cache is the shared Freshness Cache. Zero value is not usable; use New.
type Cache struct {
	ttl     time.Duration
	shards  [shardCount]*shard
	log     zerolog.Logger
	metrics *metrics.Registry

	count atomic.Int64
}

// New constructs a Cache with the given TTL. reg may be nil, in which
// case reads and writes are not instrumented.
func New(ttl time.Duration, log zerolog.Logger, reg *metrics.Registry) *Cache {
	c := &Cache{ttl: ttl, log: log, metrics: reg}
	for i := range c.shards {
		c.shards[i] = &shard{data: make(map[key]entry)}
	}
	return c
}

func (c *Cache) shardFor(k key) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.venue))
	h.Write([]byte{'|'})
	h.Write([]byte(k.symbol))
	h.Write([]byte{'|', byte(k.ns)})
	return c.shards[h.Sum32()%shardCount]
}

// PutTicker overwrites the ticker snapshot for (venue, symbol).
func (c *Cache) PutTicker(venue model.VenueID, symbol model.Symbol, tob model.TopOfBook) {
	c.put(key{namespaceTicker, venue, symbol}, tob)
}

// PutOrderbook overwrites the orderbook snapshot for (venue, symbol).
func (c *Cache) PutOrderbook(venue model.VenueID, symbol model.Symbol, tob model.TopOfBook) {
	c.put(key{namespaceOrderbook, venue, symbol}, tob)
}

func (c *Cache) put(k key, tob model.TopOfBook) {
	s := c.shardFor(k)
	s.mu.Lock()
	_, existed := s.data[k]
	s.data[k] = entry{tob: tob, insertedAt: time.Now()}
	s.mu.Unlock()
	if !existed {
		c.setSize(c.count.Add(1))
	}
}

// GetTicker returns the ticker snapshot if present and fresh.
func (c *Cache) GetTicker(venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool) {
	return c.get(key{namespaceTicker, venue, symbol})
}

// GetOrderbook returns the orderbook snapshot if present and fresh.
func (c *Cache) GetOrderbook(venue model.VenueID, symbol model.Symbol) (model.TopOfBook, bool) {
	return c.get(key{namespaceOrderbook, venue, symbol})
}

func (c *Cache) get(k key) (model.TopOfBook, bool) {
	s := c.shardFor(k)
	s.mu.RLock()
	e, ok := s.data[k]
	s.mu.RUnlock()
	if !ok {
		c.miss(k.ns)
		return model.TopOfBook{}, false
	}
	if time.Since(e.insertedAt) > c.ttl {
		// Lazy eviction: don't block this read on a write lock; a separate
		// goroutine deletes the entry if it is still expired by then.
		go c.deleteIfStillExpired(k)
		c.miss(k.ns)
		return model.TopOfBook{}, false
	}
	c.hit(k.ns)
	return e.tob, true
}

func (c *Cache) hit(ns namespace) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(ns.label()).Inc()
	}
}

func (c *Cache) miss(ns namespace) {
	if c.metrics != nil {
		c.metrics.CacheMisses.WithLabelValues(ns.label()).Inc()
	}
}

func (c *Cache) setSize(n int64) {
	if c.metrics != nil {
		c.metrics.CacheSize.Set(float64(n))
	}
}

func (c *Cache) deleteIfStillExpired(k key) {
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[k]; ok && time.Since(e.insertedAt) > c.ttl {
		delete(s.data, k)
		c.setSize(c.count.Add(-1))
	}
}

// RunSweeper evicts expired entries on a fixed interval until ctx is
// cancelled. This bounds memory for venues/symbols that stop producing
// entirely (lazy eviction alone only reclaims keys that are still read).
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	var evicted int
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.data {
			if now.Sub(e.insertedAt) > c.ttl {
				delete(s.data, k)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		c.setSize(c.count.Add(int64(-evicted)))
		c.log.Debug().Int("evicted", evicted).Msg("cache: background sweep reclaimed expired entries")
	}
}

// Size returns the total number of live entries across both namespaces,
// for diagnostics/metrics.
func (c *Cache) Size() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.data)
		s.mu.RUnlock()
	}
	return total
}
