package storage

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// Cache eviction strategies accepted by init
const (
	StrategyFIFO = "FIFO"
	StrategyLRU  = "LRU"
	StrategyLFU  = "LFU"
)

type cachePolicy interface {
	Get(key string) (string, bool)
	Add(key, value string)
	Remove(key string)
	Purge()
	Len() int
}

// CachedEngine fronts a backend with a bounded read cache
type CachedEngine struct {
	backend  Engine
	cache    cachePolicy
	strategy string
	hits     uint64
	misses   uint64
}

// NewCachedEngine wraps backend with a cache of size entries
func NewCachedEngine(backend Engine, size int, strategy string) (*CachedEngine, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}

	var cache cachePolicy
	switch strategy {
	case StrategyLRU:
		c, err := lru.New(size)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		cache = &lruPolicy{cache: c}
	case StrategyFIFO:
		cache = newFIFOPolicy(size)
	case StrategyLFU:
		cache = newLFUPolicy(size)
	default:
		return nil, fmt.Errorf("unknown cache strategy %q", strategy)
	}

	return &CachedEngine{backend: backend, cache: cache, strategy: strategy}, nil
}

// Backend returns the wrapped engine
func (c *CachedEngine) Backend() Engine {
	return c.backend
}

// Strategy returns the eviction strategy in use
func (c *CachedEngine) Strategy() string {
	return c.strategy
}

func (c *CachedEngine) Put(key, value string) (PutResult, error) {
	res, err := c.backend.Put(key, value)
	if err != nil {
		c.cache.Remove(key)
		return res, err
	}
	c.cache.Add(key, value)
	return res, nil
}

func (c *CachedEngine) Get(key string) (string, error) {
	if v, ok := c.cache.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return v, nil
	}
	atomic.AddUint64(&c.misses, 1)

	v, err := c.backend.Get(key)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, v)
	return v, nil
}

func (c *CachedEngine) Delete(key string) error {
	c.cache.Remove(key)
	return c.backend.Delete(key)
}

func (c *CachedEngine) Scan(fn func(key, value string) bool) error {
	return c.backend.Scan(fn)
}

func (c *CachedEngine) Clear() error {
	c.cache.Purge()
	return c.backend.Clear()
}

func (c *CachedEngine) Close() error {
	c.cache.Purge()
	return c.backend.Close()
}

// CacheStats reports hit and miss counts and the current entry count
func (c *CachedEngine) CacheStats() (hits, misses uint64, entries int) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), c.cache.Len()
}

type lruPolicy struct {
	cache *lru.Cache
}

func (p *lruPolicy) Get(key string) (string, bool) {
	v, ok := p.cache.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (p *lruPolicy) Add(key, value string) { p.cache.Add(key, value) }
func (p *lruPolicy) Remove(key string)     { p.cache.Remove(key) }
func (p *lruPolicy) Purge()                { p.cache.Purge() }
func (p *lruPolicy) Len() int              { return p.cache.Len() }

type fifoEntry struct {
	key   string
	value string
}

// fifoPolicy evicts in insertion order; updates keep the original position
type fifoPolicy struct {
	mu    sync.Mutex
	size  int
	order *list.List
	items map[string]*list.Element
}

func newFIFOPolicy(size int) *fifoPolicy {
	return &fifoPolicy{size: size, order: list.New(), items: make(map[string]*list.Element)}
}

func (p *fifoPolicy) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.items[key]; ok {
		return el.Value.(*fifoEntry).value, true
	}
	return "", false
}

func (p *fifoPolicy) Add(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.items[key]; ok {
		el.Value.(*fifoEntry).value = value
		return
	}
	if p.order.Len() >= p.size {
		oldest := p.order.Front()
		p.order.Remove(oldest)
		delete(p.items, oldest.Value.(*fifoEntry).key)
	}
	p.items[key] = p.order.PushBack(&fifoEntry{key: key, value: value})
}

func (p *fifoPolicy) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.items[key]; ok {
		p.order.Remove(el)
		delete(p.items, key)
	}
}

func (p *fifoPolicy) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order.Init()
	p.items = make(map[string]*list.Element)
}

func (p *fifoPolicy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

type lfuEntry struct {
	key   string
	value string
	freq  int
}

// lfuPolicy evicts the least frequently used key, oldest first among
// equals. Each frequency keeps its own recency list.
type lfuPolicy struct {
	mu      sync.Mutex
	size    int
	minFreq int
	items   map[string]*list.Element
	freqs   map[int]*list.List
}

func newLFUPolicy(size int) *lfuPolicy {
	return &lfuPolicy{size: size, items: make(map[string]*list.Element), freqs: make(map[int]*list.List)}
}

func (p *lfuPolicy) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.items[key]
	if !ok {
		return "", false
	}
	p.touch(el)
	return el.Value.(*lfuEntry).value, true
}

func (p *lfuPolicy) Add(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.items[key]; ok {
		el.Value.(*lfuEntry).value = value
		p.touch(el)
		return
	}
	if len(p.items) >= p.size {
		p.evict()
	}
	p.items[key] = p.bucket(1).PushBack(&lfuEntry{key: key, value: value, freq: 1})
	p.minFreq = 1
}

func (p *lfuPolicy) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.items[key]
	if !ok {
		return
	}
	p.unlink(el)
	delete(p.items, key)
}

func (p *lfuPolicy) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = make(map[string]*list.Element)
	p.freqs = make(map[int]*list.List)
	p.minFreq = 0
}

func (p *lfuPolicy) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *lfuPolicy) touch(el *list.Element) {
	entry := el.Value.(*lfuEntry)
	p.unlink(el)
	if entry.freq == p.minFreq && p.freqs[entry.freq] == nil {
		p.minFreq++
	}
	entry.freq++
	p.items[entry.key] = p.bucket(entry.freq).PushBack(entry)
}

func (p *lfuPolicy) unlink(el *list.Element) {
	entry := el.Value.(*lfuEntry)
	bucket := p.freqs[entry.freq]
	bucket.Remove(el)
	if bucket.Len() == 0 {
		delete(p.freqs, entry.freq)
	}
}

func (p *lfuPolicy) evict() {
	bucket := p.freqs[p.minFreq]
	if bucket == nil {
		// minFreq went stale after a Remove; find the real minimum
		p.minFreq = 0
		for f := range p.freqs {
			if p.minFreq == 0 || f < p.minFreq {
				p.minFreq = f
			}
		}
		bucket = p.freqs[p.minFreq]
		if bucket == nil {
			return
		}
	}
	oldest := bucket.Front()
	p.unlink(oldest)
	delete(p.items, oldest.Value.(*lfuEntry).key)
}

func (p *lfuPolicy) bucket(freq int) *list.List {
	b, ok := p.freqs[freq]
	if !ok {
		b = list.New()
		p.freqs[freq] = b
	}
	return b
}
