// Package cache implements the bounded node cache: a byte-budget
// LRU keyed by virtual chunk offset, sharded for concurrent access, with
// a VictoriaMetrics/fastcache-backed second tier holding serialized node
// bytes so an evicted live node can be rehydrated without a disk read.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/xPOURY4/monad-sub013/metrics"
	"github.com/xPOURY4/monad-sub013/node"
)

const shardCount = 16

// Key identifies cached bytes by virtual chunk offset -- the same node
// bytes serve every version that references them, so the key carries no
// version component.
type Key = node.FileOffset

type entry struct {
	key     Key
	node    *node.Node
	size    int
	refs    int32
	element *list.Element
}

type shard struct {
	mu    sync.Mutex
	items map[Key]*entry
	order list.List
}

// Cache is the bounded multi-shard node cache. Its byte budget governs
// only the first tier (live Node objects); the fastcache-backed second
// tier has its own fixed byte budget, set independently at construction.
type Cache struct {
	shards  [shardCount]*shard
	budget  int64
	used    int64 // atomic
	bytesL2 *fastcache.Cache
}

// New creates a Cache whose live-object tier holds at most budgetBytes
// (summed memory_size across resident nodes) and whose serialized-bytes
// second tier is backed by a fastcache.Cache of l2Bytes capacity.
func New(budgetBytes int, l2Bytes int) *Cache {
	c := &Cache{budget: int64(budgetBytes), bytesL2: fastcache.New(l2Bytes)}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[Key]*entry)}
	}
	return c
}

func (c *Cache) shardFor(k Key) *shard {
	return c.shards[uint64(k)%shardCount]
}

// Accessor is a strong, GC-visible handle onto a resident node. An
// accessor obtained before an eviction remains valid afterward: it holds
// the *node.Node directly rather than indirecting back through the
// cache's bookkeeping.
type Accessor struct {
	cache *Cache
	entry *entry
}

// Node returns the resident node this accessor refers to.
func (a *Accessor) Node() *node.Node { return a.entry.node }

// Release drops this accessor's hold on the entry's refcount. It does
// not evict anything itself -- eviction only ever happens inside Insert,
// lazily, when the cache as a whole is over its byte budget.
func (a *Accessor) Release() {
	atomic.AddInt32(&a.entry.refs, -1)
}

// Find acquires a shared accessor for key if its node is resident in
// the first tier. A miss here does not necessarily mean the bytes are
// unknown: callers that also want the fastcache-backed bytes fallback
// should use FindOrDecode.
func (c *Cache) Find(key Key) (*Accessor, bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[key]
	if !ok {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	atomic.AddInt32(&e.refs, 1)
	sh.order.MoveToFront(e.element)
	metrics.CacheHits.Inc()
	return &Accessor{cache: c, entry: e}, true
}

// FindOrDecode behaves like Find, but on a first-tier miss consults the
// fastcache-backed second tier; a hit there is deserialized, promoted
// back into the first tier, and returned as a fresh accessor -- avoiding
// a disk read entirely. The second tier holds node.Serialize output as
// Insert stored it (never snappy-compressed), and decode is applied to
// those bytes; a decode error is reported as a miss.
func (c *Cache) FindOrDecode(key Key, decode func(raw []byte) (*node.Node, error)) (*Accessor, bool) {
	if acc, ok := c.Find(key); ok {
		return acc, true
	}
	raw := c.bytesL2.Get(nil, keyBytes(key))
	if raw == nil {
		return nil, false
	}
	n, err := decode(raw)
	if err != nil {
		return nil, false
	}
	return c.Insert(key, n), true
}

// Insert installs node n under key, evicting the least-recently-used
// entries in its shard until the global byte budget is satisfied, then
// returns an accessor for the freshly inserted entry. Callers must only
// insert once n's bytes are durable (or the caller guarantees there is
// no crash window before they are).
func (c *Cache) Insert(key Key, n *node.Node) *Accessor {
	size := n.MemorySize()
	c.bytesL2.Set(keyBytes(key), node.Serialize(n))

	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.items[key]; ok {
		sh.order.MoveToFront(existing.element)
		atomic.AddInt32(&existing.refs, 1)
		return &Accessor{cache: c, entry: existing}
	}

	e := &entry{key: key, node: n, size: size, refs: 1}
	e.element = sh.order.PushFront(e)
	sh.items[key] = e
	atomic.AddInt64(&c.used, int64(size))
	metrics.CacheBytes.Set(atomic.LoadInt64(&c.used))

	c.evictLocked(sh)
	return &Accessor{cache: c, entry: e}
}

// evictLocked pops entries off the back of sh's LRU list while the
// cache as a whole is over its global byte budget. The caller must hold
// sh.mu. Eviction only removes the cache's own bookkeeping; any
// Accessor issued earlier keeps the node alive independently.
func (c *Cache) evictLocked(sh *shard) {
	for atomic.LoadInt64(&c.used) > c.budget {
		back := sh.order.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		sh.order.Remove(back)
		delete(sh.items, e.key)
		atomic.AddInt64(&c.used, -int64(e.size))
	}
	metrics.CacheBytes.Set(atomic.LoadInt64(&c.used))
}

// Invalidate drops key from both tiers, used when the update engine
// overwrites a child in place (never for content-addressed nodes under
// normal operation, but needed when a chunk is reclaimed by compaction
// and its old offsets must not be served again).
func (c *Cache) Invalidate(key Key) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.items[key]; ok {
		sh.order.Remove(e.element)
		delete(sh.items, key)
		atomic.AddInt64(&c.used, -int64(e.size))
	}
	sh.mu.Unlock()
	c.bytesL2.Del(keyBytes(key))
}

// UsedBytes reports the first tier's current byte usage.
func (c *Cache) UsedBytes() int64 { return atomic.LoadInt64(&c.used) }

func keyBytes(k Key) []byte {
	v := uint64(k)
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
