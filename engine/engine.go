// Package engine implements the update engine: the recursive commit
// algorithm that applies a batch of updates to a versioned trie and
// produces a new root, and the read-only find traversal that shares the
// same node cache and reactor.
package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xPOURY4/monad-sub013/asyncio"
	"github.com/xPOURY4/monad-sub013/cache"
	"github.com/xPOURY4/monad-sub013/crypto"
	"github.com/xPOURY4/monad-sub013/log"
	"github.com/xPOURY4/monad-sub013/metrics"
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/node"
	"github.com/xPOURY4/monad-sub013/pool"
	"github.com/xPOURY4/monad-sub013/writer"
)

// EmptyRootRef is the canonical empty-trie Merkle reference: Keccak-256 of
// the RLP encoding of the empty byte string.
func EmptyRootRef() node.Ref {
	return node.Ref(crypto.Keccak256([]byte{0x80}))
}

// Config holds the per-subtree predicates that stand in for a
// StateMachine class hierarchy: callers (e.g. separate
// configurations for account vs storage tries) supply these instead of the
// engine dispatching on a node's "kind". New stores the Config, but Commit
// and Find do not consult these predicates: every node is cached and
// written the same way, and nothing auto-expires, whatever they return.
type Config struct {
	CacheAtDepth    func(depth int) bool
	CompactAtDepth  func(depth int) bool
	AutoExpireDepth func(depth int) bool
}

// DefaultConfig returns predicates that cache and compact at every depth
// and never auto-expire, which is the engine's fixed behavior.
func DefaultConfig() Config {
	return Config{
		CacheAtDepth:    func(int) bool { return true },
		CompactAtDepth:  func(int) bool { return true },
		AutoExpireDepth: func(int) bool { return false },
	}
}

// Engine ties together the storage pool, the async reactor, the fast/slow
// writers, and the node cache into the commit/find operations. One
// Engine corresponds to one writable pool handle; read-only handles share
// the same type but are only ever used for Find.
type Engine struct {
	pool    *pool.Pool
	reactor *asyncio.Reactor
	fast    *writer.Writer
	slow    *writer.Writer
	cache   *cache.Cache
	cfg     Config
	log     *log.Logger
	tracer  trace.Tracer
}

// New constructs an Engine. slow may be nil for a read-only handle that
// never commits.
func New(p *pool.Pool, r *asyncio.Reactor, fast, slow *writer.Writer, c *cache.Cache, cfg Config, lg *log.Logger) *Engine {
	if lg == nil {
		lg = log.Default()
	}
	return &Engine{
		pool: p, reactor: r, fast: fast, slow: slow, cache: c, cfg: cfg,
		log:    lg.Module("engine"),
		tracer: otel.GetTracerProvider().Tracer("engine"),
	}
}

// ResolveNode implements compact.Resolver, letting the Compactor walk live
// trees through the same cache/reactor path commits and finds use.
func (e *Engine) ResolveNode(ctx context.Context, offset node.FileOffset) (*node.Node, error) {
	return e.resolve(ctx, offset)
}

// resolve returns the node at offset, consulting the cache before falling
// back to an async read and recursing. The returned pointer is safe to
// hold past the accessor's release: the cache hands out direct
// *node.Node pointers precisely so eviction never invalidates a
// reference already taken.
func (e *Engine) resolve(ctx context.Context, offset node.FileOffset) (*node.Node, error) {
	if acc, ok := e.cache.Find(offset); ok {
		n := acc.Node()
		acc.Release()
		return n, nil
	}

	compressed := e.pool.ChunkList(pool.ChunkID(offset.ChunkID())) == pool.ListSlow
	decode := func(raw []byte) (*node.Node, error) { return writer.DecodeNode(raw, compressed) }

	if acc, ok := e.cache.FindOrDecode(offset, decode); ok {
		n := acc.Node()
		acc.Release()
		return n, nil
	}

	off, span := offset.ReadSpan()
	abs := uint64(e.pool.ChunkOffset(pool.ChunkID(offset.ChunkID()))) + off
	fut, err := e.reactor.Read(ctx, abs, span)
	if err != nil {
		return nil, errors.Wrap(err, "engine: submitting node read")
	}
	raw, err := fut.Wait()
	if err != nil {
		return nil, errors.Wrap(err, "engine: node read failed")
	}
	n, err := decode(raw)
	if err != nil {
		return nil, err
	}
	acc := e.cache.Insert(offset, n)
	acc.Release()
	return n, nil
}

// RootHash returns the Merkle reference of the node at offset -- the
// cryptographic commitment callers compare for equality, as distinct
// from offset itself (a storage address, not a hash). A cache-resident
// node already carries its reference from the commit that wrote it;
// otherwise it is recomputed from the node's on-disk children references,
// which never requires resolving those children themselves.
func (e *Engine) RootHash(ctx context.Context, offset node.FileOffset, hasRoot bool) (node.Ref, error) {
	if !hasRoot {
		return EmptyRootRef(), nil
	}
	n, err := e.resolve(ctx, offset)
	if err != nil {
		return nil, err
	}
	if ref, ok := n.CachedRef(); ok {
		return ref, nil
	}
	return node.Reference(n, true)
}

// Find walks from root consuming key's nibbles, returning the value stored
// there if any. It is re-entrant: multiple concurrent finds share
// the node cache and issue independent reads through the reactor.
func (e *Engine) Find(ctx context.Context, root node.FileOffset, hasRoot bool, key nibbles.View) ([]byte, bool, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Find")
	defer span.End()
	start := time.Now()
	defer func() { metrics.FindLatency.Observe(float64(time.Since(start).Microseconds())) }()

	if !hasRoot {
		return nil, false, nil
	}

	offset := root
	depth := 0
	for {
		n, err := e.resolve(ctx, offset)
		if err != nil {
			return nil, false, err
		}

		remaining := key.Suffix(depth)
		if n.Path.Len() > 0 {
			if remaining.Len() < n.Path.Len() || !nibbles.Equal(remaining.Slice(0, n.Path.Len()), n.Path) {
				return nil, false, nil
			}
			depth += n.Path.Len()
			remaining = key.Suffix(depth)
		}

		if remaining.Len() == 0 || (remaining.Len() == 1 && remaining.At(0) == nibbles.Terminator) {
			if n.Value != nil {
				return n.Value, true, nil
			}
			return nil, false, nil
		}

		branch := remaining.At(0)
		cd := n.ChildAt(branch)
		if cd == nil {
			return nil, false, nil
		}
		offset = cd.Offset
		depth++
	}
}
