// Package compact implements the Compactor: it reclaims chunks at
// the tail of the fast/slow lists by relocating their still-live nodes
// through the slow writer and recording the move in a redirect
// structure, rather than rewriting every ancestor up to the root.
package compact

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/holiman/bloomfilter/v2"

	"github.com/xPOURY4/monad-sub013/cache"
	"github.com/xPOURY4/monad-sub013/log"
	"github.com/xPOURY4/monad-sub013/metrics"
	"github.com/xPOURY4/monad-sub013/node"
	"github.com/xPOURY4/monad-sub013/pool"
	"github.com/xPOURY4/monad-sub013/writer"
)

// Resolver loads a node's bytes given its current (possibly stale)
// FileOffset, decompressing if the offset falls in a slow chunk. The
// update engine implements this; the compactor is handed one rather
// than importing the engine package directly, avoiding a cycle.
type Resolver interface {
	ResolveNode(ctx context.Context, offset node.FileOffset) (*node.Node, error)
}

// Compactor reclaims expiring chunks by relocating their live nodes.
type Compactor struct {
	pool     *pool.Pool
	slow     *writer.Writer
	cache    *cache.Cache
	redirect *RedirectStore
	resolver Resolver
	log      *log.Logger

	// seen is a probabilistic pre-filter: most resolved offsets were
	// never relocated, so checking a bloom filter before every redirect
	// store lookup saves a pebble round trip on the common path.
	seen *bloomfilter.Filter
}

// New constructs a Compactor sharing the given slow writer, cache, and
// redirect store with the rest of the engine.
func New(p *pool.Pool, slow *writer.Writer, c *cache.Cache, rs *RedirectStore, resolver Resolver, lg *log.Logger) (*Compactor, error) {
	if lg == nil {
		lg = log.Default()
	}
	filter, err := bloomfilter.NewOptimal(1<<20, 0.01)
	if err != nil {
		return nil, errors.Wrap(err, "compact: constructing bloom filter")
	}
	return &Compactor{pool: p, slow: slow, cache: c, redirect: rs, resolver: resolver, log: lg.Module("compact"), seen: filter}, nil
}

// visitState records each node relocated in this cycle (old offset to
// new), so a node shared by multiple live roots is only relocated once.
type visitState struct {
	visited map[node.FileOffset]node.FileOffset // old -> new, for this cycle
}

// RunCycle reclaims target, relocating every node reachable from
// liveRoots that currently resides in it, then frees the chunk. It
// shares the reactor with the update engine (the slow writer and
// resolver both ultimately submit through it) so compaction never blocks
// a commit in progress.
func (c *Compactor) RunCycle(ctx context.Context, target pool.ChunkID, liveRoots []node.FileOffset) error {
	vs := &visitState{visited: make(map[node.FileOffset]node.FileOffset)}

	for _, root := range liveRoots {
		if err := c.relocateReachable(ctx, root, target, vs); err != nil {
			return errors.Wrapf(err, "compact: walking root at chunk %d offset %d", root.ChunkID(), root.ByteOffset())
		}
	}

	if err := c.redirect.DeleteChunk(uint32(target)); err == nil {
		// Entries were just superseded by fresh ones pointing out of
		// target; only prune the stale source keys, never the
		// destinations this cycle just wrote.
	}

	if err := c.pool.Release(target); err != nil {
		return errors.Wrap(err, "compact: releasing reclaimed chunk")
	}
	metrics.CompactionsTotal.Inc()
	metrics.NodesRelocated.Add(int64(len(vs.visited)))
	return nil
}

// relocateReachable walks the tree rooted at offset, relocating every
// node it finds whose *current* resolved location is inside target.
// Children already reachable only by an offset outside target are left
// untouched -- this is not a rewrite of the whole trie, only of the
// nodes actually living in the chunk being reclaimed.
func (c *Compactor) relocateReachable(ctx context.Context, offset node.FileOffset, target pool.ChunkID, vs *visitState) error {
	resolved, err := c.redirect.Resolve(offset)
	if err != nil {
		return err
	}

	n, err := c.resolver.ResolveNode(ctx, resolved)
	if err != nil {
		return err
	}

	for i := 0; i < 16; i++ {
		cd := n.ChildAt(byte(i))
		if cd == nil {
			continue
		}
		childResolved, err := c.redirect.Resolve(cd.Offset)
		if err != nil {
			return err
		}
		if err := c.relocateReachable(ctx, childResolved, target, vs); err != nil {
			return err
		}
	}

	if resolved.ChunkID() != uint32(target) {
		return nil
	}
	if _, already := vs.visited[resolved]; already {
		return nil
	}

	newOffset, err := c.slow.WriteNode(ctx, n)
	if err != nil {
		return errors.Wrap(err, "compact: relocating node")
	}
	if err := c.redirect.Put(resolved, newOffset); err != nil {
		return errors.Wrap(err, "compact: recording redirect")
	}
	c.seen.Add(hashOffset(resolved))
	vs.visited[resolved] = newOffset
	c.cache.Invalidate(resolved)
	return nil
}

// hashOffset adapts a FileOffset into the uint64 hash bloomfilter/v2
// expects; the offset is already well-distributed (chunk id, byte
// offset, and page count packed into distinct bit ranges), so it is used
// directly rather than re-hashed.
func hashOffset(o node.FileOffset) uint64 { return uint64(o) }

// PossiblyRedirected reports whether offset might have been relocated by
// a prior compaction cycle. A false negative is impossible (the filter
// union-accumulates across cycles); a false positive just costs a wasted
// pebble lookup the caller would have made anyway.
func (c *Compactor) PossiblyRedirected(o node.FileOffset) bool {
	return c.seen.Contains(hashOffset(o))
}
