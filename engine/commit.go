package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xPOURY4/monad-sub013/metrics"
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/node"
)

// Commit applies updates to the trie rooted at root (or builds a fresh one
// if hasRoot is false) and returns the new root's FileOffset. The returned
// offset is zero with no error when the resulting trie is empty -- callers
// recognize this as "no root" the same way hasRoot=false does on the way in.
func (e *Engine) Commit(ctx context.Context, root node.FileOffset, hasRoot bool, updates UpdateList, version uint64) (node.FileOffset, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Commit")
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.CommitLatency.Observe(float64(time.Since(start).Microseconds()))
		metrics.CommitsTotal.Inc()
	}()

	if len(updates) == 0 {
		return root, nil
	}

	var existing *node.Node
	if hasRoot {
		n, err := e.resolve(ctx, root)
		if err != nil {
			return 0, errors.Wrap(err, "engine: resolving prior root")
		}
		existing = n
	}

	newRoot, err := e.commitSubtree(ctx, existing, 0, updates, version)
	if err != nil {
		return 0, errors.Wrap(err, "engine: committing")
	}
	if newRoot == nil {
		return 0, nil
	}

	offset, _, err := e.writeAndRef(ctx, newRoot, true, version)
	if err != nil {
		return 0, errors.Wrap(err, "engine: writing new root")
	}
	return offset, nil
}

// commitSubtree applies updates to one node: if updates don't
// touch this subtree at all, it is returned unchanged (the structural-
// sharing fast path -- no read, no write). Otherwise it determines whether
// the node's own path fragment survives intact or must be split at the
// point updates diverge from it.
func (e *Engine) commitSubtree(ctx context.Context, existing *node.Node, depth int, updates UpdateList, version uint64) (*node.Node, error) {
	if len(updates) == 0 {
		return existing, nil
	}
	if existing == nil {
		return e.buildFresh(ctx, nibbles.FromNibbles(nil), depth, [16]*node.ChildData{}, nil, updates, version)
	}

	split := splitPoint(existing.Path, depth, updates)
	if split == existing.Path.Len() {
		return e.buildFresh(ctx, existing.Path, depth, existing.Children, existing.Value, updates, version)
	}

	// The updates diverge from existing's path before its end: split.
	// existing's tail (everything past the divergence point, including
	// its own value/children) survives wholesale under its own branch,
	// just re-rooted at a shorter path, so it must be rewritten once
	// here with that shorter path before the new branch node can
	// reference it.
	branch := existing.Path.At(split)
	tail := &node.Node{
		Path:     existing.Path.Suffix(split + 1),
		Mask:     existing.Mask,
		Children: existing.Children,
		Value:    existing.Value,
	}
	tailOffset, tailRef, err := e.writeAndRef(ctx, tail, false, version)
	if err != nil {
		return nil, err
	}
	var base [16]*node.ChildData
	base[branch] = &node.ChildData{Branch: branch, Ref: tailRef, PathLen: tail.Path.Len(), Offset: tailOffset}
	return e.buildFresh(ctx, existing.Path.Slice(0, split), depth, base, nil, updates, version)
}

// buildFresh partitions updates into the 16 branch buckets plus the
// at-this-prefix value bucket, resolves and recurses into every touched
// branch concurrently (each sub-task awaits only its own read), assembles
// the resulting node, and applies degeneracy collapse.
func (e *Engine) buildFresh(ctx context.Context, path nibbles.View, depth int, base [16]*node.ChildData, baseValue []byte, updates UpdateList, version uint64) (*node.Node, error) {
	depth2 := depth + path.Len()
	buckets, own := bucketize(updates, depth2)

	value := baseValue
	children := base
	if own != nil {
		if own.Incarnation {
			children = [16]*node.ChildData{}
		}
		value = own.Value // nil means delete, matching the field's own contract
		if len(own.Next) > 0 {
			nestedRoot, err := e.Commit(ctx, own.PriorNestedRoot, own.HasPriorNestedRoot, own.Next, version)
			if err != nil {
				return nil, errors.Wrap(err, "engine: committing nested subtree")
			}
			own.NestedRoot, own.HasNestedRoot = nestedRoot, true
		}
	}

	results := children
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 16; i++ {
		i := i
		if len(buckets[i]) == 0 {
			continue
		}
		g.Go(func() error {
			var existingChild *node.Node
			if children[i] != nil {
				n, err := e.resolve(gctx, children[i].Offset)
				if err != nil {
					return err
				}
				existingChild = n
			}
			newChild, err := e.commitSubtree(gctx, existingChild, depth2+1, buckets[i], version)
			if err != nil {
				return err
			}
			switch {
			case newChild == nil:
				results[i] = nil
			case newChild == existingChild:
				// Unchanged: keep the old ChildData exactly as it was.
			default:
				offset, ref, err := e.writeAndRef(gctx, newChild, false, version)
				if err != nil {
					return err
				}
				results[i] = &node.ChildData{Branch: byte(i), Ref: ref, PathLen: newChild.Path.Len(), Offset: offset}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &node.Node{Path: path, Value: value, Version: version}
	for i := 0; i < 16; i++ {
		out.SetChild(byte(i), results[i])
	}

	return e.collapse(ctx, out)
}

// collapse removes degenerate structure after an update: an empty node
// (no value, no children) vanishes entirely; a node with no value and
// exactly one child merges its
// path into that child's, adopting the child's mask/children/value, so the
// resulting tree never carries an unnecessary single-child hop.
func (e *Engine) collapse(ctx context.Context, n *node.Node) (*node.Node, error) {
	if n.Value == nil && n.ChildCount() == 0 {
		return nil, nil
	}
	if n.Value != nil || n.ChildCount() != 1 {
		return n, nil
	}

	var branch byte
	var cd *node.ChildData
	for i := 0; i < 16; i++ {
		if c := n.ChildAt(byte(i)); c != nil {
			branch, cd = byte(i), c
			break
		}
	}
	child, err := e.resolve(ctx, cd.Offset)
	if err != nil {
		return nil, errors.Wrap(err, "engine: resolving child during collapse")
	}
	return &node.Node{
		Path:     nibbles.Concat(n.Path, branch, child.Path),
		Mask:     child.Mask,
		Children: child.Children,
		Value:    child.Value,
		Version:  n.Version,
	}, nil
}

// writeAndRef computes n's Merkle reference, memoizes it, appends n to the
// fast writer, and installs it in the cache -- a node is only cached once
// its bytes are durable, since WriteNode's Wait() has already returned by
// the time Insert runs.
func (e *Engine) writeAndRef(ctx context.Context, n *node.Node, root bool, version uint64) (node.FileOffset, node.Ref, error) {
	n.Version = version
	ref, err := node.Reference(n, root)
	if err != nil {
		return 0, nil, err
	}
	n.SetCachedRef(ref)
	offset, err := e.fast.WriteNode(ctx, n)
	if err != nil {
		return 0, nil, err
	}
	e.cache.Insert(offset, n).Release()
	metrics.NodesWritten.Inc()
	return offset, ref, nil
}
