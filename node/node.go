package node

import "github.com/xPOURY4/monad-sub013/nibbles"

// Ref is a node reference: either the inline RLP-like encoding of a
// subtrie (when it is under 32 bytes) or the Keccak-256 hash of the
// canonical encoding (when it is 32 bytes or more). len(Ref) itself
// carries the discriminant -- callers never need a separate flag, but
// Inline() spells out the rule for readers.
type Ref []byte

// Inline reports whether r is an inline encoding rather than a hash.
func (r Ref) Inline() bool { return len(r) < 32 }

// ChildData is one present branch of a Node: which of the 16 slots it
// occupies, the Merkle reference to the child, how many nibbles of path
// the child consumes, where on disk it lives, and (transiently) a loaded
// in-memory handle. The file offset is the authoritative link; Loaded is
// an optional handle installed through SetLoadedChild, and the cache's
// eviction does not clear it.
type ChildData struct {
	Branch  byte
	Ref     Ref
	PathLen int
	Offset  FileOffset
	Loaded  *Node // nil unless resident; never serialized
}

// Node is the engine's in-memory, on-disk-reconstructible trie node.
// Leaf/branch/extension/single-child-branch are not distinct Go types --
// they are projections over this one shape, exposed through predicates
// below instead of a class hierarchy.
type Node struct {
	Path     nibbles.View // nibbles shared by every descendant of this node
	Mask     uint16       // which of the 16 branches are present
	Children [16]*ChildData
	Value    []byte // non-nil iff this node is a leaf for its key prefix
	Version  uint64 // commit version at which this node was written

	// cached holds the Merkle reference for this node once hashed; cleared
	// whenever the node is mutated by the update engine.
	cached Ref
}

// HasChild reports whether branch i is present in the mask.
func (n *Node) HasChild(i byte) bool { return n.Mask&(1<<i) != 0 }

// ChildAt returns the ChildData for branch i, or nil if absent.
func (n *Node) ChildAt(i byte) *ChildData {
	if !n.HasChild(i) {
		return nil
	}
	return n.Children[i]
}

// SetLoadedChild installs a resident child node for branch i. Neither the
// cache nor the update engine calls it; they resolve children by offset.
func (n *Node) SetLoadedChild(branch byte, child *Node) {
	cd := n.Children[branch]
	if cd == nil {
		return
	}
	cd.Loaded = child
}

// SetChild installs or replaces branch i's ChildData outright (used while
// constructing a node bottom-up during a commit).
func (n *Node) SetChild(branch byte, cd *ChildData) {
	if cd == nil {
		n.Mask &^= 1 << branch
		n.Children[branch] = nil
		n.cached = nil
		return
	}
	n.Mask |= 1 << branch
	n.Children[branch] = cd
	n.cached = nil
}

// ChildCount returns how many of the 16 branches are present.
func (n *Node) ChildCount() int {
	c := 0
	for i := 0; i < 16; i++ {
		if n.HasChild(byte(i)) {
			c++
		}
	}
	return c
}

// IsLeaf reports whether the node terminates a key (has a value) and has
// no children of its own -- a pure leaf.
func (n *Node) IsLeaf() bool { return n.Value != nil && n.ChildCount() == 0 }

// IsExtension reports whether the node has no value and exactly one
// child -- a degenerate shape that callers must collapse before it
// becomes reachable.
func (n *Node) IsExtension() bool { return n.Value == nil && n.ChildCount() == 1 }

// IsBranch reports whether the node has two or more children (a true
// 16-way fan-out point, optionally also carrying a value).
func (n *Node) IsBranch() bool { return n.ChildCount() >= 2 }

// InvalidateCache clears the memoized Merkle reference; callers must call
// this any time Path, Mask, Children, or Value change.
func (n *Node) InvalidateCache() { n.cached = nil }

// CachedRef returns the memoized reference and whether it is still valid.
func (n *Node) CachedRef() (Ref, bool) { return n.cached, n.cached != nil }

// SetCachedRef memoizes ref as this node's Merkle reference.
func (n *Node) SetCachedRef(ref Ref) { n.cached = ref }

// MemorySize estimates the heap bytes this node (and its ChildData, but
// not resident children) occupies, for the node cache's byte budget.
func (n *Node) MemorySize() int {
	size := 64 // struct overhead + slice/array headers, approximated
	size += n.Path.Len()
	size += len(n.Value)
	for i := 0; i < 16; i++ {
		if cd := n.Children[i]; cd != nil {
			size += 32 + len(cd.Ref)
		}
	}
	return size
}

// DiskSize returns the number of bytes this node occupies on disk,
// including its fixed header. With all 16 children holding 32-byte hash
// references, the child records alone take 688 bytes (43 each), on top of
// the 13-byte fixed header, the packed path and the value.
func (n *Node) DiskSize() int {
	return encodedSize(n)
}
