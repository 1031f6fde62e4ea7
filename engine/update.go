package engine

import (
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/node"
)

// Update is one change applied by a commit: an upsert or delete of a full
// key, optionally cascading into a nested subtree keyed under it -- used
// by callers layering storage tries under account leaves.
type Update struct {
	Key         nibbles.View
	Value       []byte // nil means delete
	Incarnation bool   // true drops any existing subtree under Key first
	Next        UpdateList
	Version     uint64

	// PriorNestedRoot/HasPriorNestedRoot name the nested subtree's current
	// root, if the caller is tracking one (e.g. an account's storage root
	// folded into Value by the caller). Commit reads these, commits Next
	// against them, and writes the result back to NestedRoot.
	PriorNestedRoot    node.FileOffset
	HasPriorNestedRoot bool

	// NestedRoot is filled in by Commit once Next has been committed; the
	// caller is responsible for folding it into whatever encoding Value
	// uses to reference its nested subtree -- the engine itself stays
	// value-agnostic and leaves encoding to the caller.
	NestedRoot    node.FileOffset
	HasNestedRoot bool
}

// UpdateList is the forward list of updates sharing a common subtree,
// sorted ascending by nibble path.
type UpdateList []*Update

// bucketize partitions updates (all already sharing the key prefix through
// depth2) into the 16 branch buckets keyed by the next nibble, returning
// as own the (at most one) update whose key is exhausted exactly at
// depth2 -- the conceptual 17th bucket alongside the 16 branches.
func bucketize(updates UpdateList, depth2 int) (buckets [16]UpdateList, own *Update) {
	for _, u := range updates {
		rel := u.Key.Len() - depth2
		if rel == 0 || (rel == 1 && u.Key.At(depth2) == nibbles.Terminator) {
			own = u
			continue
		}
		b := u.Key.At(depth2)
		buckets[b] = append(buckets[b], u)
	}
	return buckets, own
}

// splitPoint returns the first nibble offset within existingPath (relative,
// 0-based) at which some update can no longer continue along it -- either
// because it disagrees with existingPath's nibble there, or because it is
// exhausted at that exact position (wants a value at a shallower prefix).
// Returns existingPath.Len() if every update agrees all the way through.
func splitPoint(existingPath nibbles.View, depth int, updates UpdateList) int {
	n := existingPath.Len()
	for d := 0; d < n; d++ {
		want := existingPath.At(d)
		for _, u := range updates {
			rel := u.Key.Len() - depth
			if rel == d {
				return d
			}
			if u.Key.At(depth+d) != want {
				return d
			}
		}
	}
	return n
}
