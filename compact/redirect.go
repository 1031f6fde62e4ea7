package compact

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	"github.com/xPOURY4/monad-sub013/node"
)

// RedirectStore is an auxiliary index that decouples relocation from
// rewriting: rather than rewriting every ancestor of a relocated node
// (which would cascade all the way to the root), compaction records
// old-offset -> new-offset here, and every resolver checks it before
// trusting a ChildData.Offset. This keeps compaction's write volume
// proportional to the chunk being reclaimed, not to the whole live set
// referencing it. Backed by cockroachdb/pebble since the workload is
// exactly its sweet spot: point lookups and point writes on an
// ever-growing key space, with occasional range deletes when a
// redirected offset's own chunk is later reclaimed.
type RedirectStore struct {
	db *pebble.DB
}

// OpenRedirectStore opens (or creates) the redirect store at path.
func OpenRedirectStore(path string) (*RedirectStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &RedirectStore{db: db}, nil
}

func encodeOffsetKey(o node.FileOffset) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(o))
	return buf
}

// Put records that old has moved to new.
func (s *RedirectStore) Put(old, new_ node.FileOffset) error {
	return s.db.Set(encodeOffsetKey(old), encodeOffsetKey(new_), pebble.Sync)
}

// Resolve follows old through zero or more redirects, returning the
// final offset. A key absent from the store means old was never
// relocated, so Resolve returns it unchanged.
func (s *RedirectStore) Resolve(old node.FileOffset) (node.FileOffset, error) {
	cur := old
	for i := 0; i < 64; i++ { // bound chain length defensively
		v, closer, err := s.db.Get(encodeOffsetKey(cur))
		if err == pebble.ErrNotFound {
			return cur, nil
		}
		if err != nil {
			return 0, err
		}
		next := node.FileOffset(binary.BigEndian.Uint64(v))
		closer.Close()
		if next == cur {
			return cur, nil
		}
		cur = next
	}
	return cur, nil
}

// DeleteChunk removes every redirect entry whose *source* offset fell
// within chunk -- once a chunk is actually freed, those entries would
// otherwise accumulate forever since nothing will ever look them up by
// their old (now-recycled) offset again.
func (s *RedirectStore) DeleteChunk(chunk uint32) error {
	lo, _ := node.EncodeFileOffset(chunk, 0, 1)
	hi, _ := node.EncodeFileOffset(chunk+1, 0, 1)
	return s.db.DeleteRange(encodeOffsetKey(lo), encodeOffsetKey(hi), pebble.Sync)
}

// Close releases the underlying pebble database.
func (s *RedirectStore) Close() error { return s.db.Close() }
