// Package writer implements the fast and slow append writers: two
// independent page-tracking streams that turn a serialized node into an
// assigned file offset, switching chunks off the pool's free list as
// each stream's current chunk fills.
package writer

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"

	"github.com/xPOURY4/monad-sub013/asyncio"
	"github.com/xPOURY4/monad-sub013/node"
	"github.com/xPOURY4/monad-sub013/pool"
)

// OutOfChunks is returned when a writer needs a new chunk and the pool's
// free list is empty.
var OutOfChunks = errors.New("writer: pool out of chunks")

// Writer is one append stream (fast or slow). Concurrent WriteNode calls
// are serialized by its mutex, so appends to one stream never interleave;
// callers needing true parallel writers use two separate Writer
// instances, one per stream.
type Writer struct {
	mu sync.Mutex

	reactor  *asyncio.Reactor
	pool     *pool.Pool
	list     pool.List
	compress bool // true for the slow writer: compactor output is snappy-compressed

	chunk       pool.ChunkID
	chunkCursor uint64
	haveChunk   bool
}

// NewFast returns the fast writer, which stores hot nodes written
// directly by commits.
func NewFast(reactor *asyncio.Reactor, p *pool.Pool) *Writer {
	return &Writer{reactor: reactor, pool: p, list: pool.ListFast}
}

// NewSlow returns the slow writer, which stores compactor output and
// compresses it with snappy since that data is written once and read
// rarely (only when a node is resolved out of a not-yet-evicted slow
// chunk), unlike the fast path where every byte is on the commit's
// critical path.
func NewSlow(reactor *asyncio.Reactor, p *pool.Pool) *Writer {
	return &Writer{reactor: reactor, pool: p, list: pool.ListSlow, compress: true}
}

// WriteNode serializes n, optionally compresses it, and appends it to
// this writer's current chunk, padding past a page boundary first if the
// node would otherwise straddle it unnecessarily. It returns the
// FileOffset the caller must store in the parent's ChildData.
func (w *Writer) WriteNode(ctx context.Context, n *node.Node) (node.FileOffset, error) {
	payload := node.Serialize(n)
	if w.compress {
		payload = snappy.Encode(nil, payload)
	}
	return w.writeRaw(ctx, payload)
}

func (w *Writer) writeRaw(ctx context.Context, payload []byte) (node.FileOffset, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.haveChunk {
		if err := w.rotateChunkLocked(); err != nil {
			return 0, err
		}
	}

	size := uint64(len(payload))
	pageEnd := ((w.chunkCursor / node.PageSize) + 1) * node.PageSize
	if w.chunkCursor+size > pageEnd && size <= node.PageSize {
		w.chunkCursor = pageEnd
	}

	if w.chunkCursor+size > pool.ChunkSize {
		if err := w.rotateChunkLocked(); err != nil {
			return 0, err
		}
	}

	startPage := w.chunkCursor / node.PageSize
	endPage := (w.chunkCursor + size - 1) / node.PageSize
	pages := int(endPage-startPage) + 1
	if pages > 3 {
		return 0, errors.Newf("writer: node spans %d pages, exceeds the 3-page reader contract", pages)
	}

	absOffset := uint64(w.pool.ChunkOffset(w.chunk)) + w.chunkCursor
	fut, err := w.reactor.Write(ctx, absOffset, payload)
	if err != nil {
		return 0, errors.Wrap(err, "writer: submitting node write")
	}
	if _, err := fut.Wait(); err != nil {
		return 0, errors.Wrap(err, "writer: node write failed")
	}

	fo, err := node.EncodeFileOffset(uint32(w.chunk), w.chunkCursor, pages)
	if err != nil {
		return 0, err
	}
	w.chunkCursor += size
	return fo, nil
}

// rotateChunkLocked allocates a fresh chunk from the pool's free list and
// resets the cursor to its start. Callers must hold w.mu.
func (w *Writer) rotateChunkLocked() error {
	id, err := w.pool.Allocate(w.list)
	if err != nil {
		if errors.Is(err, pool.ErrOutOfChunks) {
			return OutOfChunks
		}
		return err
	}
	w.chunk = id
	w.chunkCursor = 0
	w.haveChunk = true
	return nil
}

// AbsoluteOffset reports the absolute byte offset of this writer's next
// append position, for the pool's AdvanceHeads durability bookkeeping.
func (w *Writer) AbsoluteOffset() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.haveChunk {
		return 0, false
	}
	return uint64(w.pool.ChunkOffset(w.chunk)) + w.chunkCursor, true
}

// CurrentChunk reports the chunk this writer is currently appending to,
// for the compactor to know which chunks are "hot" and must not be
// reclaimed out from under an in-progress write.
func (w *Writer) CurrentChunk() (pool.ChunkID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chunk, w.haveChunk
}
