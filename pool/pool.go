package pool

import (
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"

	"github.com/xPOURY4/monad-sub013/log"
)

// historyRingBytes is the fixed span reserved after the two metadata
// pages for the version ring (component H); chunk 0 begins immediately
// after it so the history package and the pool agree on layout without
// a runtime handshake.
const historyRingBytes = 64 * 1024

// HistoryRingOffset is the absolute byte offset of the history index
// ring, following the on-disk layout: two metadata pages, then the
// ring, then chunks back to back.
func HistoryRingOffset() int64 { return int64(2 * metadataPageSize) }

// HistoryRingBytes is the fixed span reserved for the history index ring.
func HistoryRingBytes() int64 { return int64(historyRingBytes) }

// Options configures Open: which paths back the pool, whether to create
// it, and how many chunks to provision for a fresh pool.
type Options struct {
	Paths       []string // dbname_paths: ordered list of backing paths
	Append      bool     // open existing, preserving data; fail if absent
	Create      bool     // create if absent
	ChunkCount  uint32   // initial chunk count for a freshly created pool
	Logger      *log.Logger
}

// ErrOutOfChunks is returned by Allocate when the free list is empty.
var ErrOutOfChunks = errors.New("pool: out of chunks")

// ErrFatalIO wraps an I/O error on metadata that failed on both copies.
type ErrFatalIO struct{ Cause error }

func (e ErrFatalIO) Error() string { return "pool: fatal metadata I/O: " + e.Cause.Error() }
func (e ErrFatalIO) Unwrap() error { return e.Cause }

// Pool is a writable handle onto one storage pool: the two metadata
// copies, the backing file, and the four chunk lists. Only one writable
// handle may exist per pool at a time; Open enforces this with an
// advisory file lock via gofrs/flock rather than an
// in-process mutex, since the constraint is meant to hold across
// processes too.
type Pool struct {
	mu sync.Mutex

	file    *os.File
	lock    *flock.Flock
	log     *log.Logger
	headers []ChunkHeader // in-memory mirror of every chunk's header

	active   int // which of meta[0]/meta[1] is currently the durable copy
	meta     [2]*metadataPage
	writable bool
}

// Open validates magic, reads both metadata copies, and selects whichever
// has the higher generation and a valid CRC. If both are invalid and
// Create is set, it initializes a fresh pool; otherwise it fails with
// ErrCorruptMetadata.
func Open(opts Options) (*Pool, error) {
	if len(opts.Paths) == 0 {
		return nil, errors.New("pool: no backing paths supplied")
	}
	path := opts.Paths[0]
	lg := opts.Logger
	if lg == nil {
		lg = log.New(slog.LevelInfo)
	}

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "pool: acquiring writer lock")
	}
	if !locked {
		return nil, errors.New("pool: another writable handle already holds this pool")
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	flag := os.O_RDWR
	if !exists {
		if !opts.Create {
			fl.Unlock()
			return nil, errors.Newf("pool: %s does not exist and Create is false", path)
		}
		flag |= os.O_CREATE
	} else if !opts.Append && !opts.Create {
		fl.Unlock()
		return nil, errors.New("pool: neither Append nor Create set for existing pool")
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		fl.Unlock()
		return nil, errors.Wrap(err, "pool: opening backing file")
	}

	p := &Pool{file: f, lock: fl, log: lg.Module("pool"), writable: true}

	if exists {
		if err := p.loadMetadata(); err != nil {
			if !opts.Create {
				f.Close()
				fl.Unlock()
				return nil, err
			}
			p.log.Warn("metadata unreadable, reinitializing", "err", err.Error())
			if err := p.initFresh(opts.ChunkCount); err != nil {
				f.Close()
				fl.Unlock()
				return nil, err
			}
		}
	} else {
		if err := p.initFresh(opts.ChunkCount); err != nil {
			f.Close()
			fl.Unlock()
			return nil, err
		}
	}

	return p, nil
}

// initFresh lays out n empty chunks, all on the free list, and writes
// both metadata copies so either is valid after this call.
func (p *Pool) initFresh(n uint32) error {
	if n == 0 {
		n = 16
	}
	p.headers = make([]ChunkHeader, n)
	for i := range p.headers {
		p.headers[i] = ChunkHeader{Magic: chunkMagic, List: ListFree, Next: ChunkID(i + 1), Prev: noChunk}
		if i == int(n)-1 {
			p.headers[i].Next = noChunk
		}
		if i > 0 {
			p.headers[i].Prev = ChunkID(i - 1)
		}
	}

	m := &metadataPage{
		Magic: metadataMagic, Version: formatVersion, ChunkSize: ChunkSize,
		Generation: 1, TotalCount: n,
		FreeHead: 0, FreeTail: ChunkID(n - 1),
		FastHead: noChunk, FastTail: noChunk,
		SlowHead: noChunk, SlowTail: noChunk,
		PinnedRoot: noChunk,
	}
	p.meta[0] = m
	second := *m
	second.Generation = 1
	p.meta[1] = &second
	p.active = 0
	if err := p.flushMetadataLocked(); err != nil {
		return err
	}
	return p.flushMetadataLocked()
}

func (p *Pool) loadMetadata() error {
	// Both copies live at well-known offsets at the front of the device;
	// a from-scratch pool has neither yet, so a read failure here is
	// expected and handled by the caller via Create.
	buf0 := make([]byte, metadataPageSize)
	buf1 := make([]byte, metadataPageSize)
	if _, err := p.file.ReadAt(buf0, 0); err != nil {
		return err
	}
	if _, err := p.file.ReadAt(buf1, metadataPageSize); err != nil {
		return err
	}
	m0, err0 := decodeMetadataPage(buf0)
	m1, err1 := decodeMetadataPage(buf1)
	if err0 != nil && err1 != nil {
		return ErrCorruptMetadata{"both copies invalid"}
	}
	switch {
	case err0 != nil:
		p.meta[0], p.meta[1] = m1, m1
		p.active = 1
	case err1 != nil:
		p.meta[0], p.meta[1] = m0, m0
		p.active = 0
	case m0.Generation >= m1.Generation:
		p.meta[0], p.meta[1] = m0, m1
		p.active = 0
	default:
		p.meta[0], p.meta[1] = m0, m1
		p.active = 1
	}
	p.headers = make([]ChunkHeader, p.current().TotalCount)
	return nil
}

func (p *Pool) current() *metadataPage { return p.meta[p.active] }

// flushMetadataLocked writes the currently-passive copy, then marks it
// active by bumping its generation -- this crash-safe alternation means
// a crash mid-write leaves the other, still-valid copy in place.
func (p *Pool) flushMetadataLocked() error {
	passive := 1 - p.active
	next := *p.current()
	next.Generation = p.current().Generation + 1
	p.meta[passive] = &next

	buf := next.encode()
	if _, err := p.file.WriteAt(buf, int64(passive)*metadataPageSize); err != nil {
		// Retry on the other copy before giving up.
		if _, err2 := p.file.WriteAt(buf, int64(p.active)*metadataPageSize); err2 != nil {
			return ErrFatalIO{Cause: err}
		}
		p.meta[p.active] = &next
		return nil
	}
	p.active = passive
	return nil
}

// Allocate removes the head of the free list, links it into list, and
// returns its id.
func (p *Pool) Allocate(list List) (ChunkID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.current()
	if m.FreeHead == noChunk {
		return 0, ErrOutOfChunks
	}
	id := m.FreeHead
	hdr := &p.headers[id]
	m.FreeHead = hdr.Next
	if m.FreeHead == noChunk {
		m.FreeTail = noChunk
	} else {
		p.headers[m.FreeHead].Prev = noChunk
	}

	hdr.List = list
	hdr.Next = noChunk
	hdr.Prev = noChunk
	p.linkTailLocked(list, id)

	if err := p.flushMetadataLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Pool) linkTailLocked(list List, id ChunkID) {
	m := p.current()
	head, tail := p.listEndsLocked(list)
	if *tail == noChunk {
		*head = id
		*tail = id
		return
	}
	p.headers[*tail].Next = id
	p.headers[id].Prev = *tail
	*tail = id
	_ = m
}

func (p *Pool) listEndsLocked(list List) (head, tail *ChunkID) {
	m := p.current()
	switch list {
	case ListFree:
		return &m.FreeHead, &m.FreeTail
	case ListFast:
		return &m.FastHead, &m.FastTail
	case ListSlow:
		return &m.SlowHead, &m.SlowTail
	default:
		return &m.PinnedRoot, &m.PinnedRoot
	}
}

// Release unlinks chunk id from its current list and prepends it to the
// free list.
func (p *Pool) Release(id ChunkID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hdr := &p.headers[id]
	head, tail := p.listEndsLocked(hdr.List)
	if hdr.Prev != noChunk {
		p.headers[hdr.Prev].Next = hdr.Next
	} else {
		*head = hdr.Next
	}
	if hdr.Next != noChunk {
		p.headers[hdr.Next].Prev = hdr.Prev
	} else {
		*tail = hdr.Prev
	}

	m := p.current()
	hdr.List = ListFree
	hdr.Prev = noChunk
	hdr.Next = m.FreeHead
	if m.FreeHead != noChunk {
		p.headers[m.FreeHead].Prev = id
	}
	m.FreeHead = id
	if m.FreeTail == noChunk {
		m.FreeTail = id
	}

	return p.flushMetadataLocked()
}

// AdvanceHeads atomically records the durable write frontier for both
// writers; callers do this as the last step of a commit.
func (p *Pool) AdvanceHeads(fastOffset, slowOffset uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current().FastDurableOffset = fastOffset
	p.current().SlowDurableOffset = slowOffset
	return p.flushMetadataLocked()
}

// DurableHeads returns the last durably-recorded fast/slow write frontier.
func (p *Pool) DurableHeads() (fast, slow uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.current()
	return m.FastDurableOffset, m.SlowDurableOffset
}

// File exposes the backing file for the async I/O engine and writers,
// which issue their own reads/writes directly against chunk offsets.
func (p *Pool) File() *os.File { return p.file }

// ChunkOffset returns the absolute byte offset of chunk id's first byte.
func (p *Pool) ChunkOffset(id ChunkID) int64 {
	return int64(2*metadataPageSize) + int64(historyRingBytes) + int64(id)*ChunkSize
}

// Stats reports the size of every list, used for the chunk-conservation
// property: free + fast + slow + pinned must equal TotalCount.
type Stats struct {
	Free, Fast, Slow, Pinned, Total uint32
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Total: p.current().TotalCount}
	for id := range p.headers {
		switch p.headers[id].List {
		case ListFree:
			s.Free++
		case ListFast:
			s.Fast++
		case ListSlow:
			s.Slow++
		case ListPinnedRoot:
			s.Pinned++
		}
	}
	return s
}

// ListHead returns the head chunk of list (the oldest chunk still linked
// into it, since new allocations are appended at the tail), used by the
// compactor to pick a reclaim candidate.
func (p *Pool) ListHead(list List) (ChunkID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	head, _ := p.listEndsLocked(list)
	if *head == noChunk {
		return 0, false
	}
	return *head, true
}

// ChunkList reports which list chunk id currently belongs to, so callers
// resolving a node's bytes know whether to expect fast (uncompressed) or
// slow (snappy-compressed) encoding.
func (p *Pool) ChunkList(id ChunkID) List {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers[id].List
}

// Close releases the writer lock and closes the backing file.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.file.Close()
	if p.writable {
		p.lock.Unlock()
	}
	return err
}

// CloneReadOnly produces a handle reading the live metadata snapshot
// without mutation, safe to use from a second process/thread. Unlike
// Open, it never takes the writer lock.
func (p *Pool) CloneReadOnly() (*ReadOnlyPool, error) {
	f, err := os.Open(p.file.Name())
	if err != nil {
		return nil, err
	}
	return &ReadOnlyPool{file: f}, nil
}

// ReadOnlyPool is a read-only view of a pool's durable metadata, usable
// concurrently with the single writer.
type ReadOnlyPool struct {
	file *os.File
}

// Snapshot re-reads both metadata copies and returns whichever is valid
// and newest, the same selection rule Open uses.
func (r *ReadOnlyPool) Snapshot() (*metadataPage, error) {
	buf0 := make([]byte, metadataPageSize)
	buf1 := make([]byte, metadataPageSize)
	if _, err := r.file.ReadAt(buf0, 0); err != nil {
		return nil, err
	}
	if _, err := r.file.ReadAt(buf1, metadataPageSize); err != nil {
		return nil, err
	}
	m0, err0 := decodeMetadataPage(buf0)
	m1, err1 := decodeMetadataPage(buf1)
	if err0 != nil && err1 != nil {
		return nil, ErrCorruptMetadata{"both copies invalid"}
	}
	if err1 != nil || (err0 == nil && m0.Generation >= m1.Generation) {
		return m0, nil
	}
	return m1, nil
}

// File exposes the backing file descriptor for read-only node fetches.
func (r *ReadOnlyPool) File() *os.File { return r.file }

// Close closes the read-only handle.
func (r *ReadOnlyPool) Close() error { return r.file.Close() }
