// Package history implements the version history index: a fixed-size ring
// of version records at a well-known device offset, supporting record,
// lookup, latest, and rewind.
package history

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/xPOURY4/monad-sub013/node"
	"github.com/xPOURY4/monad-sub013/pool"
)

// recordSize is the on-disk size of one VersionRecord slot: version (8),
// root file offset (8), a CRC32 (4), padded to a power-of-two-friendly
// stride.
const recordSize = 24

// ErrInvalidVersion is returned by Rewind when the target version is not
// known to the ring (too old, pruned, or never recorded).
var ErrInvalidVersion = errors.New("history: invalid version")

// VersionRecord names one committed root at a given version.
type VersionRecord struct {
	Version    uint64
	RootOffset node.FileOffset
}

func (r VersionRecord) encode() []byte {
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:], r.Version)
	binary.LittleEndian.PutUint64(buf[8:], uint64(r.RootOffset))
	crc := crc32.ChecksumIEEE(buf[:16])
	binary.LittleEndian.PutUint32(buf[16:], crc)
	return buf
}

func decodeRecord(buf []byte) (VersionRecord, bool) {
	if len(buf) != recordSize {
		return VersionRecord{}, false
	}
	crc := binary.LittleEndian.Uint32(buf[16:])
	if crc32.ChecksumIEEE(buf[:16]) != crc {
		return VersionRecord{}, false
	}
	return VersionRecord{
		Version:    binary.LittleEndian.Uint64(buf[0:]),
		RootOffset: node.FileOffset(binary.LittleEndian.Uint64(buf[8:])),
	}, true
}

// Ring is the on-disk version ring plus the in-memory view of which
// versions are presently valid after rewinds.
type Ring struct {
	mu   sync.Mutex
	file *os.File
	base int64
	n    uint64 // slot count

	minValid uint64
	haveMin  bool

	rewindTarget    uint64
	haveRewindCeil  bool
}

// Open maps a Ring onto file's reserved history span, with slot count n
// derived from the reserved span (so a ring always fits in
// pool.HistoryRingBytes()).
func Open(file *os.File, n uint64) *Ring {
	if n == 0 {
		n = uint64(pool.HistoryRingBytes()) / recordSize
	}
	return &Ring{file: file, base: pool.HistoryRingOffset(), n: n}
}

func (r *Ring) slotOffset(version uint64) int64 {
	return r.base + int64(version%r.n)*recordSize
}

// Record writes version/rootOffset to its ring slot. This must happen,
// and be durable, before the version becomes visible to readers --
// callers call this only after the pool's metadata heads have advanced
// past every node write the new root depends on.
func (r *Ring) Record(version uint64, rootOffset node.FileOffset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.haveRewindCeil && version > r.rewindTarget {
		// Versions between the rewind ceiling and this one were rewound
		// away; blank their slots so they stay hidden below the new ceiling.
		start := r.rewindTarget + 1
		if version-start >= r.n {
			start = version - r.n + 1
		}
		blank := make([]byte, recordSize)
		for v := start; v < version; v++ {
			if _, err := r.file.WriteAt(blank, r.slotOffset(v)); err != nil {
				return errors.Wrap(err, "history: clearing rewound version record")
			}
		}
	}
	rec := VersionRecord{Version: version, RootOffset: rootOffset}
	if _, err := r.file.WriteAt(rec.encode(), r.slotOffset(version)); err != nil {
		return errors.Wrap(err, "history: writing version record")
	}
	if err := r.file.Sync(); err != nil {
		return errors.Wrap(err, "history: fencing version record")
	}
	if !r.haveMin {
		// First record establishes the valid window's floor; later
		// widening happens only via explicit pruning, never here.
		r.minValid = version
		r.haveMin = true
	}
	if r.haveRewindCeil && version > r.rewindTarget {
		// A fresh commit past a previous rewind raises the ceiling to it;
		// records left above it from before the rewind stay hidden.
		r.rewindTarget = version
	}
	return nil
}

// Lookup reads the slot for version and returns its record if the slot
// still holds that exact version (ring reuse or a rewind may have
// overwritten or invalidated it).
func (r *Ring) Lookup(version uint64) (VersionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(version)
}

func (r *Ring) lookupLocked(version uint64) (VersionRecord, bool) {
	if r.haveMin && version < r.minValid {
		return VersionRecord{}, false
	}
	if r.haveRewindCeil && version > r.rewindTarget {
		return VersionRecord{}, false
	}
	buf := make([]byte, recordSize)
	if _, err := r.file.ReadAt(buf, r.slotOffset(version)); err != nil {
		return VersionRecord{}, false
	}
	rec, ok := decodeRecord(buf)
	if !ok || rec.Version != version {
		return VersionRecord{}, false
	}
	return rec, true
}

// Latest scans the ring's tail window for the highest valid version.
func (r *Ring) Latest() (VersionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best VersionRecord
	found := false
	for i := uint64(0); i < r.n; i++ {
		buf := make([]byte, recordSize)
		if _, err := r.file.ReadAt(buf, r.base+int64(i)*recordSize); err != nil {
			continue
		}
		rec, ok := decodeRecord(buf)
		if !ok {
			continue
		}
		if r.haveMin && rec.Version < r.minValid {
			continue
		}
		if r.haveRewindCeil && rec.Version > r.rewindTarget {
			continue
		}
		if !found || rec.Version > best.Version {
			best, found = rec, true
		}
	}
	return best, found
}

// MinValidVersion reports the oldest version Lookup will still resolve.
func (r *Ring) MinValidVersion() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minValid
}

// Rewind narrows the valid window to [max(target-historyLen+1, 0),
// target]; lookups for versions above target subsequently fail. It does
// not reclaim any chunks -- compaction does that independently once it
// observes no root references them.
func (r *Ring) Rewind(target uint64, historyLen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lookupLocked(target); !ok {
		return ErrInvalidVersion
	}
	floor := uint64(0)
	if target+1 > historyLen {
		floor = target + 1 - historyLen
	}
	r.minValid = floor
	r.haveMin = true
	r.rewindTarget = target
	r.haveRewindCeil = true
	return nil
}

// LiveRoots returns the root offset of every version currently in the
// valid window [MinValidVersion(), latest], for the compactor to decide
// which nodes are still reachable before reclaiming a chunk.
func (r *Ring) LiveRoots() []node.FileOffset {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latestVersion uint64
	found := false
	for i := uint64(0); i < r.n; i++ {
		buf := make([]byte, recordSize)
		if _, err := r.file.ReadAt(buf, r.base+int64(i)*recordSize); err != nil {
			continue
		}
		rec, ok := decodeRecord(buf)
		if !ok {
			continue
		}
		if !found || rec.Version > latestVersion {
			latestVersion, found = rec.Version, true
		}
	}
	if !found {
		return nil
	}

	var roots []node.FileOffset
	for v := r.minValid; v <= latestVersion; v++ {
		if rec, ok := r.lookupLocked(v); ok {
			roots = append(roots, rec.RootOffset)
		}
	}
	return roots
}

// Reconcile discards any recorded version whose root offset points into
// a chunk byte range beyond the pool's durable fast/slow heads: a crash
// between writing nodes and advancing those heads leaves such a version
// recorded but never actually made durable -- this is exactly the window
// Reconcile closes on reopen.
func (r *Ring) Reconcile(fastDurable, slowDurable uint64, chunkList func(node.FileOffset) (fast bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latestVersion uint64
	found := false
	for i := uint64(0); i < r.n; i++ {
		buf := make([]byte, recordSize)
		if _, err := r.file.ReadAt(buf, r.base+int64(i)*recordSize); err != nil {
			continue
		}
		rec, ok := decodeRecord(buf)
		if !ok {
			continue
		}
		if !found || rec.Version > latestVersion {
			latestVersion, found = rec.Version, true
		}
	}
	if !found {
		return
	}
	for v := r.minValid; v <= latestVersion; v++ {
		rec, ok := r.lookupLocked(v)
		if !ok {
			continue
		}
		durable := slowDurable
		if chunkList(rec.RootOffset) {
			durable = fastDurable
		}
		if rec.RootOffset.ByteOffset() > durable {
			r.rewindTarget = v - 1
			r.haveRewindCeil = true
		}
	}
}
