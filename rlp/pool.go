package rlp

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// batchBufCap is the initial capacity handed to a freshly allocated batch
// buffer; batchBufCeiling is the size above which a used buffer is left
// for the garbage collector instead of being returned to the pool.
const (
	batchBufCap     = 4096
	batchBufCeiling = 1 << 20
)

// BatchEncoder amortizes the allocation cost of RLP-encoding many values
// back-to-back (a node's children, a block's transaction list) by reusing
// a small set of scratch buffers across calls instead of allocating one
// per EncodeToBytes. It is safe for concurrent use.
type BatchEncoder struct {
	bufs  sync.Pool
	stats Stats
}

// Stats are cumulative counters tracking a BatchEncoder's buffer reuse and
// encoding volume, useful for wiring into the package's own metrics.
type Stats struct {
	BufsReused   atomic.Int64
	BufsAlloc    atomic.Int64
	ItemsEncoded atomic.Int64
	BytesEmitted atomic.Int64
}

// Snapshot is a point-in-time, non-atomic copy of Stats.
type Snapshot struct {
	BufsReused, BufsAlloc, ItemsEncoded, BytesEmitted int64
}

// Snapshot freezes the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		BufsReused:   s.BufsReused.Load(),
		BufsAlloc:    s.BufsAlloc.Load(),
		ItemsEncoded: s.ItemsEncoded.Load(),
		BytesEmitted: s.BytesEmitted.Load(),
	}
}

// NewBatchEncoder constructs an empty encoder pool.
func NewBatchEncoder() *BatchEncoder {
	be := &BatchEncoder{}
	be.bufs.New = func() interface{} {
		be.stats.BufsAlloc.Add(1)
		buf := make([]byte, 0, batchBufCap)
		return &buf
	}
	return be
}

// Stats returns the pool's running counters.
func (be *BatchEncoder) Stats() *Stats {
	return &be.stats
}

func (be *BatchEncoder) acquire() *[]byte {
	buf := be.bufs.Get().(*[]byte)
	if cap(*buf) > 0 {
		be.stats.BufsReused.Add(1)
	}
	*buf = (*buf)[:0]
	return buf
}

func (be *BatchEncoder) release(buf *[]byte) {
	if cap(*buf) > batchBufCeiling {
		return
	}
	be.bufs.Put(buf)
}

// EncodeOne is a pooled-counting equivalent of the package-level
// EncodeToBytes; it does not itself draw from the buffer pool since a
// single value's encoding is already a minimal allocation, but its byte
// count still feeds Stats for callers tracking aggregate encode volume.
func (be *BatchEncoder) EncodeOne(val interface{}) ([]byte, error) {
	out, err := EncodeToBytes(val)
	if err != nil {
		return nil, err
	}
	be.stats.ItemsEncoded.Add(1)
	be.stats.BytesEmitted.Add(int64(len(out)))
	return out, nil
}

// EncodeList RLP-encodes each item in items and wraps the concatenation in
// a single list header -- the batch form a node's children array or a
// block's transaction list needs.
func (be *BatchEncoder) EncodeList(items []interface{}) ([]byte, error) {
	buf := be.acquire()
	defer be.release(buf)

	for _, item := range items {
		enc, err := EncodeToBytes(item)
		if err != nil {
			return nil, err
		}
		*buf = append(*buf, enc...)
	}

	wrapped := WrapList(*buf)
	be.stats.ItemsEncoded.Add(int64(len(items)))
	be.stats.BytesEmitted.Add(int64(len(wrapped)))

	out := make([]byte, len(wrapped))
	copy(out, wrapped)
	return out, nil
}

// The Append* helpers below build RLP payloads directly into a caller's
// slice, skipping reflection for the scalar shapes hot paths use most:
// fixed-size hashes/addresses and small integers.

// AppendUint64 appends the RLP encoding of v to dst.
func AppendUint64(dst []byte, v uint64) []byte {
	if v == 0 {
		return append(dst, 0x80)
	}
	if v < 0x80 {
		return append(dst, byte(v))
	}
	b := trimmedBigEndian(v)
	dst = append(dst, 0x80+byte(len(b)))
	return append(dst, b...)
}

// AppendBytes appends the RLP string encoding of data to dst.
func AppendBytes(dst, data []byte) []byte {
	n := len(data)
	if n == 1 && data[0] < 0x80 {
		return append(dst, data[0])
	}
	if n <= 55 {
		dst = append(dst, 0x80+byte(n))
		return append(dst, data...)
	}
	lb := trimmedBigEndian(uint64(n))
	dst = append(dst, 0xb7+byte(len(lb)))
	dst = append(dst, lb...)
	return append(dst, data...)
}

// AppendFixed appends the RLP string encoding of a fixed-width value
// (a hash or address) to dst without reflecting over an array type.
func AppendFixed(dst, data []byte) []byte {
	return AppendBytes(dst, data)
}

// AppendListHeader appends the header for a list whose payload is
// payloadSize bytes long; the caller appends the payload itself afterward.
func AppendListHeader(dst []byte, payloadSize int) []byte {
	if payloadSize <= 55 {
		return append(dst, 0xc0+byte(payloadSize))
	}
	lb := trimmedBigEndian(uint64(payloadSize))
	dst = append(dst, 0xf7+byte(len(lb)))
	return append(dst, lb...)
}

// EncodedStringSize returns how many bytes encoding a string of length
// dataLen would occupy, without doing the encoding -- useful for sizing a
// destination slice ahead of a run of AppendBytes calls.
func EncodedStringSize(dataLen int) int {
	if dataLen == 1 {
		return 1 // optimistic: true only if that byte is < 0x80
	}
	if dataLen <= 55 {
		return 1 + dataLen
	}
	return 1 + lenOfLen(uint64(dataLen)) + dataLen
}

// EncodedListSize returns how many bytes a list header plus a payload of
// payloadSize bytes would occupy.
func EncodedListSize(payloadSize int) int {
	if payloadSize <= 55 {
		return 1 + payloadSize
	}
	return 1 + lenOfLen(uint64(payloadSize)) + payloadSize
}

func trimmedBigEndian(u uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

func lenOfLen(u uint64) int {
	switch {
	case u < 1<<8:
		return 1
	case u < 1<<16:
		return 2
	case u < 1<<24:
		return 3
	case u < 1<<32:
		return 4
	case u < 1<<40:
		return 5
	case u < 1<<48:
		return 6
	case u < 1<<56:
		return 7
	default:
		return 8
	}
}
