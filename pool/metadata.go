package pool

import (
	"encoding/binary"
	"hash/crc32"
)

// metadataPageSize matches the fixed 4 KiB disk page size. There is no
// ecosystem library in the dependency pack for a fixed small-header CRC;
// hash/crc32 is the idiomatic stdlib choice the wider Go ecosystem (and
// this pack's own pebble/cockroachdb dependencies) also reaches for at
// this granularity, so it is used directly rather than reimplemented.
const metadataPageSize = 4096

const metadataMagic = 0x4d50544d // "MPTM"
const formatVersion = 1

// metadataPage is the decoded form of one of the pool's two redundant
// header pages: device identity, chunk size, and the head/tail
// of each of the three non-pinned lists (the pinned-root list's single
// chunk id is tracked alongside), guarded by a generation counter and a
// CRC32 of everything preceding it.
type metadataPage struct {
	Magic      uint32
	Version    uint32
	ChunkSize  uint32
	Generation uint64
	TotalCount uint32

	FreeHead, FreeTail ChunkID
	FastHead, FastTail ChunkID
	SlowHead, SlowTail ChunkID
	PinnedRoot         ChunkID

	FastDurableOffset uint64 // advance_heads: durable write frontier
	SlowDurableOffset uint64

	CRC uint32
}

func (m *metadataPage) encode() []byte {
	buf := make([]byte, metadataPageSize)
	o := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(buf[o:], v); o += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(buf[o:], v); o += 8 }

	putU32(m.Magic)
	putU32(m.Version)
	putU32(m.ChunkSize)
	putU64(m.Generation)
	putU32(m.TotalCount)
	putU32(uint32(m.FreeHead))
	putU32(uint32(m.FreeTail))
	putU32(uint32(m.FastHead))
	putU32(uint32(m.FastTail))
	putU32(uint32(m.SlowHead))
	putU32(uint32(m.SlowTail))
	putU32(uint32(m.PinnedRoot))
	putU64(m.FastDurableOffset)
	putU64(m.SlowDurableOffset)

	crc := crc32.ChecksumIEEE(buf[:metadataPageSize-4])
	binary.LittleEndian.PutUint32(buf[metadataPageSize-4:], crc)
	return buf
}

// ErrCorruptMetadata is returned when a metadata page fails its magic,
// version, or CRC check.
type ErrCorruptMetadata struct{ Reason string }

func (e ErrCorruptMetadata) Error() string { return "pool: corrupt metadata: " + e.Reason }

func decodeMetadataPage(buf []byte) (*metadataPage, error) {
	if len(buf) != metadataPageSize {
		return nil, ErrCorruptMetadata{"wrong page size"}
	}
	storedCRC := binary.LittleEndian.Uint32(buf[metadataPageSize-4:])
	computed := crc32.ChecksumIEEE(buf[:metadataPageSize-4])
	if storedCRC != computed {
		return nil, ErrCorruptMetadata{"crc mismatch"}
	}

	o := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(buf[o:]); o += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(buf[o:]); o += 8; return v }

	m := &metadataPage{}
	m.Magic = getU32()
	if m.Magic != metadataMagic {
		return nil, ErrCorruptMetadata{"bad magic"}
	}
	m.Version = getU32()
	if m.Version != formatVersion {
		return nil, ErrCorruptMetadata{"unsupported format version"}
	}
	m.ChunkSize = getU32()
	m.Generation = getU64()
	m.TotalCount = getU32()
	m.FreeHead = ChunkID(getU32())
	m.FreeTail = ChunkID(getU32())
	m.FastHead = ChunkID(getU32())
	m.FastTail = ChunkID(getU32())
	m.SlowHead = ChunkID(getU32())
	m.SlowTail = ChunkID(getU32())
	m.PinnedRoot = ChunkID(getU32())
	m.FastDurableOffset = getU64()
	m.SlowDurableOffset = getU64()
	m.CRC = storedCRC
	return m, nil
}
