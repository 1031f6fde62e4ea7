package node

import (
	"encoding/binary"

	"github.com/xPOURY4/monad-sub013/nibbles"
)

// InvalidNodeBytes is returned by Deserialize when the byte slice does not
// hold a structurally valid node -- an integrity failure fatal to
// the caller (there is no local recovery for corrupt node bytes).
type InvalidNodeBytes struct{ Reason string }

func (e InvalidNodeBytes) Error() string { return "node: invalid bytes: " + e.Reason }

const (
	flagHasValue = 1 << 0
	fixedHeader  = 1 /*flags*/ + 2 /*mask*/ + 8 /*version*/ + 2 /*pathLen*/
)

// encodedSize computes the exact on-disk size without allocating, so
// DiskSize and the writer's page-straddle check can both call it cheaply.
func encodedSize(n *Node) int {
	size := fixedHeader
	size += (n.Path.Len() + 1) / 2
	if n.Value != nil {
		size += 4 + len(n.Value)
	}
	for i := 0; i < 16; i++ {
		cd := n.Children[i]
		if cd == nil {
			continue
		}
		size += 1 /*refLen*/ + 2 /*childPathLen*/ + len(cd.Ref) + 8 /*offset*/
	}
	return size
}

// Serialize writes n's packed on-disk form to a freshly allocated buffer:
// flags, child mask, version, path nibbles, optional value, then one
// (len, path_len, ref_bytes, file_offset) record per present child, in
// ascending branch order. A node's bytes are self-contained -- no other
// node's bytes are needed to reconstruct it.
func Serialize(n *Node) []byte {
	buf := make([]byte, encodedSize(n))
	off := 0

	flags := byte(0)
	if n.Value != nil {
		flags |= flagHasValue
	}
	buf[off] = flags
	off++

	binary.LittleEndian.PutUint16(buf[off:], n.Mask)
	off += 2
	binary.LittleEndian.PutUint64(buf[off:], n.Version)
	off += 8
	binary.LittleEndian.PutUint16(buf[off:], uint16(n.Path.Len()))
	off += 2

	packNibbles(buf[off:], n.Path)
	off += (n.Path.Len() + 1) / 2

	if n.Value != nil {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(n.Value)))
		off += 4
		copy(buf[off:], n.Value)
		off += len(n.Value)
	}

	for i := 0; i < 16; i++ {
		cd := n.Children[i]
		if cd == nil {
			continue
		}
		buf[off] = byte(len(cd.Ref))
		off++
		binary.LittleEndian.PutUint16(buf[off:], uint16(cd.PathLen))
		off += 2
		copy(buf[off:], cd.Ref)
		off += len(cd.Ref)
		binary.LittleEndian.PutUint64(buf[off:], uint64(cd.Offset))
		off += 8
	}

	return buf
}

// Deserialize parses a Node from the front of b, returning the node and
// the number of bytes consumed (the "cursor" advance the caller needs to
// move past this node, e.g. when multiple nodes share a read buffer).
func Deserialize(b []byte) (*Node, int, error) {
	if len(b) < fixedHeader {
		return nil, 0, InvalidNodeBytes{"buffer shorter than fixed header"}
	}
	off := 0
	flags := b[off]
	off++
	mask := binary.LittleEndian.Uint16(b[off:])
	off += 2
	version := binary.LittleEndian.Uint64(b[off:])
	off += 8
	pathLen := int(binary.LittleEndian.Uint16(b[off:]))
	off += 2
	if pathLen > nibbles.MaxNibbles {
		return nil, 0, InvalidNodeBytes{"path length exceeds MaxNibbles"}
	}

	pathBytes := (pathLen + 1) / 2
	if off+pathBytes > len(b) {
		return nil, 0, InvalidNodeBytes{"truncated path"}
	}
	path := unpackNibbles(b[off:off+pathBytes], pathLen)
	off += pathBytes

	n := &Node{Path: nibbles.FromNibbles(path), Mask: mask, Version: version}

	if flags&flagHasValue != 0 {
		if off+4 > len(b) {
			return nil, 0, InvalidNodeBytes{"truncated value length"}
		}
		vlen := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if off+vlen > len(b) {
			return nil, 0, InvalidNodeBytes{"truncated value"}
		}
		n.Value = append([]byte(nil), b[off:off+vlen]...)
		off += vlen
	}

	for i := 0; i < 16; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		if off+3 > len(b) {
			return nil, 0, InvalidNodeBytes{"truncated child header"}
		}
		refLen := int(b[off])
		off++
		childPathLen := int(binary.LittleEndian.Uint16(b[off:]))
		off += 2
		if refLen > 32 || off+refLen+8 > len(b) {
			return nil, 0, InvalidNodeBytes{"truncated child record"}
		}
		ref := append([]byte(nil), b[off:off+refLen]...)
		off += refLen
		fo := FileOffset(binary.LittleEndian.Uint64(b[off:]))
		off += 8
		n.Children[i] = &ChildData{Branch: byte(i), Ref: ref, PathLen: childPathLen, Offset: fo}
	}

	return n, off, nil
}

// packNibbles writes v's nibbles into dst two per byte, big-endian,
// zero-padding the final nibble if the count is odd.
func packNibbles(dst []byte, v nibbles.View) {
	n := v.Len()
	for i := 0; i < n; i += 2 {
		hi := v.At(i)
		lo := byte(0)
		if i+1 < n {
			lo = v.At(i + 1)
		}
		dst[i/2] = hi<<4 | lo
	}
}

// unpackNibbles expands packed bytes back into a one-nibble-per-byte
// slice of the given logical length.
func unpackNibbles(b []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out[i] = b[i/2] >> 4
		} else {
			out[i] = b[i/2] & 0x0f
		}
	}
	return out
}
