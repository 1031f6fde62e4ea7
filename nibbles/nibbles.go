// Package nibbles implements the borrowed nibble-path view used throughout
// the trie engine. A key is a sequence of 4-bit nibbles (at most 128 of
// them); nodes compare, split, and concatenate these paths constantly, so
// the representation here is a slice that can be re-sliced without copying,
// the same hex-nibble convention go-ethereum's trie package uses for
// path segments, generalized here to carry explicit (start, end) bounds,
// counted in nibbles, instead of always starting at nibble 0.
package nibbles

import "github.com/xPOURY4/monad-sub013/crypto"

// MaxNibbles bounds the length of any key this engine accepts (64 nibbles
// for a 32-byte hashed key, with headroom for the deepest plausible
// extension chains).
const MaxNibbles = 128

// Terminator marks the end of a leaf path inside the expanded hex form,
// matching the Yellow Paper's hex-prefix convention.
const Terminator = 16

// View is a borrowed, immutable window over a backing nibble array. Each
// element of data is one nibble (0-15, or Terminator); start/end index in
// nibble units, not bytes, so slicing is an O(1) bounds adjustment and no
// copy is made for a prefix, suffix, or common-prefix split.
type View struct {
	data  []byte
	start int
	end   int
}

// FromKeyBytes builds a View over the hex-nibble expansion of a raw byte
// key, appending the terminator nibble -- the canonical representation for
// a full lookup key.
func FromKeyBytes(key []byte) View {
	n := make([]byte, len(key)*2+1)
	for i, b := range key {
		n[i*2] = b >> 4
		n[i*2+1] = b & 0x0f
	}
	n[len(n)-1] = Terminator
	return View{data: n, start: 0, end: len(n)}
}

// FromNibbles wraps an already-expanded nibble slice (no copy).
func FromNibbles(n []byte) View {
	return View{data: n, start: 0, end: len(n)}
}

// Len returns the number of nibbles in the view.
func (v View) Len() int { return v.end - v.start }

// At returns the nibble at logical index i (0-based, relative to the view).
func (v View) At(i int) byte { return v.data[v.start+i] }

// HasTerminator reports whether the view's last nibble is the leaf
// terminator.
func (v View) HasTerminator() bool {
	return v.Len() > 0 && v.At(v.Len()-1) == Terminator
}

// WithoutTerminator returns a view with the trailing terminator nibble
// stripped, if present.
func (v View) WithoutTerminator() View {
	if v.HasTerminator() {
		return v.Slice(0, v.Len()-1)
	}
	return v
}

// Slice returns the sub-view [from, to), borrowing the same backing array.
func (v View) Slice(from, to int) View {
	return View{data: v.data, start: v.start + from, end: v.start + to}
}

// Suffix returns the view starting at nibble index from, through the end.
// O(1): no allocation, just adjusted bounds.
func (v View) Suffix(from int) View {
	return v.Slice(from, v.Len())
}

// Bytes materializes the view's nibbles into a fresh []byte (one nibble
// per element). Use sparingly -- this is the one allocating operation.
func (v View) Bytes() []byte {
	out := make([]byte, v.Len())
	copy(out, v.data[v.start:v.end])
	return out
}

// CommonPrefixLen returns the length of the shared prefix of v and o, in
// nibbles.
func CommonPrefixLen(v, o View) int {
	n := v.Len()
	if o.Len() < n {
		n = o.Len()
	}
	i := 0
	for ; i < n; i++ {
		if v.At(i) != o.At(i) {
			break
		}
	}
	return i
}

// Equal reports whether v and o denote the same nibble sequence.
func Equal(v, o View) bool {
	if v.Len() != o.Len() {
		return false
	}
	return CommonPrefixLen(v, o) == v.Len()
}

// Concat allocates a new View holding a ‖ branchNibble ‖ b. Concatenation
// and suffixing are the two operations the data model calls out as
// O(path-length); this is the allocating half.
func Concat(a View, branch byte, b View) View {
	out := make([]byte, a.Len()+1+b.Len())
	copy(out, a.data[a.start:a.end])
	out[a.Len()] = branch
	copy(out[a.Len()+1:], b.data[b.start:b.end])
	return FromNibbles(out)
}

// HexToCompact converts a hex nibble sequence (with possible terminator) to
// hex-prefix (compact) encoding per the Yellow Paper, Appendix C.
func HexToCompact(hex []byte) []byte {
	term := byte(0)
	if hasTerm(hex) {
		term = 1
		hex = hex[:len(hex)-1]
	}
	buf := make([]byte, len(hex)/2+1)
	buf[0] = term << 5
	if len(hex)&1 == 1 {
		buf[0] |= 1 << 4
		buf[0] |= hex[0]
		hex = hex[1:]
	}
	for bi, ni := 0, 0; ni < len(hex); bi, ni = bi+1, ni+2 {
		buf[bi+1] = hex[ni]<<4 | hex[ni+1]
	}
	return buf
}

// CompactToHex is the inverse of HexToCompact.
func CompactToHex(compact []byte) []byte {
	if len(compact) == 0 {
		return compact
	}
	base := make([]byte, len(compact)*2)
	for i, b := range compact {
		base[i*2] = b >> 4
		base[i*2+1] = b & 0x0f
	}
	chop := 2 - base[0]&1
	leaf := base[0]&2 != 0
	base = base[chop:]
	if leaf {
		out := make([]byte, len(base)+1)
		copy(out, base)
		out[len(out)-1] = Terminator
		return out
	}
	return base
}

func hasTerm(s []byte) bool {
	return len(s) > 0 && s[len(s)-1] == Terminator
}

// KeyHash returns the Keccak-256 hash of key, the canonical way raw
// account/storage keys become fixed-length nibble paths before insertion.
func KeyHash(key []byte) [32]byte {
	var h [32]byte
	copy(h[:], crypto.Keccak256(key))
	return h
}
