// Package rlp implements Recursive Length Prefix encoding, the canonical
// wire format the trie engine uses for a node's Merkle reference: every
// node's hashed (or inline) form is an RLP list of its compact-encoded
// path and its value-or-children payload. The package supports the same
// scalar and composite Go types go-ethereum's rlp package does (bool,
// unsigned/signed integers, *big.Int, strings, byte slices/arrays, slices
// of encodable values, and exported struct fields) so node encoding can be
// expressed as plain Go values rather than hand-assembled byte buffers.
package rlp

import "io"

// Kind classifies the tag byte at the head of an RLP item.
type Kind int

const (
	// KindByte is a single byte in [0x00, 0x7f], self-encoded with no header.
	KindByte Kind = iota
	// KindString is an RLP byte string, including the empty string.
	KindString
	// KindList is an RLP list of zero or more items.
	KindList
)

// Encode writes the RLP encoding of val to w.
func Encode(w io.Writer, val interface{}) error {
	enc, err := EncodeToBytes(val)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

// Decode reads one RLP-encoded value from r into the value val points to.
func Decode(r io.Reader, val interface{}) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return DecodeBytes(raw, val)
}
