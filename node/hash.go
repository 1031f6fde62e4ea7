package node

import (
	"github.com/xPOURY4/monad-sub013/crypto"
	"github.com/xPOURY4/monad-sub013/nibbles"
	"github.com/xPOURY4/monad-sub013/rlp"
)

// Reference computes n's Merkle reference: RLP encode
// (compact_encode(path, has_value), value_or_children_rlp), then
// Keccak-256 the result if it is 32 bytes or larger, else return the raw
// encoding inline. root forces hashing even when the encoding is short,
// the convention the engine uses only for the trie's published root.
func Reference(n *Node, root bool) (Ref, error) {
	if n.Path.Len() == 0 && !n.IsLeaf() {
		enc, err := encodeBranchRLP(n)
		if err != nil {
			return nil, err
		}
		return storeOrInline(enc, root), nil
	}

	if n.IsLeaf() {
		compact := nibbles.HexToCompact(append(n.Path.Bytes(), nibbles.Terminator))
		keyEnc, err := rlp.EncodeToBytes(compact)
		if err != nil {
			return nil, err
		}
		valEnc, err := rlp.EncodeToBytes(n.Value)
		if err != nil {
			return nil, err
		}
		enc := rlp.WrapList(append(append([]byte{}, keyEnc...), valEnc...))
		return storeOrInline(enc, root), nil
	}

	// Extension-shaped: path leads into a branch/value core. The core is
	// branch-encoded here and referenced through storeOrInline (hashed at
	// 32 bytes or more, embedded inline otherwise) as the extension's child.
	core, err := encodeBranchRLP(n)
	if err != nil {
		return nil, err
	}
	coreRef := storeOrInline(core, false)

	compact := nibbles.HexToCompact(n.Path.Bytes())
	keyEnc, err := rlp.EncodeToBytes(compact)
	if err != nil {
		return nil, err
	}
	childEnc := refTerm(coreRef)
	enc := rlp.WrapList(append(append([]byte{}, keyEnc...), childEnc...))
	return storeOrInline(enc, root), nil
}

// encodeBranchRLP encodes the 17-element branch content of n (its
// children and value), ignoring n.Path. Absent children encode
// as the empty string (0x80); children whose reference is <32 bytes are
// embedded inline since they are already valid RLP terms, others as an
// RLP string wrapping their 32-byte hash.
func encodeBranchRLP(n *Node) ([]byte, error) {
	var payload []byte
	for i := 0; i < 16; i++ {
		cd := n.Children[i]
		if cd == nil {
			payload = append(payload, 0x80)
			continue
		}
		payload = append(payload, refTerm(cd.Ref)...)
	}
	if n.Value != nil {
		valEnc, err := rlp.EncodeToBytes(n.Value)
		if err != nil {
			return nil, err
		}
		payload = append(payload, valEnc...)
	} else {
		payload = append(payload, 0x80)
	}
	return rlp.WrapList(payload), nil
}

// refTerm renders a Ref as the RLP term to embed in a parent's payload:
// inline references are already-valid RLP and are spliced in verbatim;
// hash references are wrapped as a 32-byte RLP string.
func refTerm(r Ref) []byte {
	if len(r) == 0 {
		return []byte{0x80}
	}
	if Ref(r).Inline() {
		return r
	}
	enc, _ := rlp.EncodeToBytes([]byte(r))
	return enc
}

// storeOrInline applies the <32-bytes-inline / >=32-bytes-hash rule.
func storeOrInline(enc []byte, force bool) Ref {
	if len(enc) < 32 && !force {
		return Ref(enc)
	}
	return Ref(crypto.Keccak256(enc))
}
