package node

import (
	"encoding/hex"
	"testing"

	"github.com/xPOURY4/monad-sub013/nibbles"
)

func TestReferenceEmptyBranchForcedIsDeterministicHash(t *testing.T) {
	// An all-empty branch node is distinct from the "no root at all" case
	// (engine.EmptyRootRef, Keccak256 of the RLP empty string): it is a
	// real 17-slot branch encoding, still subject to the same force-hash
	// rule for a root reference.
	r1, err := Reference(&Node{}, true)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if len(r1) != 32 {
		t.Fatalf("expected a forced root reference to be a 32-byte hash, got %d bytes", len(r1))
	}
	r2, err := Reference(&Node{}, true)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if hex.EncodeToString(r1) != hex.EncodeToString(r2) {
		t.Fatalf("Reference is not deterministic for the same empty node")
	}
}

func TestReferenceLeafSameContentSameRef(t *testing.T) {
	n1 := &Node{Path: nibbles.FromNibbles([]byte{1, 2, 3}), Value: []byte("hello")}
	n2 := &Node{Path: nibbles.FromNibbles([]byte{1, 2, 3}), Value: []byte("hello")}

	r1, err := Reference(n1, false)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	r2, err := Reference(n2, false)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if hex.EncodeToString(r1) != hex.EncodeToString(r2) {
		t.Fatalf("identical leaf nodes produced different refs: %x != %x", r1, r2)
	}
}

func TestReferenceLeafDifferentValueDifferentRef(t *testing.T) {
	n1 := &Node{Path: nibbles.FromNibbles([]byte{1, 2, 3}), Value: []byte("hello")}
	n2 := &Node{Path: nibbles.FromNibbles([]byte{1, 2, 3}), Value: []byte("world")}

	r1, _ := Reference(n1, false)
	r2, _ := Reference(n2, false)
	if hex.EncodeToString(r1) == hex.EncodeToString(r2) {
		t.Fatalf("expected different values to produce different refs")
	}
}

func TestReferenceShortEncodingInlinesUnlessForced(t *testing.T) {
	n := &Node{Path: nibbles.FromNibbles([]byte{1}), Value: []byte("x")}
	ref, err := Reference(n, false)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if !ref.Inline() {
		t.Fatalf("expected a short leaf encoding to be inlined, got %d bytes", len(ref))
	}

	forced, err := Reference(n, true)
	if err != nil {
		t.Fatalf("Reference(root=true): %v", err)
	}
	if forced.Inline() {
		t.Fatalf("expected root=true to force hashing even for a short encoding")
	}
	if len(forced) != 32 {
		t.Fatalf("expected a forced reference to be a 32-byte hash, got %d bytes", len(forced))
	}
}
