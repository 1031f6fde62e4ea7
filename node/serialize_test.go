package node

import (
	"bytes"
	"testing"

	"github.com/xPOURY4/monad-sub013/nibbles"
)

func TestSerializeDeserializeLeaf(t *testing.T) {
	n := &Node{
		Path:    nibbles.FromNibbles([]byte{1, 2, 3}),
		Value:   []byte("hello"),
		Version: 7,
	}

	buf := Serialize(n)
	if len(buf) != n.DiskSize() {
		t.Fatalf("Serialize produced %d bytes, DiskSize reports %d", len(buf), n.DiskSize())
	}

	got, consumed, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", consumed, len(buf))
	}
	if !nibbles.Equal(got.Path, n.Path) {
		t.Fatalf("path mismatch: got %v want %v", got.Path.Bytes(), n.Path.Bytes())
	}
	if !bytes.Equal(got.Value, n.Value) {
		t.Fatalf("value mismatch: got %q want %q", got.Value, n.Value)
	}
	if got.Version != n.Version {
		t.Fatalf("version mismatch: got %d want %d", got.Version, n.Version)
	}
}

func TestSerializeDeserializeBranchWithChildren(t *testing.T) {
	n := &Node{Path: nibbles.FromNibbles(nil), Version: 1}
	n.SetChild(2, &ChildData{Branch: 2, Ref: Ref([]byte{0xaa, 0xbb}), PathLen: 3, Offset: FileOffset(100)})
	n.SetChild(9, &ChildData{Branch: 9, Ref: make(Ref, 32), PathLen: 0, Offset: FileOffset(200)})

	buf := Serialize(n)
	got, _, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if !got.HasChild(2) || !got.HasChild(9) {
		t.Fatalf("expected children at branches 2 and 9, mask=%016b", got.Mask)
	}
	if got.HasChild(0) || got.HasChild(15) {
		t.Fatalf("unexpected child present, mask=%016b", got.Mask)
	}

	c2 := got.ChildAt(2)
	if c2.Offset != FileOffset(100) || c2.PathLen != 3 || !bytes.Equal(c2.Ref, []byte{0xaa, 0xbb}) {
		t.Fatalf("branch 2 child mismatch: %+v", c2)
	}
	c9 := got.ChildAt(9)
	if c9.Offset != FileOffset(200) || len(c9.Ref) != 32 {
		t.Fatalf("branch 9 child mismatch: %+v", c9)
	}
}

func TestSerializeOddPathLength(t *testing.T) {
	n := &Node{Path: nibbles.FromNibbles([]byte{1, 2, 3, 4, 5}), Value: []byte("x")}
	buf := Serialize(n)
	got, _, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !nibbles.Equal(got.Path, n.Path) {
		t.Fatalf("odd-length path roundtrip failed: got %v want %v", got.Path.Bytes(), n.Path.Bytes())
	}
}

func TestDeserializeRejectsTruncatedInput(t *testing.T) {
	n := &Node{Path: nibbles.FromNibbles([]byte{1, 2}), Value: []byte("v")}
	buf := Serialize(n)
	for i := 0; i < len(buf); i++ {
		if _, _, err := Deserialize(buf[:i]); err == nil {
			t.Fatalf("expected an error deserializing a %d-byte truncation of a %d-byte node", i, len(buf))
		}
	}
}

func TestDeserializeRejectsOversizedPathLength(t *testing.T) {
	n := &Node{Path: nibbles.FromNibbles([]byte{1, 2})}
	buf := Serialize(n)
	buf[11] = 0xff // clobber the little-endian pathLen field (offset 11-12)
	buf[12] = 0xff
	if _, _, err := Deserialize(buf); err == nil {
		t.Fatal("expected an error for a path length exceeding MaxNibbles")
	}
}
