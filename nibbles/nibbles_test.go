package nibbles

import (
	"bytes"
	"testing"
)

func v(b ...byte) View { return FromNibbles(b) }

func TestHexToCompactLeafEven(t *testing.T) {
	hex := []byte{1, 2, 3, 4, Terminator}
	compact := HexToCompact(hex)
	expected := []byte{0x20, 0x12, 0x34}
	if !bytes.Equal(compact, expected) {
		t.Errorf("HexToCompact(%v) = %x, want %x", hex, compact, expected)
	}
}

func TestHexToCompactLeafOdd(t *testing.T) {
	hex := []byte{1, 2, 3, Terminator}
	compact := HexToCompact(hex)
	expected := []byte{0x31, 0x23}
	if !bytes.Equal(compact, expected) {
		t.Errorf("HexToCompact(%v) = %x, want %x", hex, compact, expected)
	}
}

func TestHexToCompactExtensionEven(t *testing.T) {
	hex := []byte{1, 2, 3, 4}
	compact := HexToCompact(hex)
	expected := []byte{0x00, 0x12, 0x34}
	if !bytes.Equal(compact, expected) {
		t.Errorf("HexToCompact(%v) = %x, want %x", hex, compact, expected)
	}
}

func TestHexToCompactExtensionOdd(t *testing.T) {
	hex := []byte{1, 2, 3}
	compact := HexToCompact(hex)
	expected := []byte{0x11, 0x23}
	if !bytes.Equal(compact, expected) {
		t.Errorf("HexToCompact(%v) = %x, want %x", hex, compact, expected)
	}
}

func TestCompactToHexRoundtrip(t *testing.T) {
	tests := [][]byte{
		{1, 2, 3, 4, Terminator},
		{1, 2, 3, Terminator},
		{1, 2, 3, 4},
		{1, 2, 3},
		{0, Terminator},
		{0xf, 0xa, 0xb, Terminator},
		{},
	}
	for _, hex := range tests {
		compact := HexToCompact(hex)
		result := CompactToHex(compact)
		if !bytes.Equal(result, hex) {
			t.Errorf("CompactToHex(HexToCompact(%v)) = %v, want %v", hex, result, hex)
		}
	}
}

func TestFromKeyBytes(t *testing.T) {
	key := []byte{0x12, 0x34, 0x56}
	got := FromKeyBytes(key).Bytes()
	expected := []byte{1, 2, 3, 4, 5, 6, Terminator}
	if !bytes.Equal(got, expected) {
		t.Errorf("FromKeyBytes(%x) = %v, want %v", key, got, expected)
	}
}

func TestCommonPrefixLen(t *testing.T) {
	tests := []struct {
		a, b View
		want int
	}{
		{v(1, 2, 3), v(1, 2, 4), 2},
		{v(1, 2, 3), v(1, 2, 3), 3},
		{v(1, 2, 3), v(4, 5, 6), 0},
		{v(), v(1), 0},
		{v(1), v(), 0},
	}
	for _, tt := range tests {
		if got := CommonPrefixLen(tt.a, tt.b); got != tt.want {
			t.Errorf("CommonPrefixLen(%v, %v) = %d, want %d", tt.a.Bytes(), tt.b.Bytes(), got, tt.want)
		}
	}
}

func TestHasTerminator(t *testing.T) {
	if !v(1, 2, 3, Terminator).HasTerminator() {
		t.Error("expected HasTerminator to return true")
	}
	if v(1, 2, 3).HasTerminator() {
		t.Error("expected HasTerminator to return false")
	}
	if v().HasTerminator() {
		t.Error("expected HasTerminator to return false for empty")
	}
}

func TestWithoutTerminator(t *testing.T) {
	got := v(1, 2, 3, Terminator).WithoutTerminator().Bytes()
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("WithoutTerminator = %v, want [1 2 3]", got)
	}
}

func TestSliceAndSuffix(t *testing.T) {
	full := v(1, 2, 3, 4, 5)
	if got := full.Slice(1, 3).Bytes(); !bytes.Equal(got, []byte{2, 3}) {
		t.Errorf("Slice(1,3) = %v, want [2 3]", got)
	}
	if got := full.Suffix(3).Bytes(); !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("Suffix(3) = %v, want [4 5]", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal(v(1, 2, 3), v(1, 2, 3)) {
		t.Error("expected equal views to compare equal")
	}
	if Equal(v(1, 2, 3), v(1, 2)) {
		t.Error("expected different-length views to compare unequal")
	}
}

func TestConcat(t *testing.T) {
	got := Concat(v(1, 2), 9, v(3, 4)).Bytes()
	want := []byte{1, 2, 9, 3, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("Concat = %v, want %v", got, want)
	}
}
