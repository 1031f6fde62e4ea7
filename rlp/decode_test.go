package rlp

import (
	"bytes"
	"math/big"
	"testing"
)

func TestDecodeScalars(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		cases := []struct {
			input []byte
			want  string
		}{
			{[]byte{0x80}, ""},
			{[]byte{0x83, 0x64, 0x6f, 0x67}, "dog"},
			{[]byte{0x61}, "a"},
		}
		for _, c := range cases {
			var got string
			if err := DecodeBytes(c.input, &got); err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		}
	})

	t.Run("uint64", func(t *testing.T) {
		cases := []struct {
			input []byte
			want  uint64
		}{
			{[]byte{0x80}, 0},
			{[]byte{0x01}, 1},
			{[]byte{0x7f}, 127},
			{[]byte{0x81, 0x80}, 128},
			{[]byte{0x82, 0x04, 0x00}, 1024},
		}
		for _, c := range cases {
			var got uint64
			if err := DecodeBytes(c.input, &got); err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("got %d, want %d", got, c.want)
			}
		}
	})

	t.Run("bigint", func(t *testing.T) {
		cases := []struct {
			input []byte
			want  int64
		}{
			{[]byte{0x80}, 0},
			{[]byte{0x01}, 1},
			{[]byte{0x7f}, 127},
			{[]byte{0x81, 0x80}, 128},
			{[]byte{0x82, 0x04, 0x00}, 1024},
		}
		for _, c := range cases {
			var got big.Int
			if err := DecodeBytes(c.input, &got); err != nil {
				t.Fatal(err)
			}
			if got.Cmp(big.NewInt(c.want)) != 0 {
				t.Fatalf("got %s, want %d", got.String(), c.want)
			}
		}
	})

	t.Run("bool", func(t *testing.T) {
		cases := []struct {
			input []byte
			want  bool
		}{
			{[]byte{0x80}, false},
			{[]byte{0x01}, true},
		}
		for _, c := range cases {
			var got bool
			if err := DecodeBytes(c.input, &got); err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		}
	})

	t.Run("byte slice", func(t *testing.T) {
		cases := []struct {
			input []byte
			want  []byte
		}{
			{[]byte{0x80}, []byte{}},
			{[]byte{0x00}, []byte{0x00}},
			{[]byte{0x7f}, []byte{0x7f}},
			{[]byte{0x81, 0x80}, []byte{0x80}},
			{[]byte{0x83, 0x01, 0x02, 0x03}, []byte{0x01, 0x02, 0x03}},
		}
		for _, c := range cases {
			var got []byte
			if err := DecodeBytes(c.input, &got); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, c.want) {
				t.Fatalf("got %x, want %x", got, c.want)
			}
		}
	})
}

func TestDecodeStructReadsFieldsInOrder(t *testing.T) {
	type pair struct {
		Name string
		Age  uint64
	}
	var got pair
	if err := DecodeBytes([]byte{0xc5, 0x83, 0x63, 0x61, 0x74, 0x05}, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "cat" || got.Age != 5 {
		t.Fatalf("got %+v, want {cat 5}", got)
	}
}

func TestDecodeSliceOfStrings(t *testing.T) {
	input := []byte{0xc8, 0x83, 0x63, 0x61, 0x74, 0x83, 0x64, 0x6f, 0x67} // ["cat","dog"]
	var got []string
	if err := DecodeBytes(input, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "cat" || got[1] != "dog" {
		t.Fatalf("got %v, want [cat dog]", got)
	}
}

func TestRoundTrip(t *testing.T) {
	roundTrip := func(t *testing.T, val, dst interface{}) {
		t.Helper()
		enc, err := EncodeToBytes(val)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := DecodeBytes(enc, dst); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}

	t.Run("strings", func(t *testing.T) {
		for _, s := range []string{"", "hello", "dog", "a"} {
			var dec string
			roundTrip(t, s, &dec)
			if dec != s {
				t.Fatalf("got %q, want %q", dec, s)
			}
		}
	})

	t.Run("uint64 range", func(t *testing.T) {
		for _, u := range []uint64{0, 1, 127, 128, 255, 256, 1024, 65535, 1<<32 - 1, 1<<64 - 1} {
			var dec uint64
			roundTrip(t, u, &dec)
			if dec != u {
				t.Fatalf("got %d, want %d", dec, u)
			}
		}
	})

	t.Run("bool", func(t *testing.T) {
		for _, b := range []bool{true, false} {
			var dec bool
			roundTrip(t, b, &dec)
			if dec != b {
				t.Fatalf("got %v, want %v", dec, b)
			}
		}
	})

	t.Run("byte slices", func(t *testing.T) {
		for _, b := range [][]byte{{}, {0x00}, {0x7f}, {0x80}, {0x01, 0x02, 0x03}} {
			var dec []byte
			roundTrip(t, b, &dec)
			if !bytes.Equal(dec, b) {
				t.Fatalf("got %x, want %x", dec, b)
			}
		}
	})

	t.Run("bigints", func(t *testing.T) {
		for _, n := range []int64{0, 1, 127, 128, 1024} {
			bi := big.NewInt(n)
			var dec big.Int
			roundTrip(t, bi, &dec)
			if dec.Cmp(bi) != 0 {
				t.Fatalf("got %s, want %s", dec.String(), bi.String())
			}
		}
	})

	t.Run("struct", func(t *testing.T) {
		type pair struct {
			Name string
			Age  uint64
		}
		original := pair{Name: "alice", Age: 30}
		var dec pair
		roundTrip(t, original, &dec)
		if dec != original {
			t.Fatalf("got %+v, want %+v", dec, original)
		}
	})

	t.Run("string slice", func(t *testing.T) {
		original := []string{"cat", "dog", "fish"}
		var dec []string
		roundTrip(t, original, &dec)
		if len(dec) != len(original) {
			t.Fatalf("length mismatch: got %d, want %d", len(dec), len(original))
		}
		for i := range dec {
			if dec[i] != original[i] {
				t.Fatalf("index %d: got %q, want %q", i, dec[i], original[i])
			}
		}
	})

	t.Run("long string", func(t *testing.T) {
		s := "Lorem ipsum dolor sit amet, consectetur adipisicing elit"
		var dec string
		roundTrip(t, s, &dec)
		if dec != s {
			t.Fatalf("got %q, want %q", dec, s)
		}
	})
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	t.Run("truncated string", func(t *testing.T) {
		// Claims 3 payload bytes but only 2 are present.
		var got string
		if err := DecodeBytes([]byte{0x83, 0x64, 0x6f}, &got); err == nil {
			t.Fatal("expected an error for truncated input")
		}
	})

	t.Run("long-form header for a short payload", func(t *testing.T) {
		// Long-string tag claiming length 1, which should have used short form.
		var got string
		if err := DecodeBytes([]byte{0xb8, 0x01, 0x61}, &got); err == nil {
			t.Fatal("expected an error for a non-canonical long header")
		}
	})

	t.Run("integer with a leading zero byte", func(t *testing.T) {
		var got uint64
		if err := DecodeBytes([]byte{0x82, 0x00, 0x80}, &got); err == nil {
			t.Fatal("expected an error for a non-canonical integer")
		}
	})
}

func TestStreamManualReads(t *testing.T) {
	t.Run("single string item", func(t *testing.T) {
		s := NewStream([]byte{0x83, 0x64, 0x6f, 0x67}) // "dog"
		kind, size, err := s.PeekKind()
		if err != nil {
			t.Fatal(err)
		}
		if kind != KindString || size != 3 {
			t.Fatalf("PeekKind = (%v, %d), want (KindString, 3)", kind, size)
		}
		b, err := s.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != "dog" {
			t.Fatalf("Bytes = %q, want %q", b, "dog")
		}
	})

	t.Run("list of two strings", func(t *testing.T) {
		s := NewStream([]byte{0xc8, 0x83, 0x63, 0x61, 0x74, 0x83, 0x64, 0x6f, 0x67}) // ["cat","dog"]
		if _, err := s.List(); err != nil {
			t.Fatal(err)
		}
		first, err := s.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != "cat" {
			t.Fatalf("first = %q, want %q", first, "cat")
		}
		second, err := s.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if string(second) != "dog" {
			t.Fatalf("second = %q, want %q", second, "dog")
		}
		if err := s.ListEnd(); err != nil {
			t.Fatal(err)
		}
	})
}
