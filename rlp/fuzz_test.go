package rlp

import "testing"

// FuzzDecode checks that DecodeBytes never panics on arbitrary bytes,
// well-formed or not -- it must only ever return a value or an error.
func FuzzDecode(f *testing.F) {
	seeds := [][]byte{
		{0x80},                                                 // empty string
		{0x83, 0x64, 0x6f, 0x67},                               // "dog"
		{0x01},                                                 // uint(1)
		{0x7f},                                                 // uint(127)
		{0x82, 0x04, 0x00},                                     // uint(1024)
		{0xc0},                                                 // empty list
		{0xc8, 0x83, 0x63, 0x61, 0x74, 0x83, 0x64, 0x6f, 0x67}, // ["cat","dog"]
		{0xc5, 0x83, 0x63, 0x61, 0x74, 0x05},                   // struct{"cat", 5}
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		var s string
		_ = DecodeBytes(data, &s)

		var u uint64
		_ = DecodeBytes(data, &u)

		var b []byte
		_ = DecodeBytes(data, &b)

		var ss []string
		_ = DecodeBytes(data, &ss)
	})
}
