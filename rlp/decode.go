package rlp

import (
	"bytes"
	"io"
	"math/big"
	"reflect"
)

// DecodeBytes decodes an RLP-encoded byte slice into the value val points to.
func DecodeBytes(raw []byte, val interface{}) error {
	return NewStream(raw).unmarshalInto(reflect.ValueOf(val))
}

// Stream is a cursor over RLP-encoded bytes supporting both structured
// decoding (via DecodeBytes) and manual item-at-a-time reads (Bytes,
// Uint64, List/ListEnd) for callers that want to walk a node's children
// without reflecting into a Go struct.
type Stream struct {
	raw   []byte
	pos   int
	scope []int // exclusive end offsets of nested List() calls, innermost last
}

// NewStream wraps raw for reading; it does not copy the backing array.
func NewStream(raw []byte) *Stream {
	return &Stream{raw: raw}
}

// boundary returns the position the stream may not read past: the end of
// the innermost open list, or the end of the buffer at top level.
func (s *Stream) boundary() int {
	if n := len(s.scope); n > 0 {
		return s.scope[n-1]
	}
	return len(s.raw)
}

// header describes a decoded RLP item tag: its kind, the offset range of
// its payload within s.raw, and the total bytes (tag + payload) consumed.
type header struct {
	kind       Kind
	start, end int
	consumed   int
}

// readHeader parses the tag byte(s) at the stream's current position,
// enforcing RLP's canonical-length rules (no leading zero on a
// length-of-length, no long-form header for a payload that would fit the
// short form).
func (s *Stream) readHeader() (header, error) {
	lim := s.boundary()
	if s.pos >= lim {
		return header{}, io.EOF
	}
	tag := s.raw[s.pos]

	switch {
	case tag <= 0x7f:
		return header{kind: KindByte, start: s.pos, end: s.pos + 1, consumed: 1}, nil

	case tag <= 0xb7:
		size := int(tag - 0x80)
		start := s.pos + 1
		end := start + size
		if end > lim {
			return header{}, io.ErrUnexpectedEOF
		}
		if size == 1 && s.raw[start] <= 0x7f {
			return header{}, ErrCanonSize
		}
		return header{kind: KindString, start: start, end: end, consumed: 1 + size}, nil

	case tag <= 0xbf:
		return s.readLongHeader(tag-0xb7, KindString)

	case tag <= 0xf7:
		size := int(tag - 0xc0)
		start := s.pos + 1
		end := start + size
		if end > lim {
			return header{}, io.ErrUnexpectedEOF
		}
		return header{kind: KindList, start: start, end: end, consumed: 1 + size}, nil

	default:
		return s.readLongHeader(tag-0xf7, KindList)
	}
}

// readLongHeader parses the long-form (size >= 56) string/list tag: a
// length-of-length byte count followed by the big-endian payload length.
func (s *Stream) readLongHeader(lenOfLen byte, kind Kind) (header, error) {
	lim := s.boundary()
	if s.pos+1+int(lenOfLen) > lim {
		return header{}, io.ErrUnexpectedEOF
	}
	sizeBytes := s.raw[s.pos+1 : s.pos+1+int(lenOfLen)]
	if len(sizeBytes) > 0 && sizeBytes[0] == 0 {
		return header{}, ErrCanonInt
	}
	size := int(decodeBigEndian(sizeBytes))
	if size <= 55 {
		return header{}, ErrNonCanonicalSize
	}
	start := s.pos + 1 + int(lenOfLen)
	end := start + size
	if end > lim {
		return header{}, io.ErrUnexpectedEOF
	}
	return header{kind: kind, start: start, end: end, consumed: 1 + int(lenOfLen) + size}, nil
}

// takeItem reads one complete item (header and payload), advances the
// stream past it, and returns the payload slice. For a single self-encoded
// byte, the payload is that byte itself.
func (s *Stream) takeItem() (Kind, []byte, error) {
	h, err := s.readHeader()
	if err != nil {
		return 0, nil, err
	}
	payload := s.raw[h.start:h.end]
	s.pos += h.consumed
	return h.kind, payload, nil
}

// PeekKind reports the kind and payload length of the next item without
// consuming it, letting a caller branch on shape (e.g. a trie node's
// child reference being inline bytes vs. a sub-list) before deciding how
// to read it.
func (s *Stream) PeekKind() (Kind, uint64, error) {
	h, err := s.readHeader()
	if err != nil {
		return 0, 0, err
	}
	return h.kind, uint64(h.end - h.start), nil
}

// Bytes reads an RLP string (or self-encoded byte) and returns its payload.
func (s *Stream) Bytes() ([]byte, error) {
	kind, payload, err := s.takeItem()
	if err != nil {
		return nil, err
	}
	if kind == KindList {
		return nil, ErrExpectedString
	}
	return payload, nil
}

// List enters the scope of an RLP list, returning the byte length of its
// payload. Reads made after this call (Bytes, Uint64, nested List, ...)
// are bounded by the list's end until the matching ListEnd.
func (s *Stream) List() (uint64, error) {
	h, err := s.readHeader()
	if err != nil {
		return 0, err
	}
	if h.kind != KindList {
		return 0, ErrExpectedList
	}
	s.pos = h.start
	s.scope = append(s.scope, h.end)
	return uint64(h.end - h.start), nil
}

// ListEnd closes the innermost open List scope, failing if the stream
// position is not exactly at the list's recorded end (items under- or
// over-read).
func (s *Stream) ListEnd() error {
	n := len(s.scope)
	if n == 0 {
		return ErrExpectedList
	}
	end := s.scope[n-1]
	if s.pos != end {
		return ErrEOL
	}
	s.scope = s.scope[:n-1]
	return nil
}

// Uint64 reads an RLP-encoded unsigned integer, rejecting non-canonical
// (leading-zero) encodings.
func (s *Stream) Uint64() (uint64, error) {
	b, err := s.Bytes()
	if err != nil {
		return 0, err
	}
	switch {
	case len(b) == 0:
		return 0, nil
	case len(b) > 8:
		return 0, ErrUint64Range
	case len(b) > 1 && b[0] == 0:
		return 0, ErrCanonInt
	}
	return decodeBigEndian(b), nil
}

// BigInt reads an RLP-encoded arbitrary-precision unsigned integer.
func (s *Stream) BigInt() (*big.Int, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) > 1 && b[0] == 0 {
		return nil, ErrCanonInt
	}
	return new(big.Int).SetBytes(b), nil
}

func decodeBigEndian(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// unmarshalInto decodes the stream into *val, which must be a non-nil
// pointer -- the entry point DecodeBytes uses.
func (s *Stream) unmarshalInto(val reflect.Value) error {
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return ErrExpectedString
	}
	return s.unmarshal(val.Elem())
}

func (s *Stream) unmarshal(rv reflect.Value) error {
	if rv.Type() == bigIntType {
		bi, err := s.BigInt()
		if err != nil {
			return err
		}
		rv.Set(reflect.ValueOf(*bi))
		return nil
	}

	if rv.Kind() == reflect.Ptr {
		if rv.Type() == reflect.TypeOf((*big.Int)(nil)) {
			bi, err := s.BigInt()
			if err != nil {
				return err
			}
			rv.Set(reflect.ValueOf(bi))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return s.unmarshal(rv.Elem())
	}

	switch rv.Kind() {
	case reflect.Bool:
		return s.unmarshalBool(rv)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := s.Uint64()
		if err != nil {
			return err
		}
		rv.SetUint(u)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		u, err := s.Uint64()
		if err != nil {
			return err
		}
		rv.SetInt(int64(u))
		return nil
	case reflect.String:
		b, err := s.Bytes()
		if err != nil {
			return err
		}
		rv.SetString(string(b))
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return err
			}
			rv.SetBytes(bytes.Clone(b))
			return nil
		}
		return s.unmarshalList(rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b, err := s.Bytes()
			if err != nil {
				return err
			}
			for i := 0; i < rv.Len() && i < len(b); i++ {
				rv.Index(i).SetUint(uint64(b[i]))
			}
			return nil
		}
		return s.unmarshalList(rv)
	case reflect.Struct:
		return s.unmarshalStruct(rv)
	default:
		return ErrExpectedString
	}
}

func (s *Stream) unmarshalBool(rv reflect.Value) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	switch {
	case len(b) == 0, len(b) == 1 && b[0] == 0x00:
		rv.SetBool(false)
	case len(b) == 1 && b[0] == 0x01:
		rv.SetBool(true)
	default:
		return ErrCanonInt
	}
	return nil
}

func (s *Stream) unmarshalList(rv reflect.Value) error {
	if _, err := s.List(); err != nil {
		return err
	}
	end := s.scope[len(s.scope)-1]
	isSlice := rv.Kind() == reflect.Slice
	for i := 0; s.pos < end; i++ {
		if isSlice && i >= rv.Len() {
			rv.Set(reflect.Append(rv, reflect.New(rv.Type().Elem()).Elem()))
		}
		if i >= rv.Len() {
			// Fixed-size array with more encoded items than slots: skip
			// the remainder so ListEnd still sees a consistent position.
			if _, _, err := s.takeItem(); err != nil {
				return err
			}
			continue
		}
		if err := s.unmarshal(rv.Index(i)); err != nil {
			return err
		}
	}
	return s.ListEnd()
}

func (s *Stream) unmarshalStruct(rv reflect.Value) error {
	if _, err := s.List(); err != nil {
		return err
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		if err := s.unmarshal(rv.Field(i)); err != nil {
			return err
		}
	}
	return s.ListEnd()
}
