package rlp

import (
	"math/big"
	"reflect"
)

var bigIntType = reflect.TypeOf(big.Int{})

// EncodeToBytes returns the RLP encoding of val.
func EncodeToBytes(val interface{}) ([]byte, error) {
	return marshal(reflect.ValueOf(val))
}

// marshal dispatches on val's reflected kind and produces its RLP bytes.
func marshal(rv reflect.Value) ([]byte, error) {
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return emptyString(), nil
		}
		rv = rv.Elem()
	}

	if rv.Type() == bigIntType {
		return marshalBigInt(rv.Addr().Interface().(*big.Int)), nil
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return emptyString(), nil

	case reflect.Bool:
		if rv.Bool() {
			return []byte{0x01}, nil
		}
		return emptyString(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return marshalUint(rv.Uint()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return marshalUint(uint64(rv.Int())), nil

	case reflect.String:
		return marshalString([]byte(rv.String())), nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return marshalString(rv.Bytes()), nil
		}
		return marshalItems(rv)

	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			raw := make([]byte, rv.Len())
			for i := range raw {
				raw[i] = byte(rv.Index(i).Uint())
			}
			return marshalString(raw), nil
		}
		return marshalItems(rv)

	case reflect.Struct:
		return marshalFields(rv)

	default:
		return nil, ErrValueTooLarge
	}
}

func marshalUint(u uint64) []byte {
	if u == 0 {
		return emptyString()
	}
	if u < 0x80 {
		return []byte{byte(u)}
	}
	return marshalString(bigEndianMinimal(u))
}

func marshalBigInt(i *big.Int) []byte {
	if i.Sign() == 0 {
		return emptyString()
	}
	return marshalString(i.Bytes())
}

// marshalString wraps data in the RLP short/long string header, or returns
// it bare when it is itself a single byte below 0x80 (the self-encoding
// rule that keeps single small bytes canonical and reversible).
func marshalString(data []byte) []byte {
	if len(data) == 1 && data[0] < 0x80 {
		return data
	}
	return prefixed(0x80, 0xb7, data)
}

// marshalItems encodes each element of a slice/array and wraps the
// concatenated encodings in a list header.
func marshalItems(rv reflect.Value) ([]byte, error) {
	var body []byte
	for i := 0; i < rv.Len(); i++ {
		item, err := marshal(rv.Index(i))
		if err != nil {
			return nil, err
		}
		body = append(body, item...)
	}
	return WrapList(body), nil
}

// marshalFields encodes a struct's exported fields in declaration order
// and wraps them as an RLP list, mirroring marshalItems for slices.
func marshalFields(rv reflect.Value) ([]byte, error) {
	var body []byte
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		item, err := marshal(rv.Field(i))
		if err != nil {
			return nil, err
		}
		body = append(body, item...)
	}
	return WrapList(body), nil
}

// WrapList wraps an already RLP-encoded payload (the concatenation of its
// items' encodings) in a list header. Exported so callers that build a
// list's payload incrementally -- the trie node hasher concatenates a
// path encoding with a value or children encoding -- don't need to encode
// a throwaway Go slice just to get the header.
func WrapList(payload []byte) []byte {
	return prefixed(0xc0, 0xf7, payload)
}

// prefixed applies the RLP short/long header rule shared by strings and
// lists: a single header byte plus length for payloads up to 55 bytes,
// otherwise a header byte carrying the length-of-length followed by the
// big-endian length itself. shortBase is 0x80 for strings / 0xc0 for
// lists; longBase is 0xb7 / 0xf7 respectively (longBase == shortBase+55).
func prefixed(shortBase, longBase byte, payload []byte) []byte {
	n := len(payload)
	if n <= 55 {
		out := make([]byte, 1+n)
		out[0] = shortBase + byte(n)
		copy(out[1:], payload)
		return out
	}
	lenBytes := bigEndianMinimal(uint64(n))
	out := make([]byte, 1+len(lenBytes)+n)
	out[0] = longBase + byte(len(lenBytes))
	copy(out[1:], lenBytes)
	copy(out[1+len(lenBytes):], payload)
	return out
}

func emptyString() []byte { return []byte{0x80} }

// bigEndianMinimal renders u as big-endian bytes with no leading zero
// byte -- RLP's canonical integer form.
func bigEndianMinimal(u uint64) []byte {
	var buf [8]byte
	buf[0] = byte(u >> 56)
	buf[1] = byte(u >> 48)
	buf[2] = byte(u >> 40)
	buf[3] = byte(u >> 32)
	buf[4] = byte(u >> 24)
	buf[5] = byte(u >> 16)
	buf[6] = byte(u >> 8)
	buf[7] = byte(u)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}
