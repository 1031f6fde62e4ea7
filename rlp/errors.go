package rlp

import "errors"

// Sentinel errors returned by the decoder. All are comparable with
// errors.Is; none carry a stack trace since they are expected outcomes for
// malformed input, not programming errors.
var (
	ErrExpectedString   = errors.New("rlp: expected string, got list")
	ErrExpectedList     = errors.New("rlp: expected list, got string")
	ErrCanonSize        = errors.New("rlp: non-canonical size for single-byte string")
	ErrCanonInt         = errors.New("rlp: non-canonical integer encoding")
	ErrNonCanonicalSize = errors.New("rlp: long-form header used for a size that fits short-form")
	ErrUint64Range      = errors.New("rlp: value overflows uint64")
	ErrEOL              = errors.New("rlp: list closed before its declared end")
	ErrValueTooLarge    = errors.New("rlp: unsupported or oversized value")
)
