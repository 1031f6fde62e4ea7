// Package crypto provides the single hash primitive the trie engine needs:
// Keccak-256, used for node references and Merkle roots.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/xPOURY4/monad-sub013/types"
)

// Keccak256 calculates the Keccak-256 hash of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}
