// Package cryptoutil provides the hashing and signature primitives shared
// across the shell: operation/block hashing (blake2b-256) and ed25519
// signature verification.
package cryptoutil

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the length in bytes of a blake2b-256 digest.
const HashSize = 32

// Hash256 returns the blake2b-256 digest of data.
func Hash256(data []byte) [HashSize]byte {
	return blake2b.Sum256(data)
}

// Hash returns the blake2b-256 digest of data as a lowercase hex string.
func Hash(data []byte) string {
	h := Hash256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw blake2b-256 digest of data.
func HashBytes(data []byte) []byte {
	h := Hash256(data)
	return h[:]
}
