package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes.
type PublicKey []byte

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Hash returns the blake2b-256 digest of the public key, the basis for a
// PublicKeyHash (the node/delegate identity used throughout the shell).
func (pub PublicKey) Hash() PublicKeyHash {
	h := HashBytes(pub)
	var out PublicKeyHash
	copy(out[:], h[:len(out)])
	return out
}

// Hex returns the full hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}

// PublicKeyHash is a 20-byte condensed identity, the Tezos-style "tz"
// address derived from a public key. Used to identify peers and delegates
// without carrying the full public key around.
type PublicKeyHash [20]byte

// String returns the hex encoding of the hash.
func (h PublicKeyHash) String() string {
	return hex.EncodeToString(h[:])
}

// Less reports whether h sorts before other in lexicographic byte order.
func (h PublicKeyHash) Less(other PublicKeyHash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// PKHFromHex decodes a hex-encoded public key hash.
func PKHFromHex(s string) (PublicKeyHash, error) {
	var out PublicKeyHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid public key hash hex: %w", err)
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("public key hash must be %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}
