package cryptoutil

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sign signs data with the private key and returns a hex-encoded signature.
func Sign(priv PrivateKey, data []byte) string {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	return hex.EncodeToString(sig)
}

// Verify checks a hex-encoded signature against data using the public key.
// Keys that aren't ed25519-sized are reported as ErrUnsupportedPublicKey
// rather than failing verification outright, since callers (the prechecker's
// fast path) need to distinguish "can't verify this key at all" from "this
// signature doesn't check out".
func Verify(pub PublicKey, data []byte, sigHex string) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrUnsupportedPublicKey
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// ErrUnsupportedPublicKey is returned by Verify when the public key is not
// an ed25519 key (its length is not ed25519.PublicKeySize). The prechecker
// degrades such operations to ProtocolNeeded rather than rejecting them
// outright.
var ErrUnsupportedPublicKey = errors.New("unsupported public key")
