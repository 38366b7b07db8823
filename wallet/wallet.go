package wallet

import (
	"fmt"

	"github.com/dkuehr/tezedge/cryptoutil"
)

// Identity holds the node's own key pair: the persistent ed25519 identity
// used to seed bootstrap interval steps (bootstrap.OwnIdentity) and to sign
// operations this node injects locally.
type Identity struct {
	priv cryptoutil.PrivateKey
	pub  cryptoutil.PublicKey
}

// New wraps an existing private key as an Identity.
func New(priv cryptoutil.PrivateKey) *Identity {
	return &Identity{priv: priv, pub: priv.Public()}
}

// Generate creates an Identity with a freshly generated key pair.
func Generate() (*Identity, error) {
	priv, _, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// LoadOrGenerate opens the encrypted keystore at path, creating a fresh
// identity and saving it there if none exists yet.
func LoadOrGenerate(path, password string) (*Identity, error) {
	priv, err := LoadKey(path, password)
	if err == nil {
		return New(priv), nil
	}
	id, err := Generate()
	if err != nil {
		return nil, fmt.Errorf("generate node identity: %w", err)
	}
	if err := SaveKey(path, password, id.priv); err != nil {
		return nil, fmt.Errorf("save node identity: %w", err)
	}
	return id, nil
}

// PrivKey returns the raw private key (handle with care).
func (id *Identity) PrivKey() cryptoutil.PrivateKey {
	return id.priv
}

// PubKey returns the ed25519 public key.
func (id *Identity) PubKey() cryptoutil.PublicKey {
	return id.pub
}

// PublicKeyHash returns this node's condensed identity, the value
// bootstrap.OwnIdentity carries for interval-seed derivation.
func (id *Identity) PublicKeyHash() cryptoutil.PublicKeyHash {
	return id.pub.Hash()
}

// Sign signs arbitrary bytes with the node's own key, used when this node
// needs to produce a self-authenticated payload (e.g. a locally-injected
// operation in tests).
func (id *Identity) Sign(data []byte) string {
	return cryptoutil.Sign(id.priv, data)
}
