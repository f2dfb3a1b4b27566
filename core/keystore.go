package core

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Keystore is the signing-service collaborator: a minimal surface for
// signing opaque byte strings. It is given just enough surface here for
// the Chain and zome call dispatcher to call through.
type Keystore interface {
	// Sign returns the ed25519 signature over data using the keystore's
	// signing key.
	Sign(ctx context.Context, data []byte) ([]byte, error)
	// PublicKey returns the raw ed25519 public key bytes.
	PublicKey() ed25519.PublicKey
}

// InMemoryKeystore is an ed25519 keypair held in process memory. It is
// the default used by tests and by single-node instances that don't
// delegate to an external signer.
type InMemoryKeystore struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewInMemoryKeystore generates a fresh ed25519 keypair.
func NewInMemoryKeystore() (*InMemoryKeystore, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, NewError(KindLifecycle, "new_keystore", err)
	}
	return &InMemoryKeystore{pub: pub, priv: priv}, nil
}

// NewInMemoryKeystoreFromSeed derives a keypair from a 32-byte ed25519
// seed, for a persisted-key instance restarting with the same agent
// identity.
func NewInMemoryKeystoreFromSeed(seed []byte) (*InMemoryKeystore, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, NewError(KindLifecycle, "new_keystore_from_seed", fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed)))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &InMemoryKeystore{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

// Sign implements Keystore.
func (k *InMemoryKeystore) Sign(_ context.Context, data []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, data), nil
}

// PublicKey implements Keystore.
func (k *InMemoryKeystore) PublicKey() ed25519.PublicKey { return k.pub }

// AgentAddress derives the Address an agent identifies with from its
// public key: the address of an AgentId entry carrying that key.
func AgentAddress(pub ed25519.PublicKey) (Address, error) {
	e := Entry{Kind: EntryAgentID, AgentPublicKey: append([]byte(nil), pub...)}
	return e.Address()
}
