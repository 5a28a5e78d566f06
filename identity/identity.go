package identity

import (
	"crypto/ed25519"
	"fmt"
)

// PersistedLen is the size in bytes of an Identity's persisted private
// material: X25519 private key (32) || Ed25519 seed (32), spec.md §6.
const PersistedLen = 64

// Identity bundles the two long-lived keypairs that give a Reticulum node
// a stable, location-independent identity (spec.md §3).
type Identity struct {
	x25519Priv [32]byte
	X25519Pub  [32]byte
	ed25519Seed [32]byte
	Ed25519Priv ed25519.PrivateKey
	Ed25519Pub  ed25519.PublicKey
}

// New generates a fresh Identity with new X25519 and Ed25519 keypairs.
func New() (*Identity, error) {
	xPriv, xPub, err := GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("new identity: %w", err)
	}
	seed := make([]byte, ed25519.SeedSize)
	edPriv, edPub, err := GenerateEd25519()
	if err != nil {
		return nil, fmt.Errorf("new identity: %w", err)
	}
	copy(seed, edPriv.Seed())

	id := &Identity{x25519Priv: xPriv, X25519Pub: xPub, Ed25519Priv: edPriv, Ed25519Pub: edPub}
	copy(id.ed25519Seed[:], seed)
	return id, nil
}

// Load reconstructs an Identity from its persisted 64-byte private material,
// the format an external collaborator is responsible for storing (spec.md §6).
func Load(persisted [PersistedLen]byte) (*Identity, error) {
	var xPriv [32]byte
	copy(xPriv[:], persisted[:32])
	xPub, err := derivePublic(xPriv)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	var seed [32]byte
	copy(seed[:], persisted[32:64])
	edPriv := ed25519.NewKeyFromSeed(seed[:])
	edPub := edPriv.Public().(ed25519.PublicKey)

	return &Identity{
		x25519Priv:  xPriv,
		X25519Pub:   xPub,
		ed25519Seed: seed,
		Ed25519Priv: edPriv,
		Ed25519Pub:  edPub,
	}, nil
}

// Persist serializes the identity's private material to its 64-byte wire form.
func (id *Identity) Persist() [PersistedLen]byte {
	var out [PersistedLen]byte
	copy(out[:32], id.x25519Priv[:])
	copy(out[32:], id.ed25519Seed[:])
	return out
}

// PublicKeys returns the 64-byte concatenation of both public keys
// (X25519 || Ed25519), the form hashed to produce an identity hash and
// carried as the `pubkey` field of an announce.
func (id *Identity) PublicKeys() [64]byte {
	var out [64]byte
	copy(out[:32], id.X25519Pub[:])
	copy(out[32:], id.Ed25519Pub[:])
	return out
}

// Hash returns the 16-byte truncated-SHA256 identity hash (spec.md §3).
func (id *Identity) Hash() [HashLen]byte {
	pub := id.PublicKeys()
	return Trunc16(pub[:])
}

// HashFromPublicKeys computes an identity hash from a remote identity's
// 64-byte concatenated public keys, without requiring its private material.
func HashFromPublicKeys(pubKeys [64]byte) [HashLen]byte {
	return Trunc16(pubKeys[:])
}

// ECDHWith performs X25519 key agreement between this identity's private key
// and a remote X25519 public key.
func (id *Identity) ECDHWith(remoteX25519Pub [32]byte) ([32]byte, error) {
	return ECDH(id.x25519Priv, remoteX25519Pub)
}

// Sign signs message with the identity's Ed25519 private key.
func (id *Identity) Sign(message []byte) []byte {
	return Sign(id.Ed25519Priv, message)
}

func derivePublic(priv [32]byte) ([32]byte, error) {
	var pub [32]byte
	out, err := ScalarBaseMult(priv)
	if err != nil {
		return pub, fmt.Errorf("derive x25519 public key: %w", err)
	}
	copy(pub[:], out)
	return pub, nil
}
