// Package announce implements Reticulum's signed destination advertisement:
// building, wire (de)serialization, and signature/hash-binding validation
// (spec.md §3, §6).
package announce

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/rns-go/reticulum/identity"
)

const (
	pubKeyLen    = 64
	randomLen    = 10
	ratchetLen   = 32
	signatureLen = 64
)

// Announce is the parsed form of an announce payload.
type Announce struct {
	DestHash   [identity.HashLen]byte
	PubKeys    [pubKeyLen]byte // X25519(32) || Ed25519(32)
	NameHash   [identity.NameHashLen]byte
	Random     [randomLen]byte
	HasRatchet bool
	RatchetPub [ratchetLen]byte
	Signature  [signatureLen]byte
	AppData    []byte
}

// X25519Pub returns the advertised X25519 public key.
func (a *Announce) X25519Pub() [32]byte {
	var out [32]byte
	copy(out[:], a.PubKeys[:32])
	return out
}

// Ed25519Pub returns the advertised Ed25519 public key.
func (a *Announce) Ed25519Pub() ed25519.PublicKey {
	return ed25519.PublicKey(a.PubKeys[32:64])
}

// Build constructs and signs an announce for id's destination (nameHash),
// optionally carrying a rotating ratchet public key (spec.md §4.3).
func Build(id *identity.Identity, nameHash [identity.NameHashLen]byte, ratchetPub *[ratchetLen]byte, appData []byte) (*Announce, error) {
	var random [randomLen]byte
	if _, err := rand.Read(random[:]); err != nil {
		return nil, fmt.Errorf("build announce: %w", err)
	}

	destHash := identity.DestinationHash(nameHash, id.Hash())

	a := &Announce{
		DestHash: destHash,
		PubKeys:  id.PublicKeys(),
		NameHash: nameHash,
		Random:   random,
		AppData:  append([]byte(nil), appData...),
	}
	if ratchetPub != nil {
		a.HasRatchet = true
		a.RatchetPub = *ratchetPub
	}

	sig := id.Sign(a.signedContent())
	copy(a.Signature[:], sig)
	return a, nil
}

// signedContent builds dest_hash(16) || pubkey(64) || name_hash(10) ||
// random_hash(10) || [ratchet_pub(32)] || app_data, the region covered by
// the announce's Ed25519 signature (spec.md §6).
func (a *Announce) signedContent() []byte {
	out := make([]byte, 0, identity.HashLen+pubKeyLen+identity.NameHashLen+randomLen+ratchetLen+len(a.AppData))
	out = append(out, a.DestHash[:]...)
	out = append(out, a.PubKeys[:]...)
	out = append(out, a.NameHash[:]...)
	out = append(out, a.Random[:]...)
	if a.HasRatchet {
		out = append(out, a.RatchetPub[:]...)
	}
	out = append(out, a.AppData...)
	return out
}

// Pack serializes the announce to its wire payload:
// pubkey(64) || name_hash(10) || random_hash(10) || [ratchet_pub(32)] ||
// signature(64) || app_data.
func (a *Announce) Pack() []byte {
	out := make([]byte, 0, pubKeyLen+identity.NameHashLen+randomLen+ratchetLen+signatureLen+len(a.AppData))
	out = append(out, a.PubKeys[:]...)
	out = append(out, a.NameHash[:]...)
	out = append(out, a.Random[:]...)
	if a.HasRatchet {
		out = append(out, a.RatchetPub[:]...)
	}
	out = append(out, a.Signature[:]...)
	out = append(out, a.AppData...)
	return out
}

// Unpack parses an announce payload addressed to destHash. hasRatchet must be
// known from the packet header's access-code flag, which the transport sets
// for announces carrying a ratchet key (the payload itself carries no
// ratchet-presence flag).
func Unpack(destHash [identity.HashLen]byte, payload []byte, hasRatchet bool) (*Announce, error) {
	minLen := pubKeyLen + identity.NameHashLen + randomLen + signatureLen
	if hasRatchet {
		minLen += ratchetLen
	}
	if len(payload) < minLen {
		return nil, fmt.Errorf("announce payload too short: %d bytes, need at least %d", len(payload), minLen)
	}

	a := &Announce{DestHash: destHash, HasRatchet: hasRatchet}
	off := 0
	copy(a.PubKeys[:], payload[off:off+pubKeyLen])
	off += pubKeyLen
	copy(a.NameHash[:], payload[off:off+identity.NameHashLen])
	off += identity.NameHashLen
	copy(a.Random[:], payload[off:off+randomLen])
	off += randomLen
	if hasRatchet {
		copy(a.RatchetPub[:], payload[off:off+ratchetLen])
		off += ratchetLen
	}
	copy(a.Signature[:], payload[off:off+signatureLen])
	off += signatureLen
	a.AppData = append([]byte(nil), payload[off:]...)

	return a, nil
}

// Validate checks the signature and the hash-binding invariant:
// dest_hash == trunc16(SHA256(name_hash || trunc16(SHA256(pubkey)))).
// Per spec.md §8 invariant 3, Validate succeeds iff both hold.
func (a *Announce) Validate() error {
	idHash := identity.HashFromPublicKeys(a.PubKeys)
	wantDestHash := identity.DestinationHash(a.NameHash, idHash)
	if wantDestHash != a.DestHash {
		return fmt.Errorf("announce hash binding failed: dest_hash does not match name_hash/identity")
	}

	if !identity.Verify(a.Ed25519Pub(), a.signedContent(), a.Signature[:]) {
		return fmt.Errorf("announce signature verification failed")
	}
	return nil
}

// RatchetPubBytes returns a's ratchet key as a plain slice, or nil if absent.
func (a *Announce) RatchetPubBytes() []byte {
	if !a.HasRatchet {
		return nil
	}
	out := make([]byte, ratchetLen)
	copy(out, a.RatchetPub[:])
	return out
}
