package link

import (
	"encoding/binary"
	"fmt"
	"time"

	"filippo.io/edwards25519"

	"github.com/rns-go/reticulum/identity"
)

// DefaultRatchetPeriod is how long a ratchet epoch key remains current
// before rotating (spec.md §4.3 "rotation cadence ... configured by the
// responder"); one hour is a reasonable default for a destination that
// wants forward secrecy without excessive key churn.
const DefaultRatchetPeriod = time.Hour

// RatchetRetention bounds how many past epochs a responder still accepts a
// link request against, so a slow-travelling announce doesn't strand an
// initiator (spec.md §4.3 "retention window ... configured by the responder").
const RatchetRetention = 3

// Ratchet derives a deterministic sequence of ephemeral X25519 keypairs from
// a long-lived chain secret, one per time epoch: a per-period nonce is
// hashed together with the chain secret and clamped into a valid scalar,
// the same clamping used for per-period Ed25519 key blinding elsewhere.
// The derived scalar here *is* the X25519 private key directly — there is
// no long-term key being blinded, only a chain secret being ratcheted
// forward.
type Ratchet struct {
	chainSecret []byte
	period      time.Duration
}

// NewRatchet creates a ratchet seeded by chainSecret (itself derived once,
// e.g. from the destination identity's ECDH private key via HKDF, by the
// caller) with the given rotation period.
func NewRatchet(chainSecret []byte, period time.Duration) *Ratchet {
	if period <= 0 {
		period = DefaultRatchetPeriod
	}
	return &Ratchet{chainSecret: append([]byte(nil), chainSecret...), period: period}
}

// Epoch returns the period index covering t.
func (r *Ratchet) Epoch(t time.Time) int64 {
	return t.Unix() / int64(r.period.Seconds())
}

// KeyForEpoch deterministically derives the X25519 keypair for a given epoch
// number. Both the responder (rotating its advertised key) and an initiator
// within the retention window (deriving the same key from an announce it
// already has) compute identical results.
func (r *Ratchet) KeyForEpoch(epoch int64) (priv, pub [32]byte, err error) {
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, uint64(epoch))

	scalarSeed, err := identity.HKDFExpand(r.chainSecret, nonce, []byte("reticulum-ratchet-epoch"), 32)
	if err != nil {
		return priv, pub, fmt.Errorf("derive ratchet epoch key: %w", err)
	}

	// SetBytesWithClamping applies the standard X25519/Ed25519 scalar
	// clamping to an arbitrary 32-byte seed, giving a valid Curve25519
	// private scalar without needing a full Edwards point operation.
	scalar, err := new(edwards25519.Scalar).SetBytesWithClamping(scalarSeed)
	if err != nil {
		return priv, pub, fmt.Errorf("derive ratchet epoch key: clamp scalar: %w", err)
	}
	copy(priv[:], scalar.Bytes())

	pubBytes, err := identity.ScalarBaseMult(priv)
	if err != nil {
		return priv, pub, fmt.Errorf("derive ratchet epoch key: %w", err)
	}
	copy(pub[:], pubBytes)
	return priv, pub, nil
}

// CurrentKey returns the keypair for the epoch covering t.
func (r *Ratchet) CurrentKey(t time.Time) (priv, pub [32]byte, err error) {
	return r.KeyForEpoch(r.Epoch(t))
}

// CurrentPub returns only the public half of CurrentKey, the value
// advertised in an announce's ratchet_pub field.
func (r *Ratchet) CurrentPub(t time.Time) ([32]byte, error) {
	_, pub, err := r.CurrentKey(t)
	return pub, err
}

// WithinRetention reports whether epoch is still an acceptable ratchet key
// for an initiator opening a link against time t.
func (r *Ratchet) WithinRetention(epoch int64, t time.Time) bool {
	current := r.Epoch(t)
	return epoch <= current && current-epoch < RatchetRetention
}
