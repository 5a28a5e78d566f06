package link

import (
	"crypto/subtle"
	"fmt"

	"github.com/rns-go/reticulum/identity"
)

const (
	ephPubLen  = 32
	proofMacLen = 32
	proofLen   = ephPubLen + proofMacLen
)

// sessionInfo domain-separates the post-handshake transport keys from the
// handshake subkeys, so a PROOF-verification key can never double as a
// data-encryption key even though both are derived from the same ECDH
// output (spec.md §4.3 "derives session keys via HKDF with the link_id as salt").
const sessionInfo = "reticulum-link-session"

// subkeys derives, from the ECDH shared secret and the link_id salt, the
// four keys a link needs: the responder's and initiator's PROOF-HMAC
// subkeys, and the shared post-handshake (encKey, macKey) pair used by the
// encrypted-token construction for all ACTIVE-state traffic.
type subkeys struct {
	responderSubkey []byte
	initiatorSubkey []byte
	sessionEncKey   []byte
	sessionMacKey   []byte
}

func deriveSubkeys(shared [32]byte, linkID [identity.HashLen]byte) (*subkeys, error) {
	material, err := identity.HKDFExpand(shared[:], linkID[:], []byte("reticulum-link-handshake"), 64)
	if err != nil {
		return nil, fmt.Errorf("derive link subkeys: %w", err)
	}
	session, err := identity.HKDFExpand(shared[:], linkID[:], []byte(sessionInfo), 64)
	if err != nil {
		return nil, fmt.Errorf("derive link session keys: %w", err)
	}
	return &subkeys{
		responderSubkey: material[:32],
		initiatorSubkey: material[32:64],
		sessionEncKey:   session[:32],
		sessionMacKey:   session[32:],
	}, nil
}

// ComputeLinkID derives the deterministic link identifier both endpoints
// compute independently from the LINKREQUEST packet's hashable part
// (spec.md §4.3 step 1).
func ComputeLinkID(requestHashable []byte) [identity.HashLen]byte {
	return identity.Trunc16(requestHashable)
}

// InitiatorHandshake holds the initiator's ephemeral state between sending
// a LINKREQUEST and receiving the responder's PROOF.
type InitiatorHandshake struct {
	LinkID  [identity.HashLen]byte
	ephPriv [32]byte
	EphPub  [32]byte
}

// NewInitiatorHandshake creates a fresh ephemeral X25519 keypair for opening
// a link. linkID is not known until RequestPayload's bytes are hashed by the
// caller (the transport layer owns packet framing), so it is filled in by
// SetLinkID once the LINKREQUEST packet hash is known.
func NewInitiatorHandshake() (*InitiatorHandshake, error) {
	priv, pub, err := identity.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("new initiator handshake: %w", err)
	}
	return &InitiatorHandshake{ephPriv: priv, EphPub: pub}, nil
}

// SetLinkID records the link_id computed by the caller from the sent
// LINKREQUEST's hashable part.
func (h *InitiatorHandshake) SetLinkID(linkID [identity.HashLen]byte) {
	h.LinkID = linkID
}

// RequestPayload is the LINKREQUEST wire payload: ephemeral_pub(32).
func (h *InitiatorHandshake) RequestPayload() []byte {
	out := make([]byte, ephPubLen)
	copy(out, h.EphPub[:])
	return out
}

// CompleteFromProof verifies the responder's PROOF and, on success, returns
// the derived session keys and the initiator's own PROOF payload to send
// back (spec.md §4.3 step 3).
func (h *InitiatorHandshake) CompleteFromProof(responderProof []byte) (encKey, macKey, initiatorProof []byte, err error) {
	if len(responderProof) != proofLen {
		return nil, nil, nil, fmt.Errorf("complete handshake: responder proof is %d bytes, want %d", len(responderProof), proofLen)
	}
	var responderPub [32]byte
	copy(responderPub[:], responderProof[:ephPubLen])
	gotMac := responderProof[ephPubLen:]

	shared, err := identity.ECDH(h.ephPriv, responderPub)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("complete handshake: %w", err)
	}
	sk, err := deriveSubkeys(shared, h.LinkID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("complete handshake: %w", err)
	}

	wantMac := proofMAC(sk.responderSubkey, h.LinkID, responderPub)
	if !constantTimeEqual(gotMac, wantMac) {
		return nil, nil, nil, fmt.Errorf("complete handshake: responder proof HMAC invalid")
	}

	ownMac := proofMAC(sk.initiatorSubkey, h.LinkID, h.EphPub)
	proof := make([]byte, 0, proofLen)
	proof = append(proof, h.EphPub[:]...)
	proof = append(proof, ownMac...)

	return sk.sessionEncKey, sk.sessionMacKey, proof, nil
}

// ResponderHandshake holds the responder's ephemeral state between receiving
// a LINKREQUEST and verifying the initiator's reply PROOF.
type ResponderHandshake struct {
	LinkID       [identity.HashLen]byte
	InitiatorPub [32]byte
	ephPriv      [32]byte
	ephPub       [32]byte
	sk           *subkeys
}

// RespondToLinkRequest processes an inbound LINKREQUEST, deriving session
// keys and producing the responder's PROOF payload (spec.md §4.3 step 2).
func RespondToLinkRequest(linkID [identity.HashLen]byte, initiatorPub [32]byte) (*ResponderHandshake, []byte, error) {
	ephPriv, ephPub, err := identity.GenerateX25519()
	if err != nil {
		return nil, nil, fmt.Errorf("respond to link request: %w", err)
	}
	shared, err := identity.ECDH(ephPriv, initiatorPub)
	if err != nil {
		return nil, nil, fmt.Errorf("respond to link request: %w", err)
	}
	sk, err := deriveSubkeys(shared, linkID)
	if err != nil {
		return nil, nil, fmt.Errorf("respond to link request: %w", err)
	}

	mac := proofMAC(sk.responderSubkey, linkID, ephPub)
	proof := make([]byte, 0, proofLen)
	proof = append(proof, ephPub[:]...)
	proof = append(proof, mac...)

	rh := &ResponderHandshake{
		LinkID:       linkID,
		InitiatorPub: initiatorPub,
		ephPriv:      ephPriv,
		ephPub:       ephPub,
		sk:           sk,
	}
	return rh, proof, nil
}

// VerifyInitiatorProof checks the initiator's reply PROOF and returns the
// session keys on success (spec.md §4.3 step 4).
func (rh *ResponderHandshake) VerifyInitiatorProof(initiatorProof []byte) (encKey, macKey []byte, err error) {
	if len(initiatorProof) != proofLen {
		return nil, nil, fmt.Errorf("verify initiator proof: proof is %d bytes, want %d", len(initiatorProof), proofLen)
	}
	var claimedPub [32]byte
	copy(claimedPub[:], initiatorProof[:ephPubLen])
	gotMac := initiatorProof[ephPubLen:]

	if !constantTimeEqual(claimedPub[:], rh.InitiatorPub[:]) {
		return nil, nil, fmt.Errorf("verify initiator proof: ephemeral public key mismatch")
	}
	wantMac := proofMAC(rh.sk.initiatorSubkey, rh.LinkID, rh.InitiatorPub)
	if !constantTimeEqual(gotMac, wantMac) {
		return nil, nil, fmt.Errorf("verify initiator proof: HMAC invalid")
	}
	return rh.sk.sessionEncKey, rh.sk.sessionMacKey, nil
}

// EphPub returns the responder's ephemeral public key.
func (rh *ResponderHandshake) EphPub() [32]byte { return rh.ephPub }

func proofMAC(subkey []byte, linkID [identity.HashLen]byte, ephPub [32]byte) []byte {
	msg := make([]byte, 0, identity.HashLen+32)
	msg = append(msg, linkID[:]...)
	msg = append(msg, ephPub[:]...)
	return identity.HMACSHA256(subkey, msg)[:proofMacLen]
}

func constantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
