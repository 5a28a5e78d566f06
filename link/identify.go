package link

import (
	"fmt"

	"github.com/rns-go/reticulum/identity"
)

// IdentifyMessage is the link-layer proof-of-identity exchange: once a link
// is ACTIVE, either side may reveal its long-term identity by signing the
// link_id together with the responder's ephemeral public key, binding
// the identity to this specific link instance (spec.md §9 "full Identify
// exchange"). It is a single direct Ed25519 signature over a raw byte
// string, not a certificate chain — Reticulum has no TLS-bound certified-key
// layer to verify against.
type IdentifyMessage struct {
	IdentityPub [64]byte // X25519(32) || Ed25519(32), the signer's long-term public keys
	Signature   [64]byte
}

// BuildIdentify signs linkID || ephPub with id's long-term Ed25519 key.
func BuildIdentify(id *identity.Identity, linkID [identity.HashLen]byte, ephPub [32]byte) *IdentifyMessage {
	signed := identifySignedContent(linkID, ephPub)
	sig := id.Sign(signed)
	msg := &IdentifyMessage{IdentityPub: id.PublicKeys()}
	copy(msg.Signature[:], sig)
	return msg
}

// Pack serializes the identify message to its wire form: pubkeys(64) || signature(64).
func (m *IdentifyMessage) Pack() []byte {
	out := make([]byte, 0, 128)
	out = append(out, m.IdentityPub[:]...)
	out = append(out, m.Signature[:]...)
	return out
}

// UnpackIdentify parses an identify payload.
func UnpackIdentify(payload []byte) (*IdentifyMessage, error) {
	if len(payload) != 128 {
		return nil, fmt.Errorf("unpack identify: payload is %d bytes, want 128", len(payload))
	}
	m := &IdentifyMessage{}
	copy(m.IdentityPub[:], payload[:64])
	copy(m.Signature[:], payload[64:])
	return m, nil
}

// Verify checks the identify message's signature against the claimed
// ephemeral public key and link_id, and returns the signer's identity hash
// on success.
func (m *IdentifyMessage) Verify(linkID [identity.HashLen]byte, ephPub [32]byte) ([identity.HashLen]byte, error) {
	var zero [identity.HashLen]byte
	edPub := m.IdentityPub[32:64]
	signed := identifySignedContent(linkID, ephPub)
	if !identity.Verify(edPub, signed, m.Signature[:]) {
		return zero, fmt.Errorf("verify identify: signature invalid")
	}
	return identity.HashFromPublicKeys(m.IdentityPub), nil
}

func identifySignedContent(linkID [identity.HashLen]byte, ephPub [32]byte) []byte {
	out := make([]byte, 0, identity.HashLen+32)
	out = append(out, linkID[:]...)
	out = append(out, ephPub[:]...)
	return out
}
