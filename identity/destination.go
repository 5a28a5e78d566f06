package identity

import "strings"

// Variant is a destination's addressing/encryption mode (spec.md §3).
type Variant uint8

const (
	// Single addresses one identity; encrypted via ECDH to the recipient's X25519 key.
	Single Variant = iota
	// Group addresses a named group; encrypted with a pre-shared symmetric key.
	Group
	// Plain is unencrypted.
	Plain
	// Link addresses an endpoint inside an established Link; encrypted with the link session key.
	Link
)

// NameHash returns the 10-byte truncated hash of a dotted aspect path, e.g. "chat.alpha".
func NameHash(aspects ...string) [NameHashLen]byte {
	return Trunc10([]byte(strings.Join(aspects, ".")))
}

// DestinationHash computes dest_hash = trunc16(name_hash || identity_hash),
// spec.md §3's destination-hash invariant: deterministic and 16 bytes for
// any valid identity and aspect path.
func DestinationHash(nameHash [NameHashLen]byte, identityHash [HashLen]byte) [HashLen]byte {
	return Trunc16(nameHash[:], identityHash[:])
}

// Hash computes the destination hash for (identity, aspects) directly.
func Hash(id *Identity, aspects ...string) [HashLen]byte {
	nh := NameHash(aspects...)
	return DestinationHash(nh, id.Hash())
}
