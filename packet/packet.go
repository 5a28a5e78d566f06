// Package packet implements Reticulum's on-wire packet codec: the header,
// destination-hash addressing, context byte, and the hashable region used to
// derive a packet's identity (spec.md §4.1, §6).
//
// pack/unpack are pure and total: unpack never partially applies a malformed
// frame, and pack/unpack round-trip for any well-formed packet regardless of
// hop count, matching spec.md §8 invariant 2.
package packet

import (
	"crypto/sha256"
	"fmt"

	"github.com/rns-go/reticulum/identity"
)

// MTU is the maximum overall packet length in bytes (spec.md §3, §6).
const MTU = 500

// MaxEncryptedDataUnit is the maximum encrypted payload size. At 383 bytes
// it is below MTU minus the largest possible header (500 - 35 = 465).
const MaxEncryptedDataUnit = 383

// MaxHops is the forwarding ceiling; hop count 128 forwards, 129 is dropped
// (spec.md §8 boundary behavior).
const MaxHops = 128

const (
	destHashLen     = identity.HashLen // 16
	transportIDLen  = identity.HashLen // 16
	directHeaderLen = 1 + 1 + destHashLen + 1
	transportedHeaderLen = directHeaderLen + transportIDLen
)

// HeaderType selects whether a transport-id follows the destination hash.
type HeaderType uint8

const (
	HeaderDirect      HeaderType = 0
	HeaderTransported HeaderType = 1
)

// PropagationType distinguishes packets flooded by the pathfinder from
// ordinary point-to-point traffic.
type PropagationType uint8

const (
	PropagationBroadcast PropagationType = 0
	PropagationTransport PropagationType = 1
)

// DestinationType mirrors identity.Variant at the wire level.
type DestinationType uint8

const (
	DestSingle DestinationType = 0
	DestGroup  DestinationType = 1
	DestPlain  DestinationType = 2
	DestLink   DestinationType = 3
)

// Type is the packet's protocol purpose.
type Type uint8

const (
	TypeData        Type = 0
	TypeAnnounce    Type = 1
	TypeLinkRequest Type = 2
	TypeProof       Type = 3
)

// ErrMalformed reports a frame that failed to decode: too short, an
// oversized declared payload, or a reserved bit combination. Per spec.md §7
// these are dropped and counted, never surfaced above the transport engine.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string { return fmt.Sprintf("malformed packet: %s", e.Reason) }

// Packet is the fully decoded (or to-be-encoded) structured form of a wire packet.
type Packet struct {
	Header      HeaderType
	Propagation PropagationType
	DestType    DestinationType
	PacketType  Type
	AccessCode  bool
	Hops        uint8
	DestHash    [identity.HashLen]byte
	TransportID [identity.HashLen]byte // only meaningful when Header == HeaderTransported
	Context     byte
	Payload     []byte
}

// flagsByte packs the six flag fields into byte 0:
//
//	bit 7-6: header type      bit 5: propagation type
//	bit 4-3: destination type bit 2-1: packet type
//	bit 0: access-code flag
func (p *Packet) flagsByte() byte {
	var b byte
	b |= (byte(p.Header) & 0x3) << 6
	b |= (byte(p.Propagation) & 0x1) << 5
	b |= (byte(p.DestType) & 0x3) << 3
	b |= (byte(p.PacketType) & 0x3) << 1
	if p.AccessCode {
		b |= 0x1
	}
	return b
}

func unpackFlags(b byte) (HeaderType, PropagationType, DestinationType, Type, bool) {
	header := HeaderType((b >> 6) & 0x3)
	propagation := PropagationType((b >> 5) & 0x1)
	destType := DestinationType((b >> 3) & 0x3)
	packetType := Type((b >> 1) & 0x3)
	accessCode := b&0x1 != 0
	return header, propagation, destType, packetType, accessCode
}

// Pack serializes p to its wire form. It returns ErrMalformed if the
// resulting frame would exceed MTU or the header type is unrecognized.
func (p *Packet) Pack() ([]byte, error) {
	if p.Header != HeaderDirect && p.Header != HeaderTransported {
		return nil, &ErrMalformed{Reason: fmt.Sprintf("unknown header type %d", p.Header)}
	}

	headerLen := directHeaderLen
	if p.Header == HeaderTransported {
		headerLen = transportedHeaderLen
	}
	total := headerLen + len(p.Payload)
	if total > MTU {
		return nil, &ErrMalformed{Reason: fmt.Sprintf("packed length %d exceeds MTU %d", total, MTU)}
	}

	out := make([]byte, 0, total)
	out = append(out, p.flagsByte(), p.Hops)
	out = append(out, p.DestHash[:]...)
	if p.Header == HeaderTransported {
		out = append(out, p.TransportID[:]...)
	}
	out = append(out, p.Context)
	out = append(out, p.Payload...)
	return out, nil
}

// Unpack parses a wire frame into a Packet and computes its packet hash.
// It is total: any malformation yields ErrMalformed and no partial Packet.
func Unpack(frame []byte) (*Packet, [identity.HashLen]byte, error) {
	var zeroHash [identity.HashLen]byte
	if len(frame) < directHeaderLen {
		return nil, zeroHash, &ErrMalformed{Reason: fmt.Sprintf("frame too short for minimal header: %d bytes", len(frame))}
	}

	header, propagation, destType, packetType, accessCode := unpackFlags(frame[0])
	if header != HeaderDirect && header != HeaderTransported {
		return nil, zeroHash, &ErrMalformed{Reason: fmt.Sprintf("reserved header type %d", header)}
	}

	headerLen := directHeaderLen
	if header == HeaderTransported {
		headerLen = transportedHeaderLen
	}
	if len(frame) < headerLen {
		return nil, zeroHash, &ErrMalformed{Reason: fmt.Sprintf("frame too short for declared header type: %d bytes, need %d", len(frame), headerLen)}
	}
	if len(frame) > MTU {
		return nil, zeroHash, &ErrMalformed{Reason: fmt.Sprintf("frame length %d exceeds MTU %d", len(frame), MTU)}
	}

	p := &Packet{
		Header:      header,
		Propagation: propagation,
		DestType:    destType,
		PacketType:  packetType,
		AccessCode:  accessCode,
		Hops:        frame[1],
	}
	copy(p.DestHash[:], frame[2:2+destHashLen])

	off := 2 + destHashLen
	if header == HeaderTransported {
		copy(p.TransportID[:], frame[off:off+transportIDLen])
		off += transportIDLen
	}
	p.Context = frame[off]
	off++
	p.Payload = append([]byte(nil), frame[off:]...)

	if len(p.Payload) > MaxEncryptedDataUnit && packetType != TypeAnnounce {
		return nil, zeroHash, &ErrMalformed{Reason: fmt.Sprintf("payload %d bytes exceeds max encrypted data unit %d", len(p.Payload), MaxEncryptedDataUnit)}
	}

	return p, p.Hash(), nil
}

// Hash computes the packet's 16-byte identity: trunc16(SHA256(hashable part)),
// where the hashable part is the header with the hop-count byte zeroed,
// addressing, context, and payload. This makes the hash stable across
// forwarding (spec.md §4.1).
func (p *Packet) Hash() [identity.HashLen]byte {
	hashable := p.hashablePart()
	sum := sha256.Sum256(hashable)
	var out [identity.HashLen]byte
	copy(out[:], sum[:identity.HashLen])
	return out
}

func (p *Packet) hashablePart() []byte {
	headerLen := directHeaderLen
	if p.Header == HeaderTransported {
		headerLen = transportedHeaderLen
	}
	out := make([]byte, 0, headerLen+len(p.Payload))
	out = append(out, p.flagsByte(), 0) // hop count zeroed
	out = append(out, p.DestHash[:]...)
	if p.Header == HeaderTransported {
		out = append(out, p.TransportID[:]...)
	}
	out = append(out, p.Context)
	out = append(out, p.Payload...)
	return out
}

// WithIncrementedHop returns a copy of p with Hops+1, used when forwarding.
// The packet hash is unchanged because hop count is zeroed in the hashable part.
func (p *Packet) WithIncrementedHop() *Packet {
	next := *p
	next.Payload = append([]byte(nil), p.Payload...)
	next.Hops = p.Hops + 1
	return &next
}
