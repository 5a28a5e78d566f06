package transport

import (
	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/packet"
)

// Action is one instruction the host must carry out after feeding the
// engine an input. Actions from a single input call are an ordered batch
// that must be applied in order (spec.md §5).
type Action interface {
	isAction()
}

// SendOnInterface instructs the host to write bytes to the named interface.
type SendOnInterface struct {
	IfaceID string
	Bytes   []byte
}

func (SendOnInterface) isAction() {}

// DeliverLocal instructs the host to hand raw to the locally registered
// destination identified by DestHash. PacketType and Context are carried
// through so the host can dispatch link requests, proofs, and plain data
// to the right handler without re-parsing the frame. IfaceID names the
// interface the frame arrived on, so a link-layer reply (PROOF, keepalive)
// can be sent directly back to a peer the path table may not route to.
type DeliverLocal struct {
	DestHash   [identity.HashLen]byte
	DestType   packet.DestinationType
	PacketType packet.Type
	Context    byte
	Raw        []byte
	PacketHash [identity.HashLen]byte
	IfaceID    string
}

func (DeliverLocal) isAction() {}

// PathUpdated reports that the path table entry for DestHash changed.
type PathUpdated struct {
	DestHash [identity.HashLen]byte
	Hops     uint8
}

func (PathUpdated) isAction() {}

// DropReason classifies why a frame was dropped (spec.md §7).
type DropReason string

const (
	ReasonMalformed        DropReason = "malformed_packet"
	ReasonSignatureInvalid DropReason = "signature_invalid"
	ReasonHashMismatch     DropReason = "hash_mismatch"
	ReasonReplay           DropReason = "replay"
	ReasonRateLimited      DropReason = "rate_limited"
	ReasonNoPath           DropReason = "no_path"
	ReasonHopLimit         DropReason = "hop_limit"
)

// Drop reports that an inbound or outbound frame was dropped. Protocol-level
// drops (malformed, replay, bad signature) are never surfaced above the
// transport engine as errors — they are only counted/logged by the host via
// this action (spec.md §7).
type Drop struct {
	Reason     DropReason
	PacketHash [identity.HashLen]byte
}

func (Drop) isAction() {}

// InterfaceDown reports that the engine invalidated path entries and pending
// links referencing a deregistered interface.
type InterfaceDown struct {
	IfaceID string
}

func (InterfaceDown) isAction() {}
