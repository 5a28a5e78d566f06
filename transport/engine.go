// Package transport implements Reticulum's stateless-at-the-byte-level,
// stateful-over-tables routing engine: the path table, announce/packet
// dedup set, pending-link bookkeeping, and per-interface rate limiting
// (spec.md §4.2). The engine performs no I/O; it consumes inputs and a
// monotonic clock and produces an ordered batch of Actions (spec.md §2, §5).
package transport

import (
	"time"

	"github.com/rns-go/reticulum/announce"
	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/packet"
)

// dedupCapacity bounds the replay-dedup LRU. Sized generously for a busy
// node; spec.md §4.2 calls for sizing "tuned to announce rate x TTL".
const dedupCapacity = 65536

// dedupTTL is the replay window of the single packet-hash dedup set, which
// covers announces and all other packets alike (spec.md §4.2 cites 24 hours
// for both).
const dedupTTL = 24 * time.Hour

// linkHandshakeTimeout retires a pending link slot that never completed its
// handshake (spec.md §4.2 "maintenance tick ... retires pending link slots
// older than the handshake timeout"), a 30-second deadline consistent with
// link.HandshakeTimeout.
const linkHandshakeTimeout = 30 * time.Second

type pendingLink struct {
	ifaceID   string
	createdAt time.Time
}

// Engine is the pure transport state machine. Exactly one owner (the
// driver) mutates it; concurrent mutation is never safe (spec.md §5).
type Engine struct {
	NodeHash [identity.HashLen]byte
	IsRouter bool

	interfaces map[string]*InterfaceInfo
	limiters   map[string]*interfaceLimiter

	localDestinations map[[identity.HashLen]byte]packet.DestinationType

	paths *pathTable
	dedup *dedupSet

	pendingLinks map[[identity.HashLen]byte]pendingLink
}

// New creates an Engine for a node identified by nodeHash. isRouter controls
// whether the engine forwards announces and routable traffic for
// destinations it does not own locally.
func New(nodeHash [identity.HashLen]byte, isRouter bool) *Engine {
	return &Engine{
		NodeHash:          nodeHash,
		IsRouter:          isRouter,
		interfaces:        make(map[string]*InterfaceInfo),
		limiters:          make(map[string]*interfaceLimiter),
		localDestinations: make(map[[identity.HashLen]byte]packet.DestinationType),
		paths:             newPathTable(),
		dedup:             newDedupSet(dedupCapacity, dedupTTL),
		pendingLinks:      make(map[[identity.HashLen]byte]pendingLink),
	}
}

// RegisterInterface adds or updates an interface's capability record.
func (e *Engine) RegisterInterface(id string, nominalBPS float64, mtu int, mode Mode) {
	e.interfaces[id] = &InterfaceInfo{ID: id, NominalBPS: nominalBPS, MTU: mtu, Mode: mode, Up: true}
	if _, ok := e.limiters[id]; !ok {
		e.limiters[id] = newInterfaceLimiter(nominalBPS)
	}
}

// DeregisterInterface removes an interface. Path entries and pending links
// referencing it are invalidated immediately (spec.md §5 "Cancellation":
// "the engine invalidates path entries and pending links referencing them
// within the next tick" — here, eagerly, which satisfies that bound).
func (e *Engine) DeregisterInterface(id string) []Action {
	delete(e.interfaces, id)
	delete(e.limiters, id)
	e.paths.invalidateInterface(id)
	for linkID, pl := range e.pendingLinks {
		if pl.ifaceID == id {
			delete(e.pendingLinks, linkID)
		}
	}
	return []Action{InterfaceDown{IfaceID: id}}
}

// RegisterDestination marks hash as locally owned. Idempotent: registering
// the same hash twice is a no-op, not a duplication (spec.md §8).
func (e *Engine) RegisterDestination(hash [identity.HashLen]byte, destType packet.DestinationType) {
	e.localDestinations[hash] = destType
}

// DeregisterDestination removes a local destination registration.
func (e *Engine) DeregisterDestination(hash [identity.HashLen]byte) {
	delete(e.localDestinations, hash)
}

// HasPath reports whether the path table has a route to dest.
func (e *Engine) HasPath(dest [identity.HashLen]byte) bool {
	_, ok := e.paths.get(dest)
	return ok
}

// HopsTo returns the known hop count to dest, if any.
func (e *Engine) HopsTo(dest [identity.HashLen]byte) (uint8, bool) {
	entry, ok := e.paths.get(dest)
	if !ok {
		return 0, false
	}
	return entry.Hops, true
}

// PathCount returns the number of live entries in the path table, for
// host-side observability (spec.md §1 "status reporting" is an external
// collaborator's concern; this is just the counter it reads).
func (e *Engine) PathCount() int {
	return len(e.paths.entries)
}

// InterfaceCount returns the number of currently registered interfaces.
func (e *Engine) InterfaceCount() int {
	return len(e.interfaces)
}

// NextHop returns the interface a packet to dest would currently be routed over.
func (e *Engine) NextHop(dest [identity.HashLen]byte) (string, bool) {
	entry, ok := e.paths.get(dest)
	if !ok {
		return "", false
	}
	return entry.NextHopInterface, true
}

// RegisterPendingLink records that a LINKREQUEST was sent/received on
// ifaceID for linkID, so the maintenance tick can retire it on timeout.
func (e *Engine) RegisterPendingLink(linkID [identity.HashLen]byte, ifaceID string, now time.Time) {
	e.pendingLinks[linkID] = pendingLink{ifaceID: ifaceID, createdAt: now}
}

// ResolvePendingLink clears bookkeeping for a link that completed its
// handshake (or was abandoned) before the timeout.
func (e *Engine) ResolvePendingLink(linkID [identity.HashLen]byte) {
	delete(e.pendingLinks, linkID)
}

func (e *Engine) ifaceDown(id string) bool {
	info, ok := e.interfaces[id]
	return !ok || !info.Up
}

// Inbound processes one inbound frame received on ifaceID at time now.
func (e *Engine) Inbound(frame []byte, ifaceID string, now time.Time) []Action {
	p, hash, err := packet.Unpack(frame)
	if err != nil {
		return []Action{Drop{Reason: ReasonMalformed}}
	}

	if e.dedup.seen(hash, now) {
		return []Action{Drop{Reason: ReasonReplay, PacketHash: hash}}
	}

	if p.PacketType == packet.TypeAnnounce {
		return e.handleAnnounce(p, hash, ifaceID, now)
	}
	return e.handleRoutable(p, hash, ifaceID, now)
}

func (e *Engine) handleAnnounce(p *packet.Packet, hash [identity.HashLen]byte, ifaceID string, now time.Time) []Action {
	a, err := announce.Unpack(p.DestHash, p.Payload, p.AccessCode)
	if err != nil {
		return []Action{Drop{Reason: ReasonMalformed, PacketHash: hash}}
	}

	if err := a.Validate(); err != nil {
		reason := ReasonSignatureInvalid
		idHash := identity.HashFromPublicKeys(a.PubKeys)
		if identity.DestinationHash(a.NameHash, idHash) != a.DestHash {
			reason = ReasonHashMismatch
		}
		return []Action{Drop{Reason: reason, PacketHash: hash}}
	}
	idHash := identity.HashFromPublicKeys(a.PubKeys)

	mode := ModeFull
	if info, ok := e.interfaces[ifaceID]; ok {
		mode = info.Mode
	}
	candidate := &PathEntry{
		DestHash:             p.DestHash,
		NextHopInterface:     ifaceID,
		NextHopNode:          idHash,
		Hops:                 p.Hops,
		Expiry:               now.Add(mode.PathTTL()),
		AnnouncePacketHash:   hash,
		ReceivedFromIdentity: idHash,
		announceRandom:       a.Random,
		announceArrival:      now,
	}

	var actions []Action
	if e.paths.offer(candidate, e.ifaceDown) {
		actions = append(actions, PathUpdated{DestHash: p.DestHash, Hops: p.Hops})
	}

	if e.IsRouter && p.Hops <= packet.MaxHops {
		forwarded := p.WithIncrementedHop()
		frameBytes, err := forwarded.Pack()
		if err == nil {
			for id, iface := range e.interfaces {
				if id == ifaceID || !iface.Up {
					continue
				}
				lim := e.limiters[id]
				if lim.admitAnnounce(now, len(frameBytes)) {
					actions = append(actions, SendOnInterface{IfaceID: id, Bytes: frameBytes})
				} else {
					lim.enqueue(queuedAnnounce{packetHash: hash, frame: frameBytes, hops: forwarded.Hops, arrival: now})
				}
			}
		}
	}
	return actions
}

func (e *Engine) handleRoutable(p *packet.Packet, hash [identity.HashLen]byte, ifaceID string, now time.Time) []Action {
	if _, ok := e.localDestinations[p.DestHash]; ok {
		return []Action{DeliverLocal{
			DestHash:   p.DestHash,
			DestType:   p.DestType,
			PacketType: p.PacketType,
			Context:    p.Context,
			Raw:        p.Payload,
			PacketHash: hash,
			IfaceID:    ifaceID,
		}}
	}

	if !e.IsRouter {
		return []Action{Drop{Reason: ReasonNoPath, PacketHash: hash}}
	}
	entry, ok := e.paths.get(p.DestHash)
	if !ok {
		return []Action{Drop{Reason: ReasonNoPath, PacketHash: hash}}
	}
	if p.Hops > packet.MaxHops {
		return []Action{Drop{Reason: ReasonHopLimit, PacketHash: hash}}
	}

	forwarded := p.WithIncrementedHop()
	forwarded.Header = packet.HeaderTransported
	forwarded.TransportID = e.NodeHash
	frameBytes, err := forwarded.Pack()
	if err != nil {
		return []Action{Drop{Reason: ReasonMalformed, PacketHash: hash}}
	}

	lim, ok := e.limiters[entry.NextHopInterface]
	if !ok || e.ifaceDown(entry.NextHopInterface) {
		return []Action{Drop{Reason: ReasonNoPath, PacketHash: hash}}
	}
	if !lim.admitForward(now, len(frameBytes)) {
		return []Action{Drop{Reason: ReasonRateLimited, PacketHash: hash}}
	}
	_ = ifaceID
	return []Action{SendOnInterface{IfaceID: entry.NextHopInterface, Bytes: frameBytes}}
}

// Outbound sends a locally-originated packet. If attachedIface is non-empty
// the packet is sent directly on that interface (e.g. a link-layer reply to
// the peer that's already known); otherwise the path table is consulted.
// NoPath is reported synchronously to the caller via the returned Drop
// action (spec.md §7).
func (e *Engine) Outbound(p *packet.Packet, attachedIface string, now time.Time) []Action {
	frame, err := p.Pack()
	if err != nil {
		return []Action{Drop{Reason: ReasonMalformed}}
	}
	if attachedIface != "" {
		if e.ifaceDown(attachedIface) {
			return []Action{Drop{Reason: ReasonNoPath}}
		}
		return []Action{SendOnInterface{IfaceID: attachedIface, Bytes: frame}}
	}
	entry, ok := e.paths.get(p.DestHash)
	if !ok || e.ifaceDown(entry.NextHopInterface) {
		return []Action{Drop{Reason: ReasonNoPath}}
	}
	_ = now
	return []Action{SendOnInterface{IfaceID: entry.NextHopInterface, Bytes: frame}}
}

// Announce serializes ann into p's payload and floods it on every up
// interface, subject to each interface's announce budget (spec.md §4.2
// step 5). Interfaces over budget get the announce enqueued instead.
func (e *Engine) Announce(ann *announce.Announce, p *packet.Packet, now time.Time) []Action {
	p.PacketType = packet.TypeAnnounce
	p.AccessCode = ann.HasRatchet
	p.Payload = ann.Pack()
	frame, err := p.Pack()
	if err != nil {
		return []Action{Drop{Reason: ReasonMalformed}}
	}
	hash := p.Hash()
	e.dedup.seen(hash, now) // originating node has "seen" its own announce

	var actions []Action
	for id, iface := range e.interfaces {
		if !iface.Up {
			continue
		}
		lim := e.limiters[id]
		if lim.admitAnnounce(now, len(frame)) {
			actions = append(actions, SendOnInterface{IfaceID: id, Bytes: frame})
		} else {
			lim.enqueue(queuedAnnounce{packetHash: hash, frame: frame, hops: p.Hops, arrival: now})
		}
	}
	return actions
}

// Tick runs periodic maintenance: path TTL expiry, dedup culling, announce
// queue draining, and pending-link handshake-timeout retirement
// (spec.md §4.2).
func (e *Engine) Tick(now time.Time) []Action {
	e.paths.expire(now)
	e.dedup.cull(now)

	var actions []Action
	for id, lim := range e.limiters {
		lim.ageOutQueue(now)
		for _, qa := range lim.drainQueue(now) {
			actions = append(actions, SendOnInterface{IfaceID: id, Bytes: qa.frame})
		}
	}

	for linkID, pl := range e.pendingLinks {
		if now.Sub(pl.createdAt) > linkHandshakeTimeout {
			delete(e.pendingLinks, linkID)
		}
	}

	return actions
}
