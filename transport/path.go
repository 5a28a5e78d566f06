package transport

import (
	"time"

	"github.com/rns-go/reticulum/identity"
)

// PathEntry is one row of the path table (spec.md §3).
type PathEntry struct {
	DestHash             [identity.HashLen]byte
	NextHopInterface     string
	NextHopNode          [identity.HashLen]byte
	Hops                 uint8
	Expiry               time.Time
	AnnouncePacketHash    [identity.HashLen]byte
	ReceivedFromIdentity [identity.HashLen]byte
	// announceArrival orders the "newer announce" comparison used by the
	// replacement policy when hop counts tie; announceRandom is recorded
	// but not compared.
	announceRandom  [10]byte
	announceArrival time.Time
}

// pathTable owns the destination -> route mapping. Exactly one owner (the
// engine's caller, the driver) ever mutates it (spec.md §5).
type pathTable struct {
	entries map[[identity.HashLen]byte]*PathEntry
}

func newPathTable() *pathTable {
	return &pathTable{entries: make(map[[identity.HashLen]byte]*PathEntry)}
}

func (pt *pathTable) get(dest [identity.HashLen]byte) (*PathEntry, bool) {
	e, ok := pt.entries[dest]
	return e, ok
}

// offer applies the announce-replacement policy from spec.md §4.2:
// adopt iff (a) no existing entry, (b) strictly fewer hops, (c) equal hops
// and a strictly later announce arrival time, or (d) the existing
// entry's interface is down. Returns true if the candidate was adopted.
func (pt *pathTable) offer(candidate *PathEntry, ifaceDown func(string) bool) bool {
	existing, ok := pt.entries[candidate.DestHash]
	if !ok {
		pt.entries[candidate.DestHash] = candidate
		return true
	}
	if candidate.Hops < existing.Hops {
		pt.entries[candidate.DestHash] = candidate
		return true
	}
	if candidate.Hops == existing.Hops {
		// "keep older unless explicitly newer nonce" (spec.md §9 Open Question,
		// resolved per spec.md's own guidance): only replace when the
		// candidate's announce arrival is strictly newer. Equal hops from a
		// different interface never replaces solely on that basis, unless the
		// existing entry's interface has since gone down.
		if candidate.announceArrival.After(existing.announceArrival) {
			pt.entries[candidate.DestHash] = candidate
			return true
		}
	}
	if ifaceDown != nil && ifaceDown(existing.NextHopInterface) {
		pt.entries[candidate.DestHash] = candidate
		return true
	}
	return false
}

// expire removes entries past their TTL as of now, returning their destination hashes.
func (pt *pathTable) expire(now time.Time) []([identity.HashLen]byte) {
	var expired []([identity.HashLen]byte)
	for hash, entry := range pt.entries {
		if now.After(entry.Expiry) {
			expired = append(expired, hash)
			delete(pt.entries, hash)
		}
	}
	return expired
}

// invalidateInterface drops every path entry routed through ifaceID (called
// when an interface is deregistered, spec.md §5 "Cancellation").
func (pt *pathTable) invalidateInterface(ifaceID string) {
	for hash, entry := range pt.entries {
		if entry.NextHopInterface == ifaceID {
			delete(pt.entries, hash)
		}
	}
}
