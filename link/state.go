// Package link implements Reticulum's per-link state machine: the 4-way
// forward-secret handshake, post-handshake encrypted transport, keepalive
// scheduling, and ratchet rotation (spec.md §4.3).
package link

import "time"

// State is a link's position in its lifecycle (spec.md §4.3 state table).
type State uint8

const (
	StatePending State = iota
	StateHandshake
	StateActive
	StateStale
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateHandshake:
		return "HANDSHAKE"
	case StateActive:
		return "ACTIVE"
	case StateStale:
		return "STALE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// KeepaliveInterval is the silence duration after which an active link
// schedules a keepalive send (spec.md §4.3).
const KeepaliveInterval = 360 * time.Second

// StaleThreshold is how long without inbound traffic before an ACTIVE link
// becomes STALE: 2x the keepalive interval.
const StaleThreshold = 2 * KeepaliveInterval

// TeardownThreshold is how long without inbound traffic before a link is
// CLOSED, measured like StaleThreshold from the last inbound packet: a
// fixed duration rather than a configurable one, matching the other link
// timeouts declared alongside it.
const TeardownThreshold = 2 * StaleThreshold

// HandshakeTimeout bounds how long a link may sit in PENDING/HANDSHAKE.
const HandshakeTimeout = 30 * time.Second
