package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rns-go/reticulum/announce"
	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/packet"
)

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.New()
	require.NoError(t, err)
	return id
}

func announcePacket(t *testing.T, id *identity.Identity, nameHash [identity.NameHashLen]byte, hops uint8) *packet.Packet {
	t.Helper()
	a, err := announce.Build(id, nameHash, nil, nil)
	require.NoError(t, err)
	return &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestSingle,
		PacketType: packet.TypeAnnounce,
		AccessCode: a.HasRatchet,
		Hops:       hops,
		DestHash:   a.DestHash,
		Context:    0,
		Payload:    a.Pack(),
	}
}

func TestEngineAdoptsPathFromValidAnnounce(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	e.RegisterInterface("eth0", 1_000_000, 500, ModeFull)

	id := mustIdentity(t)
	var nameHash [identity.NameHashLen]byte
	p := announcePacket(t, id, nameHash, 3)
	frame, err := p.Pack()
	require.NoError(t, err)

	actions := e.Inbound(frame, "eth0", time.Unix(0, 0))
	var sawUpdate bool
	for _, a := range actions {
		if pu, ok := a.(PathUpdated); ok {
			require.Equal(t, p.DestHash, pu.DestHash)
			require.Equal(t, uint8(3), pu.Hops)
			sawUpdate = true
		}
	}
	require.True(t, sawUpdate)
	require.True(t, e.HasPath(p.DestHash))
	hops, ok := e.HopsTo(p.DestHash)
	require.True(t, ok)
	require.Equal(t, uint8(3), hops)
}

func TestEngineRejectsTamperedAnnounceSignature(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	e.RegisterInterface("eth0", 1_000_000, 500, ModeFull)

	id := mustIdentity(t)
	var nameHash [identity.NameHashLen]byte
	p := announcePacket(t, id, nameHash, 1)
	p.Payload[len(p.Payload)-1] ^= 0xFF // flip a signature byte
	frame, err := p.Pack()
	require.NoError(t, err)

	actions := e.Inbound(frame, "eth0", time.Unix(0, 0))
	require.Len(t, actions, 1)
	drop, ok := actions[0].(Drop)
	require.True(t, ok)
	require.Equal(t, ReasonSignatureInvalid, drop.Reason)
	require.False(t, e.HasPath(p.DestHash))
}

func TestEngineDropsReplayedPacket(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	e.RegisterInterface("eth0", 1_000_000, 500, ModeFull)

	id := mustIdentity(t)
	var nameHash [identity.NameHashLen]byte
	p := announcePacket(t, id, nameHash, 1)
	frame, err := p.Pack()
	require.NoError(t, err)

	now := time.Unix(0, 0)
	_ = e.Inbound(frame, "eth0", now)
	actions := e.Inbound(frame, "eth0", now.Add(time.Second))
	require.Len(t, actions, 1)
	drop, ok := actions[0].(Drop)
	require.True(t, ok)
	require.Equal(t, ReasonReplay, drop.Reason)
}

func TestEngineDropsDistinctHashesIndependently(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	e.RegisterInterface("eth0", 1_000_000, 500, ModeFull)

	now := time.Unix(0, 0)
	for i := 0; i < 20; i++ {
		id := mustIdentity(t)
		var nameHash [identity.NameHashLen]byte
		nameHash[0] = byte(i)
		p := announcePacket(t, id, nameHash, 1)
		frame, err := p.Pack()
		require.NoError(t, err)
		actions := e.Inbound(frame, "eth0", now)
		for _, a := range actions {
			if d, ok := a.(Drop); ok {
				require.NotEqual(t, ReasonReplay, d.Reason, "distinct announce %d incorrectly treated as replay", i)
			}
		}
	}
}

func TestEngineHopLimitBoundary(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	e.RegisterInterface("a", 1_000_000, 500, ModeFull)
	e.RegisterInterface("b", 1_000_000, 500, ModeFull)

	destHash := [identity.HashLen]byte{0x01}
	e.paths.entries[destHash] = &PathEntry{
		DestHash:         destHash,
		NextHopInterface: "b",
		Hops:             1,
		Expiry:           time.Unix(0, 0).Add(time.Hour),
	}

	forwardable := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestSingle,
		PacketType: packet.TypeData,
		Hops:       packet.MaxHops,
		DestHash:   destHash,
		Context:    0,
		Payload:    []byte("hello"),
	}
	frame, err := forwardable.Pack()
	require.NoError(t, err)
	actions := e.Inbound(frame, "a", time.Unix(0, 0))
	var sawSend bool
	for _, a := range actions {
		if _, ok := a.(SendOnInterface); ok {
			sawSend = true
		}
	}
	require.True(t, sawSend, "packet at exactly MaxHops must still forward")

	tooFar := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestSingle,
		PacketType: packet.TypeData,
		Hops:       packet.MaxHops + 1,
		DestHash:   destHash,
		Context:    0,
		Payload:    []byte("hello again"), // distinct hash, so dedup does not claim it first
	}
	frame2, err := tooFar.Pack()
	require.NoError(t, err)
	actions2 := e.Inbound(frame2, "a", time.Unix(1, 0))
	require.Len(t, actions2, 1)
	drop, ok := actions2[0].(Drop)
	require.True(t, ok)
	require.Equal(t, ReasonHopLimit, drop.Reason)
}

func TestEngineDeregisterInterfaceInvalidatesPath(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	e.RegisterInterface("eth0", 1_000_000, 500, ModeFull)

	destHash := [identity.HashLen]byte{0x02}
	e.paths.entries[destHash] = &PathEntry{
		DestHash:         destHash,
		NextHopInterface: "eth0",
		Hops:             1,
		Expiry:           time.Unix(0, 0).Add(time.Hour),
	}
	require.True(t, e.HasPath(destHash))

	actions := e.DeregisterInterface("eth0")
	require.Len(t, actions, 1)
	_, ok := actions[0].(InterfaceDown)
	require.True(t, ok)
	require.False(t, e.HasPath(destHash))
}

func TestEngineTickExpiresPaths(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	destHash := [identity.HashLen]byte{0x03}
	e.paths.entries[destHash] = &PathEntry{
		DestHash:         destHash,
		NextHopInterface: "eth0",
		Hops:             1,
		Expiry:           time.Unix(0, 0).Add(time.Minute),
	}
	e.Tick(time.Unix(0, 0).Add(2 * time.Minute))
	require.False(t, e.HasPath(destHash))
}

func TestEngineOutboundNoPathDrops(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	p := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestSingle,
		PacketType: packet.TypeData,
		DestHash:   [identity.HashLen]byte{0x04},
		Payload:    []byte("x"),
	}
	actions := e.Outbound(p, "", time.Unix(0, 0))
	require.Len(t, actions, 1)
	drop, ok := actions[0].(Drop)
	require.True(t, ok)
	require.Equal(t, ReasonNoPath, drop.Reason)
}

func TestEnginePendingLinkRetiresOnTimeout(t *testing.T) {
	e := New([identity.HashLen]byte{0xEE}, true)
	linkID := [identity.HashLen]byte{0x05}
	e.RegisterPendingLink(linkID, "eth0", time.Unix(0, 0))
	require.Contains(t, e.pendingLinks, linkID)

	e.Tick(time.Unix(0, 0).Add(linkHandshakeTimeout + time.Second))
	require.NotContains(t, e.pendingLinks, linkID)
}
