package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/link"
	"github.com/rns-go/reticulum/packet"
)

func establishLinkPair(t *testing.T) (*link.Link, *link.Link, [identity.HashLen]byte, time.Time) {
	t.Helper()
	now := time.Unix(0, 0)

	initLink, initHS, err := link.NewInitiator(now)
	require.NoError(t, err)
	linkID := identity.Trunc16([]byte("host-resource-part-roundtrip"))
	initLink.BindInitiatorRequest(initHS, linkID)

	respLink, respProof, err := link.NewResponder(linkID, initHS.EphPub, now)
	require.NoError(t, err)

	initiatorProof, err := initLink.HandleResponderProof(respProof, now)
	require.NoError(t, err)
	initLink.MarkActive(now)

	require.NoError(t, respLink.HandleInitiatorProof(initiatorProof, now))
	return initLink, respLink, linkID, now
}

// TestResourcePartFitsEncryptedDataUnit exercises the exact path a maximally
// sized resource part travels: resource framing, link sequence framing and
// encryption, packet wire framing, and back. A too-large resourceMDU makes
// the encrypted token exceed packet.MaxEncryptedDataUnit, which packet.Unpack
// rejects — silently stranding every maximally sized part of a transfer.
func TestResourcePartFitsEncryptedDataUnit(t *testing.T) {
	sender, receiver, linkID, now := establishLinkPair(t)

	var resourceID [identity.HashLen]byte
	copy(resourceID[:], []byte("0123456789abcdef"))

	payload := bytes.Repeat([]byte{0xAB}, resourceMDU)
	frame := packResourcePart(resourceID, 7, payload)

	token, err := sender.EncodeMessage(frame, now)
	require.NoError(t, err)
	require.LessOrEqualf(t, len(token), packet.MaxEncryptedDataUnit,
		"encrypted resource part token (%d bytes) exceeds MaxEncryptedDataUnit (%d)",
		len(token), packet.MaxEncryptedDataUnit)

	p := &packet.Packet{
		Header:     packet.HeaderDirect,
		DestType:   packet.DestLink,
		PacketType: packet.TypeData,
		DestHash:   linkID,
		Context:    ctxResourcePart,
		Payload:    token,
	}
	wire, err := p.Pack()
	require.NoError(t, err)

	unpacked, _, err := packet.Unpack(wire)
	require.NoError(t, err)

	decoded, err := receiver.DecodeMessage(unpacked.Payload, now)
	require.NoError(t, err)

	gotResourceID, gotIndex, gotPayload, err := unpackResourcePart(decoded)
	require.NoError(t, err)
	require.Equal(t, resourceID, gotResourceID)
	require.Equal(t, uint32(7), gotIndex)
	require.Equal(t, payload, gotPayload)
}
