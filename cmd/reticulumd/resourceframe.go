package main

import (
	"fmt"

	"github.com/rns-go/reticulum/identity"
)

// These frames are the reference host's wire convention for demultiplexing
// resource-engine traffic inside a link's decrypted payload by resource_id,
// since the resource package itself works purely in terms of (index,
// payload) pairs for a single resource and leaves demultiplexing to its
// caller (spec.md §2 "resource packets inside a link are demultiplexed to
// the resource engine").

func packResourcePart(resourceID [identity.HashLen]byte, index uint32, payload []byte) []byte {
	out := make([]byte, 0, identity.HashLen+4+len(payload))
	out = append(out, resourceID[:]...)
	out = appendUint32(out, index)
	return append(out, payload...)
}

func unpackResourcePart(frame []byte) (resourceID [identity.HashLen]byte, index uint32, payload []byte, err error) {
	if len(frame) < identity.HashLen+4 {
		return resourceID, 0, nil, fmt.Errorf("resource part frame too short: %d bytes", len(frame))
	}
	copy(resourceID[:], frame[:identity.HashLen])
	index = readUint32(frame[identity.HashLen : identity.HashLen+4])
	payload = frame[identity.HashLen+4:]
	return resourceID, index, payload, nil
}

func packResourceAck(resourceID [identity.HashLen]byte, cumulativeUpTo uint32) []byte {
	out := make([]byte, 0, identity.HashLen+4)
	out = append(out, resourceID[:]...)
	return appendUint32(out, cumulativeUpTo)
}

func unpackResourceAck(frame []byte) (resourceID [identity.HashLen]byte, cumulativeUpTo uint32, err error) {
	if len(frame) != identity.HashLen+4 {
		return resourceID, 0, fmt.Errorf("resource ack frame is %d bytes, want %d", len(frame), identity.HashLen+4)
	}
	copy(resourceID[:], frame[:identity.HashLen])
	cumulativeUpTo = readUint32(frame[identity.HashLen:])
	return resourceID, cumulativeUpTo, nil
}

func packResourceProof(resourceID [identity.HashLen]byte, proof []byte) []byte {
	out := make([]byte, 0, identity.HashLen+len(proof))
	out = append(out, resourceID[:]...)
	return append(out, proof...)
}

func unpackResourceProof(frame []byte) (resourceID [identity.HashLen]byte, proof []byte, err error) {
	if len(frame) < identity.HashLen+1 {
		return resourceID, nil, fmt.Errorf("resource proof frame too short: %d bytes", len(frame))
	}
	copy(resourceID[:], frame[:identity.HashLen])
	return resourceID, frame[identity.HashLen:], nil
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	for i := 0; i < 4; i++ {
		buf[i] = byte(v >> (8 * (3 - i)))
	}
	return append(out, buf[:]...)
}

func readUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}

