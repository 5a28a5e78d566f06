// Package resource implements Reticulum's windowed segmented bulk transfer
// protocol: part segmentation, sliding-window transmission with AIMD
// adaptation, retransmission, optional compression, and completion proof
// (spec.md §4.4). Like the transport and link engines, Resource performs no
// I/O; it consumes inputs (segments, acks, ticks) and returns Actions.
package resource

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"

	"github.com/rns-go/reticulum/identity"
)

// MaxPayload is the largest payload this package accepts (spec.md §4.4
// "up to ~16 MB"); larger payloads are rejected, so the 16 GB theoretical
// ceiling is not reachable here.
const MaxPayload = 16 * 1024 * 1024

const (
	// MinWindow and MaxWindow bound the sliding transmit window
	// (spec.md §4.4 "2-75 parts").
	MinWindow = 2
	MaxWindow = 75

	// MaxRetriesPerPart fails the whole resource once exceeded on one part.
	MaxRetriesPerPart = 16
)

// State is the resource's lifecycle stage (spec.md §3).
type State uint8

const (
	StateAdvertised State = iota
	StateTransferring
	StateAssembling
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAdvertised:
		return "ADVERTISED"
	case StateTransferring:
		return "TRANSFERRING"
	case StateAssembling:
		return "ASSEMBLING"
	case StateComplete:
		return "COMPLETE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// FailureKind classifies why a resource transfer failed (spec.md §7).
type FailureKind string

const (
	FailureHashMismatch     FailureKind = "hash_mismatch"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
	FailureLinkClosed       FailureKind = "link_closed"
	FailureAborted          FailureKind = "aborted"
)

// Advertisement is the sender's initial offer (spec.md §4.4 "Advertisement").
type Advertisement struct {
	ResourceID   [identity.HashLen]byte
	TotalSize    uint64
	PartCount    uint32
	ExpectedHash [32]byte
	Compressed   bool
}

// Pack serializes the advertisement: resource_id(16) || total_size(8) ||
// part_count(4) || expected_hash(32) || compressed(1).
func (a *Advertisement) Pack() []byte {
	out := make([]byte, 0, 16+8+4+32+1)
	out = append(out, a.ResourceID[:]...)
	out = appendUint64(out, a.TotalSize)
	out = appendUint32(out, a.PartCount)
	out = append(out, a.ExpectedHash[:]...)
	if a.Compressed {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

// UnpackAdvertisement parses an advertisement payload.
func UnpackAdvertisement(payload []byte) (*Advertisement, error) {
	const want = 16 + 8 + 4 + 32 + 1
	if len(payload) != want {
		return nil, fmt.Errorf("unpack advertisement: payload is %d bytes, want %d", len(payload), want)
	}
	a := &Advertisement{}
	copy(a.ResourceID[:], payload[:16])
	a.TotalSize = readUint64(payload[16:24])
	a.PartCount = readUint32(payload[24:28])
	copy(a.ExpectedHash[:], payload[28:60])
	a.Compressed = payload[60] != 0
	return a, nil
}

func appendUint64(out []byte, v uint64) []byte {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * (7 - i)))
	}
	return append(out, buf[:]...)
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	for i := 0; i < 4; i++ {
		buf[i] = byte(v >> (8 * (3 - i)))
	}
	return append(out, buf[:]...)
}

func readUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func readUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}

// Segment splits data into MDU-sized parts, returning an Advertisement plus
// the parts themselves. If compress is true, data is bzip2-compressed
// before segmentation and the expected hash covers the *uncompressed*
// original payload (the receiver verifies after decompressing).
func Segment(resourceID [identity.HashLen]byte, data []byte, mdu int, compress bool) (*Advertisement, [][]byte, error) {
	if len(data) > MaxPayload {
		return nil, nil, fmt.Errorf("segment: payload %d bytes exceeds max %d", len(data), MaxPayload)
	}
	if mdu <= 0 {
		return nil, nil, fmt.Errorf("segment: mdu must be positive, got %d", mdu)
	}
	expectedHash := identity.SHA256Sum(data)

	wire := data
	if compress {
		compressed, err := compressBzip2(data)
		if err != nil {
			return nil, nil, fmt.Errorf("segment: %w", err)
		}
		wire = compressed
	}

	var parts [][]byte
	for off := 0; off < len(wire); off += mdu {
		end := off + mdu
		if end > len(wire) {
			end = len(wire)
		}
		part := append([]byte(nil), wire[off:end]...)
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		parts = [][]byte{{}}
	}

	adv := &Advertisement{
		ResourceID:   resourceID,
		TotalSize:    uint64(len(data)),
		PartCount:    uint32(len(parts)),
		ExpectedHash: expectedHash,
		Compressed:   compress,
	}
	return adv, parts, nil
}

// Reassemble concatenates parts, decompresses if compressed, and verifies
// the result against expectedHash (spec.md §4.4 "Completion").
func Reassemble(parts [][]byte, compressed bool, expectedHash [32]byte) ([]byte, error) {
	var wire []byte
	for _, p := range parts {
		wire = append(wire, p...)
	}

	plain := wire
	if compressed {
		decompressed, err := decompressBzip2(wire)
		if err != nil {
			return nil, fmt.Errorf("reassemble: %w", err)
		}
		plain = decompressed
	}

	got := identity.SHA256Sum(plain)
	if got != expectedHash {
		return nil, fmt.Errorf("reassemble: %w", errHashMismatch)
	}
	return plain, nil
}

var errHashMismatch = fmt.Errorf("reassembled payload hash mismatch")

// IsHashMismatch reports whether err wraps the reassembly hash-mismatch
// condition, letting callers map it to FailureHashMismatch.
func IsHashMismatch(err error) bool {
	return err != nil && bytes.Contains([]byte(err.Error()), []byte(errHashMismatch.Error()))
}

func compressBzip2(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return nil, fmt.Errorf("bzip2 writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("bzip2 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("bzip2 close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressBzip2(data []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("bzip2 reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bzip2 read: %w", err)
	}
	return out, nil
}

// CompletionProof is an HMAC over resource_id || expected_hash under the
// link session key (spec.md §4.4 "Completion").
func CompletionProof(sessionMacKey []byte, resourceID [identity.HashLen]byte, expectedHash [32]byte) []byte {
	msg := make([]byte, 0, identity.HashLen+32)
	msg = append(msg, resourceID[:]...)
	msg = append(msg, expectedHash[:]...)
	return identity.HMACSHA256(sessionMacKey, msg)
}

// VerifyCompletionProof checks a completion proof against the expected value.
func VerifyCompletionProof(sessionMacKey []byte, resourceID [identity.HashLen]byte, expectedHash [32]byte, proof []byte) bool {
	want := CompletionProof(sessionMacKey, resourceID, expectedHash)
	return len(proof) == len(want) && constantTimeEqual(proof, want)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
