package packet

import (
	"testing"

	"github.com/rns-go/reticulum/identity"
)

// FuzzUnpack seeds the corpus with representative frames (minimal direct
// header, transported header, oversized) and checks that Unpack never
// panics on arbitrary bytes.
func FuzzUnpack(f *testing.F) {
	direct := &Packet{
		Header:     HeaderDirect,
		DestType:   DestSingle,
		PacketType: TypeData,
		Hops:       1,
		Context:    0,
		Payload:    []byte("hello"),
	}
	if frame, err := direct.Pack(); err == nil {
		f.Add(frame)
	}

	transported := &Packet{
		Header:      HeaderTransported,
		DestType:    DestSingle,
		PacketType:  TypeAnnounce,
		Hops:        5,
		TransportID: [identity.HashLen]byte{0xAA},
		Context:     1,
		Payload:     make([]byte, 64),
	}
	if frame, err := transported.Pack(); err == nil {
		f.Add(frame)
	}

	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add(make([]byte, MTU+10))

	f.Fuzz(func(t *testing.T, data []byte) {
		p, hash, err := Unpack(data)
		if err != nil {
			return
		}
		if p == nil {
			t.Fatalf("Unpack returned nil packet with nil error")
		}
		_ = hash
		_, _ = p.Pack()
	})
}
