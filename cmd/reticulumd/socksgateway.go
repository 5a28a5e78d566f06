package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/rns-go/reticulum/identity"
	"github.com/rns-go/reticulum/socks"
)

// newSocksDialer adapts Host.DialApp to socks.Dialer, letting the SOCKS5
// front-end in the socks package open Reticulum links without knowing
// anything about identities, links, or the transport engine.
func newSocksDialer(host *Host, ifaceID string, handshakeTimeout time.Duration) socks.Dialer {
	return func(destHashHex string) (io.ReadWriteCloser, error) {
		raw, err := hex.DecodeString(destHashHex)
		if err != nil || len(raw) != identity.HashLen {
			return nil, fmt.Errorf("socks dial: %q is not a %d-byte hex destination hash", destHashHex, identity.HashLen)
		}
		var destHash [identity.HashLen]byte
		copy(destHash[:], raw)
		return host.DialApp(destHash, ifaceID, handshakeTimeout)
	}
}
