package main

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rns-go/reticulum/packet"
)

// udpInterface is a broadcast-style network interface: every datagram it
// sends is a UDP broadcast on its configured port, and every datagram it
// receives is fed to the driver regardless of sender, mirroring the way a
// LoRa or serial broadcast medium behaves (spec.md §1 "heterogeneous
// physical media"). It is the one interface kind the reference host ships
// with; real deployments substitute their own byte-oriented transport.
type udpInterface struct {
	id        string
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	logger    *slog.Logger
}

func newUDPInterface(id string, bindPort, broadcastPort int, logger *slog.Logger) (*udpInterface, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: bindPort})
	if err != nil {
		return nil, fmt.Errorf("udp interface %s: listen: %w", id, err)
	}
	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: broadcastPort}
	return &udpInterface{id: id, conn: conn, broadcast: broadcast, logger: logger}, nil
}

// Send writes frame as a single UDP broadcast datagram.
func (u *udpInterface) Send(frame []byte) error {
	_, err := u.conn.WriteToUDP(frame, u.broadcast)
	if err != nil {
		return fmt.Errorf("udp interface %s: write: %w", u.id, err)
	}
	return nil
}

// readLoop blocks reading datagrams and hands each one to onFrame, until the
// interface is closed. It is the "reader" role from spec.md §5: one blocking
// goroutine per interface, framing into datagrams and handing them to the driver.
func (u *udpInterface) readLoop(onFrame func(frame []byte, ifaceID string, now time.Time)) {
	buf := make([]byte, packet.MTU)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			u.logger.Info("interface closed", "iface", u.id, "error", err)
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		onFrame(frame, u.id, time.Now())
	}
}

func (u *udpInterface) Close() error {
	return u.conn.Close()
}
