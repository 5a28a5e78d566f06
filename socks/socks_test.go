package socks

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
)

func TestDoHandshakeValid(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.doHandshake(server)
	}()

	client.Write([]byte{0x05, 0x01, 0x00})

	buf := make([]byte, 2)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if buf[0] != 0x05 || buf[1] != 0x00 {
		t.Fatalf("unexpected response: %x", buf)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
}

func TestDoHandshakeNoAuthNotOffered(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.doHandshake(server)
	}()

	client.Write([]byte{0x05, 0x01, 0x02})

	buf := make([]byte, 2)
	io.ReadFull(client, buf)
	if buf[1] != 0xFF {
		t.Fatalf("expected 0xFF rejection, got %x", buf[1])
	}

	err := <-errCh
	if err == nil {
		t.Fatal("expected error for missing no-auth method")
	}
}

func TestDoHandshakeWrongVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.doHandshake(server)
	}()

	go func() {
		client.Write([]byte{0x04, 0x01, 0x00}) // SOCKS4
	}()

	if err := <-errCh; err == nil {
		t.Fatal("expected error for SOCKS4")
	}
}

func TestReadConnectDomainIsHexDestHash(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	type result struct {
		target string
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		target, err := s.readConnect(server)
		ch <- result{target, err}
	}()

	destHash := []byte("deadbeefcafebabe0011223344556677")
	msg := []byte{0x05, 0x01, 0x00, 0x03, byte(len(destHash))}
	msg = append(msg, destHash...)
	msg = append(msg, 0x00, 0x50) // port 80
	client.Write(msg)

	r := <-ch
	if r.err != nil {
		t.Fatalf("readConnect failed: %v", r.err)
	}
	if r.target != "deadbeefcafebabe0011223344556677:80" {
		t.Fatalf("got target %q", r.target)
	}
}

func TestReadConnectDomainRejectsNonHex(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	type result struct {
		target string
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		target, err := s.readConnect(server)
		ch <- result{target, err}
	}()

	domain := []byte("not-a-hash")
	msg := []byte{0x05, 0x01, 0x00, 0x03, byte(len(domain))}
	msg = append(msg, domain...)
	msg = append(msg, 0x00, 0x50)
	go func() { client.Write(msg) }()

	r := <-ch
	if r.err == nil {
		t.Fatal("expected error for non-hex domain")
	}
}

func TestReadConnectIPv4(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	type result struct {
		target string
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		target, err := s.readConnect(server)
		ch <- result{target, err}
	}()

	msg := []byte{0x05, 0x01, 0x00, 0x01, 1, 2, 3, 4, 0x01, 0xBB}
	client.Write(msg)

	r := <-ch
	if r.err != nil {
		t.Fatalf("readConnect failed: %v", r.err)
	}
	if r.target != "1.2.3.4:443" {
		t.Fatalf("got target %q, want 1.2.3.4:443", r.target)
	}
}

func TestReadConnectIPv6Rejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	type result struct {
		target string
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		target, err := s.readConnect(server)
		ch <- result{target, err}
	}()

	go func() {
		msg := []byte{0x05, 0x01, 0x00, 0x04}
		msg = append(msg, make([]byte, 18)...)
		client.Write(msg)
	}()

	buf := make([]byte, 10)
	io.ReadFull(client, buf)
	if buf[1] != 0x08 {
		t.Fatalf("expected reply 0x08, got %x", buf[1])
	}

	r := <-ch
	if r.err == nil {
		t.Fatal("expected error for IPv6")
	}
}

func TestReadConnectUnsupportedCommand(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	type result struct {
		target string
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		target, err := s.readConnect(server)
		ch <- result{target, err}
	}()

	go func() {
		msg := []byte{0x05, 0x02, 0x00, 0x01, 1, 2, 3, 4, 0x00, 0x50}
		client.Write(msg)
	}()

	buf := make([]byte, 10)
	io.ReadFull(client, buf)
	if buf[1] != 0x07 {
		t.Fatalf("expected reply 0x07, got %x", buf[1])
	}

	r := <-ch
	if r.err == nil {
		t.Fatal("expected error for BIND command")
	}
}

func TestSendReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go sendReply(server, 0x00)

	buf := make([]byte, 10)
	n, _ := io.ReadFull(client, buf)
	if n != 10 {
		t.Fatalf("expected 10 bytes, got %d", n)
	}
	expected := []byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf, expected) {
		t.Fatalf("got %x, want %x", buf, expected)
	}
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		input    string
		wantHost string
		wantPort uint16
	}{
		{"deadbeefcafebabe0011223344556677:80", "deadbeefcafebabe0011223344556677", 80},
		{"deadbeefcafebabe0011223344556677:443", "deadbeefcafebabe0011223344556677", 443},
		{"deadbeefcafebabe0011223344556677", "deadbeefcafebabe0011223344556677", 0},
		{"1.2.3.4:9001", "1.2.3.4", 9001},
		{"noport", "noport", 0},
	}
	for _, tt := range tests {
		host, port := splitHostPort(tt.input)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("splitHostPort(%q) = (%q, %d), want (%q, %d)",
				tt.input, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestListenNonLoopbackRejected(t *testing.T) {
	s := &Server{
		Addr: "0.0.0.0:9050",
	}
	err := s.ListenAndServe()
	if err == nil {
		s.Close()
		t.Fatal("expected error for non-loopback address")
	}
}

func TestHandleConnDialFailure(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := &Server{
		Dial: func(destHashHex string) (io.ReadWriteCloser, error) {
			return nil, fmt.Errorf("no path to destination")
		},
		Logger: slog.Default(),
	}

	done := make(chan struct{})
	go func() {
		s.handleConn(server)
		close(done)
	}()

	client.Write([]byte{0x05, 0x01, 0x00})
	buf := make([]byte, 2)
	io.ReadFull(client, buf)

	destHash := []byte("deadbeefcafebabe0011223344556677")
	msg := []byte{0x05, 0x01, 0x00, 0x03, byte(len(destHash))}
	msg = append(msg, destHash...)
	msg = append(msg, 0x00, 0x50)
	client.Write(msg)

	reply := make([]byte, 10)
	io.ReadFull(client, reply)
	if reply[1] != 0x04 {
		t.Fatalf("expected reply 0x04 (host unreachable), got 0x%02x", reply[1])
	}

	<-done
}

func TestServerClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{ln: ln}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s.Close()
}

func TestHandleConnRelaysData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	appClient, appServer := net.Pipe()
	defer appClient.Close()

	destHash := "deadbeefcafebabe0011223344556677"
	s := &Server{
		Dial: func(destHashHex string) (io.ReadWriteCloser, error) {
			if destHashHex != destHash {
				t.Errorf("unexpected dest: %s", destHashHex)
			}
			return appServer, nil
		},
		Logger: slog.Default(),
	}

	done := make(chan struct{})
	go func() {
		s.handleConn(server)
		close(done)
	}()

	client.Write([]byte{0x05, 0x01, 0x00})
	buf := make([]byte, 2)
	io.ReadFull(client, buf)

	msg := []byte{0x05, 0x01, 0x00, 0x03, byte(len(destHash))}
	msg = append(msg, destHash...)
	msg = append(msg, 0x00, 0x50)
	client.Write(msg)

	reply := make([]byte, 10)
	io.ReadFull(client, reply)
	if reply[1] != 0x00 {
		t.Fatalf("expected success reply, got 0x%02x", reply[1])
	}

	go func() {
		appClient.Write([]byte("hello from link"))
		appClient.Close()
	}()

	data := make([]byte, 100)
	n, _ := client.Read(data)
	if string(data[:n]) != "hello from link" {
		t.Fatalf("got %q, want %q", data[:n], "hello from link")
	}

	client.Close()
	<-done
}

func TestReadConnectEmptyDomain(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &Server{}
	type result struct {
		target string
		err    error
	}
	ch := make(chan result, 1)

	go func() {
		target, err := s.readConnect(server)
		ch <- result{target, err}
	}()

	go func() {
		msg := []byte{0x05, 0x01, 0x00, 0x03, 0x00, 0x00, 0x50}
		client.Write(msg)
	}()

	r := <-ch
	if r.err == nil {
		t.Fatal("expected error for empty domain")
	}
}
