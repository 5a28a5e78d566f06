package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rns-go/reticulum/identity"
)

// appConn adapts an ACTIVE link to io.ReadWriteCloser, letting ordinary Go
// networking code (a SOCKS relay loop, an io.Copy pair) treat a Reticulum
// link like any other stream socket.
type appConn struct {
	host    *Host
	linkID  [identity.HashLen]byte
	appData <-chan []byte
	pending []byte
}

func (c *appConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		chunk, ok := <-c.appData
		if !ok {
			return 0, io.EOF
		}
		c.pending = chunk
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *appConn) Write(p []byte) (int, error) {
	if err := c.host.SendAppData(c.linkID, p, time.Now()); err != nil {
		return 0, fmt.Errorf("appconn write: %w", err)
	}
	return len(p), nil
}

func (c *appConn) Close() error {
	c.host.CloseLink(c.linkID)
	return nil
}
