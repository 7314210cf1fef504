package testutil

import (
	"context"
	"errors"
	"sync"
)

// ErrBrokenConn is returned by a FakeConn created with NewBrokenConn.
var ErrBrokenConn = errors.New("broken connection")

// FakeConn is an in-memory subscriber connection that records every frame
// sent to it.
type FakeConn struct {
	id     string
	broken bool

	mu         sync.Mutex
	frames     [][]byte
	attachment []byte
	closed     bool
	reason     string
}

// NewFakeConn creates a working connection.
func NewFakeConn(id string) *FakeConn {
	return &FakeConn{id: id}
}

// NewBrokenConn creates a connection whose every Send fails.
func NewBrokenConn(id string) *FakeConn {
	return &FakeConn{id: id, broken: true}
}

// ID returns the connection id.
func (c *FakeConn) ID() string { return c.id }

// Send records frame, or fails when the connection is broken or closed.
func (c *FakeConn) Send(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return ErrBrokenConn
	}
	if c.closed {
		return errors.New("send on closed connection")
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

// Break makes every later Send fail, simulating a transport that died
// after the handshake.
func (c *FakeConn) Break() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

// Close marks the connection closed.
func (c *FakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
	return nil
}

// Attachment returns the stored attachment.
func (c *FakeConn) Attachment() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// SetAttachment stores data.
func (c *FakeConn) SetAttachment(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachment = append([]byte(nil), data...)
}

// Frames returns a copy of the recorded frames.
func (c *FakeConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

// Closed reports whether Close was called, and with which reason.
func (c *FakeConn) Closed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.reason
}
