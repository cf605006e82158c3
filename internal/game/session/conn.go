// Package session provides connection handles for the game backend. A Conn
// decouples room broadcasts from the transport: pushes are queued on a
// buffered channel and written by a dedicated goroutine.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBufferSize is the outbound queue depth used when none is configured.
const DefaultBufferSize = 64

// ErrClosed is returned by Push after the connection has been closed.
var ErrClosed = errors.New("connection closed")

// Transport is the wire beneath a Conn. Implementations are driven by a single
// writer goroutine, except Ping and Close which may be called concurrently.
type Transport interface {
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Conn is one persistent client connection.
type Conn struct {
	id        uuid.UUID
	transport Transport
	logger    *zap.Logger

	out    chan []byte
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	alive  atomic.Bool
}

// NewConn wraps transport and starts its writer goroutine.
//
// Precondition: transport and logger must be non-nil.
// Postcondition: Returns an open Conn that is considered alive.
func NewConn(transport Transport, bufferSize int, logger *zap.Logger) *Conn {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	c := &Conn{
		id:        uuid.New(),
		transport: transport,
		logger:    logger,
		out:       make(chan []byte, bufferSize),
		done:      make(chan struct{}),
	}
	c.alive.Store(true)
	go c.writeLoop()
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Push enqueues data for delivery without blocking.
//
// Postcondition: data is queued, or an error is returned if the connection is
// closed or its buffer is full.
func (c *Conn) Push(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("conn %s: %w", c.id, ErrClosed)
	}
	select {
	case c.out <- data:
		return nil
	default:
		return fmt.Errorf("conn %s send buffer full", c.id)
	}
}

// MarkAlive records a liveness signal (pong or any inbound frame).
func (c *Conn) MarkAlive() {
	c.alive.Store(true)
}

// TakeAlive clears the liveness flag and returns its previous value. A
// heartbeat sweep that gets false knows the peer missed the last ping.
func (c *Conn) TakeAlive() bool {
	return c.alive.Swap(false)
}

// Ping sends a liveness ping through the transport.
func (c *Conn) Ping() error {
	if c.IsClosed() {
		return fmt.Errorf("conn %s: %w", c.id, ErrClosed)
	}
	return c.transport.Ping()
}

// Close stops accepting pushes. Already queued messages are flushed before the
// transport is closed. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return nil
}

// Done is closed once the writer goroutine has exited and the transport is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	defer func() {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("closing transport", zap.String("conn", c.id.String()), zap.Error(err))
		}
	}()

	for data := range c.out {
		if err := c.transport.WriteMessage(data); err != nil {
			c.logger.Info("write failed, dropping connection",
				zap.String("conn", c.id.String()),
				zap.Error(err),
			)
			_ = c.Close()
			// drain so pending pushes are released
			for range c.out {
			}
			return
		}
	}
}
