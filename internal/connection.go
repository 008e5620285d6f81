package internal

import (
	"context"
	"sync"

	"nhooyr.io/websocket"
)

const sendBufferSize = 256

// Connection is one accepted socket. Frames queued with Deliver are written
// in order by WriteLoop.
type Connection struct {
	id   string
	conn *websocket.Conn
	out  chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func NewConnection(id string, conn *websocket.Conn) *Connection {
	return &Connection{
		id:   id,
		conn: conn,
		out:  make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Deliver never blocks; out is never closed so a late Deliver cannot panic.
func (c *Connection) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.out <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Connection) Drop() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// WriteLoop returns when ctx ends, the connection is dropped or a write fails.
func (c *Connection) WriteLoop(ctx context.Context, written func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrConnectionClosed
		case frame := <-c.out:
			if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return err
			}

			if written != nil {
				written()
			}
		}
	}
}
