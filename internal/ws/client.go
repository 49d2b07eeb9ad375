package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// queueSize is how many frames may wait for a client before it is dropped.
const queueSize = 256

// Client is one connection listening on a topic. Frames are queued by
// Send and written by the connection's write pump.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	topic string
	queue chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a client for conn on hub. conn may be nil in tests.
func NewClient(hub *Hub, conn *websocket.Conn, topic string) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		topic: topic,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// Send queues data without blocking. A client whose queue is full is
// closed. It reports whether data was queued.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.queue <- data:
		return true
	default:
		c.Close()
		return false
	}
}

// Close marks the client closed. The write pump notices via Done and
// shuts the connection down.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Topic returns the topic the client listens on.
func (c *Client) Topic() string {
	return c.topic
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// Queue returns the frames waiting to be written.
func (c *Client) Queue() <-chan []byte {
	return c.queue
}

// Leave removes the client from its hub and closes it.
func (c *Client) Leave() {
	if c.hub != nil {
		c.hub.Leave(c)
		return
	}
	c.Close()
}
