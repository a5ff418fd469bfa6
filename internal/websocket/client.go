package websocket

import (
	"context"
	"errors"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one renderer connection. Renderers only listen, so anything
// they send is discarded.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Run registers the client, queues the message built by greet if set, and
// streams queued messages until the peer goes away or ctx ends. greet runs
// after registration so no broadcast can arrive ahead of older state.
func (c *Client) Run(ctx context.Context, greet func() Message) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	if greet != nil {
		c.hub.Send(c, greet())
	}

	// CloseRead drains the peer's frames and cancels ctx once it closes.
	ctx = c.conn.CloseRead(ctx)
	err := c.stream(ctx)
	switch {
	case err == nil:
		c.conn.Close(ws.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled), ws.CloseStatus(err) != -1:
	default:
		c.hub.logger.Debug("websocket stream ended", "error", err)
		c.conn.Close(ws.StatusInternalError, "write failed")
	}
}

// stream returns nil when the hub closes the send channel.
func (c *Client) stream(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.withTimeout(ctx, func(ctx context.Context) error {
				return c.conn.Write(ctx, ws.MessageText, msg)
			}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.withTimeout(ctx, c.conn.Ping); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) withTimeout(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return op(ctx)
}
