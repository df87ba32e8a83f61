package ws

import (
	"context"
	"errors"
	"sync"
)

// Client owns the buffered write pump for one authenticated connection and
// is what gets registered under the user's identity.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc
	sock   socket
	userID string
	out    chan []byte
	once   sync.Once

	// writeMu serializes socket writes between the pump and Notify.
	writeMu sync.Mutex
}

func NewClient(parent context.Context, sock socket, userID string, buffer int) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		ctx:    ctx,
		cancel: cancel,
		sock:   sock,
		userID: userID,
		out:    make(chan []byte, buffer),
	}
	go c.writeLoop()
	return c
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) Send(ctx context.Context, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return errors.New("client closed")
	}
}

// Notify writes the frame straight to the socket, skipping the buffered
// pump. The write completes before Notify returns, so a Close that follows
// cannot drop the frame.
func (c *Client) Notify(data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.WriteMessage(data)
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		c.sock.Close()
	})
}

func (c *Client) writeLoop() {
	defer c.Close()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			c.writeMu.Lock()
			_ = c.sock.WriteMessage(data)
			c.writeMu.Unlock()
		}
	}
}
