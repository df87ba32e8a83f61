package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used by the gateway. Protocol violations use the standard
// 1008; the 4xxx range carries the gateway-specific rejections.
const (
	CloseUnauthorized    = 4401
	CloseAuthTimeout     = 4408
	CloseConnectionLimit = 4429
)

// Conn wraps the raw gorilla connection with write deadlines and a
// cancellable lifetime.
type Conn struct {
	*websocket.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
}

func NewConn(parent context.Context, conn *websocket.Conn, readLimit int64, writeTimeout time.Duration) *Conn {
	ctx, cancel := context.WithCancel(parent)
	conn.SetReadLimit(readLimit)
	return &Conn{Conn: conn, ctx: ctx, cancel: cancel, writeTimeout: writeTimeout}
}

func (c *Conn) WriteMessage(data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a control ping. WriteControl is safe to call concurrently with
// the write pump.
func (c *Conn) Ping() error {
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// CloseWithCode sends a close frame with the given code before tearing the
// connection down.
func (c *Conn) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(c.writeTimeout)
	_ = c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

func (c *Conn) Close() {
	c.cancel()
	_ = c.Conn.Close()
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.Conn.ReadMessage()
	return data, err
}

func (c *Conn) SetPongHandler(h func(string) error) {
	c.Conn.SetPongHandler(h)
}
