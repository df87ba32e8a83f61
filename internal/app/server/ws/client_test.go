package ws

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errSocketClosed = errors.New("socket closed")

// notifySocket rejects writes that arrive after Close, recording them
// separately so tests can assert nothing was written to a dead socket.
type notifySocket struct {
	*fakeSocket

	mu     sync.Mutex
	open   bool
	onWire [][]byte
	late   [][]byte
}

func newNotifySocket() *notifySocket {
	return &notifySocket{fakeSocket: newFakeSocket(), open: true}
}

func (s *notifySocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		s.late = append(s.late, data)
		return errSocketClosed
	}
	s.onWire = append(s.onWire, data)
	return nil
}

func (s *notifySocket) Close() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	s.fakeSocket.Close()
}

func (s *notifySocket) wire() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.onWire...)
}

func (s *notifySocket) lateWrites() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.late...)
}

func TestClient_NotifyLandsBeforeClose(t *testing.T) {
	req := require.New(t)
	frame := []byte(`{"type":"server_shutdown"}`)

	// A buffered Send followed by an immediate Close may race the pump; the
	// synchronous notify path must not. Exercise it repeatedly.
	for i := 0; i < 500; i++ {
		sock := newNotifySocket()
		c := NewClient(context.Background(), sock, "alice", 8)

		c.Notify(frame)
		c.Close()

		req.NotEmpty(sock.wire(), "round %d: shutdown frame never reached the socket", i)
		req.Equal(frame, sock.wire()[0])
		req.Empty(sock.lateWrites(), "round %d: frame written after close", i)
	}
}

func TestClient_SendRejectedAfterClose(t *testing.T) {
	req := require.New(t)
	sock := newNotifySocket()
	c := NewClient(context.Background(), sock, "alice", 1)

	c.Close()

	req.Error(c.Send(context.Background(), []byte("late")))
}
