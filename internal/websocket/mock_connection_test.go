package websocket

import (
	"errors"
	"net"
	"sync"
	"time"
)

// mockConnection records writes; reads block until Close
type mockConnection struct {
	mu      sync.Mutex
	written [][]byte
	types   []int
	closed  bool
	closeCh chan struct{}
}

func newMockConnection() *mockConnection {
	return &mockConnection{closeCh: make(chan struct{})}
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	m.types = append(m.types, messageType)
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	<-m.closeCh
	return 0, nil, errors.New("connection closed")
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConnection) SetReadLimit(int64) {}
func (m *mockConnection) SetPongHandler(func(string) error) {}
func (m *mockConnection) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
}

func (m *mockConnection) messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

func (m *mockConnection) messageTypes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.types...)
}

func (m *mockConnection) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
