package websocket

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the part of *websocket.Conn the client pumps use. Tests
// substitute an in-memory connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
}

var _ Connection = (*websocket.Conn)(nil)

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
