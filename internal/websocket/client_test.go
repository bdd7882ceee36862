package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailsales/internal/shared/testutil"
	"retailsales/pkg/contracts/events"
)

func TestClient_WritePumpDeliversAndCloses(t *testing.T) {
	hub := newTestHub(t)
	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)

	go client.WritePump()
	client.send <- []byte(`{"type":"status"}`)
	close(client.send)

	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
	msgs := conn.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"type":"status"}`, string(msgs[0]))
	assert.Equal(t, websocket.CloseMessage, conn.messageTypes()[1])
	assert.Contains(t, string(msgs[1]), "server shutting down")
}

func TestClient_WritePumpPings(t *testing.T) {
	hub := newTestHub(t)
	conn := newMockConnection()
	client := NewClient(hub, conn, "trace-1", nil)
	client.timing = pumpTiming{writeWait: time.Second, pongWait: time.Second, pingPeriod: 5 * time.Millisecond}

	go client.WritePump()
	require.Eventually(t, func() bool {
		return slices.Contains(conn.messageTypes(), websocket.PingMessage)
	}, time.Second, 5*time.Millisecond)

	close(client.send)
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
}

func TestClient_ReadPumpUnregistersOnClose(t *testing.T) {
	hub := newTestHub(t)
	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)
	require.True(t, hub.Register(client))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	go client.ReadPump()
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandler_EndToEnd(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hub := newTestHub(t)

	srv := httptest.NewServer(Handler(hub, nil, logger))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var welcome events.WebSocketMessage
	require.NoError(t, json.Unmarshal(data, &welcome))
	assert.Equal(t, events.MessageTypeConnect, welcome.Type)

	hub.Notify(context.Background(), events.Notification{Level: events.LevelSuccess, Message: "Data request complete."})

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	var status events.WebSocketMessage
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, events.MessageTypeStatus, status.Type)
	assert.Contains(t, string(data), "Data request complete.")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://allowed.example"})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://localhost:8080/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("")))
	assert.True(t, check(req("http://allowed.example")))
	assert.True(t, check(req("http://localhost:8080")))
	assert.False(t, check(req("http://evil.example")))
	assert.True(t, originChecker([]string{"*"})(req("http://evil.example")))
}
