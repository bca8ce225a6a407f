package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/monitor"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsToAllObservers(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	connA := dialHub(t, server)
	connB := dialHub(t, server)

	require.Eventually(t, func() bool { return hub.ObserverCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(Event{Type: EventDeviceFound, Path: "/org/rendererserviceupnp/device1", UDN: "udn-1"})

	for _, conn := range []*websocket.Conn{connA, connB} {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, EventDeviceFound, ev.Type)
		assert.Equal(t, "udn-1", ev.UDN)
	}
}

func TestHub_RemovesObserverOnDisconnect(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub))
	defer server.Close()

	conn := dialHub(t, server)
	require.Eventually(t, func() bool { return hub.ObserverCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.ObserverCount() == 0 }, time.Second, 5*time.Millisecond)
}
