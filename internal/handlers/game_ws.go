// internal/handlers/game_ws.go
package handlers

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/rummy/internal/middleware"
	"github.com/jason-s-yu/rummy/internal/server"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the WebSocket subprotocol clients must request on /ws.
const Subprotocol = "rummy"

// GameWSHandler upgrades the request to a WebSocket and seats it at a table. Each binary
// message carries the same length-prefixed frames a raw TCP client would send, so the
// connection is handed to the hub as a plain net.Conn.
func GameWSHandler(logger *logrus.Logger, hub *server.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("WebSocket accept error from %s: %v", r.RemoteAddr, err)
			return
		}
		defer c.CloseNow()

		if c.Subprotocol() != Subprotocol {
			c.Close(websocket.StatusPolicyViolation, "client must speak the rummy subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		conn := websocket.NetConn(r.Context(), c, websocket.MessageBinary)
		err = hub.ServeConn(r.Context(), conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)
	}
}
