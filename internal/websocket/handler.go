package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"

	"retailsales/internal/infrastructure"
)

// Handler upgrades GET /ws to a notification socket registered with hub.
// Browsers may connect from the serving host or one of allowedOrigins;
// "*" allows any origin.
func Handler(hub *Hub, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  maxInboundSize,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error
			logger.WarnContext(r.Context(), "websocket upgrade failed",
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("error", err.Error()))
			return
		}

		client := NewClient(hub, conn, infrastructure.GetTraceID(r.Context()), logger)
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage, shutdownFrame)
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	anyOrigin := slices.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
