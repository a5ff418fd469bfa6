package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and streams hub messages to it.
// snapshot, when set, supplies the state sent first on every new
// connection. originPatterns restricts cross-origin renderers; empty means
// same origin only.
func HandleWebSocket(hub *Hub, snapshot func() any, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		var greet func() Message
		if snapshot != nil {
			greet = func() Message {
				return NewMessage(EntityState, ActionSnapshot, snapshot())
			}
		}
		NewClient(hub, conn).Run(r.Context(), greet)
	}
}
