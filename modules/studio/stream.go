package studio

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// StreamMessage - frame pushed to websocket clients
type StreamMessage struct {
	Type string `json:"type"`
	View View   `json:"view"`
}

// handleWebSocket - push modal views until the modal closes or the client leaves
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	modal, ok := h.modal(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	views, stop := modal.Watch()
	h.log.Debug().Str("modal_id", modal.ID()).Msg("🔍 [Studio] WebSocket watcher connected")

	go h.writePump(conn, views)
	go h.readPump(conn, stop)
}

// readPump - drains client frames; a read error ends the watch
func (h *Handler) readPump(conn *websocket.Conn, stop func()) {
	defer func() {
		stop()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// writePump - one JSON frame per view; a closed channel ends the stream
func (h *Handler) writePump(conn *websocket.Conn, views <-chan View) {
	defer conn.Close()

	for view := range views {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(StreamMessage{Type: "view", View: view}); err != nil {
			h.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
