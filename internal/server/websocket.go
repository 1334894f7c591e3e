package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/satyaki-up/issueboard/internal/issues"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket streams one JSON snapshot per hub delivery until the
// client goes away. Client messages are read and discarded.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	connID := uuid.NewString()
	logger := h.logger.With("conn", connID, "remote", r.RemoteAddr)

	// Only the subscription goroutine writes to conn.
	sub, err := h.feed.Subscribe(func(snap issues.Snapshot) {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			logger.Debug("websocket write failed", "err", err)
			_ = conn.Close()
		}
	})
	if err != nil {
		logger.Warn("websocket subscribe failed", "err", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "board is shutting down"))
		_ = conn.Close()
		return
	}
	h.track(connID, conn)
	logger.Info("websocket client connected")

	defer func() {
		sub.Cancel()
		h.untrack(connID)
		_ = conn.Close()
		logger.Info("websocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) track(id string, conn *websocket.Conn) {
	h.connsMu.Lock()
	h.conns[id] = conn
	h.connsMu.Unlock()
}

func (h *Handler) untrack(id string) {
	h.connsMu.Lock()
	delete(h.conns, id)
	h.connsMu.Unlock()
}

func (h *Handler) closeConnections() {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	for id, conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, id)
	}
}
