package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from this same process on localhost.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const snapshotInterval = time.Second

// streamHandler upgrades the connection and pushes a full blotter snapshot
// every second, which replaces the dashboard's HTTP polling.
func (s *Server) streamHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain control frames so pings and close handshakes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		rows, err := s.snapshot(c.Request.Context())
		if err != nil {
			s.log.Error("Failed to build blotter snapshot", zap.Error(err))
		} else if err := conn.WriteJSON(rows); err != nil {
			return // client went away
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
