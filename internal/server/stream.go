package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/coffersTech/logvault/internal/model"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream upgrades to WebSocket and streams newly stored records.
// Optional level and service parameters narrow the stream; service is a
// case-insensitive substring as in list queries.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	level := model.Level(params.Get("level"))
	if level != "" && !level.Valid() {
		writeError(w, http.StatusBadRequest, "invalid level", "")
		return
	}
	service := strings.ToLower(params.Get("service"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	records, cancel := s.hub.Subscribe()
	defer cancel()

	// Read pump: detect client disconnect and keep the pong deadline fresh.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case rec, ok := <-records:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if level != "" && rec.Level != level {
				continue
			}
			if service != "" && !strings.Contains(strings.ToLower(rec.Service), service) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rec); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
