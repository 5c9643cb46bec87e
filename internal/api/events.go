package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/satindergrewal/diskjockey/internal/mixer"
)

const writeWait = 5 * time.Second

// events upgrades to a websocket and pushes a snapshot on every change,
// plus periodic refreshes while a deck is playing so positions move.
// Incoming messages are ignored.
func (s *Server) events(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Events upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.mixer.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	send := func(snap mixer.Snapshot) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap) == nil
	}

	if !send(s.mixer.Snapshot()) {
		return
	}
	for {
		select {
		case <-closed:
			return
		case snap, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "mixer closed"),
					time.Now().Add(writeWait))
				return
			}
			if !send(snap) {
				return
			}
		case <-ticker.C:
			snap := s.mixer.Snapshot()
			if !snap.A.Playing && !snap.B.Playing {
				continue
			}
			if !send(snap) {
				return
			}
		}
	}
}
