package dashboard

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard only listens locally.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamStats pushes one JSON array of snapshots per monitor tick.
func (s *Server) streamStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeError(w, notFound("monitor not running"))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", logging.KeyError, err.Error())
		return
	}
	defer conn.Close()

	updates, cancel := s.deps.Monitor.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
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

	log.Debug("stats stream connected", "remote", r.RemoteAddr)
	if latest := s.deps.Monitor.Latest(); len(latest) > 0 {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Debug("stats stream closed by client")
			return
		case <-r.Context().Done():
			return
		case snapshots, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshots); err != nil {
				log.Debug("stats stream write failed", logging.KeyError, err.Error())
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
