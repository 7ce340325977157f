package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

// wsEnvelope wraps every websocket message.
type wsEnvelope struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConnect streams every new sample of the live view. The latest sample,
// if any, is sent right after the upgrade.
func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	samples, cancel := h.samples.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go h.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if latest, ok := h.samples.Latest(); ok {
		if err := writeJSON(conn, wsEnvelope{Type: "sample", Data: latest}); err != nil {
			h.logger.Debug().Err(err).Msg("Websocket write failed")
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case sample, ok := <-samples:
			if !ok {
				_ = writeJSON(conn, wsEnvelope{Type: "closed"})
				return
			}
			if err := writeJSON(conn, wsEnvelope{Type: "sample", Data: sample}); err != nil {
				h.logger.Debug().Err(err).Msg("Websocket write failed")
				return
			}
		}
	}
}

// startReader drains incoming messages to handle control frames and detect
// closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
