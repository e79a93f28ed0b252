package livesync

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer in front of the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
}

// ServeWS upgrades the request and streams the match's updates to it until
// the peer goes away. The first frame is the snapshot when one is known.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, matchID uuid.UUID, kind Kind) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "match_id", matchID, "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, m.buffer),
		done:   make(chan struct{}),
		logger: m.logger.With("match_id", matchID, "remote", r.RemoteAddr),
	}

	// The callback blocks while the socket is slow, so the manager's queue
	// for this client fills and it falls back to a snapshot.
	h, err := m.Subscribe(matchID, func(u Update) {
		msg, err := json.Marshal(u)
		if err != nil {
			c.logger.Error("failed to encode live update", "error", err)
			return
		}
		select {
		case c.send <- msg:
		case <-c.done:
		}
	}, WithKind(kind))
	if err != nil {
		c.logger.Warn("live subscription refused", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()

	h.Close()
	c.logger.Debug("websocket client disconnected")
}

// readPump discards client frames and returns once the peer is gone.
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
