package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/satindergrewal/bioradio/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	clientBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one websocket subscriber to the event bus.
type wsClient struct {
	s      *Server
	conn   *websocket.Conn
	events <-chan events.Event
	cancel func()
	done   chan struct{}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	ch, cancel := s.bus.Subscribe(clientBuffer)
	c := &wsClient{
		s:      s,
		conn:   conn,
		events: ch,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.log.Debugf("WebSocket client connected from %s", r.RemoteAddr)

	// Greet with the current status so the UI can render immediately.
	if st, err := s.player.Status(r.Context()); err == nil {
		c.greeting(st)
	}

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) greeting(data any) {
	msg, err := json.Marshal(events.Event{Kind: events.KindStatus, Time: time.Now(), Data: data})
	if err != nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.TextMessage, msg)
}

// readPump discards client messages and detects disconnects.
func (c *wsClient) readPump() {
	defer func() {
		close(c.done)
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.s.log.Debugf("WebSocket read error: %v", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			msg, err := json.Marshal(ev)
			if err != nil {
				c.s.log.Warnf("WebSocket: encode %s event: %v", ev.Kind, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
