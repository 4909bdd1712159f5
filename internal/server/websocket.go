package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kode4food/stagehand/pkg/api"
	"github.com/kode4food/stagehand/pkg/log"
)

// Client represents a WebSocket client connection streaming recorded
// runner events as they land in the effect log
type Client struct {
	conn   *websocket.Conn
	events <-chan *api.RunnerEvent
	cancel func()
	scope  api.Scope
	once   sync.Once
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades an HTTP connection to WebSocket and streams
// every event recorded after the upgrade. The scope query parameters
// filter the stream the same way they filter event listings
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		return
	}

	events, cancel := s.runner.Subscribe()
	client := &Client{
		conn:   conn,
		events: events,
		cancel: cancel,
		scope:  scopeFromQuery(c),
	}

	s.registerWebSocket(client)
	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// Close tears the connection down; the run loop exits on the resulting
// read error
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *Client) run() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	closed := make(chan struct{})
	go c.readUntilClosed(closed)

	for {
		select {
		case <-closed:
			return

		case ev, ok := <-c.events:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.sendEventIfMatched(ev) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

// readUntilClosed drains inbound frames so pongs are processed and close
// frames are noticed. Clients have nothing meaningful to send
func (c *Client) readUntilClosed(closed chan struct{}) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			close(closed)
			return
		}
	}
}

func (c *Client) sendEventIfMatched(ev *api.RunnerEvent) bool {
	if !c.scope.MatchesEvent(ev) {
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
