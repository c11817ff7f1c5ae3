package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the HTTP layer.
		return true
	},
}

// wsEnvelope frames every feed message with its channel.
type wsEnvelope struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// Hub maintains websocket clients and broadcasts match facts to them. It
// implements ledger.MatchEmitter so the daemon can plug it straight into the
// ledger's emitter list.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	log *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
		log:        log,
	}
}

// Run pumps registrations and broadcasts until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("ws_client_connected", "id", c.id, "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("ws_client_disconnected", "id", c.id, "total", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// send buffer full, drop this client
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// EmitMatch broadcasts a match fact on the "matches" channel. The fact
// carries ciphertext handles only.
func (h *Hub) EmitMatch(ctx context.Context, m *ledger.TradeMatch) error {
	msg, err := json.Marshal(wsEnvelope{Channel: "matches", Data: toTradeView(m)})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ledger.MatchEmitter = (*Hub)(nil)

// ServeWS upgrades the connection and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	c := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		id:   uuid.NewString(),
	}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	for {
		// The feed is one-way; inbound frames are drained for pings/close.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
