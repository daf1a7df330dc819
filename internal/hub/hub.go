// Package hub streams rendered views to websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"depthview/internal/logger"
	"depthview/internal/model"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 4 * 1024
	defaultSendBuf      = 16
	defaultPublishBuf   = 64
	maxConsecutiveDrops = 50
)

// ClientGauge is told the client count whenever it changes.
type ClientGauge interface {
	SetHubClients(n int)
}

// Hub owns the set of view clients. All membership changes and fan-out happen
// on the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	publish    chan []byte
	done       chan struct{}

	clients map[*Client]struct{}
	last    []byte

	sendBuf      int
	publishDrops atomic.Uint64
	clientCount  atomic.Int64

	gauge    ClientGauge
	log      *logger.Logger
	upgrader websocket.Upgrader
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// consecutive drops; the client is evicted past maxConsecutiveDrops
	drops int
}

func New(gauge ClientGauge, log *logger.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan []byte, defaultPublishBuf),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    defaultSendBuf,
		gauge:      gauge,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run is the hub event loop. It returns when ctx is cancelled, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.log.Info("ws hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			if h.last != nil {
				c.send <- h.last
			}
			h.countChanged()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
			}

		case msg := <-h.publish:
			h.last = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
					c.drops = 0
				default:
					h.publishDrops.Add(1)
					c.drops++
					if c.drops > maxConsecutiveDrops {
						h.log.Warn("evicting slow client", logger.NewField("drops", c.drops))
						h.remove(c)
						_ = c.conn.Close()
					}
				}
			}

		case <-ctx.Done():
			h.log.Info("ws hub shutting down")
			for c := range h.clients {
				h.remove(c)
				_ = c.conn.Close()
			}
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	h.countChanged()
	close(c.send)
}

func (h *Hub) countChanged() {
	h.clientCount.Store(int64(len(h.clients)))
	if h.gauge != nil {
		h.gauge.SetHubClients(len(h.clients))
	}
}

func (h *Hub) Name() string { return "ws_hub" }

// Render queues the view for every client. It never blocks; when the hub is
// backed up the frame is dropped and the next one supersedes it.
func (h *Hub) Render(_ context.Context, v model.View) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal view")
	}
	select {
	case h.publish <- b:
	default:
		h.publishDrops.Add(1)
		h.log.Debug("publish channel full, dropping view", logger.NewField("seq", v.Seq))
	}
	return nil
}

// ServeWS upgrades the request and registers a client. The client receives
// the most recent view immediately, then one frame per render.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		h.log.Debug("ws upgrade failed", logger.NewField("error", err.Error()))
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuf),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Stats reports the connected clients and frames dropped so far.
func (h *Hub) Stats() (clients int, drops uint64) {
	return int(h.clientCount.Load()), h.publishDrops.Load()
}

// readPump only keeps the read deadline alive; clients send nothing useful.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("ws client read error", logger.NewField("error", err.Error()))
			}
			return
		}
	}
}

// writePump serializes all writes to the connection, one view per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
