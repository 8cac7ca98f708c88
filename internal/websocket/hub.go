package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/econlab/classlob/backend/pkg/model"
	"github.com/gorilla/websocket"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 64 * 1024
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// The feed carries two fixed streams: executed trades and depth
// snapshots. A single classroom instrument needs nothing finer.
const (
	StreamTrades = "trades"
	StreamBook   = "book"
)

// TradeMsg is the wire payload for one executed trade.
type TradeMsg struct {
	Type  string          `json:"type"` // "trade"
	Trade model.TradeView `json:"trade"`
	Seq   uint64          `json:"seq"`
}

// BookMsg is the wire payload for a depth snapshot.
type BookMsg struct {
	Type  string            `json:"type"` // "book"
	Depth model.MarketDepth `json:"depth"`
	Seq   uint64            `json:"seq"`
}

type publishMsg struct {
	Stream string
	Data   []byte
}

type subscription struct {
	client *Client
	stream string
}

// Hub manages feed clients and fans out published messages.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan publishMsg

	clients map[*Client]struct{}
	streams map[string]map[*Client]struct{}

	sendBuf int

	// simple metrics
	publishDrops uint64

	logger *log.Logger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subscribed map[string]struct{}

	// consecutive drops counter: if it grows too large we evict the client
	drops int
}

// NewHub creates a Hub with reasonable defaults. Provide a logger or nil.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan publishMsg, defaultPublishBuf),
		clients:     make(map[*Client]struct{}),
		streams:     make(map[string]map[*Client]struct{}),
		sendBuf:     defaultSendBuf,
		logger:      logger,
	}
}

// Run runs the hub event loop. Call as: go hub.Run(ctx).
// The hub stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Println("feed hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case sub := <-h.subscribe:
			subs := h.streams[sub.stream]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.streams[sub.stream] = subs
			}
			subs[sub.client] = struct{}{}
			sub.client.subscribed[sub.stream] = struct{}{}

		case sub := <-h.unsubscribe:
			if subs := h.streams[sub.stream]; subs != nil {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(h.streams, sub.stream)
				}
			}
			delete(sub.client.subscribed, sub.stream)

		case p := <-h.publish:
			for c := range h.streams[p.Stream] {
				select {
				case c.send <- p.Data:
				default:
					atomic.AddUint64(&h.publishDrops, 1)
					c.drops++
					if c.drops > maxConsecutiveDrops {
						h.logger.Printf("evicting slow client after %d drops", c.drops)
						h.drop(c)
						_ = c.conn.Close()
					}
				}
			}

		case <-ctx.Done():
			h.logger.Println("feed hub shutting down")
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(h.clients, c)
			}
			return
		}
	}
}

// drop removes a client from the hub and every stream. Only the hub
// loop may call it.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for s := range c.subscribed {
		if subs := h.streams[s]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.streams, s)
			}
		}
	}
	close(c.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Classroom deployment: any origin may watch the book.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client. Initial streams
// come from ?streams=trades,book; the default is both.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		subscribed: make(map[string]struct{}),
	}

	streams := []string{StreamTrades, StreamBook}
	if s := r.URL.Query().Get("streams"); s != "" {
		streams = streams[:0]
		for _, name := range strings.Split(s, ",") {
			name = strings.TrimSpace(name)
			if name == StreamTrades || name == StreamBook {
				streams = append(streams, name)
			}
		}
	}
	for _, name := range streams {
		client.subscribed[name] = struct{}{}
	}

	h.register <- client
	for name := range client.subscribed {
		h.subscribe <- subscription{client: client, stream: name}
	}

	go client.writePump()
	go client.readPump()
}

// readPump handles subscribe/unsubscribe commands from the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.logger.Printf("read error: %v", err)
			}
			return
		}

		// any incoming activity -> reset drops counter
		c.drops = 0

		var cmd struct {
			Type   string `json:"type"`   // "subscribe" | "unsubscribe"
			Stream string `json:"stream"` // "trades" | "book"
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Printf("invalid client msg: %v", err)
			continue
		}
		if cmd.Stream != StreamTrades && cmd.Stream != StreamBook {
			continue
		}

		switch cmd.Type {
		case "subscribe":
			c.hub.subscribe <- subscription{client: c, stream: cmd.Stream}
		case "unsubscribe":
			c.hub.unsubscribe <- subscription{client: c, stream: cmd.Stream}
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				_ = w.Close()
				return
			}

			// batch queued messages into same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				if msg := <-c.send; msg != nil {
					if _, err := w.Write([]byte("\n")); err != nil {
						break
					}
					if _, err := w.Write(msg); err != nil {
						break
					}
				}
			}

			if err := w.Close(); err != nil {
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

// PublishTrade publishes an executed trade to the trades stream.
// Non-blocking: if the hub publish buffer is full, the message is dropped.
func (h *Hub) PublishTrade(tr model.TradeView) {
	h.publishJSON(StreamTrades, TradeMsg{
		Type:  "trade",
		Trade: tr,
		Seq:   nextSeq(StreamTrades),
	})
}

// PublishBook publishes a depth snapshot to the book stream.
func (h *Hub) PublishBook(depth model.MarketDepth) {
	h.publishJSON(StreamBook, BookMsg{
		Type:  "book",
		Depth: depth,
		Seq:   nextSeq(StreamBook),
	})
}

func (h *Hub) publishJSON(stream string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("marshal %s msg: %v", stream, err)
		return
	}
	select {
	case h.publish <- publishMsg{Stream: stream, Data: b}:
	default:
		// avoid blocking producers; track drops
		atomic.AddUint64(&h.publishDrops, 1)
		h.logger.Printf("publish channel full, dropping %s msg", stream)
	}
}

// Stats returns simple metrics (clients count and publish drops).
func (h *Hub) Stats() (clients int, drops uint64) {
	clients = len(h.clients)
	drops = atomic.LoadUint64(&h.publishDrops)
	return
}
