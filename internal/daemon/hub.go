package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/g960059/showrunner/internal/actor"
	"github.com/g960059/showrunner/internal/api"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Hub fans loop updates out to websocket clients. The latest config, window
// and timeline are replayed to every new client.
type Hub struct {
	log          *slog.Logger
	clock        func() time.Time
	clientBuffer int

	mu      sync.Mutex
	clients map[uuid.UUID]*hubClient
	replay  map[string][]byte
	config  *api.ConfigInfo
	closed  bool

	dropped atomic.Uint64
}

type hubClient struct {
	id   uuid.UUID
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.done) })
}

func NewHub(log *slog.Logger, clientBuffer int) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if clientBuffer <= 0 {
		clientBuffer = 64
	}
	return &Hub{
		log:          log,
		clock:        time.Now,
		clientBuffer: clientBuffer,
		clients:      map[uuid.UUID]*hubClient{},
		replay:       map[string][]byte{},
	}
}

// Run encodes and distributes updates until ctx is done or updates closes.
func (h *Hub) Run(ctx context.Context, updates <-chan actor.Update) {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.publish(u)
		}
	}
}

func (h *Hub) publish(u actor.Update) {
	env := encodeUpdate(u, h.clock())
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("encode update", "type", env.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch env.Type {
	case api.UpdateConfigLoaded:
		if env.Config.Identifier == 0 && env.Config.Source == "" {
			h.config = nil
			h.replay = map[string][]byte{}
		} else {
			h.config = env.Config
		}
		h.replay[env.Type] = data
	case api.UpdateWindow, api.UpdateTimeline:
		h.replay[env.Type] = data
	}
	for _, c := range h.clients {
		h.deliverLocked(c, data)
	}
}

func (h *Hub) deliverLocked(c *hubClient, data []byte) {
	select {
	case c.send <- data:
	default:
		if h.dropped.Add(1)%100 == 1 {
			h.log.Warn("ui client is slow, dropping updates", "client", c.id.String(), "dropped_total", h.dropped.Load())
		}
	}
}

// register adds a client and queues the replay for it.
func (h *Hub) register() (*hubClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &hubClient{
		id:   uuid.New(),
		send: make(chan []byte, h.clientBuffer+len(h.replay)),
		done: make(chan struct{}),
	}
	for _, kind := range []string{api.UpdateConfigLoaded, api.UpdateWindow, api.UpdateTimeline} {
		if data, ok := h.replay[kind]; ok {
			c.send <- data
		}
	}
	h.clients[c.id] = c
	return c, true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// direct sends a message to one client only.
func (h *Hub) direct(c *hubClient, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("encode client message", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(c, data)
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Active reports the identifier and source of the loaded configuration.
func (h *Hub) Active() (uint32, string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.config == nil {
		return 0, "", false
	}
	return h.config.Identifier, h.config.Source, true
}

func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
}

// writePump owns all writes to conn.
func (h *Hub) writePump(c *hubClient, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
