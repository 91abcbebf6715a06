package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"docintel/internal/logger"
	"docintel/internal/view"
	"docintel/internal/workspace"

	"github.com/gorilla/websocket"
)

const (
	hubModule    = "Hub"
	writeTimeout = 10 * time.Second
	sendBuffer   = 64

	registerTimeout = 5 * time.Second
)

// Event is what websocket clients receive.
type Event struct {
	Type    string          `json:"type"` // "state" or "alert"
	State   *view.Workspace `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	// revision of the state the client received on connect; older states
	// still queued on the subscription are not sent to it
	since uint64
}

// alert is released to clients once the state it was raised against has
// been sent.
type alert struct {
	revision uint64
	data     []byte
}

// Hub fans workspace changes and alerts out to websocket clients in one
// order. All connection bookkeeping happens on the Run goroutine.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *wsClient
	unregister chan *wsClient
	alerts     chan alert
	done       chan struct{}
	clients    map[*wsClient]bool
	store      *workspace.Store
	render     func(workspace.Snapshot) view.Workspace
	log        logger.ILogger
}

func NewHub(store *workspace.Store, render func(workspace.Snapshot) view.Workspace, log logger.ILogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		alerts:     make(chan alert),
		done:       make(chan struct{}),
		clients:    make(map[*wsClient]bool),
		store:      store,
		render:     render,
		log:        log,
	}
}

// Alert implements controller.Alerter. Clients receive the alert after every
// state change committed before it. Alerts raised after Run has returned are
// logged only.
func (h *Hub) Alert(message string) {
	h.log.Warn(hubModule, "Alert", map[string]interface{}{"message": message})
	data, err := json.Marshal(Event{Type: "alert", Message: message})
	if err != nil {
		h.log.Error(hubModule, "Failed to encode alert", map[string]interface{}{"error": err})
		return
	}
	select {
	case h.alerts <- alert{revision: h.store.Snapshot().Revision, data: data}:
	case <-h.done:
	}
}

// Run serves connections and forwards every store change and alert until ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	sub := h.store.Subscribe()
	defer sub.Close()
	defer close(h.done)
	defer func() {
		for c := range h.clients {
			close(c.send)
		}
	}()

	var (
		sent    uint64 // latest revision fanned out
		pending []alert
	)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			snap := h.store.Snapshot()
			if data, err := h.encodeState(snap); err == nil {
				c.send <- data
			}
			c.since = snap.Revision
			h.clients[c] = true
			h.log.Debug(hubModule, "Client connected", map[string]interface{}{"clients": len(h.clients)})
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := h.encodeState(snap)
			if err != nil {
				h.log.Error(hubModule, "Failed to encode state", map[string]interface{}{"error": err})
				continue
			}
			h.fanOut(data, snap.Revision)
			sent = snap.Revision
			pending = h.release(pending, sent)
		case a := <-h.alerts:
			pending = h.release(append(pending, a), sent)
		}
	}
}

// release sends the alerts whose state has gone out and returns the rest.
func (h *Hub) release(pending []alert, sent uint64) []alert {
	rest := pending[:0]
	for _, a := range pending {
		if a.revision <= sent {
			h.fanOut(a.data, 0)
		} else {
			rest = append(rest, a)
		}
	}
	return rest
}

func (h *Hub) encodeState(snap workspace.Snapshot) ([]byte, error) {
	state := h.render(snap)
	return json.Marshal(Event{Type: "state", State: &state})
}

// fanOut sends data to every client that has not already seen a newer state.
// A zero revision goes to everyone. Clients that cannot keep up are dropped.
func (h *Hub) fanOut(data []byte, revision uint64) {
	for c := range h.clients {
		if revision != 0 && revision <= c.since {
			continue
		}
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn(hubModule, "Dropped slow client", nil)
		}
	}
}

// ServeWS upgrades the request. The client receives the current state first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(hubModule, "Upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-time.After(registerTimeout):
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump only watches for the peer going away.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop gives up when the hub has stopped.
func (h *Hub) drop(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	case <-time.After(registerTimeout):
	}
}
