package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cxd309/avsim-engine/internal/core"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Messages buffered per client before it is dropped.
	sendBuffer = 256
)

// Event names carried by Message.
const (
	EventTick    = "tick"
	EventArrival = "arrival"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame sent to clients.
type Message struct {
	SimulationID string              `json:"simulation_id"`
	Event        string              `json:"event"`
	Tick         *core.TickLog       `json:"tick,omitempty"`
	Arrival      *core.ArrivalReport `json:"arrival,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	simulationID string
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by simulation ID
	sessions map[string]map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	// done is closed when Run returns.
	done chan struct{}

	clients atomic.Int64
	logger  *slog.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop and returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ctx.Done():
			for _, clients := range h.sessions {
				for client := range clients {
					h.unregisterClient(client)
				}
			}
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int { return int(h.clients.Load()) }

// ServeWS upgrades the request and subscribes the connection to simulationID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, simulationID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		simulationID: simulationID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastTick queues a tick row, and one message per arrival in it, for the
// subscribers of simulationID.
func (h *Hub) BroadcastTick(simulationID string, tick core.TickLog) {
	arrivals := tick.Arrivals
	tick.Arrivals = nil
	h.queue(&Message{SimulationID: simulationID, Event: EventTick, Tick: &tick})
	for i := range arrivals {
		h.queue(&Message{SimulationID: simulationID, Event: EventArrival, Arrival: &arrivals[i]})
	}
}

// queue hands a message to the event loop; it is discarded once the hub stops.
func (h *Hub) queue(m *Message) {
	select {
	case h.broadcast <- m:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	if h.sessions[client.simulationID] == nil {
		h.sessions[client.simulationID] = make(map[*Client]bool)
	}
	h.sessions[client.simulationID][client] = true
	h.clients.Add(1)

	h.logger.Debug("Client registered",
		"simulation", client.simulationID, "clients", len(h.sessions[client.simulationID]))
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.sessions[client.simulationID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	h.clients.Add(-1)

	if len(clients) == 0 {
		delete(h.sessions, client.simulationID)
	}
	h.logger.Debug("Client unregistered",
		"simulation", client.simulationID, "remaining", len(clients))
}

func (h *Hub) broadcastMessage(message *Message) {
	clients, ok := h.sessions[message.SimulationID]
	if !ok {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", "error", err)
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Dropping slow client", "simulation", message.SimulationID)
			h.unregisterClient(client)
		}
	}
}

// readPump keeps the connection alive and unregisters the client when it goes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read failed", "error", err)
			}
			return
		}
	}
}

// writePump sends one websocket frame per queued message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
