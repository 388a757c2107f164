package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"lessonsync_go/models"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
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
)

// Hub keeps the connected dashboards and fans sync progress out to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound messages, tagged with the group they concern.
	broadcast chan outbound

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mutex sync.RWMutex
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// Buffered channel of outbound messages.
	send chan []byte

	userID uint

	// Only events of this group are delivered; zero means every group.
	groupID uint
}

// Message is the envelope written to the socket
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type outbound struct {
	groupID uint
	data    []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// NewClient creates a client that has not been registered yet
func (h *Hub) NewClient(userID, groupID uint) *Client {
	return &Client{hub: h, send: make(chan []byte, 256), userID: userID, groupID: groupID}
}

func (c *Client) wants(groupID uint) bool {
	return c.groupID == 0 || groupID == 0 || c.groupID == groupID
}

// Run starts the hub loop; it returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{"user_id": client.userID, "group_id": client.groupID}).Debug("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			logrus.WithField("user_id", client.userID).Debug("WebSocket client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if !client.wants(message.groupID) {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Stop ends Run and closes every client
func (h *Hub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Register adds a client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish delivers a sync progress event to dashboards watching its group.
// It never blocks the operation that emits it.
func (h *Hub) Publish(event models.SyncEvent) {
	h.send(event.GroupID, Message{Type: "sync", Data: event})
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message interface{}) {
	h.send(0, message)
}

func (h *Hub) send(groupID uint, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logrus.WithError(err).Error("Error marshaling WebSocket message")
		return
	}
	select {
	case h.broadcast <- outbound{groupID: groupID, data: data}:
	default:
		logrus.Warn("Broadcast channel is full")
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeFiberWS handles a Fiber websocket connection until it closes
func (h *Hub) ServeFiberWS(c *fiberws.Conn, userID, groupID uint) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("user_id", userID).Errorf("ServeFiberWS panic: %v", r)
		}
	}()

	client := h.NewClient(userID, groupID)
	if !h.Register(client) {
		c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.CloseGoingAway, "server shutting down"))
		return
	}

	go h.writePump(client, c)
	// the read pump stays on this goroutine so the Fiber connection is not shared
	h.readPump(client, c)
}

func (h *Hub) writePump(client *Client, c *fiberws.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.Unregister(client)
		c.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.WriteMessage(fiberws.CloseMessage, []byte{})
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("user_id", client.userID).Debug("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client, c *fiberws.Conn) {
	defer func() {
		h.Unregister(client)
		c.Close()
	}()

	c.SetReadLimit(maxMessageSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", client.userID).Warn("WebSocket unexpected close")
			}
			return
		}
	}
}
