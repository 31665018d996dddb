package services

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"smartbee/models"
)

// outbound is one event queued for fan-out. room is the affected node ID, or
// "" for events that concern every session regardless of subscriptions.
type outbound struct {
	event string
	room  string
	data  []byte
}

type roomOp struct {
	client *Client
	nodeID string
}

// Hub owns the set of connected observer sessions and their room
// memberships. All session state is confined to the Run loop; the rest of the
// system talks to it only through channels, so broadcasts never race with
// connects and disconnects.
//
// Delivery rules: alert events go to every session. Reading and status
// events go to sessions subscribed to the affected node's room, and to
// sessions with no subscriptions at all (a fresh session receives the full
// feed until it scopes itself by joining rooms). Delivery is best-effort,
// at-most-once: a session whose send buffer is full is dropped so it can
// never delay the others.
type Hub struct {
	logger *zap.Logger

	register   chan *Client
	unregister chan *Client
	joins      chan roomOp
	leaves     chan roomOp
	events     chan outbound

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

// NewHub creates a Hub. Call Run before using it.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		joins:      make(chan roomOp),
		leaves:     make(chan roomOp),
		events:     make(chan outbound, 256),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

// Run processes registration, room, and broadcast operations until the
// context is cancelled. It is the only goroutine touching session state.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			if client.rooms == nil {
				client.rooms = make(map[string]bool)
			}
			h.clients[client] = true
			observersConnected.Inc()
			h.logger.Info("Observer session connected",
				zap.String("session_id", client.SessionID),
				zap.String("user_id", client.Identity.UserID),
				zap.Int("sessions", len(h.clients)))

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
			}

		case op := <-h.joins:
			// Idempotent: joining an already-joined room is a no-op.
			if !h.clients[op.client] {
				continue
			}
			if h.rooms[op.nodeID] == nil {
				h.rooms[op.nodeID] = make(map[*Client]bool)
			}
			h.rooms[op.nodeID][op.client] = true
			op.client.rooms[op.nodeID] = true

		case op := <-h.leaves:
			if !h.clients[op.client] {
				continue
			}
			delete(op.client.rooms, op.nodeID)
			if members := h.rooms[op.nodeID]; members != nil {
				delete(members, op.client)
				if len(members) == 0 {
					delete(h.rooms, op.nodeID)
				}
			}

		case msg := <-h.events:
			h.deliver(msg)
		}
	}
}

// deliver fans one event out to the matching sessions. A blocked session is
// dropped instead of awaited so one dead socket cannot stall the rest.
func (h *Hub) deliver(msg outbound) {
	for client := range h.clients {
		if !h.wants(client, msg) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			h.logger.Warn("Observer send buffer full, dropping session",
				zap.String("session_id", client.SessionID))
			h.drop(client)
		}
	}
}

func (h *Hub) wants(client *Client, msg outbound) bool {
	if msg.room == "" {
		return true
	}
	if len(client.rooms) == 0 {
		return true
	}
	return client.rooms[msg.room]
}

// drop releases everything owned by a session. Only called from Run.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	for nodeID := range client.rooms {
		if members := h.rooms[nodeID]; members != nil {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, nodeID)
			}
		}
	}
	close(client.send)
	observersConnected.Dec()
	h.logger.Info("Observer session disconnected",
		zap.String("session_id", client.SessionID),
		zap.Int("sessions", len(h.clients)))
}

// Register adds a connected session to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a session and releases its resources.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Join subscribes a session to a node-scoped room.
func (h *Hub) Join(client *Client, nodeID string) {
	h.joins <- roomOp{client: client, nodeID: nodeID}
}

// Leave unsubscribes a session from a node-scoped room.
func (h *Hub) Leave(client *Client, nodeID string) {
	h.leaves <- roomOp{client: client, nodeID: nodeID}
}

// BroadcastReading pushes a reading-updated event. Readings without metrics
// are pushed as-is and serve as heartbeat signals.
func (h *Hub) BroadcastReading(r *models.Reading) {
	h.emit(models.EventReadingUpdated, r.NodeID, r)
}

// BroadcastAlert pushes an alert-raised event to every session.
func (h *Hub) BroadcastAlert(a *models.AlertEvent) {
	h.emit(models.EventAlertRaised, "", a)
}

// BroadcastNodeStatus pushes a node-status event.
func (h *Hub) BroadcastNodeStatus(u models.NodeStatusUpdate) {
	h.emit(models.EventNodeStatus, u.NodeID, u)
}

func (h *Hub) emit(event, room string, data any) {
	payload, err := json.Marshal(models.Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("event", event), zap.Error(err))
		return
	}
	eventsBroadcast.WithLabelValues(event).Inc()
	h.events <- outbound{event: event, room: room, data: payload}
}
