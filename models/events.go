package models

import (
	"time"
)

// Outbound real-time event names pushed to observers.
const (
	EventReadingUpdated = "reading-updated"
	EventAlertRaised    = "alert-raised"
	EventNodeStatus     = "node-status"
)

// Envelope wraps every event sent over a websocket connection.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NodeStatusUpdate is pushed when a node transitions between status buckets.
type NodeStatusUpdate struct {
	NodeID   string     `json:"nodeId"`
	Status   NodeStatus `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// SubscribeRequest is the inbound message an observer sends to join or leave
// a node-scoped room after connecting.
type SubscribeRequest struct {
	Action string `json:"action"` // "join" or "leave"
	NodeID string `json:"nodeId"`
}
