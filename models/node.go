package models

import (
	"time"
)

// NodeStatus classifies a node's connectivity from the age of its most recent
// reading. It is derived, never stored.
type NodeStatus string

const (
	StatusOnline  NodeStatus = "online"
	StatusWarning NodeStatus = "warning"
	StatusOffline NodeStatus = "offline"
)

// Default status windows, overridable through config.
const (
	DefaultOnlineWindow  = 10 * time.Minute
	DefaultWarningWindow = 60 * time.Minute
)

// ComputeStatus classifies a node given its last reading time. A zero
// lastSeen means the node has never reported and is offline. Boundary ages
// resolve to the stricter bucket: exactly 10 minutes is warning, exactly 60
// is offline.
func ComputeStatus(lastSeen, now time.Time, online, warning time.Duration) NodeStatus {
	if lastSeen.IsZero() {
		return StatusOffline
	}
	age := now.Sub(lastSeen)
	switch {
	case age < online:
		return StatusOnline
	case age < warning:
		return StatusWarning
	default:
		return StatusOffline
	}
}

// Identity is the authorization context an observer presents at connect time.
// It comes from the external auth collaborator; the core only carries it. Role
// scoping of historical queries belongs to that collaborator as well.
type Identity struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}
