package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartbee/config"
	"smartbee/models"
)

// StatusMonitor derives per-node connectivity from the age of the most recent
// reading. Status is never stored; it is recomputed on every check and every
// query. Transitions are broadcast, and a transition into offline raises a
// critical NODO_OFFLINE alert.
type StatusMonitor struct {
	store    Gateway
	hub      Broadcaster
	notifier Notifier
	logger   *zap.Logger

	online   time.Duration
	warning  time.Duration
	interval time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
	statuses map[string]models.NodeStatus
}

// NewStatusMonitor creates a monitor with the configured windows. notifier
// may be nil.
func NewStatusMonitor(cfg *config.Config, store Gateway, hub Broadcaster, notifier Notifier, logger *zap.Logger) *StatusMonitor {
	return &StatusMonitor{
		store:    store,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		online:   cfg.OnlineWindow,
		warning:  cfg.WarningWindow,
		interval: cfg.StatusCheckInterval,
		lastSeen: make(map[string]time.Time),
		statuses: make(map[string]models.NodeStatus),
	}
}

// Touch records a fresh reading for a node. A node coming back from warning
// or offline transitions immediately instead of waiting for the next tick.
// The transition is computed under the lock but broadcast outside it.
func (m *StatusMonitor) Touch(nodeID string, ts time.Time) {
	m.mu.Lock()
	if ts.After(m.lastSeen[nodeID]) {
		m.lastSeen[nodeID] = ts
	}
	lastSeen := m.lastSeen[nodeID]
	status := models.ComputeStatus(lastSeen, time.Now(), m.online, m.warning)
	previous, known := m.statuses[nodeID]
	m.statuses[nodeID] = status
	m.mu.Unlock()

	if known && previous != status {
		m.logger.Info("Node status changed",
			zap.String("node_id", nodeID),
			zap.String("from", string(previous)),
			zap.String("to", string(status)))
		m.broadcast(nodeID, status, lastSeen)
	}
}

// Status computes the current classification for one node.
func (m *StatusMonitor) Status(nodeID string) models.NodeStatus {
	m.mu.Lock()
	lastSeen := m.lastSeen[nodeID]
	m.mu.Unlock()
	return models.ComputeStatus(lastSeen, time.Now(), m.online, m.warning)
}

// Run seeds last-seen times from the store and then re-checks every node on a
// ticker until the context is cancelled.
func (m *StatusMonitor) Run(ctx context.Context) {
	seen, err := m.store.LastSeenByNode(ctx)
	if err != nil {
		m.logger.Error("Failed to seed node last-seen times, starting empty", zap.Error(err))
	} else {
		m.mu.Lock()
		for nodeID, ts := range seen {
			m.lastSeen[nodeID] = ts
			m.statuses[nodeID] = models.ComputeStatus(ts, time.Now(), m.online, m.warning)
		}
		m.mu.Unlock()
		m.logger.Info("Node status monitor seeded", zap.Int("nodes", len(seen)))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Node status monitor stopped")
			return
		case <-ticker.C:
			m.checkOnce(ctx, time.Now())
		}
	}
}

// checkOnce recomputes every node's status, broadcasting transitions and
// raising an alert for nodes that just went offline.
func (m *StatusMonitor) checkOnce(ctx context.Context, now time.Time) {
	type transition struct {
		nodeID   string
		status   models.NodeStatus
		lastSeen time.Time
	}

	m.mu.Lock()
	var changed []transition
	for nodeID, lastSeen := range m.lastSeen {
		status := models.ComputeStatus(lastSeen, now, m.online, m.warning)
		if m.statuses[nodeID] != status {
			m.statuses[nodeID] = status
			changed = append(changed, transition{nodeID: nodeID, status: status, lastSeen: lastSeen})
		}
	}
	m.mu.Unlock()

	for _, t := range changed {
		m.logger.Info("Node status changed",
			zap.String("node_id", t.nodeID),
			zap.String("to", string(t.status)),
			zap.Time("last_seen", t.lastSeen))
		m.broadcast(t.nodeID, t.status, t.lastSeen)

		if t.status == models.StatusOffline {
			m.raiseOfflineAlert(ctx, t.nodeID, t.lastSeen, now)
		}
	}
}

func (m *StatusMonitor) broadcast(nodeID string, status models.NodeStatus, lastSeen time.Time) {
	update := models.NodeStatusUpdate{NodeID: nodeID, Status: status}
	if !lastSeen.IsZero() {
		update.LastSeen = &lastSeen
	}
	m.hub.BroadcastNodeStatus(update)
}

// raiseOfflineAlert persists and fans out a NODO_OFFLINE alert. Persist
// failure suppresses the broadcast, same as the reading pipeline.
func (m *StatusMonitor) raiseOfflineAlert(ctx context.Context, nodeID string, lastSeen, now time.Time) {
	minutes := now.Sub(lastSeen).Minutes()
	alert := &models.AlertEvent{
		NodeID:      nodeID,
		Kind:        models.NodoOffline,
		Severity:    models.SeverityCritical,
		Message:     fmt.Sprintf("Nodo sin datos desde hace %.0f minutos", minutes),
		Value:       minutes,
		TriggeredAt: now,
	}

	if err := m.store.InsertAlert(ctx, alert); err != nil {
		persistFailures.Inc()
		m.logger.Error("Failed to persist offline alert, suppressing broadcast",
			zap.String("node_id", nodeID),
			zap.Error(err))
		return
	}
	alertsTriggered.WithLabelValues(string(models.NodoOffline)).Inc()

	m.hub.BroadcastAlert(alert)
	if m.notifier != nil {
		if err := m.notifier.NotifyAlert(alert); err != nil {
			m.logger.Error("Failed to send offline alert notification",
				zap.String("node_id", nodeID),
				zap.Error(err))
		}
	}
}
