package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartbee/config"
	"smartbee/models"
)

// Broadcaster is the fan-out boundary the pipeline and status monitor push
// events through. Implemented by Hub.
type Broadcaster interface {
	BroadcastReading(r *models.Reading)
	BroadcastAlert(a *models.AlertEvent)
	BroadcastNodeStatus(u models.NodeStatusUpdate)
}

// Notifier is an optional out-of-band alert channel (Telegram).
type Notifier interface {
	NotifyAlert(a *models.AlertEvent) error
}

// inboundMessage is one raw transport message awaiting processing.
type inboundMessage struct {
	nodeID  string
	payload []byte
	arrival time.Time
}

// Pipeline runs each inbound message through normalize → persist → evaluate →
// broadcast. Transport callbacks hand messages off through a bounded queue so
// they never block; a pool of workers drains it, which means messages from
// different nodes may be processed concurrently while a single worker always
// handles one message start to finish.
//
// Every failure below this boundary is recovered locally: the message is
// dropped with a log line and the next one processes normally. Nothing is
// surfaced back to the transport.
type Pipeline struct {
	store    Gateway
	rules    *RuleEngine
	hub      Broadcaster
	notifier Notifier
	status   *StatusMonitor
	logger   *zap.Logger

	queue   chan inboundMessage
	workers int

	typesMu   sync.RWMutex
	nodeTypes map[string]string
}

// NewPipeline wires the processing stages together. notifier and status may
// be nil.
func NewPipeline(cfg *config.Config, store Gateway, rules *RuleEngine, hub Broadcaster, notifier Notifier, status *StatusMonitor, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		rules:     rules,
		hub:       hub,
		notifier:  notifier,
		status:    status,
		logger:    logger,
		queue:     make(chan inboundMessage, cfg.QueueSize),
		workers:   cfg.Workers,
		nodeTypes: make(map[string]string),
	}
}

// Enqueue hands a raw message to the pipeline without blocking the transport
// callback. When the queue is full the message is dropped and counted.
func (p *Pipeline) Enqueue(nodeID string, payload []byte) {
	messagesReceived.Inc()

	select {
	case p.queue <- inboundMessage{nodeID: nodeID, payload: payload, arrival: time.Now()}:
	default:
		messagesDropped.Inc()
		p.logger.Warn("Ingest queue full, message dropped",
			zap.String("node_id", nodeID))
	}
}

// Start launches the worker pool. The returned WaitGroup completes once every
// worker has observed cancellation.
func (p *Pipeline) Start(ctx context.Context) *sync.WaitGroup {
	p.logger.Info("Starting ingestion pipeline",
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.queue)))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-p.queue:
					p.process(ctx, msg)
				}
			}
		}()
	}
	return &wg
}

// process runs one message through the full pipeline. Persistence of the
// reading happens before alert evaluation, which happens before any
// broadcast, so an observer never sees an event for a reading it could not
// also query.
func (p *Pipeline) process(ctx context.Context, msg inboundMessage) {
	reading, err := Normalize(msg.nodeID, msg.payload, msg.arrival)
	if err != nil {
		messagesInvalid.Inc()
		p.logger.Warn("Dropping undecodable payload",
			zap.String("node_id", msg.nodeID),
			zap.Error(err))
		return
	}
	reading.NodeType = p.nodeType(ctx, msg.nodeID)

	if err := p.store.InsertReading(ctx, reading); err != nil {
		persistFailures.Inc()
		p.logger.Error("Failed to persist reading, skipping downstream steps",
			zap.String("node_id", reading.NodeID),
			zap.Error(err))
		return
	}
	readingsPersisted.Inc()

	if p.status != nil {
		p.status.Touch(reading.NodeID, reading.Timestamp)
	}

	// Heartbeat: no extractable metrics. Persisted for audit above, but never
	// evaluated for alerts; observers still get the connectivity signal.
	if !reading.HasMetrics() {
		p.hub.BroadcastReading(reading)
		return
	}

	alert := p.rules.Evaluate(reading)
	if alert != nil {
		if err := p.store.InsertAlert(ctx, alert); err != nil {
			persistFailures.Inc()
			p.logger.Error("Failed to persist alert, suppressing broadcast",
				zap.String("node_id", alert.NodeID),
				zap.String("kind", string(alert.Kind)),
				zap.Error(err))
			alert = nil
		} else {
			alertsTriggered.WithLabelValues(string(alert.Kind)).Inc()
			p.logger.Warn("Alert triggered",
				zap.String("node_id", alert.NodeID),
				zap.String("kind", string(alert.Kind)),
				zap.String("severity", string(alert.Severity)),
				zap.Float64("value", alert.Value))
		}
	}

	p.hub.BroadcastReading(reading)
	if alert != nil {
		p.hub.BroadcastAlert(alert)
		if p.notifier != nil {
			if err := p.notifier.NotifyAlert(alert); err != nil {
				p.logger.Error("Failed to send alert notification",
					zap.String("node_id", alert.NodeID),
					zap.Error(err))
			}
		}
	}
}

// nodeType resolves a node's registered type through a cache. Unknown nodes
// are not cached so late registration is picked up; lookup failures degrade
// to an ungated reading rather than stalling the message.
func (p *Pipeline) nodeType(ctx context.Context, nodeID string) string {
	p.typesMu.RLock()
	tipo, ok := p.nodeTypes[nodeID]
	p.typesMu.RUnlock()
	if ok {
		return tipo
	}

	tipo, err := p.store.NodeType(ctx, nodeID)
	if err != nil {
		p.logger.Warn("Node type lookup failed",
			zap.String("node_id", nodeID),
			zap.Error(err))
		return ""
	}
	if tipo != "" {
		p.typesMu.Lock()
		p.nodeTypes[nodeID] = tipo
		p.typesMu.Unlock()
	}
	return tipo
}
