package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartbee_messages_received_total",
		Help: "Total inbound transport messages received.",
	})
	messagesInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartbee_messages_invalid_total",
		Help: "Total messages dropped because the payload failed to decode.",
	})
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartbee_messages_dropped_total",
		Help: "Total messages dropped because the ingest queue was full.",
	})
	readingsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartbee_readings_persisted_total",
		Help: "Total readings written to the store.",
	})
	persistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartbee_persist_failures_total",
		Help: "Total store writes that failed.",
	})
	alertsTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartbee_alerts_triggered_total",
		Help: "Total alerts raised, labelled by kind.",
	}, []string{"kind"})
	eventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartbee_events_broadcast_total",
		Help: "Total real-time events pushed to observers, labelled by event.",
	}, []string{"event"})
	observersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartbee_observers_connected",
		Help: "Number of currently connected observer sessions.",
	})
)
