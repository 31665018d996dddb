package models

import (
	"time"
)

// Reading is one canonical telemetry sample from one node. Metric fields are
// pointers because any subset may be present; an absent metric is nil, never
// assumed zero.
type Reading struct {
	NodeID      string    `json:"nodeId"`
	NodeType    string    `json:"nodeType,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Weight      *float64  `json:"weight,omitempty"`
	Battery     *float64  `json:"battery,omitempty"`
	Signal      *float64  `json:"signal,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// RawPayload is the original decoded payload, retained for audit. It is
	// persisted alongside the structured fields but never sent to observers.
	RawPayload []byte `json:"-"`
}

// HasMetrics reports whether at least one canonical metric was extracted.
// A reading without metrics is a connectivity heartbeat: it is persisted but
// never evaluated for alerts.
func (r *Reading) HasMetrics() bool {
	return r.Temperature != nil || r.Humidity != nil || r.Weight != nil ||
		r.Battery != nil || r.Signal != nil
}

// Aggregate is one time bucket of aggregated sensor history for a node.
type Aggregate struct {
	Bucket         time.Time `json:"bucket"`
	AvgTemperature *float64  `json:"avg_temperature,omitempty"`
	MinTemperature *float64  `json:"min_temperature,omitempty"`
	MaxTemperature *float64  `json:"max_temperature,omitempty"`
	AvgHumidity    *float64  `json:"avg_humidity,omitempty"`
	MinHumidity    *float64  `json:"min_humidity,omitempty"`
	MaxHumidity    *float64  `json:"max_humidity,omitempty"`
	AvgWeight      *float64  `json:"avg_weight,omitempty"`
	MinWeight      *float64  `json:"min_weight,omitempty"`
	MaxWeight      *float64  `json:"max_weight,omitempty"`
	ReadingsCount  int64     `json:"readings_count"`
}
