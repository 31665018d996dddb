package services

import (
	"encoding/json"
	"fmt"
	"time"

	"smartbee/models"
)

// metricAliases maps each canonical metric to its known payload field names in
// priority order. Sensor firmware has gone through several naming schemes
// (Spanish column names, snake_case REST names); the first alias present in a
// payload wins.
var metricAliases = []struct {
	metric  string
	aliases []string
}{
	{"temperature", []string{"temperature", "temperatura", "temp"}},
	{"humidity", []string{"humidity", "humedad", "hum"}},
	{"weight", []string{"weight", "peso"}},
	{"battery", []string{"battery", "bateria", "nivel_bateria", "battery_level"}},
	{"signal", []string{"signal", "rssi", "fuerza_senal", "signal_strength"}},
}

// timestampFields are checked in order for a sensor-reported sample time.
var timestampFields = []string{"timestamp", "fecha", "ts"}

// Normalize decodes a raw payload and coerces it into a canonical Reading.
// Only a payload that fails to decode as a JSON object is an error; missing
// fields are fine and a reading with zero extractable metrics is returned as
// a heartbeat. The original payload is retained in RawPayload for audit.
func Normalize(nodeID string, payload []byte, arrival time.Time) (*models.Reading, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	reading := &models.Reading{
		NodeID:     nodeID,
		Timestamp:  arrival,
		RawPayload: payload,
	}

	for _, entry := range metricAliases {
		for _, alias := range entry.aliases {
			if v, ok := numericField(fields, alias); ok {
				setMetric(reading, entry.metric, v)
				break
			}
		}
	}

	for _, field := range timestampFields {
		if ts, ok := timeField(fields, field); ok {
			reading.Timestamp = ts
			break
		}
	}

	return reading, nil
}

// numericField extracts a float value, tolerating string-encoded numbers some
// firmware versions emit.
func numericField(fields map[string]any, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func timeField(fields map[string]any, key string) (time.Time, bool) {
	raw, ok := fields[key].(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func setMetric(r *models.Reading, metric string, value float64) {
	switch metric {
	case "temperature":
		r.Temperature = &value
	case "humidity":
		r.Humidity = &value
	case "weight":
		r.Weight = &value
	case "battery":
		r.Battery = &value
	case "signal":
		r.Signal = &value
	}
}
