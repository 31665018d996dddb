package services

import (
	"testing"
	"time"
)

func TestNormalizeCurrentFieldNames(t *testing.T) {
	t.Parallel()

	arrival := time.Now()
	payload := []byte(`{"temperature": 34.5, "humidity": 60, "weight": 45.2, "battery": 80, "signal": -70}`)

	reading, err := Normalize("BEE001", payload, arrival)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.NodeID != "BEE001" {
		t.Fatalf("expected node BEE001, got %s", reading.NodeID)
	}
	if reading.Temperature == nil || *reading.Temperature != 34.5 {
		t.Fatalf("expected temperature 34.5, got %v", reading.Temperature)
	}
	if reading.Humidity == nil || *reading.Humidity != 60 {
		t.Fatalf("expected humidity 60, got %v", reading.Humidity)
	}
	if reading.Weight == nil || *reading.Weight != 45.2 {
		t.Fatalf("expected weight 45.2, got %v", reading.Weight)
	}
	if reading.Battery == nil || *reading.Battery != 80 {
		t.Fatalf("expected battery 80, got %v", reading.Battery)
	}
	if reading.Signal == nil || *reading.Signal != -70 {
		t.Fatalf("expected signal -70, got %v", reading.Signal)
	}
}

func TestNormalizeLegacyFieldNames(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"temperatura": 34.5, "humedad": 60, "peso": 45.2, "nivel_bateria": 80, "fuerza_senal": -70}`)

	reading, err := Normalize("BEE001", payload, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Temperature == nil || *reading.Temperature != 34.5 {
		t.Fatalf("expected temperature 34.5 from legacy alias, got %v", reading.Temperature)
	}
	if reading.Humidity == nil || *reading.Humidity != 60 {
		t.Fatalf("expected humidity 60 from legacy alias, got %v", reading.Humidity)
	}
	if reading.Weight == nil || *reading.Weight != 45.2 {
		t.Fatalf("expected weight 45.2 from legacy alias, got %v", reading.Weight)
	}
	if reading.Battery == nil || *reading.Battery != 80 {
		t.Fatalf("expected battery 80 from legacy alias, got %v", reading.Battery)
	}
	if reading.Signal == nil || *reading.Signal != -70 {
		t.Fatalf("expected signal -70 from legacy alias, got %v", reading.Signal)
	}
}

func TestNormalizeAliasPriority(t *testing.T) {
	t.Parallel()

	// When both naming schemes appear, the first alias wins.
	payload := []byte(`{"temperature": 30.0, "temperatura": 99.0}`)

	reading, err := Normalize("BEE001", payload, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Temperature == nil || *reading.Temperature != 30.0 {
		t.Fatalf("expected temperature 30.0 from preferred alias, got %v", reading.Temperature)
	}
}

func TestNormalizeStringEncodedNumbers(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"temperature": "34.5"}`)

	reading, err := Normalize("BEE001", payload, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Temperature == nil || *reading.Temperature != 34.5 {
		t.Fatalf("expected temperature 34.5 from string field, got %v", reading.Temperature)
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	t.Parallel()

	arrival := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Sensor-reported timestamp is preferred.
	payload := []byte(`{"temperature": 30, "timestamp": "2024-01-01T00:00:00Z"}`)
	reading, err := Normalize("BEE001", payload, arrival)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !reading.Timestamp.Equal(want) {
		t.Fatalf("expected sensor timestamp %v, got %v", want, reading.Timestamp)
	}

	// Missing timestamp falls back to arrival time.
	reading, err = Normalize("BEE001", []byte(`{"temperature": 30}`), arrival)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reading.Timestamp.Equal(arrival) {
		t.Fatalf("expected arrival time %v, got %v", arrival, reading.Timestamp)
	}

	// Unparseable timestamp also falls back to arrival time.
	reading, err = Normalize("BEE001", []byte(`{"temperature": 30, "timestamp": "yesterday"}`), arrival)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reading.Timestamp.Equal(arrival) {
		t.Fatalf("expected arrival time for bad timestamp, got %v", reading.Timestamp)
	}
}

func TestNormalizeHeartbeat(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"status": "ok", "uptime": 12345}`)

	reading, err := Normalize("BEE001", payload, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.HasMetrics() {
		t.Fatal("expected a heartbeat reading with no metrics")
	}
	if string(reading.RawPayload) != string(payload) {
		t.Fatal("expected original payload retained for audit")
	}
}

func TestNormalizeMalformedPayload(t *testing.T) {
	t.Parallel()

	if _, err := Normalize("BEE001", []byte("not json"), time.Now()); err == nil {
		t.Fatal("expected error for undecodable payload")
	}
	if _, err := Normalize("BEE001", []byte(`[1,2,3]`), time.Now()); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}
