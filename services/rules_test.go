package services

import (
	"testing"
	"time"

	"smartbee/config"
	"smartbee/models"
)

func testConfig() *config.Config {
	return &config.Config{
		TemperatureMax:       37.0,
		TemperatureMin:       15.0,
		HumidityMax:          80.0,
		HumidityMin:          30.0,
		WeightMin:            30.0,
		BatteryMin:           20.0,
		WeightAlertNodeTypes: []string{"colmena"},
		OnlineWindow:         10 * time.Minute,
		WarningWindow:        60 * time.Minute,
		StatusCheckInterval:  time.Second,
		QueueSize:            16,
		Workers:              1,
	}
}

func ptr(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	t.Parallel()

	engine := NewRuleEngine(testConfig())

	tests := []struct {
		name      string
		reading   models.Reading
		wantKind  models.AlertKind
		wantSev   models.Severity
		wantValue float64
		wantNone  bool
	}{
		{
			name:      "high temperature",
			reading:   models.Reading{Temperature: ptr(40.2)},
			wantKind:  models.TempAlta,
			wantSev:   models.SeverityHigh,
			wantValue: 40.2,
		},
		{
			name:     "temperature at upper threshold is not an alert",
			reading:  models.Reading{Temperature: ptr(37.0)},
			wantNone: true,
		},
		{
			name:     "temperature at lower threshold is not an alert",
			reading:  models.Reading{Temperature: ptr(15.0)},
			wantNone: true,
		},
		{
			name:      "low temperature",
			reading:   models.Reading{Temperature: ptr(14.9)},
			wantKind:  models.TempBaja,
			wantSev:   models.SeverityHigh,
			wantValue: 14.9,
		},
		{
			name:      "high humidity",
			reading:   models.Reading{Humidity: ptr(90.0)},
			wantKind:  models.HumAlta,
			wantSev:   models.SeverityMedium,
			wantValue: 90.0,
		},
		{
			name:      "low humidity",
			reading:   models.Reading{Humidity: ptr(25.0)},
			wantKind:  models.HumBaja,
			wantSev:   models.SeverityMedium,
			wantValue: 25.0,
		},
		{
			name:      "temperature wins over humidity",
			reading:   models.Reading{Temperature: ptr(40.0), Humidity: ptr(90.0)},
			wantKind:  models.TempAlta,
			wantSev:   models.SeverityHigh,
			wantValue: 40.0,
		},
		{
			name:      "low weight on weight-bearing node",
			reading:   models.Reading{NodeType: "colmena", Weight: ptr(12.0)},
			wantKind:  models.PesoBajo,
			wantSev:   models.SeverityMedium,
			wantValue: 12.0,
		},
		{
			name:     "low weight gated off for environmental node",
			reading:  models.Reading{NodeType: "ambiental", Weight: ptr(12.0)},
			wantNone: true,
		},
		{
			name:      "low weight ungated for unknown node type",
			reading:   models.Reading{Weight: ptr(12.0)},
			wantKind:  models.PesoBajo,
			wantSev:   models.SeverityMedium,
			wantValue: 12.0,
		},
		{
			name:      "low battery only when nothing else matched",
			reading:   models.Reading{Temperature: ptr(25.0), Battery: ptr(10.0)},
			wantKind:  models.BateriaBaja,
			wantSev:   models.SeverityLow,
			wantValue: 10.0,
		},
		{
			name:      "higher-priority rule shadows low battery",
			reading:   models.Reading{Temperature: ptr(40.0), Battery: ptr(10.0)},
			wantKind:  models.TempAlta,
			wantSev:   models.SeverityHigh,
			wantValue: 40.0,
		},
		{
			name:     "in-range metrics produce nothing",
			reading:  models.Reading{Temperature: ptr(25.0), Humidity: ptr(55.0), Weight: ptr(45.0), Battery: ptr(80.0)},
			wantNone: true,
		},
		{
			name:     "absent metrics never match",
			reading:  models.Reading{},
			wantNone: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.reading.NodeID = "BEE001"
			tc.reading.Timestamp = time.Now()

			alert := engine.Evaluate(&tc.reading)
			if tc.wantNone {
				if alert != nil {
					t.Fatalf("expected no alert, got %s", alert.Kind)
				}
				return
			}
			if alert == nil {
				t.Fatalf("expected %s alert, got none", tc.wantKind)
			}
			if alert.Kind != tc.wantKind {
				t.Fatalf("expected kind %s, got %s", tc.wantKind, alert.Kind)
			}
			if alert.Severity != tc.wantSev {
				t.Fatalf("expected severity %s, got %s", tc.wantSev, alert.Severity)
			}
			if alert.Value != tc.wantValue {
				t.Fatalf("expected value %v, got %v", tc.wantValue, alert.Value)
			}
			if alert.NodeID != "BEE001" {
				t.Fatalf("expected node BEE001, got %s", alert.NodeID)
			}
			if alert.Message == "" {
				t.Fatal("expected a human-readable message")
			}
		})
	}
}

func TestEvaluateAtMostOneAlert(t *testing.T) {
	t.Parallel()

	engine := NewRuleEngine(testConfig())

	// Every threshold violated at once still yields exactly one alert, the
	// first in priority order.
	reading := &models.Reading{
		NodeID:      "BEE001",
		NodeType:    "colmena",
		Temperature: ptr(45.0),
		Humidity:    ptr(95.0),
		Weight:      ptr(5.0),
		Battery:     ptr(5.0),
		Timestamp:   time.Now(),
	}

	alert := engine.Evaluate(reading)
	if alert == nil || alert.Kind != models.TempAlta {
		t.Fatalf("expected TEMP_ALTA, got %+v", alert)
	}
}
