package services

import (
	"fmt"

	"smartbee/config"
	"smartbee/models"
)

// Rule is one threshold check. Matches returns the offending metric value
// when the rule fires; rules never fire on absent metrics.
type Rule struct {
	Kind     models.AlertKind
	Severity models.Severity
	Matches  func(*models.Reading) (float64, bool)
	Message  func(value float64) string
}

// RuleEngine maps a reading to at most one alert. Rules are evaluated in
// declaration order and the first match wins, so a reading never reports two
// violations at once even when several thresholds are exceeded.
type RuleEngine struct {
	rules       []Rule
	weightTypes map[string]bool
}

// NewRuleEngine builds the fixed rule set from configured thresholds.
func NewRuleEngine(cfg *config.Config) *RuleEngine {
	weightTypes := make(map[string]bool, len(cfg.WeightAlertNodeTypes))
	for _, t := range cfg.WeightAlertNodeTypes {
		weightTypes[t] = true
	}

	e := &RuleEngine{weightTypes: weightTypes}
	e.rules = []Rule{
		{
			Kind:     models.TempAlta,
			Severity: models.SeverityHigh,
			Matches: func(r *models.Reading) (float64, bool) {
				if r.Temperature != nil && *r.Temperature > cfg.TemperatureMax {
					return *r.Temperature, true
				}
				return 0, false
			},
			Message: func(v float64) string {
				return fmt.Sprintf("Temperatura alta detectada: %.1f°C", v)
			},
		},
		{
			Kind:     models.TempBaja,
			Severity: models.SeverityHigh,
			Matches: func(r *models.Reading) (float64, bool) {
				if r.Temperature != nil && *r.Temperature < cfg.TemperatureMin {
					return *r.Temperature, true
				}
				return 0, false
			},
			Message: func(v float64) string {
				return fmt.Sprintf("Temperatura baja detectada: %.1f°C", v)
			},
		},
		{
			Kind:     models.HumAlta,
			Severity: models.SeverityMedium,
			Matches: func(r *models.Reading) (float64, bool) {
				if r.Humidity != nil && *r.Humidity > cfg.HumidityMax {
					return *r.Humidity, true
				}
				return 0, false
			},
			Message: func(v float64) string {
				return fmt.Sprintf("Humedad alta detectada: %.1f%%", v)
			},
		},
		{
			Kind:     models.HumBaja,
			Severity: models.SeverityMedium,
			Matches: func(r *models.Reading) (float64, bool) {
				if r.Humidity != nil && *r.Humidity < cfg.HumidityMin {
					return *r.Humidity, true
				}
				return 0, false
			},
			Message: func(v float64) string {
				return fmt.Sprintf("Humedad baja detectada: %.1f%%", v)
			},
		},
		{
			Kind:     models.PesoBajo,
			Severity: models.SeverityMedium,
			Matches: func(r *models.Reading) (float64, bool) {
				if r.Weight != nil && *r.Weight < cfg.WeightMin && e.weightRuleApplies(r) {
					return *r.Weight, true
				}
				return 0, false
			},
			Message: func(v float64) string {
				return fmt.Sprintf("Peso bajo detectado: %.1fkg", v)
			},
		},
		{
			Kind:     models.BateriaBaja,
			Severity: models.SeverityLow,
			Matches: func(r *models.Reading) (float64, bool) {
				if r.Battery != nil && *r.Battery < cfg.BatteryMin {
					return *r.Battery, true
				}
				return 0, false
			},
			Message: func(v float64) string {
				return fmt.Sprintf("Batería baja detectada: %.1f%%", v)
			},
		},
	}
	return e
}

// weightRuleApplies gates the low-weight rule to weight-bearing node types.
// Readings whose node type is unknown are not gated, matching the behavior of
// the ingestion path before types were introduced.
func (e *RuleEngine) weightRuleApplies(r *models.Reading) bool {
	if r.NodeType == "" {
		return true
	}
	return e.weightTypes[r.NodeType]
}

// Evaluate maps a reading to at most one AlertEvent. It is a pure function:
// no I/O, cannot fail, absent metrics simply never match.
func (e *RuleEngine) Evaluate(r *models.Reading) *models.AlertEvent {
	for _, rule := range e.rules {
		value, ok := rule.Matches(r)
		if !ok {
			continue
		}
		return &models.AlertEvent{
			NodeID:      r.NodeID,
			Kind:        rule.Kind,
			Severity:    rule.Severity,
			Message:     rule.Message(value),
			Value:       value,
			TriggeredAt: r.Timestamp,
		}
	}
	return nil
}
