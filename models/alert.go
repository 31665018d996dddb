package models

import (
	"time"
)

// AlertKind identifies the threshold rule that produced an alert.
type AlertKind string

const (
	TempAlta    AlertKind = "TEMP_ALTA"
	TempBaja    AlertKind = "TEMP_BAJA"
	HumAlta     AlertKind = "HUM_ALTA"
	HumBaja     AlertKind = "HUM_BAJA"
	PesoBajo    AlertKind = "PESO_BAJO"
	BateriaBaja AlertKind = "BATERIA_BAJA"
	NodoOffline AlertKind = "NODO_OFFLINE"
)

// Severity orders alerts for presentation. The values are part of the wire
// contract and must stay stable.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// AlertEvent is a detected threshold violation derived from exactly one
// reading (or from the status monitor, for NODO_OFFLINE).
type AlertEvent struct {
	NodeID      string    `json:"nodeId"`
	Kind        AlertKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	TriggeredAt time.Time `json:"triggeredAt"`
}
