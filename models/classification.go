package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Label is the classifier's verdict. Values are the service's wire strings.
type Label string

const (
	LabelNormal          Label = "normal"
	LabelPhoneFall       Label = "caída de teléfono"
	LabelVehicleAccident Label = "accidente vehicular"
)

// ParseLabel maps a wire string onto a known label.
func ParseLabel(s string) (Label, bool) {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelNormal:
		return LabelNormal, true
	case LabelPhoneFall:
		return LabelPhoneFall, true
	case LabelVehicleAccident:
		return LabelVehicleAccident, true
	}
	return "", false
}

// IsEmergency reports whether the label starts an alert.
func (l Label) IsEmergency() bool {
	return l == LabelPhoneFall || l == LabelVehicleAccident
}

// Title is the alert headline for the label.
func (l Label) Title() string {
	switch l {
	case LabelPhoneFall:
		return "¡Caída Detectada!"
	case LabelVehicleAccident:
		return "¡Accidente Detectado!"
	default:
		return "Evento Detectado"
	}
}

// ConnectivityState of the classification service
type ConnectivityState string

const (
	Unknown      ConnectivityState = "unknown"
	Connected    ConnectivityState = "connected"
	Disconnected ConnectivityState = "disconnected"
)

// ClassificationResult is produced from the service response.
type ClassificationResult struct {
	Label                 Label   `json:"clasificacion"`
	AccelerationMagnitude float64 `json:"magnitud_aceleracion"`
	EventID               string  `json:"event_id"`
	FastDetection         bool    `json:"deteccion_rapida"`
}

// FeedbackEligible reports whether the event id can be used for feedback.
func (r *ClassificationResult) FeedbackEligible(placeholders []string) bool {
	return ValidEventID(r.EventID, placeholders)
}

// ValidEventID reports whether id is non-empty and not a known placeholder.
func ValidEventID(id string, placeholders []string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	for _, p := range placeholders {
		if id == p {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts the event id as either a string or a number.
func (r *ClassificationResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Label                 string          `json:"clasificacion"`
		AccelerationMagnitude float64         `json:"magnitud_aceleracion"`
		EventID               json.RawMessage `json:"event_id"`
		FastDetection         bool            `json:"deteccion_rapida"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Label = Label(strings.ToLower(strings.TrimSpace(raw.Label)))
	r.AccelerationMagnitude = raw.AccelerationMagnitude
	r.EventID = rawID(raw.EventID)
	r.FastDetection = raw.FastDetection
	return nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// PendingEventData carries the measured magnitude of a pending event
type PendingEventData struct {
	AccelerationMagnitude float64 `json:"magnitud_aceleracion"`
}

// PendingEvent is an event awaiting feedback on the service side
type PendingEvent struct {
	ID           string           `json:"-"`
	RegisteredAt string           `json:"fecha_registro"`
	EventType    Label            `json:"tipo_evento"`
	Data         PendingEventData `json:"datos"`
}

// UnmarshalJSON accepts the id as either a string or a number.
func (p *PendingEvent) UnmarshalJSON(data []byte) error {
	type plain PendingEvent
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PendingEvent(raw.plain)
	p.ID = rawID(raw.ID)
	return nil
}

// HistoryEntry is one classification round-trip kept for display
type HistoryEntry struct {
	Event     MotionEvent
	Result    ClassificationResult
	Magnitude float64
	At        time.Time
}
