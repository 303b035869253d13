package model

import (
	"time"
)

// EventType is a conversion tracking event kind.
type EventType string

const (
	EventView    EventType = "view"
	EventStart   EventType = "start"
	EventSubmit  EventType = "submit"
	EventSuccess EventType = "success"
	EventError   EventType = "error"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventView, EventStart, EventSubmit, EventSuccess, EventError:
		return true
	default:
		return false
	}
}

// EventRequest represents incoming event payload.
type EventRequest struct {
	FormID     string         `json:"formId"`
	Type       EventType      `json:"type"`
	SessionID  string         `json:"sessionId"`
	CustomerID string         `json:"customerId"`
	Value      float64        `json:"value"`
	Timestamp  int64          `json:"timestamp"` // unix millis, 0 = now
	Metadata   map[string]any `json:"metadata"`
}

// Event is the domain model appended to the raw event log.
type Event struct {
	ID         string
	FormID     string
	Type       EventType
	SessionID  string
	CustomerID string
	Value      float64
	Timestamp  time.Time
	Metadata   map[string]any
}

// Touchpoint is one interaction of a customer with the business.
type Touchpoint struct {
	Type      string         `json:"type"`
	FormID    string         `json:"formId,omitempty"`
	Value     float64        `json:"value,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// CustomerValue summarizes a customer's journey.
type CustomerValue struct {
	CustomerID  string  `json:"customerId"`
	TotalValue  float64 `json:"totalValue"`
	Submissions int     `json:"submissions"`
	Touchpoints int     `json:"touchpoints"`
}
