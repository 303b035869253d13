package model

import "time"

// InteractionType is the kind of a field interaction.
type InteractionType string

const (
	InteractionFocus  InteractionType = "focus"
	InteractionBlur   InteractionType = "blur"
	InteractionInput  InteractionType = "input"
	InteractionChange InteractionType = "change"
	InteractionError  InteractionType = "error"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionFocus, InteractionBlur, InteractionInput, InteractionChange, InteractionError:
		return true
	default:
		return false
	}
}

// FieldInteraction is one event inside a session. Append-only.
type FieldInteraction struct {
	FieldID      string          `json:"fieldId"`
	Type         InteractionType `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	Value        string          `json:"value,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// DeviceInfo is the visitor's device snapshot.
type DeviceInfo struct {
	Type    string `json:"type"` // desktop, mobile, tablet
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
}

// UTM carries campaign attribution parameters.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
}

// FormSession is one visitor's lifecycle with a single form.
type FormSession struct {
	SessionID    string             `json:"sessionId"`
	FormID       string             `json:"formId"`
	Variant      string             `json:"variant,omitempty"`
	StartedAt    time.Time          `json:"startedAt"`
	Started      bool               `json:"started"` // visitor began filling the form
	CompletedAt  *time.Time         `json:"completedAt,omitempty"`
	Submitted    bool               `json:"submitted"`
	Interactions []FieldInteraction `json:"interactions"`
	Device       DeviceInfo         `json:"device"`
	Country      string             `json:"country,omitempty"`
	Referrer     string             `json:"referrer,omitempty"`
	UTM          UTM                `json:"utm"`
	LastActivity time.Time          `json:"lastActivity"`
}

// StartSessionRequest is the body of POST /analytics/sessions.
type StartSessionRequest struct {
	SessionID string     `json:"sessionId"`
	FormID    string     `json:"formId"`
	Variant   string     `json:"variant"`
	Device    DeviceInfo `json:"device"`
	Country   string     `json:"country"`
	Referrer  string     `json:"referrer"`
	UTM       UTM        `json:"utm"`
}

// InteractionRequest is the body of POST /analytics/sessions/:id/interactions.
type InteractionRequest struct {
	FieldID      string          `json:"fieldId"`
	Type         InteractionType `json:"type"`
	Timestamp    int64           `json:"timestamp"` // unix millis, 0 = now
	Value        string          `json:"value"`
	ErrorMessage string          `json:"errorMessage"`
}

// DropOffRequest is the body of POST /analytics/sessions/:id/dropoff.
type DropOffRequest struct {
	FieldID string `json:"fieldId"`
}
