package model

import "time"

// FieldType is one of the supported input kinds.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldEmail     FieldType = "email"
	FieldPhone     FieldType = "phone"
	FieldNumber    FieldType = "number"
	FieldTextarea  FieldType = "textarea"
	FieldSelect    FieldType = "select"
	FieldRadio     FieldType = "radio"
	FieldCheckbox  FieldType = "checkbox"
	FieldDate      FieldType = "date"
	FieldTime      FieldType = "time"
	FieldFile      FieldType = "file"
	FieldRating    FieldType = "rating"
	FieldSignature FieldType = "signature"
	FieldHidden    FieldType = "hidden"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldEmail, FieldPhone, FieldNumber, FieldTextarea, FieldSelect, FieldRadio,
		FieldCheckbox, FieldDate, FieldTime, FieldFile, FieldRating, FieldSignature, FieldHidden:
		return true
	default:
		return false
	}
}

// FieldValidation holds optional constraints set by the form author.
type FieldValidation struct {
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	MinLength     *int     `json:"minLength,omitempty"`
	MaxLength     *int     `json:"maxLength,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	CustomMessage string   `json:"customMessage,omitempty"`
}

// ConditionalRule shows or hides a field depending on another field's value.
type ConditionalRule struct {
	FieldID  string `json:"fieldId"`
	Operator string `json:"operator"` // equals, not_equals, contains
	Value    any    `json:"value"`
	Action   string `json:"action"` // show, hide
}

// FormField is one input of a form. ID is unique within the form since
// submission data is keyed by it.
type FormField struct {
	ID          string           `json:"id"`
	Type        FieldType        `json:"type"`
	Label       string           `json:"label"`
	Placeholder string           `json:"placeholder,omitempty"`
	Required    bool             `json:"required"`
	Validation  *FieldValidation `json:"validation,omitempty"`
	Options     []string         `json:"options,omitempty"`
	Conditional *ConditionalRule `json:"conditional,omitempty"`
	Order       int              `json:"order"`
}

// FormSettings controls submission behavior and embed rendering.
type FormSettings struct {
	SubmitButtonText string     `json:"submitButtonText,omitempty"`
	SuccessMessage   string     `json:"successMessage,omitempty"`
	RedirectURL      string     `json:"redirectUrl,omitempty"`
	WebhookURL       string     `json:"webhookUrl,omitempty"`
	CloseDate        *time.Time `json:"closeDate,omitempty"`
	ClosedMessage    string     `json:"closedMessage,omitempty"`
	MaxSubmissions   int64      `json:"maxSubmissions,omitempty"`
	Theme            string     `json:"theme,omitempty"`
}

// Form is the stored form definition.
type Form struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description,omitempty"`
	Fields          []FormField  `json:"fields"`
	Settings        FormSettings `json:"settings"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
	Published       bool         `json:"published"`
	SubmissionCount int64        `json:"submissionCount"`
}

// FormUpdate is a partial update; nil members are left untouched.
type FormUpdate struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Fields      []FormField   `json:"fields"`
	Settings    *FormSettings `json:"settings"`
}

// SubmissionMetadata describes the submitting client.
type SubmissionMetadata struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Submission is one accepted response to a form.
type Submission struct {
	ID        string             `json:"id"`
	FormID    string             `json:"formId"`
	Data      map[string]any     `json:"data"`
	Metadata  SubmissionMetadata `json:"metadata"`
	CreatedAt time.Time          `json:"createdAt"`
}

// SubmitRequest is the body of POST /forms/:id/submit.
type SubmitRequest struct {
	Data map[string]any `json:"data"`
}

// SubmitResult is returned to the visitor after an accepted submission.
type SubmitResult struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submissionId"`
	Message      string `json:"message"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}
