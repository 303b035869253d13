package model

import "time"

// TestStatus is the lifecycle state of an A/B test.
type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestRunning   TestStatus = "running"
	TestPaused    TestStatus = "paused"
	TestCompleted TestStatus = "completed"
	TestStopped   TestStatus = "stopped"
)

// Valid reports whether s is a known status.
func (s TestStatus) Valid() bool {
	switch s {
	case TestDraft, TestRunning, TestPaused, TestCompleted, TestStopped:
		return true
	default:
		return false
	}
}

// Variant is one arm of a test. Weight is its relative share of traffic.
type Variant struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Weight  float64        `json:"weight"`
	Changes map[string]any `json:"changes,omitempty"`
}

// ABTest is a stored experiment definition.
type ABTest struct {
	ID             string     `json:"id"`
	FormID         string     `json:"formId"`
	Name           string     `json:"name"`
	Variants       []Variant  `json:"variants"`
	StartDate      time.Time  `json:"startDate"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	Status         TestStatus `json:"status"`
	WinningVariant string     `json:"winningVariant,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CreateTestRequest is the body of POST /abtest.
type CreateTestRequest struct {
	FormID    string     `json:"formId"`
	Name      string     `json:"name"`
	Variants  []Variant  `json:"variants"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	Status    TestStatus `json:"status"`
}

// ConversionRequest is the body of POST /abtest/:testId/conversions.
type ConversionRequest struct {
	VariantID string  `json:"variantId"`
	Revenue   float64 `json:"revenue"`
}

// StatusRequest is the body of POST /abtest/:testId/status.
type StatusRequest struct {
	Status TestStatus `json:"status"`
}

// EndTestRequest is the body of POST /abtest/:testId/end.
type EndTestRequest struct {
	WinningVariant string `json:"winningVariant"`
}

// VariantResult holds the counters of one variant.
type VariantResult struct {
	VariantID      string  `json:"variantId"`
	Name           string  `json:"name"`
	Views          int64   `json:"views"`
	Conversions    int64   `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversionRate"`
	Eligible       bool    `json:"eligible"`
}

// TestResults summarizes a test. ConfidenceEstimate is a rough normal
// approximation in percent, not a p-value.
type TestResults struct {
	TestID             string          `json:"testId"`
	Status             TestStatus      `json:"status"`
	Variants           []VariantResult `json:"variants"`
	Winner             string          `json:"winner,omitempty"`
	ConfidenceEstimate float64         `json:"confidenceEstimate"`
}

// Assignment is the variant a session was routed to.
type Assignment struct {
	TestID  string  `json:"testId"`
	Variant Variant `json:"variant"`
}
