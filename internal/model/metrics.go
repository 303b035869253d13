package model

// DailyPerformance is one day of conversion rollups.
type DailyPerformance struct {
	Date      string  `json:"date"`
	Views     int64   `json:"views"`
	Starts    int64   `json:"starts"`
	Submits   int64   `json:"submits"`
	Successes int64   `json:"successes"`
	Errors    int64   `json:"errors"`
	Revenue   float64 `json:"revenue"`
}

// Performance is the response of GET /performance/:formId.
type Performance struct {
	FormID         string             `json:"formId"`
	Days           int                `json:"days"`
	Views          int64              `json:"views"`
	Starts         int64              `json:"starts"`
	Submits        int64              `json:"submits"`
	Successes      int64              `json:"successes"`
	Errors         int64              `json:"errors"`
	Revenue        float64            `json:"revenue"`
	SuccessRate    float64            `json:"successRate"`
	ConversionRate float64            `json:"conversionRate"`
	Daily          []DailyPerformance `json:"daily"`
}

// ConversionFunnelStep is one step of the conversion funnel, in percent of
// the previous step.
type ConversionFunnelStep struct {
	Name       string  `json:"name"`
	Count      int64   `json:"count"`
	Conversion float64 `json:"conversion"`
	DropOff    float64 `json:"dropOff"`
}

// ConversionFunnel is the response of GET /funnel/:formId.
type ConversionFunnel struct {
	FormID string                 `json:"formId"`
	Days   int                    `json:"days"`
	Steps  []ConversionFunnelStep `json:"steps"`
}
