package model

// AnalyticsTotals are the form-level headline numbers.
type AnalyticsTotals struct {
	Views             int64   `json:"views"`
	Starts            int64   `json:"starts"`
	Completions       int64   `json:"completions"`
	Submissions       int64   `json:"submissions"`
	ConversionRate    float64 `json:"conversionRate"`
	AbandonmentRate   float64 `json:"abandonmentRate"`
	AvgCompletionTime float64 `json:"avgCompletionTime"` // milliseconds
}

// FunnelStep is one stage of a funnel.
type FunnelStep struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	DropOff int64   `json:"dropOff"`
	Rate    float64 `json:"rate"`
}

// ErrorMessageCount is one entry of a field's error frequency table.
type ErrorMessageCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// FieldAnalytics aggregates interactions with one field.
type FieldAnalytics struct {
	FieldID        string              `json:"fieldId"`
	Label          string              `json:"label"`
	Focuses        int64               `json:"focuses"`
	Errors         int64               `json:"errors"`
	DropOffs       int64               `json:"dropOffs"`
	Completions    int64               `json:"completions"`
	ErrorRate      float64             `json:"errorRate"`
	CompletionRate float64             `json:"completionRate"`
	AvgTimeSpent   float64             `json:"avgTimeSpent"` // milliseconds
	TopErrors      []ErrorMessageCount `json:"topErrors"`
}

// DailyAnalytics is one calendar day of the series.
type DailyAnalytics struct {
	Date        string `json:"date"`
	Views       int64  `json:"views"`
	Starts      int64  `json:"starts"`
	Completions int64  `json:"completions"`
	Submissions int64  `json:"submissions"`
	Abandoned   int64  `json:"abandoned"`
}

// VariantAnalytics compares one A/B variant within the collector's counters.
type VariantAnalytics struct {
	Variant           string  `json:"variant"`
	Views             int64   `json:"views"`
	Completions       int64   `json:"completions"`
	Submissions       int64   `json:"submissions"`
	ConversionRate    float64 `json:"conversionRate"`
	AvgCompletionTime float64 `json:"avgCompletionTime"`
}

// FormAnalytics is the response of GET /forms/:id/analytics.
type FormAnalytics struct {
	FormID    string             `json:"formId"`
	FormName  string             `json:"formName"`
	StartDate string             `json:"startDate"`
	EndDate   string             `json:"endDate"`
	Totals    AnalyticsTotals    `json:"totals"`
	Funnel    []FunnelStep       `json:"funnel"`
	Fields    []FieldAnalytics   `json:"fields"`
	Daily     []DailyAnalytics   `json:"daily"`
	Devices   map[string]int64   `json:"devices"`
	Countries map[string]int64   `json:"countries"`
	Variants  []VariantAnalytics `json:"variants,omitempty"`
}
