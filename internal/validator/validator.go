// Package validator checks submitted values against a field's constraints.
package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/model"
)

// Author-supplied patterns run on Go's RE2 engine, which matches in linear
// time. The caps bound the remaining cost.
const (
	MaxPatternLength = 512
	MaxPatternInput  = 10000
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9\s+\-()]+$`)

	patternCache sync.Map // string -> *regexp.Regexp
)

// Validate returns the first constraint violated by value, or nil. Empty
// values pass; the required check is done by the caller.
func Validate(field model.FormField, value any) error {
	if IsEmpty(value) {
		return nil
	}
	rules := field.Validation
	if rules == nil {
		rules = &model.FieldValidation{}
	}

	switch field.Type {
	case model.FieldEmail:
		s, ok := value.(string)
		if !ok || !emailPattern.MatchString(strings.TrimSpace(s)) {
			return fail(field, rules, "invalid_email", "%s must be a valid email address", field.Label)
		}
	case model.FieldPhone:
		s, ok := value.(string)
		if !ok || !phonePattern.MatchString(s) {
			return fail(field, rules, "invalid_phone", "%s must be a valid phone number", field.Label)
		}
	case model.FieldNumber:
		n, ok := toNumber(value)
		if !ok {
			return fail(field, rules, "invalid_number", "%s must be a valid number", field.Label)
		}
		if rules.Min != nil && n < *rules.Min {
			return fail(field, rules, "min", "%s must be at least %s", field.Label, formatNumber(*rules.Min))
		}
		if rules.Max != nil && n > *rules.Max {
			return fail(field, rules, "max", "%s must be at most %s", field.Label, formatNumber(*rules.Max))
		}
	}

	s, ok := value.(string)
	if !ok {
		return nil
	}
	length := utf8.RuneCountInString(s)
	if rules.MinLength != nil && length < *rules.MinLength {
		return fail(field, rules, "min_length", "%s must be at least %d characters", field.Label, *rules.MinLength)
	}
	if rules.MaxLength != nil && length > *rules.MaxLength {
		return fail(field, rules, "max_length", "%s must be at most %d characters", field.Label, *rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := CompilePattern(rules.Pattern)
		if err != nil {
			// Rejected when the form was saved; an unusable stored pattern is skipped.
			return nil
		}
		if length > MaxPatternInput || !re.MatchString(s) {
			return fail(field, rules, "pattern", "%s has an invalid format", field.Label)
		}
	}
	return nil
}

// CompilePattern compiles an author-supplied pattern, caching the result.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > MaxPatternLength {
		return nil, fmt.Errorf("pattern longer than %d bytes", MaxPatternLength)
	}
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache.Store(pattern, re)
	return re, nil
}

// IsEmpty reports whether a submitted value counts as missing.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// Visible evaluates a field's conditional rule against the submitted data.
// Fields without a rule are always visible.
func Visible(field model.FormField, data map[string]any) bool {
	rule := field.Conditional
	if rule == nil || rule.FieldID == "" {
		return true
	}

	matched := false
	actual := data[rule.FieldID]
	switch rule.Operator {
	case "not_equals":
		matched = !equalValues(actual, rule.Value)
	case "contains":
		matched = containsValue(actual, rule.Value)
	default:
		matched = equalValues(actual, rule.Value)
	}

	if rule.Action == "hide" {
		return !matched
	}
	return matched
}

func fail(field model.FormField, rules *model.FieldValidation, code, format string, args ...any) error {
	msg := rules.CustomMessage
	if msg == "" {
		msg = fmt.Sprintf(format, args...)
	}
	return apperr.Validation(code, field.ID, msg)
}

func toNumber(value any) (float64, bool) {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func equalValues(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func containsValue(haystack, needle any) bool {
	want := fmt.Sprint(needle)
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if fmt.Sprint(item) == want {
				return true
			}
		}
		return false
	case []string:
		for _, item := range h {
			if item == want {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(h, want)
	default:
		return false
	}
}
