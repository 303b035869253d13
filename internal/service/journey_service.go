package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/kv"
	"form-analytics-service/internal/model"
)

// MaxJourneyLength is how many touchpoints are kept per customer.
const MaxJourneyLength = 100

// TouchpointFormSubmit is the touchpoint type counted as a submission.
const TouchpointFormSubmit = "form_submit"

type JourneyService interface {
	TrackTouchpoint(ctx context.Context, customerID string, tp model.Touchpoint) error
	GetJourney(ctx context.Context, customerID string) ([]model.Touchpoint, error)
	CalculateValue(ctx context.Context, customerID string) (model.CustomerValue, error)
}

type journeyService struct {
	store kv.Store
	now   func() time.Time
}

// NewJourneyService constructs a journeyService.
func NewJourneyService(store kv.Store) JourneyService {
	return &journeyService{store: store, now: time.Now}
}

func journeyKey(customerID string) string {
	return kv.Key("journey", customerID)
}

// TrackTouchpoint appends tp to the customer's journey, keeping the newest
// MaxJourneyLength entries.
func (s *journeyService) TrackTouchpoint(ctx context.Context, customerID string, tp model.Touchpoint) error {
	if strings.TrimSpace(customerID) == "" {
		return apperr.Validation("required", "customerId", "customerId is required")
	}
	if strings.TrimSpace(tp.Type) == "" {
		return apperr.Validation("required", "type", "type is required")
	}
	if tp.Timestamp.IsZero() {
		tp.Timestamp = s.now().UTC()
	}

	raw, err := json.Marshal(tp)
	if err != nil {
		return apperr.Validation("invalid_touchpoint", "metadata", "touchpoint cannot be encoded")
	}
	if err := s.store.Append(ctx, journeyKey(customerID), raw, MaxJourneyLength, 0); err != nil {
		return apperr.Upstream("append touchpoint", err)
	}
	return nil
}

// GetJourney returns touchpoints oldest first.
func (s *journeyService) GetJourney(ctx context.Context, customerID string) ([]model.Touchpoint, error) {
	items, err := s.store.Range(ctx, journeyKey(customerID))
	if err != nil {
		return nil, apperr.Upstream("load journey", err)
	}

	journey := make([]model.Touchpoint, 0, len(items))
	for _, raw := range items {
		var tp model.Touchpoint
		if err := json.Unmarshal(raw, &tp); err != nil {
			continue
		}
		journey = append(journey, tp)
	}
	return journey, nil
}

func (s *journeyService) CalculateValue(ctx context.Context, customerID string) (model.CustomerValue, error) {
	journey, err := s.GetJourney(ctx, customerID)
	if err != nil {
		return model.CustomerValue{}, err
	}

	value := model.CustomerValue{CustomerID: customerID, Touchpoints: len(journey)}
	for _, tp := range journey {
		value.TotalValue += tp.Value
		if tp.Type == TouchpointFormSubmit {
			value.Submissions++
		}
	}
	return value, nil
}
