package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/kv"
	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
)

const (
	conversionTTL     = 90 * 24 * time.Hour
	defaultReportDays = 30
	maxReportDays     = 365
)

const (
	eventFieldViews   = "views"
	eventFieldStarts  = "starts"
	eventFieldSubmits = "submits"
	eventFieldSuccess = "successes"
	eventFieldErrors  = "errors"
)

var errTimestampInFuture = errors.New("timestamp cannot be in the future")

var eventCounterField = map[model.EventType]string{
	model.EventView:    eventFieldViews,
	model.EventStart:   eventFieldStarts,
	model.EventSubmit:  eventFieldSubmits,
	model.EventSuccess: eventFieldSuccess,
	model.EventError:   eventFieldErrors,
}

type ConversionService interface {
	BuildEvent(req model.EventRequest) (model.Event, error)
	TrackEvent(ctx context.Context, event model.Event) error
	GetPerformance(ctx context.Context, formID string, days int) (model.Performance, error)
	GetFunnel(ctx context.Context, formID string, days int) (model.ConversionFunnel, error)
	PurgeFormData(ctx context.Context, formID string) error
}

// conversionService rolls tracked events up into daily counters and forwards
// the raw event to the batch worker.
type conversionService struct {
	store           kv.Store
	worker          BatchEventWorker
	journeys        JourneyService
	log             *logger.Logger
	now             func() time.Time
	futureTolerance time.Duration
}

// NewConversionService constructs a conversionService. journeys may be nil,
// in which case customer touchpoints are not recorded.
func NewConversionService(store kv.Store, worker BatchEventWorker, journeys JourneyService, log *logger.Logger, futureTolerance time.Duration) ConversionService {
	return &conversionService{
		store:           store,
		worker:          worker,
		journeys:        journeys,
		log:             log.With("component", "ConversionService"),
		now:             time.Now,
		futureTolerance: futureTolerance,
	}
}

// BuildEvent validates and constructs an Event from an incoming request.
func (s *conversionService) BuildEvent(req model.EventRequest) (model.Event, error) {
	if strings.TrimSpace(req.FormID) == "" {
		return model.Event{}, apperr.Validation("required", "formId", "formId is required")
	}
	if !req.Type.Valid() {
		return model.Event{}, apperr.Validation("invalid_type", "type", "type must be one of view, start, submit, success, error")
	}
	if req.Value < 0 || math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return model.Event{}, apperr.Validation("invalid_value", "value", "value must be a non-negative number")
	}

	now := s.now().UTC()
	ts := now
	if req.Timestamp != 0 {
		ts = time.UnixMilli(req.Timestamp).UTC()
		if err := ValidateTimestamp(ts, now, s.futureTolerance); err != nil {
			return model.Event{}, apperr.Validation("invalid_timestamp", "timestamp", err.Error())
		}
	}

	return model.Event{
		ID:         uuid.NewString(),
		FormID:     req.FormID,
		Type:       req.Type,
		SessionID:  req.SessionID,
		CustomerID: req.CustomerID,
		Value:      req.Value,
		Timestamp:  ts,
		Metadata:   req.Metadata,
	}, nil
}

// TrackEvent updates the daily rollups for event. The raw event is handed to
// the worker first and is not affected by a counter failure.
func (s *conversionService) TrackEvent(ctx context.Context, event model.Event) error {
	s.worker.Enqueue(event)

	date := kv.DateKey(event.Timestamp)
	if _, err := s.store.Incr(ctx, dailyConversionKey(event.FormID, date, eventCounterField[event.Type]), 1, conversionTTL); err != nil {
		return apperr.Upstream("update conversion counter", err)
	}
	if event.Value > 0 {
		if _, err := s.store.IncrFloat(ctx, revenueKey(event.FormID, date), event.Value, conversionTTL); err != nil {
			return apperr.Upstream("update revenue", err)
		}
	}

	if event.CustomerID != "" && s.journeys != nil {
		tp := model.Touchpoint{
			Type:      "form_" + string(event.Type),
			FormID:    event.FormID,
			Value:     event.Value,
			Metadata:  event.Metadata,
			Timestamp: event.Timestamp,
		}
		if err := s.journeys.TrackTouchpoint(ctx, event.CustomerID, tp); err != nil {
			s.log.Warn("failed to record touchpoint", "customer_id", event.CustomerID, "error", err)
		}
	}
	return nil
}

// GetPerformance sums the last days calendar days, today included.
func (s *conversionService) GetPerformance(ctx context.Context, formID string, days int) (model.Performance, error) {
	days = clampDays(days)
	perf := model.Performance{FormID: formID, Days: days, Daily: make([]model.DailyPerformance, 0, days)}

	today := s.now().UTC()
	for i := days - 1; i >= 0; i-- {
		date := kv.DateKey(today.AddDate(0, 0, -i))
		day, err := s.loadDay(ctx, formID, date)
		if err != nil {
			return model.Performance{}, err
		}
		perf.Views += day.Views
		perf.Starts += day.Starts
		perf.Submits += day.Submits
		perf.Successes += day.Successes
		perf.Errors += day.Errors
		perf.Revenue += day.Revenue
		perf.Daily = append(perf.Daily, day)
	}

	perf.SuccessRate = percent(perf.Successes, perf.Submits)
	perf.ConversionRate = percent(perf.Submits, perf.Views)
	return perf, nil
}

// GetFunnel reports View, Start and Submit. Each step's conversion and
// drop-off are percentages of the step before it.
func (s *conversionService) GetFunnel(ctx context.Context, formID string, days int) (model.ConversionFunnel, error) {
	perf, err := s.GetPerformance(ctx, formID, days)
	if err != nil {
		return model.ConversionFunnel{}, err
	}

	counts := []struct {
		name  string
		count int64
	}{
		{"View", perf.Views},
		{"Start", perf.Starts},
		{"Submit", perf.Submits},
	}

	funnel := model.ConversionFunnel{FormID: formID, Days: perf.Days, Steps: make([]model.ConversionFunnelStep, 0, len(counts))}
	for i, c := range counts {
		step := model.ConversionFunnelStep{Name: c.name, Count: c.count}
		if i == 0 {
			step.Conversion = 100
		} else if prev := counts[i-1].count; prev > 0 {
			step.Conversion = percent(c.count, prev)
			step.DropOff = round2(100 - step.Conversion)
		}
		funnel.Steps = append(funnel.Steps, step)
	}
	return funnel, nil
}

// PurgeFormData deletes the daily counters and revenue of formID.
func (s *conversionService) PurgeFormData(ctx context.Context, formID string) error {
	var keys []string
	for _, prefix := range []string{kv.Key("conversion", "daily", formID) + ":", kv.Key("conversion", "revenue", formID) + ":"} {
		found, err := s.store.List(ctx, prefix, 0)
		if err != nil {
			return apperr.Upstream("list conversion keys", err)
		}
		keys = append(keys, found...)
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return apperr.Upstream("delete conversion keys", err)
	}
	return nil
}

func (s *conversionService) loadDay(ctx context.Context, formID, date string) (model.DailyPerformance, error) {
	day := model.DailyPerformance{Date: date}
	targets := []struct {
		field string
		dst   *int64
	}{
		{eventFieldViews, &day.Views},
		{eventFieldStarts, &day.Starts},
		{eventFieldSubmits, &day.Submits},
		{eventFieldSuccess, &day.Successes},
		{eventFieldErrors, &day.Errors},
	}
	for _, t := range targets {
		n, err := s.store.GetInt(ctx, dailyConversionKey(formID, date, t.field))
		if err != nil {
			return model.DailyPerformance{}, apperr.Upstream("load conversion counter", err)
		}
		*t.dst = n
	}

	revenue, err := s.store.GetFloat(ctx, revenueKey(formID, date))
	if err != nil {
		return model.DailyPerformance{}, apperr.Upstream("load revenue", err)
	}
	day.Revenue = revenue
	return day, nil
}

// ValidateTimestamp ensures timestamps are not too far in the future.
func ValidateTimestamp(ts time.Time, now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 {
		return nil
	}
	if ts.After(now.Add(tolerance)) {
		return errTimestampInFuture
	}
	return nil
}

func dailyConversionKey(formID, date, field string) string {
	return kv.Key("conversion", "daily", formID, date, field)
}

func revenueKey(formID, date string) string {
	return kv.Key("conversion", "revenue", formID, date)
}

func clampDays(days int) int {
	if days <= 0 {
		return defaultReportDays
	}
	if days > maxReportDays {
		return maxReportDays
	}
	return days
}

// percent returns part/whole*100 rounded to two decimals, 0 for an empty whole.
func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
