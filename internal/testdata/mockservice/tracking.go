package mockservice

import (
	"context"

	"form-analytics-service/internal/model"
	"form-analytics-service/internal/service"

	"github.com/stretchr/testify/mock"
)

// ConversionService mocks service.ConversionService.
type ConversionService struct {
	mock.Mock
}

var _ service.ConversionService = &ConversionService{}

func (m *ConversionService) BuildEvent(req model.EventRequest) (model.Event, error) {
	args := m.Called(req)
	return args.Get(0).(model.Event), args.Error(1)
}

func (m *ConversionService) TrackEvent(ctx context.Context, event model.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *ConversionService) GetPerformance(ctx context.Context, formID string, days int) (model.Performance, error) {
	args := m.Called(ctx, formID, days)
	return args.Get(0).(model.Performance), args.Error(1)
}

func (m *ConversionService) GetFunnel(ctx context.Context, formID string, days int) (model.ConversionFunnel, error) {
	args := m.Called(ctx, formID, days)
	return args.Get(0).(model.ConversionFunnel), args.Error(1)
}

func (m *ConversionService) PurgeFormData(ctx context.Context, formID string) error {
	return m.Called(ctx, formID).Error(0)
}

// ABTestService mocks service.ABTestService.
type ABTestService struct {
	mock.Mock
}

var _ service.ABTestService = &ABTestService{}

func (m *ABTestService) GetVariant(ctx context.Context, formID, sessionID string) (*model.Assignment, error) {
	args := m.Called(ctx, formID, sessionID)
	if v := args.Get(0); v != nil {
		return v.(*model.Assignment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ABTestService) CreateTest(ctx context.Context, req model.CreateTestRequest) (model.ABTest, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.ABTest), args.Error(1)
}

func (m *ABTestService) GetTest(ctx context.Context, testID string) (model.ABTest, error) {
	args := m.Called(ctx, testID)
	return args.Get(0).(model.ABTest), args.Error(1)
}

func (m *ABTestService) GetTestForForm(ctx context.Context, formID string) (*model.ABTest, error) {
	args := m.Called(ctx, formID)
	if v := args.Get(0); v != nil {
		return v.(*model.ABTest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ABTestService) RecordConversion(ctx context.Context, testID, variantID string, revenue float64) error {
	return m.Called(ctx, testID, variantID, revenue).Error(0)
}

func (m *ABTestService) UpdateStatus(ctx context.Context, testID string, status model.TestStatus) (model.ABTest, error) {
	args := m.Called(ctx, testID, status)
	return args.Get(0).(model.ABTest), args.Error(1)
}

func (m *ABTestService) EndTest(ctx context.Context, testID, winner string) (model.ABTest, error) {
	args := m.Called(ctx, testID, winner)
	return args.Get(0).(model.ABTest), args.Error(1)
}

func (m *ABTestService) Results(ctx context.Context, testID string) (model.TestResults, error) {
	args := m.Called(ctx, testID)
	return args.Get(0).(model.TestResults), args.Error(1)
}

func (m *ABTestService) PurgeFormData(ctx context.Context, formID string) error {
	return m.Called(ctx, formID).Error(0)
}

// JourneyService mocks service.JourneyService.
type JourneyService struct {
	mock.Mock
}

var _ service.JourneyService = &JourneyService{}

func (m *JourneyService) TrackTouchpoint(ctx context.Context, customerID string, tp model.Touchpoint) error {
	return m.Called(ctx, customerID, tp).Error(0)
}

func (m *JourneyService) GetJourney(ctx context.Context, customerID string) ([]model.Touchpoint, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]model.Touchpoint), args.Error(1)
}

func (m *JourneyService) CalculateValue(ctx context.Context, customerID string) (model.CustomerValue, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(model.CustomerValue), args.Error(1)
}
