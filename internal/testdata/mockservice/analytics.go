package mockservice

import (
	"context"
	"time"

	"form-analytics-service/internal/model"
	"form-analytics-service/internal/service"

	"github.com/stretchr/testify/mock"
)

// AnalyticsCollector mocks service.AnalyticsCollector.
type AnalyticsCollector struct {
	mock.Mock
}

var _ service.AnalyticsCollector = &AnalyticsCollector{}

func (m *AnalyticsCollector) StartSession(ctx context.Context, req model.StartSessionRequest) (model.FormSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.FormSession), args.Error(1)
}

func (m *AnalyticsCollector) TrackInteraction(ctx context.Context, sessionID string, req model.InteractionRequest) error {
	return m.Called(ctx, sessionID, req).Error(0)
}

func (m *AnalyticsCollector) MarkStarted(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *AnalyticsCollector) MarkCompleted(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *AnalyticsCollector) MarkSubmitted(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *AnalyticsCollector) TrackDropOff(ctx context.Context, sessionID, fieldID string) error {
	return m.Called(ctx, sessionID, fieldID).Error(0)
}

func (m *AnalyticsCollector) GetSession(sessionID string) (model.FormSession, error) {
	args := m.Called(sessionID)
	return args.Get(0).(model.FormSession), args.Error(1)
}

func (m *AnalyticsCollector) SweepIdle(now time.Time) int {
	return m.Called(now).Int(0)
}

func (m *AnalyticsCollector) RunSweeper(ctx context.Context, every time.Duration) {
	m.Called(ctx, every)
}

func (m *AnalyticsCollector) GetAnalytics(ctx context.Context, formID string, start, end time.Time, formName string, fields []model.FormField) (model.FormAnalytics, error) {
	args := m.Called(ctx, formID, start, end, formName, fields)
	return args.Get(0).(model.FormAnalytics), args.Error(1)
}

func (m *AnalyticsCollector) PurgeFormData(ctx context.Context, formID string) error {
	return m.Called(ctx, formID).Error(0)
}
