package mockservice

import (
	"context"

	"form-analytics-service/internal/model"
	"form-analytics-service/internal/objectstore"
	"form-analytics-service/internal/service"

	"github.com/stretchr/testify/mock"
)

// FormService mocks service.FormService.
type FormService struct {
	mock.Mock
}

var _ service.FormService = &FormService{}

func (m *FormService) Create(ctx context.Context, form model.Form) (model.Form, error) {
	args := m.Called(ctx, form)
	return args.Get(0).(model.Form), args.Error(1)
}

func (m *FormService) Get(ctx context.Context, id string) (model.Form, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Form), args.Error(1)
}

func (m *FormService) List(ctx context.Context) ([]model.Form, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Form), args.Error(1)
}

func (m *FormService) Update(ctx context.Context, id string, update model.FormUpdate) (model.Form, error) {
	args := m.Called(ctx, id, update)
	return args.Get(0).(model.Form), args.Error(1)
}

func (m *FormService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *FormService) Publish(ctx context.Context, id string) (model.Form, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Form), args.Error(1)
}

func (m *FormService) Unpublish(ctx context.Context, id string) (model.Form, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Form), args.Error(1)
}

func (m *FormService) Submit(ctx context.Context, id string, data map[string]any, meta model.SubmissionMetadata) (model.SubmitResult, error) {
	args := m.Called(ctx, id, data, meta)
	return args.Get(0).(model.SubmitResult), args.Error(1)
}

func (m *FormService) ListSubmissions(ctx context.Context, id string, limit int) ([]model.Submission, error) {
	args := m.Called(ctx, id, limit)
	return args.Get(0).([]model.Submission), args.Error(1)
}

func (m *FormService) GetSubmission(ctx context.Context, id, subID string) (model.Submission, error) {
	args := m.Called(ctx, id, subID)
	return args.Get(0).(model.Submission), args.Error(1)
}

func (m *FormService) DeleteSubmission(ctx context.Context, id, subID string) error {
	return m.Called(ctx, id, subID).Error(0)
}

func (m *FormService) Export(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *FormService) ListExports(ctx context.Context, id string) ([]objectstore.Object, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]objectstore.Object), args.Error(1)
}

func (m *FormService) Embed(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]byte), args.Error(1)
}
