package service

import (
	"context"
	"encoding/csv"
	"strings"
	"sync"
	"testing"
	"time"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
	"form-analytics-service/internal/objectstore"
	"form-analytics-service/internal/repository"
	"form-analytics-service/internal/testdata/kvtest"
	"form-analytics-service/internal/testdata/mockobjectstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []WebhookPayload
	urls  []string
}

func (n *recordingNotifier) Notify(url string, payload WebhookPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, url)
	n.calls = append(n.calls, payload)
}

func (n *recordingNotifier) Wait() {}

type recordingPurger struct {
	purged []string
}

func (p *recordingPurger) PurgeFormData(_ context.Context, formID string) error {
	p.purged = append(p.purged, formID)
	return nil
}

type FormServiceTestSuite struct {
	suite.Suite

	mr       *miniredis.Miniredis
	objects  *mockobjectstore.Store
	webhooks *recordingNotifier
	purger   *recordingPurger
	service  *formService
	ctx      context.Context
	now      time.Time
}

func TestFormServiceSuite(t *testing.T) {
	suite.Run(t, new(FormServiceTestSuite))
}

func (s *FormServiceTestSuite) SetupTest() {
	store, mr := kvtest.New(s.T())
	s.mr = mr
	s.objects = &mockobjectstore.Store{}
	s.webhooks = &recordingNotifier{}
	s.purger = &recordingPurger{}
	s.now = time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)

	svc := NewFormService(repository.NewFormRepository(store), logger.Nop(), FormServiceOptions{
		Objects:   s.objects,
		Webhooks:  s.webhooks,
		Purgers:   []FormDataPurger{s.purger},
		BaseURL:   "https://forms.example.com",
		Retention: 24 * time.Hour,
	})
	s.service = svc.(*formService)
	s.service.now = func() time.Time { return s.now }
	s.ctx = context.Background()
}

func (s *FormServiceTestSuite) TearDownTest() {
	s.objects.AssertExpectations(s.T())
}

func (s *FormServiceTestSuite) publishedForm(fields ...model.FormField) model.Form {
	form, err := s.service.Create(s.ctx, model.Form{Name: "Contact", Fields: fields})
	s.Require().NoError(err)
	s.objects.On("Put", mock.Anything, embedKey(form.ID), mock.Anything, "text/html; charset=utf-8", mock.Anything).Return(nil).Once()
	form, err = s.service.Publish(s.ctx, form.ID)
	s.Require().NoError(err)
	return form
}

func (s *FormServiceTestSuite) requireAppErr(err error, kind apperr.Kind, code string) *apperr.Error {
	e, ok := apperr.As(err)
	s.Require().True(ok, "expected app error, got %v", err)
	s.Equal(kind, e.Kind)
	s.Equal(code, e.Code)
	return e
}

func (s *FormServiceTestSuite) TestCreate() {
	form, err := s.service.Create(s.ctx, model.Form{
		Name: "Signup",
		Fields: []model.FormField{
			{ID: "b", Type: model.FieldText, Label: "B", Order: 2},
			{Type: model.FieldEmail, Label: "A", Order: 1},
		},
		Published:       true,
		SubmissionCount: 7,
	})
	s.NoError(err)
	s.NotEmpty(form.ID)
	s.False(form.Published)
	s.Zero(form.SubmissionCount)
	s.Equal(s.now, form.CreatedAt)
	s.Equal(s.now, form.UpdatedAt)
	s.Equal("A", form.Fields[0].Label)
	s.NotEmpty(form.Fields[0].ID)

	stored, err := s.service.Get(s.ctx, form.ID)
	s.NoError(err)
	s.Equal(form.Name, stored.Name)
}

func (s *FormServiceTestSuite) TestCreate_Validation() {
	tests := []struct {
		name string
		form model.Form
		code string
	}{
		{name: "empty name", form: model.Form{Name: " "}, code: "required"},
		{
			name: "duplicate field ids",
			form: model.Form{Name: "x", Fields: []model.FormField{{ID: "a", Type: model.FieldText}, {ID: "a", Type: model.FieldEmail}}},
			code: "duplicate_field",
		},
		{name: "unknown type", form: model.Form{Name: "x", Fields: []model.FormField{{ID: "a", Type: "slider"}}}, code: "invalid_field_type"},
		{
			name: "bad pattern",
			form: model.Form{Name: "x", Fields: []model.FormField{{ID: "a", Type: model.FieldText, Validation: &model.FieldValidation{Pattern: "(["}}}},
			code: "invalid_pattern",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Create(s.ctx, tt.form)
			s.requireAppErr(err, apperr.KindValidation, tt.code)
		})
	}
}

func (s *FormServiceTestSuite) TestGetAndList() {
	_, err := s.service.Get(s.ctx, "missing")
	s.True(apperr.IsNotFound(err))

	forms, err := s.service.List(s.ctx)
	s.NoError(err)
	s.NotNil(forms)
	s.Empty(forms)

	first, _ := s.service.Create(s.ctx, model.Form{Name: "first"})
	s.now = s.now.Add(time.Minute)
	second, _ := s.service.Create(s.ctx, model.Form{Name: "second"})

	forms, err = s.service.List(s.ctx)
	s.NoError(err)
	s.Require().Len(forms, 2)
	s.Equal(second.ID, forms[0].ID)
	s.Equal(first.ID, forms[1].ID)
}

func (s *FormServiceTestSuite) TestUpdate_MergesAndPreserves() {
	form := s.publishedForm(model.FormField{ID: "name", Type: model.FieldText, Label: "Name"})
	created := form.CreatedAt
	s.now = s.now.Add(time.Hour)

	desc := "new description"
	updated, err := s.service.Update(s.ctx, form.ID, model.FormUpdate{
		Description: &desc,
		Settings:    &model.FormSettings{SuccessMessage: "Thanks!"},
	})
	s.NoError(err)
	s.Equal("Contact", updated.Name)
	s.Equal(desc, updated.Description)
	s.Equal("Thanks!", updated.Settings.SuccessMessage)
	s.Len(updated.Fields, 1)
	s.True(updated.Published)
	s.Equal(created, updated.CreatedAt)
	s.Equal(s.now, updated.UpdatedAt)

	_, err = s.service.Update(s.ctx, "missing", model.FormUpdate{})
	s.True(apperr.IsNotFound(err))
}

func (s *FormServiceTestSuite) TestSubmit_UnpublishedForm() {
	form, err := s.service.Create(s.ctx, model.Form{Name: "Draft"})
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	e := s.requireAppErr(err, apperr.KindBusinessRule, "business_rule")
	s.Equal("Form is not published", e.Message)

	subs, err := s.service.ListSubmissions(s.ctx, form.ID, 0)
	s.NoError(err)
	s.Empty(subs)
}

func (s *FormServiceTestSuite) TestSubmit_MissingForm() {
	_, err := s.service.Submit(s.ctx, "missing", nil, model.SubmissionMetadata{})
	s.True(apperr.IsNotFound(err))
}

func (s *FormServiceTestSuite) TestSubmit_RequiredField() {
	form := s.publishedForm(model.FormField{ID: "name", Type: model.FieldText, Label: "Full Name", Required: true})

	for _, value := range []any{nil, "", []any{}} {
		_, err := s.service.Submit(s.ctx, form.ID, map[string]any{"name": value}, model.SubmissionMetadata{})
		e := s.requireAppErr(err, apperr.KindValidation, "required")
		s.Equal("name", e.Field)
		s.Equal("Full Name is required", e.Message)
	}
}

func (s *FormServiceTestSuite) TestSubmit_InvalidEmail() {
	form := s.publishedForm(model.FormField{ID: "email", Type: model.FieldEmail, Label: "Email", Required: true})

	_, err := s.service.Submit(s.ctx, form.ID, map[string]any{"email": "not-an-email"}, model.SubmissionMetadata{})
	e := s.requireAppErr(err, apperr.KindValidation, "invalid_email")
	s.Equal("email", e.Field)
	s.Equal("Email must be a valid email address", e.Message)
}

func (s *FormServiceTestSuite) TestSubmit_ClosedForm() {
	form := s.publishedForm()
	closed := s.now.Add(-time.Hour)
	_, err := s.service.Update(s.ctx, form.ID, model.FormUpdate{Settings: &model.FormSettings{CloseDate: &closed}})
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	e := s.requireAppErr(err, apperr.KindBusinessRule, "business_rule")
	s.Equal(defaultClosedMessage, e.Message)

	_, err = s.service.Update(s.ctx, form.ID, model.FormUpdate{Settings: &model.FormSettings{CloseDate: &closed, ClosedMessage: "Registration is over"}})
	s.Require().NoError(err)
	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	e = s.requireAppErr(err, apperr.KindBusinessRule, "business_rule")
	s.Equal("Registration is over", e.Message)
}

func (s *FormServiceTestSuite) TestSubmit_MaxSubmissions() {
	form := s.publishedForm()
	_, err := s.service.Update(s.ctx, form.ID, model.FormUpdate{Settings: &model.FormSettings{MaxSubmissions: 1}})
	s.Require().NoError(err)

	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	s.NoError(err)
	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	s.requireAppErr(err, apperr.KindBusinessRule, "business_rule")
}

func (s *FormServiceTestSuite) TestSubmit_HiddenRequiredFieldSkipped() {
	form := s.publishedForm(
		model.FormField{ID: "more", Type: model.FieldRadio, Label: "Tell us more?", Options: []string{"yes", "no"}},
		model.FormField{
			ID: "details", Type: model.FieldTextarea, Label: "Details", Required: true,
			Conditional: &model.ConditionalRule{FieldID: "more", Operator: "equals", Value: "yes", Action: "show"},
		},
	)

	_, err := s.service.Submit(s.ctx, form.ID, map[string]any{"more": "no"}, model.SubmissionMetadata{})
	s.NoError(err)

	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{"more": "yes"}, model.SubmissionMetadata{})
	s.requireAppErr(err, apperr.KindValidation, "required")
}

func (s *FormServiceTestSuite) TestSubmit_Success() {
	form := s.publishedForm(
		model.FormField{ID: "email", Type: model.FieldEmail, Label: "Email", Required: true},
		model.FormField{ID: "age", Type: model.FieldNumber, Label: "Age"},
	)
	_, err := s.service.Update(s.ctx, form.ID, model.FormUpdate{Settings: &model.FormSettings{
		WebhookURL:  "https://hooks.example.com/f",
		RedirectURL: "https://example.com/thanks",
	}})
	s.Require().NoError(err)

	res, err := s.service.Submit(s.ctx, form.ID, map[string]any{"email": "a@b.com", "age": float64(30), "extra": "dropped"}, model.SubmissionMetadata{IP: "1.2.3.4"})
	s.NoError(err)
	s.True(res.Success)
	s.Equal(defaultSuccessMessage, res.Message)
	s.Equal("https://example.com/thanks", res.RedirectURL)

	sub, err := s.service.GetSubmission(s.ctx, form.ID, res.SubmissionID)
	s.NoError(err)
	s.Equal(map[string]any{"email": "a@b.com", "age": float64(30)}, sub.Data)
	s.Equal("1.2.3.4", sub.Metadata.IP)
	s.Equal(24*time.Hour, s.mr.TTL("submission:"+form.ID+":"+sub.ID))

	stored, err := s.service.Get(s.ctx, form.ID)
	s.NoError(err)
	s.Equal(int64(1), stored.SubmissionCount)

	s.Require().Len(s.webhooks.calls, 1)
	s.Equal("https://hooks.example.com/f", s.webhooks.urls[0])
	s.Equal(sub.ID, s.webhooks.calls[0].Submission.ID)
}

func (s *FormServiceTestSuite) TestSubmissions_ListAndDelete() {
	form := s.publishedForm()
	var ids []string
	for i := 0; i < 3; i++ {
		res, err := s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
		s.Require().NoError(err)
		ids = append(ids, res.SubmissionID)
		s.now = s.now.Add(time.Second)
	}

	subs, err := s.service.ListSubmissions(s.ctx, form.ID, 2)
	s.NoError(err)
	s.Require().Len(subs, 2)
	s.Equal(ids[2], subs[0].ID)
	s.Equal(ids[1], subs[1].ID)

	s.NoError(s.service.DeleteSubmission(s.ctx, form.ID, ids[0]))
	_, err = s.service.GetSubmission(s.ctx, form.ID, ids[0])
	s.True(apperr.IsNotFound(err))
	s.True(apperr.IsNotFound(s.service.DeleteSubmission(s.ctx, form.ID, ids[0])))

	stored, err := s.service.Get(s.ctx, form.ID)
	s.NoError(err)
	s.Equal(int64(2), stored.SubmissionCount)
}

func (s *FormServiceTestSuite) TestExport_QuotingRoundTrip() {
	form := s.publishedForm(
		model.FormField{ID: "comment", Type: model.FieldText, Label: "Comment", Order: 1},
		model.FormField{ID: "tags", Type: model.FieldCheckbox, Label: `Say "hi"`, Order: 2},
	)
	_, err := s.service.Submit(s.ctx, form.ID, map[string]any{"comment": `a"b,c`, "tags": []any{"x", "y"}}, model.SubmissionMetadata{})
	s.Require().NoError(err)
	s.now = s.now.Add(time.Second)
	_, err = s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	s.Require().NoError(err)

	s.objects.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "exports/"+form.ID+"/") && strings.HasSuffix(key, ".csv")
	}), mock.Anything, "text/csv", map[string]string{"form-id": form.ID, "rows": "2"}).Return(nil).Once()

	out, err := s.service.Export(s.ctx, form.ID)
	s.NoError(err)

	lines := strings.Split(string(out), "\n")
	s.Require().Len(lines, 3)
	s.Equal(`Submission ID,Submitted At,"Comment","Say ""hi"""`, lines[0])
	s.Contains(lines[1], ",2025-01-15T08:30:00.000Z,")
	s.True(strings.HasSuffix(lines[1], `,"a""b,c","x, y"`))
	s.True(strings.HasSuffix(lines[2], `,"",""`))

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	s.NoError(err)
	s.Equal(`a"b,c`, records[1][2])
	s.Equal(`Say "hi"`, records[0][3])
}

func (s *FormServiceTestSuite) TestExport_ArchiveFailureIgnored() {
	form := s.publishedForm()
	s.objects.On("Put", mock.Anything, mock.Anything, mock.Anything, "text/csv", mock.Anything).Return(objectstore.ErrNotFound).Once()

	out, err := s.service.Export(s.ctx, form.ID)
	s.NoError(err)
	s.Equal("Submission ID,Submitted At", string(out))
}

func (s *FormServiceTestSuite) TestListExports() {
	form := s.publishedForm()
	s.objects.On("List", mock.Anything, "exports/"+form.ID+"/", 0).Return([]objectstore.Object{
		{Key: "exports/" + form.ID + "/200.csv"},
		{Key: "exports/" + form.ID + "/100.csv"},
	}, nil).Once()

	objs, err := s.service.ListExports(s.ctx, form.ID)
	s.NoError(err)
	s.Require().Len(objs, 2)
	s.Equal("exports/"+form.ID+"/100.csv", objs[0].Key)
}

func (s *FormServiceTestSuite) TestEmbed() {
	form := s.publishedForm(model.FormField{ID: "email", Type: model.FieldEmail, Label: "Email"})

	s.objects.On("Get", mock.Anything, embedKey(form.ID)).Return(&objectstore.Object{
		Data:     []byte("cached"),
		Metadata: map[string]string{embedVersionKey: formVersion(form)},
	}, nil).Once()
	page, err := s.service.Embed(s.ctx, form.ID)
	s.NoError(err)
	s.Equal("cached", string(page))

	// stale cache entry is re-rendered and replaced
	s.objects.On("Get", mock.Anything, embedKey(form.ID)).Return(&objectstore.Object{
		Data:     []byte("stale"),
		Metadata: map[string]string{embedVersionKey: "0"},
	}, nil).Once()
	s.objects.On("Put", mock.Anything, embedKey(form.ID), mock.Anything, "text/html; charset=utf-8", mock.Anything).Return(nil).Once()
	page, err = s.service.Embed(s.ctx, form.ID)
	s.NoError(err)
	s.Contains(string(page), "https://forms.example.com/forms/"+form.ID+"/submit")
}

func (s *FormServiceTestSuite) TestEmbed_Unpublished() {
	form, err := s.service.Create(s.ctx, model.Form{Name: "Draft"})
	s.Require().NoError(err)

	_, err = s.service.Embed(s.ctx, form.ID)
	s.requireAppErr(err, apperr.KindBusinessRule, "business_rule")

	s.objects.On("Put", mock.Anything, embedKey(form.ID), mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	_, err = s.service.Publish(s.ctx, form.ID)
	s.Require().NoError(err)
	s.objects.On("Delete", mock.Anything, embedKey(form.ID)).Return(nil).Once()
	unpublished, err := s.service.Unpublish(s.ctx, form.ID)
	s.NoError(err)
	s.False(unpublished.Published)
}

func (s *FormServiceTestSuite) TestDelete_Cascades() {
	form := s.publishedForm()
	res, err := s.service.Submit(s.ctx, form.ID, map[string]any{}, model.SubmissionMetadata{})
	s.Require().NoError(err)

	s.objects.On("Delete", mock.Anything, embedKey(form.ID)).Return(nil).Once()
	s.objects.On("List", mock.Anything, "exports/"+form.ID+"/", 0).Return([]objectstore.Object{{Key: "exports/" + form.ID + "/1.csv"}}, nil).Once()
	s.objects.On("Delete", mock.Anything, "exports/"+form.ID+"/1.csv").Return(nil).Once()

	s.NoError(s.service.Delete(s.ctx, form.ID))

	_, err = s.service.Get(s.ctx, form.ID)
	s.True(apperr.IsNotFound(err))
	s.False(s.mr.Exists("submission:" + form.ID + ":" + res.SubmissionID))
	s.False(s.mr.Exists("form:" + form.ID + ":submissions"))
	s.Equal([]string{form.ID}, s.purger.purged)

	s.True(apperr.IsNotFound(s.service.Delete(s.ctx, form.ID)))
}

func (s *FormServiceTestSuite) TestBuildCSV_NumbersAndBools() {
	fields := []model.FormField{{ID: "n", Label: "N"}, {ID: "b", Label: "B"}}
	subs := []model.Submission{{ID: "s1", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 5_000_000, time.UTC), Data: map[string]any{"n": 1.5, "b": true}}}

	s.Equal("Submission ID,Submitted At,\"N\",\"B\"\ns1,2025-01-01T00:00:00.005Z,\"1.5\",\"true\"", BuildCSV(fields, subs))
}
