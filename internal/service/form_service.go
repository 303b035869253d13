package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/html"
	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
	"form-analytics-service/internal/objectstore"
	"form-analytics-service/internal/repository"
	"form-analytics-service/internal/validator"
)

const (
	defaultSuccessMessage = "Thank you for your submission!"
	defaultClosedMessage  = "This form is no longer accepting submissions"
	exportTimeLayout      = "2006-01-02T15:04:05.000Z"
	embedVersionKey       = "form-version"
)

// FormDataPurger drops data another component keeps for a form.
type FormDataPurger interface {
	PurgeFormData(ctx context.Context, formID string) error
}

type FormService interface {
	Create(ctx context.Context, form model.Form) (model.Form, error)
	Get(ctx context.Context, id string) (model.Form, error)
	List(ctx context.Context) ([]model.Form, error)
	Update(ctx context.Context, id string, update model.FormUpdate) (model.Form, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (model.Form, error)
	Unpublish(ctx context.Context, id string) (model.Form, error)

	Submit(ctx context.Context, id string, data map[string]any, meta model.SubmissionMetadata) (model.SubmitResult, error)
	ListSubmissions(ctx context.Context, id string, limit int) ([]model.Submission, error)
	GetSubmission(ctx context.Context, id, subID string) (model.Submission, error)
	DeleteSubmission(ctx context.Context, id, subID string) error

	Export(ctx context.Context, id string) ([]byte, error)
	ListExports(ctx context.Context, id string) ([]objectstore.Object, error)
	Embed(ctx context.Context, id string) ([]byte, error)
}

// FormServiceOptions wires the optional collaborators of a form service.
type FormServiceOptions struct {
	// Objects caches embed pages and archives exports. May be nil.
	Objects objectstore.Store
	// Webhooks delivers submission notifications. May be nil.
	Webhooks  WebhookNotifier
	Purgers   []FormDataPurger
	BaseURL   string
	Retention time.Duration
}

type formService struct {
	repo      repository.FormRepository
	objects   objectstore.Store
	webhooks  WebhookNotifier
	purgers   []FormDataPurger
	baseURL   string
	retention time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewFormService constructs a formService.
func NewFormService(repo repository.FormRepository, log *logger.Logger, opts FormServiceOptions) FormService {
	return &formService{
		repo:      repo,
		objects:   opts.Objects,
		webhooks:  opts.Webhooks,
		purgers:   opts.Purgers,
		baseURL:   opts.BaseURL,
		retention: opts.Retention,
		log:       log.With("component", "FormService"),
		now:       time.Now,
	}
}

func embedKey(formID string) string {
	return "embed/" + formID + ".html"
}

func exportPrefix(formID string) string {
	return "exports/" + formID + "/"
}

func (s *formService) Create(ctx context.Context, form model.Form) (model.Form, error) {
	fields, err := normalizeFields(form.Fields)
	if err != nil {
		return model.Form{}, err
	}
	if strings.TrimSpace(form.Name) == "" {
		return model.Form{}, apperr.Validation("required", "name", "name is required")
	}

	now := s.now().UTC()
	form.ID = uuid.NewString()
	form.Fields = fields
	form.CreatedAt = now
	form.UpdatedAt = now
	form.Published = false
	form.SubmissionCount = 0

	if err := s.repo.SaveForm(ctx, form); err != nil {
		return model.Form{}, apperr.Upstream("save form", err)
	}
	s.log.Info("form created", "form_id", form.ID, "fields", len(fields))
	return form, nil
}

func (s *formService) Get(ctx context.Context, id string) (model.Form, error) {
	form, err := s.repo.GetForm(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Form{}, apperr.NotFound("form %s not found", id)
	}
	if err != nil {
		return model.Form{}, apperr.Upstream("load form", err)
	}
	return form, nil
}

func (s *formService) List(ctx context.Context) ([]model.Form, error) {
	forms, err := s.repo.ListForms(ctx)
	if err != nil {
		return nil, apperr.Upstream("list forms", err)
	}
	if forms == nil {
		forms = []model.Form{}
	}
	return forms, nil
}

// Update merges the non-nil members of update into the stored form.
func (s *formService) Update(ctx context.Context, id string, update model.FormUpdate) (model.Form, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return model.Form{}, err
	}

	if update.Name != nil {
		if strings.TrimSpace(*update.Name) == "" {
			return model.Form{}, apperr.Validation("required", "name", "name is required")
		}
		form.Name = *update.Name
	}
	if update.Description != nil {
		form.Description = *update.Description
	}
	if update.Fields != nil {
		fields, err := normalizeFields(update.Fields)
		if err != nil {
			return model.Form{}, err
		}
		form.Fields = fields
	}
	if update.Settings != nil {
		form.Settings = *update.Settings
	}
	form.UpdatedAt = s.now().UTC()

	if err := s.repo.SaveForm(ctx, form); err != nil {
		return model.Form{}, apperr.Upstream("save form", err)
	}
	return form, nil
}

// Delete removes the form, its submissions and everything other components
// keep for it. Failures after the form itself is gone are only logged.
func (s *formService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	subs, err := s.repo.ListSubmissions(ctx, id, 0)
	if err != nil {
		return apperr.Upstream("list submissions", err)
	}
	for _, sub := range subs {
		if err := s.repo.DeleteSubmission(ctx, id, sub.ID); err != nil {
			return apperr.Upstream("delete submission", err)
		}
	}
	if err := s.repo.DeleteForm(ctx, id); err != nil {
		return apperr.Upstream("delete form", err)
	}

	for _, p := range s.purgers {
		if err := p.PurgeFormData(ctx, id); err != nil {
			s.log.Warn("failed to purge form data", "form_id", id, "error", err)
		}
	}
	if s.objects != nil {
		s.deleteObject(ctx, id, embedKey(id))
		archives, err := s.objects.List(ctx, exportPrefix(id), 0)
		if err != nil {
			s.log.Warn("failed to list export archives", "form_id", id, "error", err)
		}
		for _, obj := range archives {
			s.deleteObject(ctx, id, obj.Key)
		}
	}

	s.log.Info("form deleted", "form_id", id, "submissions", len(subs))
	return nil
}

// Publish opens the form for submissions and caches its embed page.
func (s *formService) Publish(ctx context.Context, id string) (model.Form, error) {
	form, err := s.setPublished(ctx, id, true)
	if err != nil {
		return model.Form{}, err
	}
	if _, err := s.cacheEmbed(ctx, form); err != nil {
		s.log.Warn("failed to cache embed page", "form_id", id, "error", err)
	}
	return form, nil
}

func (s *formService) Unpublish(ctx context.Context, id string) (model.Form, error) {
	form, err := s.setPublished(ctx, id, false)
	if err != nil {
		return model.Form{}, err
	}
	if s.objects != nil {
		s.deleteObject(ctx, id, embedKey(id))
	}
	return form, nil
}

func (s *formService) setPublished(ctx context.Context, id string, published bool) (model.Form, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return model.Form{}, err
	}
	form.Published = published
	form.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveForm(ctx, form); err != nil {
		return model.Form{}, apperr.Upstream("save form", err)
	}
	s.log.Info("form publication changed", "form_id", id, "published", published)
	return form, nil
}

// Submit validates data against the form and stores it as a new submission.
// Values for unknown fields are dropped.
func (s *formService) Submit(ctx context.Context, id string, data map[string]any, meta model.SubmissionMetadata) (model.SubmitResult, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return model.SubmitResult{}, err
	}

	now := s.now().UTC()
	if !form.Published {
		return model.SubmitResult{}, apperr.BusinessRule("Form is not published")
	}
	if form.Settings.CloseDate != nil && now.After(*form.Settings.CloseDate) {
		msg := form.Settings.ClosedMessage
		if msg == "" {
			msg = defaultClosedMessage
		}
		return model.SubmitResult{}, apperr.BusinessRule(msg)
	}
	if limit := form.Settings.MaxSubmissions; limit > 0 && form.SubmissionCount >= limit {
		return model.SubmitResult{}, apperr.BusinessRule("This form has reached its submission limit")
	}

	visible := make([]model.FormField, 0, len(form.Fields))
	for _, f := range form.Fields {
		if validator.Visible(f, data) {
			visible = append(visible, f)
		}
	}
	for _, f := range visible {
		if f.Required && validator.IsEmpty(data[f.ID]) {
			return model.SubmitResult{}, apperr.Validation("required", f.ID, f.Label+" is required")
		}
	}

	clean := make(map[string]any, len(visible))
	for _, f := range visible {
		value, ok := data[f.ID]
		if !ok {
			continue
		}
		if !validator.IsEmpty(value) {
			if err := validator.Validate(f, value); err != nil {
				return model.SubmitResult{}, err
			}
		}
		clean[f.ID] = value
	}

	sub := model.Submission{
		ID:        uuid.NewString(),
		FormID:    form.ID,
		Data:      clean,
		Metadata:  meta,
		CreatedAt: now,
	}
	if err := s.repo.SaveSubmission(ctx, sub, s.retention); err != nil {
		return model.SubmitResult{}, apperr.Upstream("save submission", err)
	}
	count, err := s.repo.IncrSubmissionCount(ctx, form.ID, 1)
	if err != nil {
		return model.SubmitResult{}, apperr.Upstream("count submission", err)
	}
	form.SubmissionCount = count
	if err := s.repo.SaveForm(ctx, form); err != nil {
		return model.SubmitResult{}, apperr.Upstream("save form", err)
	}

	if form.Settings.WebhookURL != "" && s.webhooks != nil {
		s.webhooks.Notify(form.Settings.WebhookURL, WebhookPayload{
			Event:      "form.submitted",
			FormID:     form.ID,
			FormName:   form.Name,
			Submission: sub,
		})
	}

	msg := form.Settings.SuccessMessage
	if msg == "" {
		msg = defaultSuccessMessage
	}
	return model.SubmitResult{
		Success:      true,
		SubmissionID: sub.ID,
		Message:      msg,
		RedirectURL:  form.Settings.RedirectURL,
	}, nil
}

// ListSubmissions returns the newest limit submissions, newest first.
func (s *formService) ListSubmissions(ctx context.Context, id string, limit int) ([]model.Submission, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubmissions(ctx, id, limit)
	if err != nil {
		return nil, apperr.Upstream("list submissions", err)
	}
	out := make([]model.Submission, len(subs))
	for i, sub := range subs {
		out[len(subs)-1-i] = sub
	}
	return out, nil
}

func (s *formService) GetSubmission(ctx context.Context, id, subID string) (model.Submission, error) {
	sub, err := s.repo.GetSubmission(ctx, id, subID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Submission{}, apperr.NotFound("submission %s not found", subID)
	}
	if err != nil {
		return model.Submission{}, apperr.Upstream("load submission", err)
	}
	return sub, nil
}

func (s *formService) DeleteSubmission(ctx context.Context, id, subID string) error {
	form, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.GetSubmission(ctx, id, subID); err != nil {
		return err
	}
	if err := s.repo.DeleteSubmission(ctx, id, subID); err != nil {
		return apperr.Upstream("delete submission", err)
	}

	count, err := s.repo.IncrSubmissionCount(ctx, id, -1)
	if err != nil {
		return apperr.Upstream("count submission", err)
	}
	form.SubmissionCount = max(count, 0)
	if err := s.repo.SaveForm(ctx, form); err != nil {
		return apperr.Upstream("save form", err)
	}
	return nil
}

// Export renders every submission as CSV, oldest first, and archives a copy.
func (s *formService) Export(ctx context.Context, id string) ([]byte, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubmissions(ctx, id, 0)
	if err != nil {
		return nil, apperr.Upstream("list submissions", err)
	}

	csv := []byte(BuildCSV(form.Fields, subs))

	if s.objects != nil {
		key := fmt.Sprintf("%s%d.csv", exportPrefix(id), s.now().Unix())
		meta := map[string]string{"form-id": id, "rows": strconv.Itoa(len(subs))}
		if err := s.objects.Put(ctx, key, csv, "text/csv", meta); err != nil {
			s.log.Warn("failed to archive export", "form_id", id, "error", err)
		}
	}
	return csv, nil
}

// ListExports lists archived exports of the form, oldest first.
func (s *formService) ListExports(ctx context.Context, id string) ([]objectstore.Object, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.objects == nil {
		return []objectstore.Object{}, nil
	}
	objs, err := s.objects.List(ctx, exportPrefix(id), 0)
	if err != nil {
		return nil, apperr.Upstream("list exports", err)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	if objs == nil {
		objs = []objectstore.Object{}
	}
	return objs, nil
}

// Embed returns the embed page of a published form, from the cache when the
// cached copy matches the form's current version.
func (s *formService) Embed(ctx context.Context, id string) ([]byte, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !form.Published {
		return nil, apperr.BusinessRule("Form is not published")
	}

	if s.objects != nil {
		obj, err := s.objects.Get(ctx, embedKey(id))
		switch {
		case err == nil && obj.Metadata[embedVersionKey] == formVersion(form):
			return obj.Data, nil
		case err != nil && !errors.Is(err, objectstore.ErrNotFound):
			s.log.Warn("failed to read cached embed page", "form_id", id, "error", err)
		}
	}

	page, err := s.cacheEmbed(ctx, form)
	if page == nil {
		return nil, apperr.Upstream("render embed page", err)
	}
	if err != nil {
		s.log.Warn("failed to cache embed page", "form_id", id, "error", err)
	}
	return page, nil
}

// cacheEmbed renders the page and stores it when an object store is
// configured. A non-nil page with an error means only caching failed.
func (s *formService) cacheEmbed(ctx context.Context, form model.Form) ([]byte, error) {
	page, err := html.RenderEmbed(form, html.EmbedOptions{BaseURL: s.baseURL})
	if err != nil {
		return nil, err
	}
	if s.objects == nil {
		return page, nil
	}
	meta := map[string]string{embedVersionKey: formVersion(form)}
	if err := s.objects.Put(ctx, embedKey(form.ID), page, "text/html; charset=utf-8", meta); err != nil {
		return page, err
	}
	return page, nil
}

func (s *formService) deleteObject(ctx context.Context, formID, key string) {
	if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		s.log.Warn("failed to delete object", "form_id", formID, "key", key, "error", err)
	}
}

func formVersion(form model.Form) string {
	return strconv.FormatInt(form.UpdatedAt.UnixNano(), 10)
}

// normalizeFields assigns missing ids, rejects duplicates, unknown types and
// bad patterns, and sorts by order.
func normalizeFields(fields []model.FormField) ([]model.FormField, error) {
	out := make([]model.FormField, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, dup := seen[f.ID]; dup {
			return nil, apperr.Validation("duplicate_field", f.ID, "field id "+f.ID+" is used more than once")
		}
		seen[f.ID] = struct{}{}
		if !f.Type.Valid() {
			return nil, apperr.Validation("invalid_field_type", f.ID, "unknown field type "+string(f.Type))
		}
		if f.Validation != nil && f.Validation.Pattern != "" {
			if _, err := validator.CompilePattern(f.Validation.Pattern); err != nil {
				return nil, apperr.Validation("invalid_pattern", f.ID, err.Error())
			}
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// BuildCSV renders submissions in the export format: bare id and timestamp
// cells, every label and value cell quoted, lines joined by "\n".
func BuildCSV(fields []model.FormField, subs []model.Submission) string {
	ordered := make([]model.FormField, len(fields))
	copy(ordered, fields)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	rows := make([]model.Submission, len(subs))
	copy(rows, subs)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })

	lines := make([]string, 0, len(rows)+1)
	header := []string{"Submission ID", "Submitted At"}
	for _, f := range ordered {
		header = append(header, quoteCell(f.Label))
	}
	lines = append(lines, strings.Join(header, ","))

	for _, sub := range rows {
		cells := []string{sub.ID, sub.CreatedAt.UTC().Format(exportTimeLayout)}
		for _, f := range ordered {
			cells = append(cells, quoteCell(cellText(sub.Data[f.ID])))
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n")
}

func quoteCell(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func cellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = cellText(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
