package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"form-analytics-service/internal/kv"
	"form-analytics-service/internal/model"
)

// ErrNotFound is returned when a form or submission does not exist.
var ErrNotFound = errors.New("record not found")

// FormRepository persists forms and submissions as JSON in the KV store.
type FormRepository interface {
	SaveForm(ctx context.Context, form model.Form) error
	GetForm(ctx context.Context, id string) (model.Form, error)
	ListForms(ctx context.Context) ([]model.Form, error)
	DeleteForm(ctx context.Context, id string) error

	SaveSubmission(ctx context.Context, sub model.Submission, ttl time.Duration) error
	GetSubmission(ctx context.Context, formID, subID string) (model.Submission, error)
	// ListSubmissions returns submissions oldest first, at most limit (0 = all).
	ListSubmissions(ctx context.Context, formID string, limit int) ([]model.Submission, error)
	DeleteSubmission(ctx context.Context, formID, subID string) error

	IncrSubmissionCount(ctx context.Context, formID string, delta int64) (int64, error)
}

type formRepository struct {
	store kv.Store
}

// NewFormRepository creates a FormRepository on store.
func NewFormRepository(store kv.Store) FormRepository {
	return &formRepository{store: store}
}

func formKey(id string) string {
	return kv.Key("form", id)
}

func submissionCountKey(formID string) string {
	return kv.Key("form", formID, "submissions")
}

func submissionKey(formID, subID string) string {
	return kv.Key("submission", formID, subID)
}

func (r *formRepository) SaveForm(ctx context.Context, form model.Form) error {
	return kv.PutJSON(ctx, r.store, formKey(form.ID), form, 0)
}

func (r *formRepository) GetForm(ctx context.Context, id string) (model.Form, error) {
	var form model.Form
	if err := kv.GetJSON(ctx, r.store, formKey(id), &form); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return model.Form{}, ErrNotFound
		}
		return model.Form{}, err
	}
	return form, nil
}

func (r *formRepository) ListForms(ctx context.Context) ([]model.Form, error) {
	keys, err := r.store.List(ctx, "form:", 0)
	if err != nil {
		return nil, err
	}

	forms := make([]model.Form, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, "form:")
		if strings.Contains(id, ":") {
			continue
		}
		form, err := r.GetForm(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}

	sort.Slice(forms, func(i, j int) bool { return forms[i].CreatedAt.After(forms[j].CreatedAt) })
	return forms, nil
}

func (r *formRepository) DeleteForm(ctx context.Context, id string) error {
	return r.store.Delete(ctx, formKey(id), submissionCountKey(id))
}

func (r *formRepository) SaveSubmission(ctx context.Context, sub model.Submission, ttl time.Duration) error {
	return kv.PutJSON(ctx, r.store, submissionKey(sub.FormID, sub.ID), sub, ttl)
}

func (r *formRepository) GetSubmission(ctx context.Context, formID, subID string) (model.Submission, error) {
	var sub model.Submission
	if err := kv.GetJSON(ctx, r.store, submissionKey(formID, subID), &sub); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return model.Submission{}, ErrNotFound
		}
		return model.Submission{}, err
	}
	return sub, nil
}

func (r *formRepository) ListSubmissions(ctx context.Context, formID string, limit int) ([]model.Submission, error) {
	prefix := submissionKey(formID, "")
	keys, err := r.store.List(ctx, prefix, 0)
	if err != nil {
		return nil, err
	}

	subs := make([]model.Submission, 0, len(keys))
	for _, key := range keys {
		sub, err := r.GetSubmission(ctx, formID, strings.TrimPrefix(key, prefix))
		if errors.Is(err, ErrNotFound) {
			// expired between SCAN and GET
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load submission %s: %w", key, err)
		}
		subs = append(subs, sub)
	}

	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	if limit > 0 && len(subs) > limit {
		subs = subs[len(subs)-limit:]
	}
	return subs, nil
}

func (r *formRepository) DeleteSubmission(ctx context.Context, formID, subID string) error {
	return r.store.Delete(ctx, submissionKey(formID, subID))
}

func (r *formRepository) IncrSubmissionCount(ctx context.Context, formID string, delta int64) (int64, error) {
	return r.store.Incr(ctx, submissionCountKey(formID), delta, 0)
}
