package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"form-analytics-service/internal/apperr"
	"form-analytics-service/internal/kv"
	"form-analytics-service/internal/logger"
	"form-analytics-service/internal/model"
)

const (
	dailyCounterTTL  = 365 * 24 * time.Hour
	sessionTTL       = 90 * 24 * time.Hour
	topErrorMessages = 5
	maxAnalyticsDays = 366
	unknownDevice    = "unknown"
)

// MaxSessionInteractions bounds the interaction log kept per live session.
const MaxSessionInteractions = 500

// form-level metrics that have both a daily and a total counter
const (
	metricViews       = "views"
	metricStarts      = "starts"
	metricCompletions = "completions"
	metricSubmissions = "submissions"
	metricAbandoned   = "abandoned"
)

type AnalyticsCollector interface {
	StartSession(ctx context.Context, req model.StartSessionRequest) (model.FormSession, error)
	// TrackInteraction appends to the session's interaction log, keeping the
	// newest MaxSessionInteractions entries. A blur is timed against the latest
	// focus on the same field, but only once: a blur that follows another blur
	// on that field without a new focus adds no time sample.
	TrackInteraction(ctx context.Context, sessionID string, req model.InteractionRequest) error
	MarkStarted(ctx context.Context, sessionID string) error
	MarkCompleted(ctx context.Context, sessionID string) error
	MarkSubmitted(ctx context.Context, sessionID string) error
	TrackDropOff(ctx context.Context, sessionID, fieldID string) error
	GetSession(sessionID string) (model.FormSession, error)
	SweepIdle(now time.Time) int
	RunSweeper(ctx context.Context, every time.Duration)
	GetAnalytics(ctx context.Context, formID string, start, end time.Time, formName string, fields []model.FormField) (model.FormAnalytics, error)
	PurgeFormData(ctx context.Context, formID string) error
}

// analyticsCollector keeps live sessions in memory and folds their events
// into aggregate counters. Sessions are local to the process.
type analyticsCollector struct {
	store       kv.Store
	tests       ABTestService
	log         *logger.Logger
	now         func() time.Time
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*model.FormSession
}

// NewAnalyticsCollector constructs an analyticsCollector. tests may be nil, in
// which case sessions are never routed to A/B variants.
func NewAnalyticsCollector(store kv.Store, tests ABTestService, log *logger.Logger, idleTimeout time.Duration) AnalyticsCollector {
	return &analyticsCollector{
		store:       store,
		tests:       tests,
		log:         log.With("component", "AnalyticsCollector"),
		now:         time.Now,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*model.FormSession),
	}
}

func analyticsKey(parts ...string) string {
	return kv.Key(append([]string{"analytics"}, parts...)...)
}

func fieldKey(formID, fieldID, metric string) string {
	return analyticsKey("field", formID, fieldID, metric)
}

func variantKey(formID, variant, metric string) string {
	return analyticsKey("variant", formID, variant, metric)
}

// StartSession registers a new session. Starting a session that is already
// live returns it unchanged.
func (c *analyticsCollector) StartSession(ctx context.Context, req model.StartSessionRequest) (model.FormSession, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return model.FormSession{}, apperr.Validation("required", "sessionId", "sessionId is required")
	}
	if strings.TrimSpace(req.FormID) == "" {
		return model.FormSession{}, apperr.Validation("required", "formId", "formId is required")
	}

	c.mu.Lock()
	if existing, ok := c.sessions[req.SessionID]; ok {
		session := cloneSession(existing)
		c.mu.Unlock()
		return session, nil
	}
	c.mu.Unlock()

	variant := req.Variant
	if variant == "" && c.tests != nil {
		assignment, err := c.tests.GetVariant(ctx, req.FormID, req.SessionID)
		if err != nil {
			c.log.Warn("variant lookup failed", "form_id", req.FormID, "session_id", req.SessionID, "error", err)
		} else if assignment != nil {
			variant = assignment.Variant.ID
		}
	}

	device := req.Device
	device.Type = strings.ToLower(strings.TrimSpace(device.Type))
	if device.Type == "" {
		device.Type = unknownDevice
	}

	now := c.now().UTC()
	session := &model.FormSession{
		SessionID:    req.SessionID,
		FormID:       req.FormID,
		Variant:      variant,
		StartedAt:    now,
		Interactions: []model.FieldInteraction{},
		Device:       device,
		Country:      strings.ToUpper(strings.TrimSpace(req.Country)),
		Referrer:     req.Referrer,
		UTM:          req.UTM,
		LastActivity: now,
	}

	c.mu.Lock()
	if existing, ok := c.sessions[req.SessionID]; ok {
		out := cloneSession(existing)
		c.mu.Unlock()
		return out, nil
	}
	c.sessions[req.SessionID] = session
	out := cloneSession(session)
	c.mu.Unlock()

	if err := c.countDaily(ctx, session.FormID, metricViews, now); err != nil {
		return out, err
	}
	if err := c.incr(ctx, analyticsKey("device", session.FormID, device.Type), 0); err != nil {
		return out, err
	}
	if session.Country != "" {
		if err := c.incr(ctx, analyticsKey("country", session.FormID, session.Country), 0); err != nil {
			return out, err
		}
	}
	if variant != "" {
		if err := c.incr(ctx, variantKey(session.FormID, variant, metricViews), 0); err != nil {
			return out, err
		}
	}
	return out, nil
}

// TrackInteraction appends an interaction. A blur adds the time since the
// latest focus on the same field to that field's running average.
func (c *analyticsCollector) TrackInteraction(ctx context.Context, sessionID string, req model.InteractionRequest) error {
	if strings.TrimSpace(req.FieldID) == "" {
		return apperr.Validation("required", "fieldId", "fieldId is required")
	}
	if !req.Type.Valid() {
		return apperr.Validation("invalid_type", "type", "type must be one of focus, blur, input, change, error")
	}

	now := c.now().UTC()
	ts := now
	if req.Timestamp != 0 {
		ts = time.UnixMilli(req.Timestamp).UTC()
	}
	interaction := model.FieldInteraction{
		FieldID:      req.FieldID,
		Type:         req.Type,
		Timestamp:    ts,
		Value:        req.Value,
		ErrorMessage: req.ErrorMessage,
	}

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("session %s not found", sessionID)
	}
	formID := session.FormID
	var spent time.Duration
	var measured bool
	if req.Type == model.InteractionBlur {
		spent, measured = timeSinceFocus(session.Interactions, req.FieldID, ts)
	}
	session.Interactions = append(session.Interactions, interaction)
	if n := len(session.Interactions); n > MaxSessionInteractions {
		session.Interactions = append(session.Interactions[:0], session.Interactions[n-MaxSessionInteractions:]...)
	}
	session.LastActivity = now
	c.mu.Unlock()

	switch req.Type {
	case model.InteractionFocus:
		return c.incr(ctx, fieldKey(formID, req.FieldID, "focuses"), 0)
	case model.InteractionBlur:
		if !measured {
			return nil
		}
		if err := c.store.AddSample(ctx, fieldKey(formID, req.FieldID, "time"), float64(spent.Milliseconds()), 0); err != nil {
			return apperr.Upstream("record time on field", err)
		}
	case model.InteractionError:
		if err := c.incr(ctx, fieldKey(formID, req.FieldID, "errors"), 0); err != nil {
			return err
		}
		if msg := strings.TrimSpace(req.ErrorMessage); msg != "" {
			if err := c.store.IncrMember(ctx, fieldKey(formID, req.FieldID, "error_messages"), msg, 0); err != nil {
				return apperr.Upstream("record error message", err)
			}
		}
	}
	return nil
}

// timeSinceFocus walks back to the latest focus on fieldID. A blur on the same
// field found first means that focus was already measured.
func timeSinceFocus(interactions []model.FieldInteraction, fieldID string, at time.Time) (time.Duration, bool) {
	for i := len(interactions) - 1; i >= 0; i-- {
		in := interactions[i]
		if in.FieldID != fieldID {
			continue
		}
		switch in.Type {
		case model.InteractionBlur:
			return 0, false
		case model.InteractionFocus:
			spent := at.Sub(in.Timestamp)
			if spent < 0 {
				return 0, false
			}
			return spent, true
		}
	}
	return 0, false
}

// MarkStarted records the first input of the session. Later calls are no-ops.
func (c *analyticsCollector) MarkStarted(ctx context.Context, sessionID string) error {
	now := c.now().UTC()

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("session %s not found", sessionID)
	}
	if session.Started {
		c.mu.Unlock()
		return nil
	}
	session.Started = true
	session.LastActivity = now
	formID := session.FormID
	c.mu.Unlock()

	return c.countDaily(ctx, formID, metricStarts, now)
}

// MarkCompleted records that every required field was filled. Later calls
// are no-ops.
func (c *analyticsCollector) MarkCompleted(ctx context.Context, sessionID string) error {
	now := c.now().UTC()

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("session %s not found", sessionID)
	}
	if session.CompletedAt != nil {
		c.mu.Unlock()
		return nil
	}
	session.CompletedAt = &now
	session.LastActivity = now
	formID, variant := session.FormID, session.Variant
	elapsed := float64(now.Sub(session.StartedAt).Milliseconds())
	c.mu.Unlock()

	if err := c.countDaily(ctx, formID, metricCompletions, now); err != nil {
		return err
	}
	if err := c.store.AddSample(ctx, analyticsKey("completion_time", formID), elapsed, 0); err != nil {
		return apperr.Upstream("record completion time", err)
	}
	if variant != "" {
		if err := c.incr(ctx, variantKey(formID, variant, metricCompletions), 0); err != nil {
			return err
		}
		if err := c.store.AddSample(ctx, variantKey(formID, variant, "completion_time"), elapsed, 0); err != nil {
			return apperr.Upstream("record variant completion time", err)
		}
	}
	return nil
}

// MarkSubmitted closes the session, persists it and evicts it from memory.
func (c *analyticsCollector) MarkSubmitted(ctx context.Context, sessionID string) error {
	now := c.now().UTC()

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("session %s not found", sessionID)
	}
	session.Submitted = true
	session.LastActivity = now
	snapshot := cloneSession(session)
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	if err := c.countDaily(ctx, snapshot.FormID, metricSubmissions, now); err != nil {
		return err
	}
	if snapshot.Variant != "" {
		if err := c.incr(ctx, variantKey(snapshot.FormID, snapshot.Variant, metricSubmissions), 0); err != nil {
			return err
		}
	}
	if err := kv.PutJSON(ctx, c.store, analyticsKey("session", sessionID), snapshot, sessionTTL); err != nil {
		return apperr.Upstream("persist session", err)
	}
	return nil
}

// TrackDropOff records that the visitor left the form. Without a fieldID the
// last field the visitor touched is used.
func (c *analyticsCollector) TrackDropOff(ctx context.Context, sessionID, fieldID string) error {
	now := c.now().UTC()

	c.mu.Lock()
	session, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("session %s not found", sessionID)
	}
	if fieldID == "" && len(session.Interactions) > 0 {
		fieldID = session.Interactions[len(session.Interactions)-1].FieldID
	}
	formID := session.FormID
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	if fieldID != "" {
		if err := c.incr(ctx, fieldKey(formID, fieldID, "dropoffs"), 0); err != nil {
			return err
		}
	}
	_, err := c.store.Incr(ctx, analyticsKey(metricAbandoned, formID, kv.DateKey(now)), 1, dailyCounterTTL)
	if err != nil {
		return apperr.Upstream("count abandonment", err)
	}
	return nil
}

func (c *analyticsCollector) GetSession(sessionID string) (model.FormSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[sessionID]
	if !ok {
		return model.FormSession{}, apperr.NotFound("session %s not found", sessionID)
	}
	return cloneSession(session), nil
}

// SweepIdle evicts sessions whose last activity is older than the idle
// timeout and returns how many were removed. Evicted sessions are not
// counted as drop-offs.
func (c *analyticsCollector) SweepIdle(now time.Time) int {
	if c.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-c.idleTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, session := range c.sessions {
		if session.LastActivity.Before(cutoff) {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls SweepIdle every interval until ctx is done.
func (c *analyticsCollector) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.SweepIdle(c.now()); n > 0 {
				c.log.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}

// GetAnalytics builds the report for formID. Totals are lifetime counters;
// the daily series covers [start, end] inclusive.
func (c *analyticsCollector) GetAnalytics(ctx context.Context, formID string, start, end time.Time, formName string, fields []model.FormField) (model.FormAnalytics, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if end.Before(start) {
		return model.FormAnalytics{}, apperr.Validation("invalid_range", "startDate", "startDate must not be after endDate")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxAnalyticsDays {
		return model.FormAnalytics{}, apperr.Validation("invalid_range", "endDate", "date range must not exceed 366 days")
	}

	r := &reader{ctx: ctx, store: c.store}
	report := model.FormAnalytics{
		FormID:    formID,
		FormName:  formName,
		StartDate: kv.DateKey(start),
		EndDate:   kv.DateKey(end),
	}

	t := &report.Totals
	t.Views = r.count(analyticsKey(metricViews, formID, "total"))
	t.Starts = r.count(analyticsKey(metricStarts, formID, "total"))
	t.Completions = r.count(analyticsKey(metricCompletions, formID, "total"))
	t.Submissions = r.count(analyticsKey(metricSubmissions, formID, "total"))
	t.ConversionRate = ratio(t.Submissions, t.Views)
	if t.Starts > 0 {
		t.AbandonmentRate = max(0, 1-ratio(t.Submissions, t.Starts))
	}
	t.AvgCompletionTime = r.avg(analyticsKey("completion_time", formID))

	steps := []model.FunnelStep{
		{Name: "View", Count: t.Views},
		{Name: "Start", Count: t.Starts},
		{Name: "Complete", Count: t.Completions},
		{Name: "Submit", Count: t.Submissions},
	}
	for i := range steps {
		if i+1 < len(steps) {
			steps[i].DropOff = steps[i].Count - steps[i+1].Count
		}
		steps[i].Rate = ratio(steps[i].Count, t.Views)
	}
	report.Funnel = steps

	report.Fields = make([]model.FieldAnalytics, 0, len(fields))
	for _, f := range fields {
		report.Fields = append(report.Fields, c.fieldAnalytics(r, formID, f))
	}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := kv.DateKey(day)
		report.Daily = append(report.Daily, model.DailyAnalytics{
			Date:        date,
			Views:       r.count(analyticsKey(metricViews, formID, date)),
			Starts:      r.count(analyticsKey(metricStarts, formID, date)),
			Completions: r.count(analyticsKey(metricCompletions, formID, date)),
			Submissions: r.count(analyticsKey(metricSubmissions, formID, date)),
			Abandoned:   r.count(analyticsKey(metricAbandoned, formID, date)),
		})
	}

	report.Devices = r.breakdown(analyticsKey("device", formID) + ":")
	report.Countries = r.breakdown(analyticsKey("country", formID) + ":")

	if c.tests != nil && r.err == nil {
		test, err := c.tests.GetTestForForm(ctx, formID)
		if err != nil {
			return model.FormAnalytics{}, err
		}
		if test != nil {
			for _, v := range test.Variants {
				va := model.VariantAnalytics{
					Variant:           v.ID,
					Views:             r.count(variantKey(formID, v.ID, metricViews)),
					Completions:       r.count(variantKey(formID, v.ID, metricCompletions)),
					Submissions:       r.count(variantKey(formID, v.ID, metricSubmissions)),
					AvgCompletionTime: r.avg(variantKey(formID, v.ID, "completion_time")),
				}
				va.ConversionRate = ratio(va.Submissions, va.Views)
				report.Variants = append(report.Variants, va)
			}
		}
	}

	if r.err != nil {
		return model.FormAnalytics{}, apperr.Upstream("load analytics", r.err)
	}
	return report, nil
}

func (c *analyticsCollector) fieldAnalytics(r *reader, formID string, f model.FormField) model.FieldAnalytics {
	fa := model.FieldAnalytics{
		FieldID:      f.ID,
		Label:        f.Label,
		Focuses:      r.count(fieldKey(formID, f.ID, "focuses")),
		Errors:       r.count(fieldKey(formID, f.ID, "errors")),
		DropOffs:     r.count(fieldKey(formID, f.ID, "dropoffs")),
		AvgTimeSpent: r.avg(fieldKey(formID, f.ID, "time")),
		TopErrors:    []model.ErrorMessageCount{},
	}
	fa.Completions = max(fa.Focuses-fa.DropOffs, 0)
	fa.ErrorRate = ratio(fa.Errors, fa.Focuses)
	fa.CompletionRate = ratio(fa.Completions, fa.Focuses)
	for _, m := range r.top(fieldKey(formID, f.ID, "error_messages"), topErrorMessages) {
		fa.TopErrors = append(fa.TopErrors, model.ErrorMessageCount{Message: m.Member, Count: m.Count})
	}
	return fa
}

// PurgeFormData deletes every analytics key of formID and forgets its live
// sessions.
func (c *analyticsCollector) PurgeFormData(ctx context.Context, formID string) error {
	c.mu.Lock()
	for id, session := range c.sessions {
		if session.FormID == formID {
			delete(c.sessions, id)
		}
	}
	c.mu.Unlock()

	keys := []string{analyticsKey("completion_time", formID)}
	for _, metric := range []string{metricViews, metricStarts, metricCompletions, metricSubmissions, metricAbandoned, "device", "country", "field", "variant"} {
		found, err := c.store.List(ctx, analyticsKey(metric, formID)+":", 0)
		if err != nil {
			return apperr.Upstream("list analytics keys", err)
		}
		keys = append(keys, found...)
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return apperr.Upstream("delete analytics keys", err)
	}
	return nil
}

// countDaily bumps both the day bucket and the lifetime total of metric.
func (c *analyticsCollector) countDaily(ctx context.Context, formID, metric string, at time.Time) error {
	if _, err := c.store.Incr(ctx, analyticsKey(metric, formID, kv.DateKey(at)), 1, dailyCounterTTL); err != nil {
		return apperr.Upstream("count "+metric, err)
	}
	return c.incr(ctx, analyticsKey(metric, formID, "total"), 0)
}

func (c *analyticsCollector) incr(ctx context.Context, key string, ttl time.Duration) error {
	if _, err := c.store.Incr(ctx, key, 1, ttl); err != nil {
		return apperr.Upstream("update counter", err)
	}
	return nil
}

// reader batches store reads for a report and keeps the first error.
type reader struct {
	ctx   context.Context
	store kv.Store
	err   error
}

func (r *reader) count(key string) int64 {
	if r.err != nil {
		return 0
	}
	n, err := r.store.GetInt(r.ctx, key)
	r.err = err
	return n
}

func (r *reader) avg(key string) float64 {
	if r.err != nil {
		return 0
	}
	a, err := r.store.GetAverage(r.ctx, key)
	r.err = err
	return a.Mean()
}

func (r *reader) top(key string, n int) []kv.MemberCount {
	if r.err != nil {
		return nil
	}
	members, err := r.store.TopMembers(r.ctx, key, n)
	r.err = err
	return members
}

// breakdown maps the last key segment under prefix to its counter value.
func (r *reader) breakdown(prefix string) map[string]int64 {
	out := map[string]int64{}
	if r.err != nil {
		return out
	}
	keys, err := r.store.List(r.ctx, prefix, 0)
	if err != nil {
		r.err = err
		return out
	}
	for _, key := range keys {
		out[strings.TrimPrefix(key, prefix)] = r.count(key)
	}
	return out
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cloneSession(s *model.FormSession) model.FormSession {
	out := *s
	out.Interactions = make([]model.FieldInteraction, len(s.Interactions))
	copy(out.Interactions, s.Interactions)
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
