package service

import (
	"context"
	"errors"
	"hash/fnv"
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
	assignmentTTL = 90 * 24 * time.Hour

	// A variant needs this much traffic before it can be declared the winner.
	minWinnerViews       = 100
	minWinnerConversions = 10
)

// VariantAssigner routes a session to a variant of the form's running test.
type VariantAssigner interface {
	GetVariant(ctx context.Context, formID, sessionID string) (*model.Assignment, error)
}

type ABTestService interface {
	VariantAssigner
	CreateTest(ctx context.Context, req model.CreateTestRequest) (model.ABTest, error)
	GetTest(ctx context.Context, testID string) (model.ABTest, error)
	GetTestForForm(ctx context.Context, formID string) (*model.ABTest, error)
	RecordConversion(ctx context.Context, testID, variantID string, revenue float64) error
	UpdateStatus(ctx context.Context, testID string, status model.TestStatus) (model.ABTest, error)
	EndTest(ctx context.Context, testID, winner string) (model.ABTest, error)
	Results(ctx context.Context, testID string) (model.TestResults, error)
	PurgeFormData(ctx context.Context, formID string) error
}

type abTestService struct {
	store kv.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewABTestService constructs an abTestService.
func NewABTestService(store kv.Store, log *logger.Logger) ABTestService {
	return &abTestService{store: store, log: log.With("component", "ABTestService"), now: time.Now}
}

func testKey(testID string) string {
	return kv.Key("abtest", testID)
}

func formTestKey(formID string) string {
	return kv.Key("abtest", "form", formID)
}

func assignmentKey(testID, sessionID string) string {
	return kv.Key("abtest", "assignment", testID, sessionID)
}

func statKey(testID, variantID, stat string) string {
	return kv.Key("abtest", "stats", testID, variantID, stat)
}

// CreateTest stores a new test and makes it the one routed for its form.
func (s *abTestService) CreateTest(ctx context.Context, req model.CreateTestRequest) (model.ABTest, error) {
	if strings.TrimSpace(req.FormID) == "" {
		return model.ABTest{}, apperr.Validation("required", "formId", "formId is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return model.ABTest{}, apperr.Validation("required", "name", "name is required")
	}
	if len(req.Variants) == 0 {
		return model.ABTest{}, apperr.Validation("invalid_variants", "variants", "at least one variant is required")
	}

	seen := make(map[string]struct{}, len(req.Variants))
	variants := make([]model.Variant, 0, len(req.Variants))
	for _, v := range req.Variants {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if _, dup := seen[v.ID]; dup {
			return model.ABTest{}, apperr.Validation("duplicate_variant", "variants", "variant id "+v.ID+" is used more than once")
		}
		seen[v.ID] = struct{}{}
		if !(v.Weight > 0) || math.IsInf(v.Weight, 0) {
			return model.ABTest{}, apperr.Validation("invalid_weight", "variants", "variant "+v.ID+" must have a positive weight")
		}
		if v.Name == "" {
			v.Name = v.ID
		}
		variants = append(variants, v)
	}

	status := req.Status
	if status == "" {
		status = model.TestRunning
	}
	if !status.Valid() {
		return model.ABTest{}, apperr.Validation("invalid_status", "status", "unknown status "+string(status))
	}

	now := s.now().UTC()
	start := now
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	var end *time.Time
	if req.EndDate != nil {
		e := req.EndDate.UTC()
		if !e.After(start) {
			return model.ABTest{}, apperr.Validation("invalid_dates", "endDate", "endDate must be after startDate")
		}
		end = &e
	}

	test := model.ABTest{
		ID:        uuid.NewString(),
		FormID:    req.FormID,
		Name:      req.Name,
		Variants:  variants,
		StartDate: start,
		EndDate:   end,
		Status:    status,
		CreatedAt: now,
	}
	if err := kv.PutJSON(ctx, s.store, testKey(test.ID), test, 0); err != nil {
		return model.ABTest{}, apperr.Upstream("save test", err)
	}
	if err := s.store.Put(ctx, formTestKey(test.FormID), []byte(test.ID), 0); err != nil {
		return model.ABTest{}, apperr.Upstream("link test to form", err)
	}

	s.log.Info("ab test created", "test_id", test.ID, "form_id", test.FormID, "variants", len(variants))
	return test, nil
}

func (s *abTestService) GetTest(ctx context.Context, testID string) (model.ABTest, error) {
	var test model.ABTest
	err := kv.GetJSON(ctx, s.store, testKey(testID), &test)
	if errors.Is(err, kv.ErrNotFound) {
		return model.ABTest{}, apperr.NotFound("test %s not found", testID)
	}
	if err != nil {
		return model.ABTest{}, apperr.Upstream("load test", err)
	}
	return test, nil
}

// GetTestForForm returns the test routed for formID, or nil when there is none.
func (s *abTestService) GetTestForForm(ctx context.Context, formID string) (*model.ABTest, error) {
	raw, err := s.store.Get(ctx, formTestKey(formID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Upstream("load form test", err)
	}

	test, err := s.GetTest(ctx, string(raw))
	if apperr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// GetVariant returns nil when the form has no running test. A session keeps
// the variant it was first assigned.
func (s *abTestService) GetVariant(ctx context.Context, formID, sessionID string) (*model.Assignment, error) {
	if sessionID == "" {
		return nil, apperr.Validation("required", "sessionId", "sessionId is required")
	}
	test, err := s.GetTestForForm(ctx, formID)
	if err != nil || test == nil {
		return nil, err
	}
	if !isActive(*test, s.now()) {
		return nil, nil
	}

	key := assignmentKey(test.ID, sessionID)
	v, ok, err := s.storedAssignment(ctx, key, *test)
	if err != nil {
		return nil, err
	}
	if ok {
		return &model.Assignment{TestID: test.ID, Variant: v}, nil
	}

	chosen := PickVariant(test.Variants, sessionID)
	stored, err := s.store.PutIfAbsent(ctx, key, []byte(chosen.ID), assignmentTTL)
	if err != nil {
		return nil, apperr.Upstream("save assignment", err)
	}
	if !stored {
		// a concurrent request assigned the session first
		v, ok, err := s.storedAssignment(ctx, key, *test)
		if err != nil {
			return nil, err
		}
		if ok {
			return &model.Assignment{TestID: test.ID, Variant: v}, nil
		}
	}

	if _, err := s.store.Incr(ctx, statKey(test.ID, chosen.ID, "views"), 1, 0); err != nil {
		return nil, apperr.Upstream("count variant view", err)
	}
	return &model.Assignment{TestID: test.ID, Variant: chosen}, nil
}

func (s *abTestService) storedAssignment(ctx context.Context, key string, test model.ABTest) (model.Variant, bool, error) {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return model.Variant{}, false, nil
	}
	if err != nil {
		return model.Variant{}, false, apperr.Upstream("load assignment", err)
	}
	v, ok := findVariant(test, string(raw))
	return v, ok, nil
}

func (s *abTestService) RecordConversion(ctx context.Context, testID, variantID string, revenue float64) error {
	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	if _, ok := findVariant(test, variantID); !ok {
		return apperr.Validation("unknown_variant", "variantId", "variant "+variantID+" is not part of this test")
	}
	if revenue < 0 || math.IsNaN(revenue) || math.IsInf(revenue, 0) {
		return apperr.Validation("invalid_value", "revenue", "revenue must be a non-negative number")
	}

	if _, err := s.store.Incr(ctx, statKey(testID, variantID, "conversions"), 1, 0); err != nil {
		return apperr.Upstream("count conversion", err)
	}
	if revenue > 0 {
		if _, err := s.store.IncrFloat(ctx, statKey(testID, variantID, "revenue"), revenue, 0); err != nil {
			return apperr.Upstream("add revenue", err)
		}
	}
	return nil
}

func (s *abTestService) UpdateStatus(ctx context.Context, testID string, status model.TestStatus) (model.ABTest, error) {
	if !status.Valid() {
		return model.ABTest{}, apperr.Validation("invalid_status", "status", "unknown status "+string(status))
	}
	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return model.ABTest{}, err
	}

	test.Status = status
	if (status == model.TestCompleted || status == model.TestStopped) && test.EndDate == nil {
		now := s.now().UTC()
		test.EndDate = &now
	}
	if err := kv.PutJSON(ctx, s.store, testKey(testID), test, 0); err != nil {
		return model.ABTest{}, apperr.Upstream("save test", err)
	}
	s.log.Info("ab test status changed", "test_id", testID, "status", status)
	return test, nil
}

// EndTest completes the test. Without an explicit winner the current leader
// from Results is recorded, which may be empty. The winner is informational
// and does not change routing.
func (s *abTestService) EndTest(ctx context.Context, testID, winner string) (model.ABTest, error) {
	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return model.ABTest{}, err
	}

	if winner != "" {
		if _, ok := findVariant(test, winner); !ok {
			return model.ABTest{}, apperr.Validation("unknown_variant", "winningVariant", "variant "+winner+" is not part of this test")
		}
	} else {
		results, err := s.Results(ctx, testID)
		if err != nil {
			return model.ABTest{}, err
		}
		winner = results.Winner
	}

	now := s.now().UTC()
	test.Status = model.TestCompleted
	test.EndDate = &now
	test.WinningVariant = winner
	if err := kv.PutJSON(ctx, s.store, testKey(testID), test, 0); err != nil {
		return model.ABTest{}, apperr.Upstream("save test", err)
	}
	s.log.Info("ab test ended", "test_id", testID, "winner", winner)
	return test, nil
}

// Results reports per-variant counters. Only variants with enough views and
// conversions compete for the winner.
func (s *abTestService) Results(ctx context.Context, testID string) (model.TestResults, error) {
	test, err := s.GetTest(ctx, testID)
	if err != nil {
		return model.TestResults{}, err
	}

	res := model.TestResults{TestID: test.ID, Status: test.Status, Variants: make([]model.VariantResult, 0, len(test.Variants))}
	for _, v := range test.Variants {
		vr := model.VariantResult{VariantID: v.ID, Name: v.Name}
		if vr.Views, err = s.store.GetInt(ctx, statKey(testID, v.ID, "views")); err != nil {
			return model.TestResults{}, apperr.Upstream("load views", err)
		}
		if vr.Conversions, err = s.store.GetInt(ctx, statKey(testID, v.ID, "conversions")); err != nil {
			return model.TestResults{}, apperr.Upstream("load conversions", err)
		}
		if vr.Revenue, err = s.store.GetFloat(ctx, statKey(testID, v.ID, "revenue")); err != nil {
			return model.TestResults{}, apperr.Upstream("load revenue", err)
		}
		vr.ConversionRate = percent(vr.Conversions, vr.Views)
		vr.Eligible = vr.Views >= minWinnerViews && vr.Conversions >= minWinnerConversions
		res.Variants = append(res.Variants, vr)
	}

	best, runnerUp := -1, -1
	for i, vr := range res.Variants {
		if !vr.Eligible {
			continue
		}
		switch {
		case best < 0 || rate(vr) > rate(res.Variants[best]):
			runnerUp, best = best, i
		case runnerUp < 0 || rate(vr) > rate(res.Variants[runnerUp]):
			runnerUp = i
		}
	}
	if best >= 0 {
		res.Winner = res.Variants[best].VariantID
		if runnerUp >= 0 {
			res.ConfidenceEstimate = confidenceEstimate(res.Variants[best], res.Variants[runnerUp])
		}
	}
	return res, nil
}

// PurgeFormData drops the form's test routing and the tests' counters.
func (s *abTestService) PurgeFormData(ctx context.Context, formID string) error {
	test, err := s.GetTestForForm(ctx, formID)
	if err != nil {
		return err
	}
	keys := []string{formTestKey(formID)}
	if test != nil {
		keys = append(keys, testKey(test.ID))
		stats, err := s.store.List(ctx, kv.Key("abtest", "stats", test.ID)+":", 0)
		if err != nil {
			return apperr.Upstream("list test stats", err)
		}
		keys = append(keys, stats...)
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return apperr.Upstream("delete test data", err)
	}
	return nil
}

func isActive(test model.ABTest, now time.Time) bool {
	if test.Status != model.TestRunning {
		return false
	}
	if now.Before(test.StartDate) {
		return false
	}
	return test.EndDate == nil || !now.After(*test.EndDate)
}

func findVariant(test model.ABTest, variantID string) (model.Variant, bool) {
	for _, v := range test.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return model.Variant{}, false
}

// rate is the unrounded conversion rate used for ranking.
func rate(vr model.VariantResult) float64 {
	if vr.Views == 0 {
		return 0
	}
	return float64(vr.Conversions) / float64(vr.Views)
}

// confidenceEstimate is a two-proportion z score turned into a two-sided
// normal confidence, in percent. It is a rough indicator, not a p-value.
func confidenceEstimate(a, b model.VariantResult) float64 {
	p1, p2 := rate(a), rate(b)
	pooled := float64(a.Conversions+b.Conversions) / float64(a.Views+b.Views)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.Views) + 1/float64(b.Views)))
	if se == 0 {
		return 0
	}
	z := math.Abs(p1-p2) / se
	return round2(math.Erf(z/math.Sqrt2) * 100)
}

// PickVariant chooses a variant for sessionID by weighted rendezvous hashing.
// Each variant scores -weight/ln(u) where u in (0,1) comes from hashing the
// variant and session ids; the highest score wins. The result depends only on
// the set of variants, not their order, and each variant wins with
// probability weight/sum(weights).
func PickVariant(variants []model.Variant, sessionID string) model.Variant {
	best := -1
	bestScore := 0.0
	for i, v := range variants {
		score := rendezvousScore(v.ID, sessionID, v.Weight)
		if best < 0 || score > bestScore || (score == bestScore && v.ID < variants[best].ID) {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return model.Variant{}
	}
	return variants[best]
}

func rendezvousScore(variantID, sessionID string, weight float64) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(variantID))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(sessionID))

	// murmur3 finalizer: keys differing only in their last byte must still
	// spread over the high bits used for u.
	x := mix64(h.Sum64())
	u := (float64(x>>11) + 0.5) / (1 << 53)
	return -weight / math.Log(u)
}

func mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
