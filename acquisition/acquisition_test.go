package acquisition

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"stream-tracker/models"
	"stream-tracker/utils"
)

var (
	testTrack = &models.Track{ID: 3, Name: "Blinding Lights"}
	testNow   = time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
)

// stubTier returns a fixed result and records whether it was consulted.
type stubTier struct {
	method models.Method
	obs    Observation
	err    error
	calls  int
}

func (s *stubTier) Method() models.Method { return s.method }

func (s *stubTier) Attempt(context.Context, *models.Track) (Observation, error) {
	s.calls++
	return s.obs, s.err
}

func TestPipelineStopsAtFirstSuccess(t *testing.T) {
	fast := &stubTier{method: models.MethodFastFetch, obs: Observation{Count: 1_500_000, Confidence: 1}}
	browser := &stubTier{method: models.MethodBrowserFetch, obs: Observation{Count: 9_999_999, Confidence: 1}}
	p := NewPipeline(utils.NewDiscardLogger(), fast, browser)
	counters := NewCounters()

	got := p.Acquire(context.Background(), testTrack, counters)

	if got.Method != models.MethodFastFetch || got.Count != 1_500_000 {
		t.Errorf("Acquire = %+v; want fast-fetch 1500000", got)
	}
	if browser.calls != 0 {
		t.Errorf("browser tier consulted %d times after fast fetch succeeded", browser.calls)
	}
	if counters.Snapshot()[models.MethodFastFetch] != 1 {
		t.Errorf("counters = %v", counters.Snapshot())
	}
}

func TestPipelineFallsThroughImplausibleAndFailed(t *testing.T) {
	fast := &stubTier{method: models.MethodFastFetch, obs: Observation{Count: 42, Confidence: 1}}
	browser := &stubTier{method: models.MethodBrowserFetch, err: ErrAcquisition}
	estimate := &stubTier{method: models.MethodSimulated, obs: Observation{Count: 500, Confidence: 0.3}}
	p := NewPipeline(utils.NewDiscardLogger(), fast, browser, estimate)

	got := p.Acquire(context.Background(), testTrack, nil)

	// Estimates skip the plausibility check, so 500 is accepted.
	want := models.Acquisition{Count: 500, Method: models.MethodSimulated, Confidence: 0.3}
	if got != want {
		t.Errorf("Acquire = %+v; want %+v", got, want)
	}
	if fast.calls != 1 || browser.calls != 1 || estimate.calls != 1 {
		t.Errorf("calls fast=%d browser=%d estimate=%d; want 1 each", fast.calls, browser.calls, estimate.calls)
	}
}

func TestPipelineAllTiersFail(t *testing.T) {
	p := NewPipeline(utils.NewDiscardLogger(),
		&stubTier{method: models.MethodFastFetch, err: ErrAcquisition},
		&stubTier{method: models.MethodSimulated, err: ErrNoHistory},
	)
	counters := NewCounters()

	got := p.Acquire(context.Background(), testTrack, counters)

	if got != (models.Acquisition{Method: models.MethodFailed}) {
		t.Errorf("Acquire = %+v; want (0, failed, 0)", got)
	}
	if counters.Snapshot()[models.MethodFailed] != 1 {
		t.Errorf("failed not counted: %v", counters.Snapshot())
	}
}

func TestPipelineCancelledContext(t *testing.T) {
	fast := &stubTier{method: models.MethodFastFetch, obs: Observation{Count: 1_500_000}}
	p := NewPipeline(utils.NewDiscardLogger(), fast)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := p.Acquire(ctx, testTrack, nil); got.Method != models.MethodFailed {
		t.Errorf("Acquire on cancelled ctx = %+v; want failed", got)
	}
	if fast.calls != 0 {
		t.Error("tier consulted after cancellation")
	}
}

type fakeHistory struct {
	records []*models.DailyRecord // newest first
	err     error
}

func (f *fakeHistory) RecentRealRecords(_ context.Context, _ int64, limit int) ([]*models.DailyRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

// points builds newest-first history ending daysAgo before testNow.
func points(daysAgo int, totals ...int64) []*models.DailyRecord {
	out := make([]*models.DailyRecord, len(totals))
	for i, total := range totals {
		day := models.Day(testNow).AddDate(0, 0, -daysAgo-(len(totals)-1-i))
		out[len(totals)-1-i] = &models.DailyRecord{TrackID: testTrack.ID, Day: day, TotalCount: total}
	}
	return out
}

func newEstimator(h HistoryReader) *HistoryEstimator {
	e := NewHistoryEstimator(h)
	e.now = func() time.Time { return testNow }
	return e
}

func TestHistoryEstimator(t *testing.T) {
	tests := []struct {
		name           string
		history        []*models.DailyRecord
		wantCount      int64
		wantConfidence float64
	}{
		{
			name:           "single point returned verbatim",
			history:        points(2, 10_000),
			wantCount:      10_000,
			wantConfidence: 0.3,
		},
		{
			name:           "steady growth projected over gap",
			history:        points(2, 10_000, 11_000, 12_000, 13_000),
			wantCount:      15_000,
			wantConfidence: 4.0 / 7 * 0.8,
		},
		{
			name:           "negative deltas ignored",
			history:        points(1, 10_000, 12_000, 11_000, 13_000),
			wantCount:      15_000,
			wantConfidence: 4.0 / 7 * 0.8,
		},
		{
			name:           "flat history with three points",
			history:        points(1, 10_000, 10_000, 10_000),
			wantCount:      10_000,
			wantConfidence: 0.5,
		},
		{
			name:           "flat history with two points",
			history:        points(1, 10_000, 10_000),
			wantCount:      10_000,
			wantConfidence: 0.3,
		},
		{
			name:           "full window caps confidence",
			history:        points(1, 1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000, 9000),
			wantCount:      10_000,
			wantConfidence: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := newEstimator(&fakeHistory{records: tt.history}).Attempt(context.Background(), testTrack)
			if err != nil {
				t.Fatalf("Attempt: %v", err)
			}
			if obs.Count != tt.wantCount {
				t.Errorf("count = %d; want %d", obs.Count, tt.wantCount)
			}
			if math.Abs(obs.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("confidence = %f; want %f", obs.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestHistoryEstimatorNoHistory(t *testing.T) {
	_, err := newEstimator(&fakeHistory{}).Attempt(context.Background(), testTrack)
	if !errors.Is(err, ErrNoHistory) {
		t.Errorf("Attempt = %v; want ErrNoHistory", err)
	}
}

func TestHistoryEstimatorReadError(t *testing.T) {
	_, err := newEstimator(&fakeHistory{err: errors.New("db down")}).Attempt(context.Background(), testTrack)
	if !errors.Is(err, ErrAcquisition) {
		t.Errorf("Attempt = %v; want ErrAcquisition", err)
	}
}

func TestHistoryEstimatorProjectsToRequestedDay(t *testing.T) {
	e := newEstimator(&fakeHistory{records: points(2, 10_000, 11_000, 12_000)})

	ctx := WithDay(context.Background(), testNow.AddDate(0, 0, -1))
	obs, err := e.Attempt(ctx, testTrack)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if obs.Count != 13_000 {
		t.Errorf("count = %d; want 13000 (one day past the newest entry)", obs.Count)
	}

	obs, err = e.Attempt(context.Background(), testTrack)
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if obs.Count != 14_000 {
		t.Errorf("count without a day = %d; want 14000", obs.Count)
	}
}
