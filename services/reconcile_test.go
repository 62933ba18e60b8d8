package services

import (
	"errors"
	"testing"
	"time"

	"stream-tracker/models"
)

var (
	testTrack = &models.Track{ID: 7, ExternalID: "4uLU6hMCjMI75M1A2tKUQC", Name: "Test Track"}
	testToday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
)

func lastRecord(daysAgo int, total int64) *models.DailyRecord {
	return &models.DailyRecord{
		TrackID:        testTrack.ID,
		Day:            testToday.AddDate(0, 0, -daysAgo),
		TotalCount:     total,
		Classification: models.ClassStandard,
		Method:         models.MethodFastFetch,
	}
}

func fetched(count int64) models.Acquisition {
	return models.Acquisition{Count: count, Method: models.MethodFastFetch, Confidence: 1.0}
}

func TestReconcileNewTrack(t *testing.T) {
	r := NewReconciler(newTestLogger())

	got, err := r.Reconcile(testTrack, fetched(50_000), nil, testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec := got.Today
	if rec.Classification != models.ClassNew {
		t.Errorf("Classification: got %s, want new", rec.Classification)
	}
	if rec.DailyDelta != 0 || rec.TotalCount != 50_000 {
		t.Errorf("got delta %d total %d; want 0 and 50000", rec.DailyDelta, rec.TotalCount)
	}
	if len(got.Imputed) != 0 {
		t.Errorf("new track should not impute, got %d records", len(got.Imputed))
	}
}

func TestReconcileStandard(t *testing.T) {
	r := NewReconciler(newTestLogger())

	got, err := r.Reconcile(testTrack, fetched(510_000), lastRecord(1, 500_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Today.Classification != models.ClassStandard || got.Today.DailyDelta != 10_000 {
		t.Errorf("got %s/%d; want standard/10000", got.Today.Classification, got.Today.DailyDelta)
	}
	if got.Today.Confidence != nil {
		t.Error("Confidence should be unset for a fetched value")
	}
}

func TestReconcileResetDetection(t *testing.T) {
	r := NewReconciler(newTestLogger())

	got, err := r.Reconcile(testTrack, fetched(400_000), lastRecord(1, 500_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec := got.Today
	if rec.Classification != models.ClassReset {
		t.Errorf("Classification: got %s, want reset", rec.Classification)
	}
	if rec.DailyDelta != 0 || rec.TotalCount != 400_000 {
		t.Errorf("got delta %d total %d; want 0 and 400000", rec.DailyDelta, rec.TotalCount)
	}
}

func TestReconcileResetDuringGapDoesNotImpute(t *testing.T) {
	r := NewReconciler(newTestLogger())

	got, err := r.Reconcile(testTrack, fetched(90_000), lastRecord(4, 100_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Today.Classification != models.ClassReset || got.Today.DailyDelta != 0 {
		t.Errorf("got %s/%d; want reset/0", got.Today.Classification, got.Today.DailyDelta)
	}
	if len(got.Imputed) != 0 {
		t.Errorf("negative gap should not impute, got %d records", len(got.Imputed))
	}
}

func TestReconcileGapImputation(t *testing.T) {
	r := NewReconciler(newTestLogger())
	last := lastRecord(3, 100_000)

	got, err := r.Reconcile(testTrack, fetched(106_000), last, testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got.Today.Classification != models.ClassImputed || got.Today.DailyDelta != 2000 {
		t.Errorf("today: got %s/%d; want imputed/2000", got.Today.Classification, got.Today.DailyDelta)
	}
	if got.Today.TotalCount != 106_000 {
		t.Errorf("today total: got %d, want 106000", got.Today.TotalCount)
	}

	wantTotals := []int64{102_000, 104_000}
	if len(got.Imputed) != len(wantTotals) {
		t.Fatalf("imputed: got %d records, want %d", len(got.Imputed), len(wantTotals))
	}
	for i, rec := range got.Imputed {
		wantDay := last.Day.AddDate(0, 0, i+1)
		if !rec.Day.Equal(wantDay) {
			t.Errorf("imputed[%d].Day = %s; want %s", i, models.FormatDay(rec.Day), models.FormatDay(wantDay))
		}
		if rec.TotalCount != wantTotals[i] || rec.DailyDelta != 2000 {
			t.Errorf("imputed[%d] = total %d delta %d; want %d/2000", i, rec.TotalCount, rec.DailyDelta, wantTotals[i])
		}
		if rec.Classification != models.ClassImputed {
			t.Errorf("imputed[%d].Classification = %s", i, rec.Classification)
		}
	}
}

func TestReconcileGapImputationDropsRemainder(t *testing.T) {
	r := NewReconciler(newTestLogger())

	got, err := r.Reconcile(testTrack, fetched(100_010), lastRecord(3, 100_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	sum := got.Today.DailyDelta
	for _, rec := range got.Imputed {
		sum += rec.DailyDelta
	}
	if got.Today.DailyDelta != 3 || sum != 9 {
		t.Errorf("got today delta %d and gap sum %d; want 3 and 9", got.Today.DailyDelta, sum)
	}
}

func TestReconcileHiddenSubstitutesLastTotal(t *testing.T) {
	r := NewReconciler(newTestLogger())
	acq := models.Acquisition{Count: 0, Method: models.MethodFailed}

	got, err := r.Reconcile(testTrack, acq, lastRecord(1, 750_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec := got.Today
	if !rec.IsHidden {
		t.Error("IsHidden should be set")
	}
	if rec.TotalCount != 750_000 || rec.DailyDelta != 0 || rec.Classification != models.ClassStandard {
		t.Errorf("got total %d delta %d class %s; want 750000/0/standard", rec.TotalCount, rec.DailyDelta, rec.Classification)
	}
	if rec.Method != models.MethodFailed {
		t.Errorf("Method: got %s, want failed", rec.Method)
	}
}

func TestReconcileSimulatedKeepsConfidence(t *testing.T) {
	r := NewReconciler(newTestLogger())
	acq := models.Acquisition{Count: 512_000, Method: models.MethodSimulated, Confidence: 0.8}

	got, err := r.Reconcile(testTrack, acq, lastRecord(1, 500_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec := got.Today
	if !rec.IsSimulated || rec.Confidence == nil || *rec.Confidence != 0.8 {
		t.Errorf("got simulated=%v confidence=%v; want true/0.8", rec.IsSimulated, rec.Confidence)
	}
}

func TestReconcileRejectsNonPositiveGap(t *testing.T) {
	r := NewReconciler(newTestLogger())

	for _, daysAgo := range []int{0, -1} {
		_, err := r.Reconcile(testTrack, fetched(100_000), lastRecord(daysAgo, 90_000), testToday)
		if !errors.Is(err, ErrReconciliationLogic) {
			t.Errorf("daysAgo=%d: got %v, want ErrReconciliationLogic", daysAgo, err)
		}
	}
}

func TestReconcileSimulatedGapMarksImputedSimulated(t *testing.T) {
	r := NewReconciler(newTestLogger())
	acq := models.Acquisition{Count: 160_000, Method: models.MethodSimulated, Confidence: 0.4}

	got, err := r.Reconcile(testTrack, acq, lastRecord(3, 100_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(got.Imputed) != 2 {
		t.Fatalf("got %d imputed records, want 2", len(got.Imputed))
	}
	for _, rec := range got.Imputed {
		if !rec.IsSimulated || rec.Method != models.MethodSimulated {
			t.Errorf("imputed %s: simulated=%v method=%s; want true/simulated",
				models.FormatDay(rec.Day), rec.IsSimulated, rec.Method)
		}
	}

	got, err = r.Reconcile(testTrack, fetched(160_000), lastRecord(3, 100_000), testToday)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for _, rec := range got.Imputed {
		if rec.IsSimulated {
			t.Errorf("imputed %s from a fetched value marked simulated", models.FormatDay(rec.Day))
		}
	}
}
