package services

import (
	"errors"
	"fmt"
	"time"

	"stream-tracker/models"
	"stream-tracker/utils"
)

// ErrReconciliationLogic is returned when the last ledger entry is not
// strictly before today. It is fatal for the track, not for the run.
var ErrReconciliationLogic = errors.New("reconciliation logic error")

// Reconciliation is the outcome for one track on one day.
type Reconciliation struct {
	Today   *models.DailyRecord
	Imputed []*models.DailyRecord // gap-fill records, oldest first
}

// Reconciler classifies a day's observation against the previous ledger
// entry and synthesises missing days.
type Reconciler struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler with the given logger.
func NewReconciler(logger *utils.Logger) *Reconciler {
	return &Reconciler{logger: logger, now: time.Now}
}

// Reconcile builds today's record (and any imputed records) for track from
// the acquired value and the track's most recent record, which may be nil.
// Aggregates are left at zero; see AggregateCalculator.
func (r *Reconciler) Reconcile(track *models.Track, acq models.Acquisition, last *models.DailyRecord, today time.Time) (*Reconciliation, error) {
	today = models.Day(today)
	recordedAt := r.now()

	rec := &models.DailyRecord{
		TrackID:     track.ID,
		Day:         today,
		TotalCount:  acq.Count,
		IsHidden:    acq.Count == 0,
		IsSimulated: acq.Method == models.MethodSimulated,
		Method:      acq.Method,
		RecordedAt:  recordedAt,
	}
	if rec.IsSimulated {
		c := acq.Confidence
		rec.Confidence = &c
	}

	if rec.IsHidden && last != nil {
		rec.TotalCount = last.TotalCount
		r.logger.Debug("[reconcile] %s: count unavailable, using last known %d", track.Name, rec.TotalCount)
	}

	out := &Reconciliation{Today: rec}

	if last == nil {
		rec.Classification = models.ClassNew
		rec.DailyDelta = 0
		r.logger.Debug("[reconcile] %s: new track starting at %d", track.Name, rec.TotalCount)
		return out, nil
	}

	gap := models.DaysBetween(last.Day, today)
	if gap <= 0 {
		return nil, fmt.Errorf("%w: track %d last record %s is not before %s",
			ErrReconciliationLogic, track.ID, models.FormatDay(last.Day), models.FormatDay(today))
	}
	rawDiff := rec.TotalCount - last.TotalCount

	switch {
	case rawDiff < 0:
		rec.Classification = models.ClassReset
		rec.DailyDelta = 0
		r.logger.Debug("[reconcile] %s: reset %d → %d over %d day(s)", track.Name, last.TotalCount, rec.TotalCount, gap)

	case gap == 1:
		rec.Classification = models.ClassStandard
		rec.DailyDelta = rawDiff

	default:
		// Floor division: the remainder of rawDiff/gap is dropped.
		avg := rawDiff / int64(gap)
		rec.Classification = models.ClassImputed
		rec.DailyDelta = avg

		for i := 1; i < gap; i++ {
			out.Imputed = append(out.Imputed, &models.DailyRecord{
				TrackID:        track.ID,
				Day:            models.Day(last.Day).AddDate(0, 0, i),
				TotalCount:     last.TotalCount + avg*int64(i),
				DailyDelta:     avg,
				Classification: models.ClassImputed,
				IsSimulated:    rec.IsSimulated,
				Method:         acq.Method,
				RecordedAt:     recordedAt,
			})
		}
		r.logger.Debug("[reconcile] %s: %d-day gap, imputed %d/day", track.Name, gap, avg)
	}

	return out, nil
}
