package acquisition

import (
	"context"
	"fmt"
	"time"

	"stream-tracker/models"
)

// estimateWindow is how many real ledger entries feed an estimate.
const estimateWindow = 7

// HistoryReader is the slice of the ledger the estimate tier needs.
type HistoryReader interface {
	// RecentRealRecords returns up to limit non-simulated records, newest
	// first.
	RecentRealRecords(ctx context.Context, trackID int64, limit int) ([]*models.DailyRecord, error)
}

type dayKey struct{}

// WithDay records the ledger day an acquisition is for. Tiers that project
// over time project to this day rather than the wall clock.
func WithDay(ctx context.Context, day time.Time) context.Context {
	return context.WithValue(ctx, dayKey{}, models.Day(day))
}

func dayFrom(ctx context.Context, fallback func() time.Time) time.Time {
	if day, ok := ctx.Value(dayKey{}).(time.Time); ok {
		return day
	}
	return fallback()
}

// HistoryEstimator projects a track's total from its recent real entries.
type HistoryEstimator struct {
	history HistoryReader
	now     func() time.Time
}

// NewHistoryEstimator creates the estimate tier over history.
func NewHistoryEstimator(history HistoryReader) *HistoryEstimator {
	return &HistoryEstimator{history: history, now: time.Now}
}

func (e *HistoryEstimator) Method() models.Method { return models.MethodSimulated }

// Attempt averages the positive per-day growth between consecutive real
// entries and projects it forward from the newest one to the day set by
// WithDay, or today.
func (e *HistoryEstimator) Attempt(ctx context.Context, track *models.Track) (Observation, error) {
	recs, err := e.history.RecentRealRecords(ctx, track.ID, estimateWindow)
	if err != nil {
		return Observation{}, fmt.Errorf("%w: read history: %v", ErrAcquisition, err)
	}
	if len(recs) == 0 {
		return Observation{}, ErrNoHistory
	}

	latest := recs[0]
	points := len(recs)
	if points < 2 {
		return Observation{Count: latest.TotalCount, Confidence: 0.3}, nil
	}

	var sum float64
	var n int
	// recs is newest first; walk pairs oldest to newest.
	for i := points - 1; i > 0; i-- {
		older, newer := recs[i], recs[i-1]
		days := models.DaysBetween(older.Day, newer.Day)
		if days <= 0 {
			continue
		}
		perDay := float64(newer.TotalCount-older.TotalCount) / float64(days)
		if perDay > 0 {
			sum += perDay
			n++
		}
	}

	if n == 0 {
		confidence := 0.3
		if points >= 3 {
			confidence = 0.5
		}
		return Observation{Count: latest.TotalCount, Confidence: confidence}, nil
	}

	rate := sum / float64(n)
	elapsed := models.DaysBetween(latest.Day, dayFrom(ctx, e.now))
	if elapsed < 0 {
		elapsed = 0
	}
	confidence := float64(points) / estimateWindow
	if confidence > 1 {
		confidence = 1
	}
	return Observation{
		Count:      latest.TotalCount + int64(rate*float64(elapsed)),
		Confidence: confidence * 0.8,
	}, nil
}
