package services

import (
	"context"
	"fmt"
	"time"

	"stream-tracker/models"
)

const (
	weekDays       = 7
	monthDays      = 30
	weekThreshold  = 6
	monthThreshold = 29
)

// WindowReader is the read side of the ledger the calculator needs. Windows
// are half-open: [from, to).
type WindowReader interface {
	CountRecordsInWindow(ctx context.Context, trackID int64, from, to time.Time) (int, error)
	SumDeltasInWindow(ctx context.Context, trackID int64, from, to time.Time) (int64, error)
}

// AggregateCalculator fills the rolling weekly and monthly sums of a day's
// record under the strict-availability rule: a sum is only produced when
// the trailing window already holds enough records, otherwise it stays 0.
type AggregateCalculator struct {
	ledger WindowReader
}

// NewAggregateCalculator creates a calculator reading from ledger.
func NewAggregateCalculator(ledger WindowReader) *AggregateCalculator {
	return &AggregateCalculator{ledger: ledger}
}

// Apply sets today.WeeklySum and today.MonthlySum. pending holds records
// produced in the same reconciliation that are not yet stored (imputed gap
// days); they count toward the windows as if already written.
func (a *AggregateCalculator) Apply(ctx context.Context, today *models.DailyRecord, pending []*models.DailyRecord) error {
	weekly, err := a.windowSum(ctx, today, pending, weekDays, weekThreshold)
	if err != nil {
		return fmt.Errorf("aggregates: weekly: %w", err)
	}
	monthly, err := a.windowSum(ctx, today, pending, monthDays, monthThreshold)
	if err != nil {
		return fmt.Errorf("aggregates: monthly: %w", err)
	}

	today.WeeklySum = weekly
	today.MonthlySum = monthly
	return nil
}

func (a *AggregateCalculator) windowSum(ctx context.Context, today *models.DailyRecord, pending []*models.DailyRecord, days, threshold int) (int64, error) {
	to := models.Day(today.Day)
	from := to.AddDate(0, 0, -(days - 1))

	count, err := a.ledger.CountRecordsInWindow(ctx, today.TrackID, from, to)
	if err != nil {
		return 0, err
	}
	sum, err := a.ledger.SumDeltasInWindow(ctx, today.TrackID, from, to)
	if err != nil {
		return 0, err
	}

	for _, p := range pending {
		d := models.Day(p.Day)
		if p.TrackID == today.TrackID && !d.Before(from) && d.Before(to) {
			count++
			sum += p.DailyDelta
		}
	}

	if count < threshold {
		return 0, nil
	}
	return sum + today.DailyDelta, nil
}
