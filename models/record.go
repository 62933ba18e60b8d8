package models

import "time"

// Classification is the primary outcome of reconciling one day's observation.
type Classification string

const (
	ClassNew      Classification = "new"
	ClassStandard Classification = "standard"
	ClassReset    Classification = "reset"
	ClassImputed  Classification = "imputed"
)

// Method records which acquisition tier produced a count.
type Method string

const (
	MethodFastFetch    Method = "fast-fetch"
	MethodBrowserFetch Method = "browser-fetch"
	MethodSimulated    Method = "simulated"
	MethodFailed       Method = "failed"
)

// Acquisition is the accepted output of the acquisition pipeline.
type Acquisition struct {
	Count      int64
	Method     Method
	Confidence float64
}

// DailyRecord is one ledger entry, keyed by (TrackID, Day).
type DailyRecord struct {
	TrackID    int64
	Day        time.Time
	TotalCount int64
	DailyDelta int64

	// 0 means "not enough history", not a real zero.
	WeeklySum  int64
	MonthlySum int64

	Classification Classification
	IsHidden       bool
	IsSimulated    bool
	Method         Method
	Confidence     *float64 // only set when IsSimulated
	RecordedAt     time.Time
}

// Day truncates t to its UTC calendar date at midnight. Runs are scheduled
// in UTC, so the ledger day never depends on the host time zone.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format("2006-01-02")
}
