package models

import "time"

// ItemFailure describes a track that could not be processed in a run.
type ItemFailure struct {
	ExternalID string
	Name       string
	Err        string
}

// RunReport holds per-run statistics for one collection.
type RunReport struct {
	RunID          string
	CollectionID   int64
	CollectionName string
	Day            time.Time
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         CollectionStatus

	Processed       int
	Skipped         int
	Hidden          int
	MethodCounts    map[Method]int
	Classifications map[Classification]int
	Failures        []ItemFailure
}

// RunLog is a persisted entry of the update log.
type RunLog struct {
	ID             int64
	Status         string
	Message        string
	CollectionName string
	ErrorDetails   string
	CreatedAt      time.Time
}

// CollectionTotal aggregates the latest ledger entry of every track in a
// collection.
type CollectionTotal struct {
	CollectionID int64
	Name         string
	Active       bool
	TrackCount   int
	TotalCount   int64
	Daily        int64
	Weekly       int64
	Monthly      int64
}

// CollectionSummary is one line of the summary breakdown.
type CollectionSummary struct {
	Name       string
	TrackCount int
	TotalCount int64
	Daily      int64
	Weekly     int64
	Monthly    int64
}

// SummaryReport is the daily summary handed to notification delivery.
type SummaryReport struct {
	Day          time.Time
	TotalTracks  int
	TotalCount   int64
	DailyTotal   int64
	WeeklyTotal  int64
	MonthlyTotal int64
	Collections  []CollectionSummary
}

// LedgerRow is a daily record joined with its track, for export.
type LedgerRow struct {
	Collection string
	Track      string
	Artist     string
	ExternalID string
	Record     DailyRecord
}
