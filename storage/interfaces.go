package storage

import (
	"context"
	"errors"
	"time"

	"stream-tracker/models"
)

var (
	// ErrNotFound is returned when a collection lookup matches nothing.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateRecord is returned by AppendRecords when a (track, day)
	// record already exists. Nothing from the batch is written.
	ErrDuplicateRecord = errors.New("storage: record already exists for track and day")
)

// CollectionStore persists playlists and their run status.
type CollectionStore interface {
	UpsertCollection(ctx context.Context, c *models.Collection) (*models.Collection, error)
	GetCollection(ctx context.Context, id int64) (*models.Collection, error)
	GetCollectionByExternalID(ctx context.Context, externalID string) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]*models.Collection, error)
	ListActiveCollections(ctx context.Context) ([]*models.Collection, error)
	MarkCollectionStarted(ctx context.Context, id int64, at time.Time) error
	MarkCollectionFinished(ctx context.Context, id int64, status models.CollectionStatus, at time.Time) error
	DeleteCollection(ctx context.Context, id int64) error
}

// LedgerStore is the append-only daily record ledger. Day arguments are
// calendar days; windows are half-open [from, to).
type LedgerStore interface {
	UpsertTrack(ctx context.Context, collectionID int64, ref models.TrackRef) (*models.Track, error)
	GetLastRecord(ctx context.Context, trackID int64) (*models.DailyRecord, error)
	GetRecord(ctx context.Context, trackID int64, day time.Time) (*models.DailyRecord, error)
	RecentRealRecords(ctx context.Context, trackID int64, limit int) ([]*models.DailyRecord, error)
	CountRecordsInWindow(ctx context.Context, trackID int64, from, to time.Time) (int, error)
	SumDeltasInWindow(ctx context.Context, trackID int64, from, to time.Time) (int64, error)
	AppendRecords(ctx context.Context, records ...*models.DailyRecord) error
}

// ReportStore serves the reporting side: run logs, summaries and exports.
type ReportStore interface {
	AppendRunLog(ctx context.Context, l *models.RunLog) error
	RecentRunLogs(ctx context.Context, limit int) ([]*models.RunLog, error)
	CollectionTotals(ctx context.Context) ([]models.CollectionTotal, error)
	RecordsForDay(ctx context.Context, day time.Time) ([]models.LedgerRow, error)
}

// Ledger is everything the tracker needs from persistence.
type Ledger interface {
	CollectionStore
	LedgerStore
	ReportStore
	Close() error
}

// LedgerRowWriter is the interface for exporting a day's ledger rows.
type LedgerRowWriter interface {
	WriteRows(rows []models.LedgerRow) error
	Close() error
}
