package models

import "time"

// CollectionStatus is the state of a playlist's most recent update run.
type CollectionStatus string

const (
	StatusIdle      CollectionStatus = "idle"
	StatusUpdating  CollectionStatus = "updating"
	StatusCompleted CollectionStatus = "completed"
	StatusFailed    CollectionStatus = "failed"
)

// Collection is a tracked playlist.
type Collection struct {
	ID         int64
	ExternalID string
	Name       string
	CustomName string
	URL        string
	Active     bool
	Status     CollectionStatus

	LastUpdated          *time.Time
	UpdateStartedAt      *time.Time
	UpdateCompletedAt    *time.Time
	LastSuccessfulUpdate *time.Time
	CreatedAt            time.Time
}

// DisplayName prefers the user supplied name over the platform one.
func (c *Collection) DisplayName() string {
	if c.CustomName != "" {
		return c.CustomName
	}
	return c.Name
}

// TrackRef is a track as enumerated by the catalog, before it is stored.
type TrackRef struct {
	ExternalID string
	Name       string
	Artist     string
	URL        string
}

// Track is a stored track belonging to exactly one collection. The same
// platform track appearing in two playlists is stored twice.
type Track struct {
	ID           int64
	ExternalID   string
	Name         string
	Artist       string
	URL          string
	CollectionID int64
}
