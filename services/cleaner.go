package services

import (
	"strings"
	"unicode"

	"stream-tracker/models"
	"stream-tracker/utils"
)

const trackURLPrefix = "https://open.spotify.com/track/"

// Cleaner normalises track references coming from the catalog before they
// are stored.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean drops refs without an id, removes duplicates (keeping the first
// occurrence), tidies display text and fills in a canonical URL.
func (c *Cleaner) Clean(raw []models.TrackRef) []models.TrackRef {
	seen := utils.NewKeySet()
	result := make([]models.TrackRef, 0, len(raw))

	for _, r := range raw {
		id := strings.TrimSpace(r.ExternalID)
		if id == "" {
			c.logger.Warn("[cleaner] Dropping track with empty id: %s", r.Name)
			continue
		}

		if !seen.Add(id) {
			c.logger.Debug("[cleaner] Duplicate track skipped: %s", id)
			continue
		}

		ref := models.TrackRef{
			ExternalID: id,
			Name:       normaliseText(r.Name),
			Artist:     normaliseText(r.Artist),
			URL:        strings.TrimSpace(r.URL),
		}
		if ref.Artist == "" {
			ref.Artist = "Unknown"
		}
		if ref.URL == "" {
			ref.URL = trackURLPrefix + id
		}

		result = append(result, ref)
	}

	if dropped := len(raw) - len(result); dropped > 0 {
		c.logger.Info("[cleaner] Cleaned %d → %d tracks (dropped %d)", len(raw), len(result), dropped)
	}
	return result
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
