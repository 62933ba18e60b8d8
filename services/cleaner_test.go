package services

import (
	"testing"

	"stream-tracker/models"
	"stream-tracker/utils"
)

func newTestLogger() *utils.Logger { return utils.NewDiscardLogger() }

func TestCleanerDropsEmptyID(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []models.TrackRef{
		{ExternalID: "", Name: "Local file"},
		{ExternalID: "4uLU6hMCjMI75M1A2tKUQC", Name: "Never Gonna Give You Up", Artist: "Rick Astley"},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 track after dropping empty id, got %d", len(cleaned))
	}
}

func TestCleanerDeduplicatesID(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []models.TrackRef{
		{ExternalID: "abc", Name: "A"},
		{ExternalID: "def", Name: "B"},
		{ExternalID: " abc ", Name: "A again"},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 2 {
		t.Fatalf("expected 2 tracks after deduplication, got %d", len(cleaned))
	}
	if cleaned[0].Name != "A" || cleaned[1].ExternalID != "def" {
		t.Errorf("order not preserved: %+v", cleaned)
	}
}

func TestCleanerNormalisesFields(t *testing.T) {
	c := NewCleaner(newTestLogger())
	cleaned := c.Clean([]models.TrackRef{{ExternalID: "xyz", Name: "  Blinding \t Lights ", Artist: ""}})

	got := cleaned[0]
	if got.Name != "Blinding Lights" {
		t.Errorf("Name: got %q, want %q", got.Name, "Blinding Lights")
	}
	if got.Artist != "Unknown" {
		t.Errorf("Artist: got %q, want Unknown", got.Artist)
	}
	if got.URL != "https://open.spotify.com/track/xyz" {
		t.Errorf("URL: got %q", got.URL)
	}
}
