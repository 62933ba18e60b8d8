package services

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"stream-tracker/models"
)

func sampleTotals() []models.CollectionTotal {
	return []models.CollectionTotal{
		{CollectionID: 1, Name: "Morning", Active: true, TrackCount: 10, TotalCount: 1_500_000, Daily: 2000, Weekly: 14_000, Monthly: 0},
		{CollectionID: 2, Name: "Focus", Active: true, TrackCount: 4, TotalCount: 9_000_000, Daily: 5000, Weekly: 0, Monthly: 150_000},
		{CollectionID: 3, Name: "Archived", Active: false, TrackCount: 99, TotalCount: 1, Daily: 1},
	}
}

func TestSummaryTotals(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), sampleTotals())

	if r.TotalTracks != 14 {
		t.Errorf("TotalTracks: got %d, want 14", r.TotalTracks)
	}
	if r.TotalCount != 10_500_000 {
		t.Errorf("TotalCount: got %d, want 10500000", r.TotalCount)
	}
	if r.DailyTotal != 7000 || r.WeeklyTotal != 14_000 || r.MonthlyTotal != 150_000 {
		t.Errorf("aggregates: got %d/%d/%d", r.DailyTotal, r.WeeklyTotal, r.MonthlyTotal)
	}
	if !r.Day.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day not truncated: %v", r.Day)
	}
}

func TestSummaryBreakdownSkipsInactiveAndSorts(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(time.Now(), sampleTotals())

	if len(r.Collections) != 2 {
		t.Fatalf("Collections: got %d, want 2", len(r.Collections))
	}
	if r.Collections[0].Name != "Focus" {
		t.Errorf("Collections[0]: got %q, want Focus", r.Collections[0].Name)
	}
}

func TestSummaryRender(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	body := svc.Render(svc.Generate(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), sampleTotals()))

	for _, want := range []string{
		"STREAM TRACKER REPORT - 2026-03-10",
		"Overall Total: 10,500,000 streams",
		"- Morning: 1,500,000 streams (10 tracks)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("rendered body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Archived") {
		t.Error("inactive collection should not be rendered")
	}
}

func TestSummaryEmptyInput(t *testing.T) {
	svc := NewSummaryService(newTestLogger())
	r := svc.Generate(time.Now(), nil)
	if r.TotalTracks != 0 || len(r.Collections) != 0 {
		t.Errorf("expected empty report, got %+v", r)
	}
}

func TestFormatThousands(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1_234_567, "1,234,567"},
		{-45_000, "-45,000"},
	}
	for _, tt := range tests {
		if got := formatThousands(tt.n); got != tt.want {
			t.Errorf("formatThousands(%d) = %q; want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Chill Vibes", 28, "Chill Vibes"},
		{"Today's Top Hits and More Today", 20, "Today's Top Hits ..."},
		{"Café Café Café Café Café Café", 10, "Café Ca..."},
		{"日本のトップソング日本のトップソング", 8, "日本のトッ..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q; want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}
