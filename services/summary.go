package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stream-tracker/models"
	"stream-tracker/utils"
)

type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

// Generate builds the daily summary from per-collection totals. Only active
// collections contribute to the overall figures and the breakdown.
func (s *SummaryService) Generate(day time.Time, totals []models.CollectionTotal) *models.SummaryReport {
	report := &models.SummaryReport{Day: models.Day(day)}

	for _, t := range totals {
		if !t.Active {
			continue
		}
		report.TotalTracks += t.TrackCount
		report.TotalCount += t.TotalCount
		report.DailyTotal += t.Daily
		report.WeeklyTotal += t.Weekly
		report.MonthlyTotal += t.Monthly

		report.Collections = append(report.Collections, models.CollectionSummary{
			Name:       t.Name,
			TrackCount: t.TrackCount,
			TotalCount: t.TotalCount,
			Daily:      t.Daily,
			Weekly:     t.Weekly,
			Monthly:    t.Monthly,
		})
	}

	sort.SliceStable(report.Collections, func(i, j int) bool {
		return report.Collections[i].TotalCount > report.Collections[j].TotalCount
	})

	return report
}

// Render formats the report as the plain-text body of the summary email.
func (s *SummaryService) Render(r *models.SummaryReport) string {
	var b strings.Builder
	sep := strings.Repeat("=", 32)

	fmt.Fprintf(&b, "STREAM TRACKER REPORT - %s\n", models.FormatDay(r.Day))
	fmt.Fprintf(&b, "%s\n", sep)
	fmt.Fprintf(&b, "Overall Total: %s streams\n", formatThousands(r.TotalCount))
	fmt.Fprintf(&b, "Total Tracks:  %d\n", r.TotalTracks)
	fmt.Fprintf(&b, "Daily:   +%s\n", formatThousands(r.DailyTotal))
	fmt.Fprintf(&b, "Weekly:  +%s\n", formatThousands(r.WeeklyTotal))
	fmt.Fprintf(&b, "Monthly: +%s\n", formatThousands(r.MonthlyTotal))
	fmt.Fprintf(&b, "%s\n\n", sep)

	b.WriteString("Playlist Breakdown:\n")
	for _, c := range r.Collections {
		fmt.Fprintf(&b, "- %s: %s streams (%d tracks), +%s today\n",
			c.Name, formatThousands(c.TotalCount), c.TrackCount, formatThousands(c.Daily))
	}
	return b.String()
}

func (s *SummaryService) Print(r *models.SummaryReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 STREAM TRACKER SUMMARY  %s\033[0m\n", models.FormatDay(r.Day))
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Tracks tracked : \033[1m%d\033[0m\n", r.TotalTracks)
	fmt.Printf("  Total streams  : \033[1m%s\033[0m\n", formatThousands(r.TotalCount))
	fmt.Printf("  Daily          : \033[1;32m+%s\033[0m\n", formatThousands(r.DailyTotal))
	fmt.Printf("  Weekly         : \033[1;32m+%s\033[0m\n", formatThousands(r.WeeklyTotal))
	fmt.Printf("  Monthly        : \033[1;32m+%s\033[0m\n", formatThousands(r.MonthlyTotal))
	fmt.Println()

	fmt.Printf("\033[1;33m  Playlists\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(r.Collections) == 0 {
		fmt.Printf("  No active playlists\n")
	}
	for i, c := range r.Collections {
		fmt.Printf("  \033[1m%d.\033[0m %-30s %15s (%d tracks)\n",
			i+1, truncate(c.Name, 28), formatThousands(c.TotalCount), c.TrackCount)
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

// formatThousands renders n with comma thousands separators.
func formatThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return sign + s
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
