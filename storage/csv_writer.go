package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"stream-tracker/models"
)

// CSVWriter exports ledger rows to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// LedgerCSVPath returns the export path for a day inside dir.
func LedgerCSVPath(dir string, day time.Time) string {
	return filepath.Join(dir, "ledger_"+models.FormatDay(day)+".csv")
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	if err := w.Write([]string{
		"day", "collection", "track", "artist", "track_id",
		"total", "daily", "weekly", "monthly",
		"classification", "hidden", "simulated", "method", "confidence", "recorded_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRows appends rows to the file.
func (c *CSVWriter) WriteRows(rows []models.LedgerRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range rows {
		r := row.Record
		confidence := ""
		if r.Confidence != nil {
			confidence = strconv.FormatFloat(*r.Confidence, 'f', 2, 64)
		}
		if err := c.writer.Write([]string{
			models.FormatDay(r.Day),
			row.Collection,
			row.Track,
			row.Artist,
			row.ExternalID,
			strconv.FormatInt(r.TotalCount, 10),
			strconv.FormatInt(r.DailyDelta, 10),
			strconv.FormatInt(r.WeeklySum, 10),
			strconv.FormatInt(r.MonthlySum, 10),
			string(r.Classification),
			strconv.FormatBool(r.IsHidden),
			strconv.FormatBool(r.IsSimulated),
			string(r.Method),
			confidence,
			r.RecordedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
