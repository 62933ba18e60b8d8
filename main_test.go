package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/storage"
	"stream-tracker/utils"
)

func TestNextRunAt(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "already passed",
			now:  time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly now rolls over",
			now:  time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "month end",
			now:  time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input",
			now:  time.Date(2026, 3, 10, 1, 0, 0, 0, time.FixedZone("CET", 3600)),
			want: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextRunAt(tt.now, 3, 0); !got.Equal(tt.want) {
				t.Errorf("nextRunAt(%s) = %s; want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := &config.Config{DBDriver: driver, SQLitePath: filepath.Join(t.TempDir(), "ledger.db")}
			s, err := openStore(cfg)
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			_ = s.Close()
		})
	}

	if _, err := openStore(&config.Config{DBDriver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestListCollectionsIncludesInactive(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, c := range []*models.Collection{
		{ExternalID: "37i9dQZF1DXcBWIGoYBM5M", Name: "Today's Top Hits", Active: true},
		{ExternalID: "37i9dQZF1DX0XUsuxWHRQd", Name: "RapCaviar", CustomName: "Rap", Active: false},
	} {
		if _, err := store.UpsertCollection(ctx, c); err != nil {
			t.Fatalf("UpsertCollection: %v", err)
		}
	}

	var out bytes.Buffer
	a := &app{store: store, logger: utils.NewLoggerTo(&out, &out)}
	if err := a.listCollections(ctx); err != nil {
		t.Fatalf("listCollections: %v", err)
	}
	for _, want := range []string{
		"37i9dQZF1DXcBWIGoYBM5M | Today's Top Hits | active",
		"37i9dQZF1DX0XUsuxWHRQd | Rap | inactive",
		"last success never",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
