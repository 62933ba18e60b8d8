package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"stream-tracker/acquisition"
	"stream-tracker/catalog"
	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/notify"
	"stream-tracker/scraper/spotify"
	"stream-tracker/services"
	"stream-tracker/storage"
	"stream-tracker/tracker"
	"stream-tracker/utils"
)

type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	store    storage.Ledger
	orch     *tracker.Orchestrator
	summary  *services.SummaryService
	notifier *notify.EmailNotifier
}

func main() {
	addURL := flag.String("add", "", "register a playlist URL and exit")
	addName := flag.String("name", "", "display name for -add")
	only := flag.String("collection", "", "run only the collection with this playlist id")
	list := flag.Bool("list", false, "list registered collections and exit")
	daemon := flag.Bool("daemon", false, "stay running and update daily at RUN_HOUR:RUN_MINUTE UTC")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetDebug(cfg.LogDebug)

	logger.Info("=== Stream Tracker starting ===")
	logger.Info("Config: db: %s | concurrency: %d | rate: %dms | retries: %d",
		cfg.DBDriver, cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open ledger store: %v", err)
		if cfg.DBDriver == "postgres" {
			logger.Error("Make sure Docker is running: docker compose up -d")
		}
		os.Exit(1)
	}
	defer store.Close()

	browser := spotify.NewBrowserFetcher(cfg, logger)
	defer browser.Close()

	pipeline := acquisition.NewPipeline(logger,
		spotify.NewFastFetcher(cfg, logger),
		browser,
		acquisition.NewHistoryEstimator(store),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		orch:     tracker.New(cfg, store, catalog.NewSpotifyCatalog(cfg, logger), pipeline, logger),
		summary:  services.NewSummaryService(logger),
		notifier: notify.NewEmailNotifier(cfg, logger),
	}

	seeds, err := config.LoadCollections(cfg.CollectionsFile)
	if err != nil {
		logger.Error("Failed to load collections file: %v", err)
		os.Exit(1)
	}
	if err := a.orch.SeedCollections(ctx, seeds); err != nil {
		logger.Error("Failed to seed collections: %v", err)
		os.Exit(1)
	}

	switch {
	case *addURL != "":
		if _, err := a.orch.AddCollection(ctx, *addURL, *addName); err != nil {
			logger.Error("Add collection failed: %v", err)
			os.Exit(1)
		}
	case *list:
		if err := a.listCollections(ctx); err != nil {
			logger.Error("List collections failed: %v", err)
			os.Exit(1)
		}
	case *only != "":
		if err := a.runOne(ctx, *only); err != nil {
			logger.Error("Run failed: %v", err)
			os.Exit(1)
		}
	case *daemon:
		a.runDaemon(ctx)
	default:
		if err := a.runAll(ctx); err != nil {
			logger.Error("Run failed: %v", err)
			os.Exit(1)
		}
	}
}

func openStore(cfg *config.Config) (storage.Ledger, error) {
	switch cfg.DBDriver {
	case "postgres":
		return storage.NewPostgresStore(cfg.DSN())
	case "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (want postgres, sqlite or memory)", cfg.DBDriver)
	}
}

// runAll updates every active collection, then reports.
func (a *app) runAll(ctx context.Context) error {
	reports, err := a.orch.RunActive(ctx)
	if err != nil {
		return err
	}
	for _, r := range reports {
		a.printReport(r)
	}
	a.afterRun(ctx)
	return nil
}

func (a *app) runOne(ctx context.Context, externalID string) error {
	c, err := a.store.GetCollectionByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("collection %s: %w", externalID, err)
	}
	report, err := a.orch.RunCollection(ctx, c.ID)
	if report != nil {
		a.printReport(report)
	}
	return err
}

// afterRun prints the summary, exports today's ledger and mails the
// summary. Failures here are logged and never fail the run.
func (a *app) afterRun(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	day := models.Day(time.Now())

	totals, err := a.store.CollectionTotals(ctx)
	if err != nil {
		a.logger.Error("Failed to load collection totals: %v", err)
		return
	}
	report := a.summary.Generate(day, totals)
	a.summary.Print(report)

	if err := a.exportCSV(ctx, day); err != nil {
		a.logger.Error("CSV export failed: %v", err)
	}

	status, message := "Success", "Daily summary email sent"
	if err := a.notifier.SendSummary(ctx, report); err != nil {
		status = "Warning"
		message = "Daily summary email not sent"
		if !errors.Is(err, notify.ErrNotConfigured) {
			a.logger.Error("Email failed: %v", err)
		}
		message = fmt.Sprintf("%s: %v", message, err)
	}
	if err := a.store.AppendRunLog(ctx, &models.RunLog{Status: status, Message: message}); err != nil {
		a.logger.Error("Failed to write run log: %v", err)
	}
}

func (a *app) exportCSV(ctx context.Context, day time.Time) error {
	rows, err := a.store.RecordsForDay(ctx, day)
	if err != nil {
		return err
	}
	path := storage.LedgerCSVPath(a.cfg.CSVOutputDir, day)
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteRows(rows); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	a.logger.Info("Ledger for %s saved to %s (%d rows)", models.FormatDay(day), path, len(rows))
	return nil
}

// listCollections logs every registered collection, active or not.
func (a *app) listCollections(ctx context.Context) error {
	colls, err := a.store.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(colls) == 0 {
		a.logger.Info("No collections registered; add one with -add <playlist url>")
		return nil
	}
	for _, c := range colls {
		state := "active"
		if !c.Active {
			state = "inactive"
		}
		last := "never"
		if c.LastSuccessfulUpdate != nil {
			last = c.LastSuccessfulUpdate.UTC().Format(time.RFC3339)
		}
		a.logger.Info("%s | %s | %s | status %s | last success %s",
			c.ExternalID, c.DisplayName(), state, c.Status, last)
	}
	return nil
}

func (a *app) printReport(r *models.RunReport) {
	methods := make([]string, 0, len(r.MethodCounts))
	for m, n := range r.MethodCounts {
		methods = append(methods, fmt.Sprintf("%s=%d", m, n))
	}
	sort.Strings(methods)

	a.logger.Info("Run %s | %s | %s | processed %d, skipped %d, hidden %d, failed %d | methods %v",
		r.RunID, r.CollectionName, r.Status, r.Processed, r.Skipped, r.Hidden, len(r.Failures), methods)
	for _, f := range r.Failures {
		a.logger.Warn("  %s (%s): %s", f.Name, f.ExternalID, f.Err)
	}
}

// runDaemon runs once a day until ctx is cancelled.
func (a *app) runDaemon(ctx context.Context) {
	for {
		next := nextRunAt(time.Now().UTC(), a.cfg.RunHour, a.cfg.RunMinute)
		a.logger.Info("Next update at %s (in %s)", next.Format(time.RFC3339), time.Until(next).Round(time.Minute))

		if err := utils.Sleep(ctx, time.Until(next)); err != nil {
			a.logger.Info("Scheduler stopped")
			return
		}
		if err := a.runAll(ctx); err != nil {
			a.logger.Error("Scheduled run failed: %v", err)
		}
	}
}

// nextRunAt returns the first hour:minute UTC strictly after now.
func nextRunAt(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
