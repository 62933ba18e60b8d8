// Package tracker drives daily runs: for each collection it lists the
// tracks, acquires today's counts and appends reconciled ledger entries.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stream-tracker/acquisition"
	"stream-tracker/catalog"
	"stream-tracker/config"
	"stream-tracker/models"
	"stream-tracker/services"
	"stream-tracker/storage"
	"stream-tracker/utils"
)

var (
	// ErrCollectionFetch means the collection's track list could not be
	// obtained; the collection's run is aborted and marked failed.
	ErrCollectionFetch = errors.New("collection fetch failed")
	// ErrNoItems means a run ended without a single processable track.
	ErrNoItems = errors.New("no processable items")
	// ErrPersistence wraps ledger write failures, which abort the
	// collection's run.
	ErrPersistence = errors.New("ledger write failed")
	// ErrItemTimeout means a track ran past the per-item timeout; nothing
	// is written for it.
	ErrItemTimeout = errors.New("item timed out")
	// ErrInvalidCollectionURL is returned when no playlist id can be found.
	ErrInvalidCollectionURL = errors.New("no playlist id in url")
)

// Acquirer produces today's count for a track.
type Acquirer interface {
	Acquire(ctx context.Context, track *models.Track, counters *acquisition.Counters) models.Acquisition
}

// Orchestrator runs collections against the ledger.
type Orchestrator struct {
	store      storage.Ledger
	catalog    catalog.Provider
	acquirer   Acquirer
	cleaner    *services.Cleaner
	reconciler *services.Reconciler
	aggregates *services.AggregateCalculator
	logger     *utils.Logger

	// locks serialises the check-then-write for one track.
	locks *utils.KeyedMutex

	maxConcurrency int
	rateLimitMs    int
	itemTimeout    time.Duration
	now            func() time.Time
}

// New wires an Orchestrator. cfg supplies the concurrency settings.
func New(cfg *config.Config, store storage.Ledger, provider catalog.Provider, acquirer Acquirer, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		store:          store,
		catalog:        provider,
		acquirer:       acquirer,
		cleaner:        services.NewCleaner(logger),
		reconciler:     services.NewReconciler(logger),
		aggregates:     services.NewAggregateCalculator(store),
		logger:         logger,
		locks:          utils.NewKeyedMutex(),
		maxConcurrency: cfg.MaxConcurrency,
		rateLimitMs:    cfg.RateLimitMs,
		itemTimeout:    cfg.ItemTimeout,
		now:            time.Now,
	}
}

// run is the mutable state of one collection run.
type run struct {
	mu       sync.Mutex
	report   *models.RunReport
	counters *acquisition.Counters
	fatal    error
}

func (r *run) fail(ref models.TrackRef, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failures = append(r.report.Failures, models.ItemFailure{
		ExternalID: ref.ExternalID,
		Name:       ref.Name,
		Err:        err.Error(),
	})
	if errors.Is(err, ErrPersistence) && r.fatal == nil {
		r.fatal = err
	}
}

func (r *run) skip() {
	r.mu.Lock()
	r.report.Skipped++
	r.mu.Unlock()
}

func (r *run) record(rec *models.DailyRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Processed++
	r.report.Classifications[rec.Classification]++
	if rec.IsHidden {
		r.report.Hidden++
	}
}

func (r *run) aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal != nil
}

// RunCollection processes every track of one collection for today. Tracks
// already recorded today are skipped before any acquisition, so the call
// can be repeated safely. Per-track failures are collected in the report;
// the returned error is set only when the collection as a whole failed.
func (o *Orchestrator) RunCollection(ctx context.Context, collectionID int64) (*models.RunReport, error) {
	coll, err := o.store.GetCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("tracker: load collection %d: %w", collectionID, err)
	}

	started := o.now()
	report := &models.RunReport{
		RunID:           uuid.NewString(),
		CollectionID:    coll.ID,
		CollectionName:  coll.DisplayName(),
		Day:             models.Day(started),
		StartedAt:       started,
		MethodCounts:    make(map[models.Method]int),
		Classifications: make(map[models.Classification]int),
	}
	r := &run{report: report, counters: acquisition.NewCounters()}

	o.logger.Info("[tracker] Run %s: %s (%s)", report.RunID, report.CollectionName, coll.ExternalID)
	if err := o.store.MarkCollectionStarted(ctx, coll.ID, started); err != nil {
		return nil, fmt.Errorf("tracker: mark started: %w", err)
	}

	refs, err := o.catalog.ListItems(ctx, coll.ExternalID)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrCollectionFetch, report.CollectionName, err)
		return o.finish(ctx, coll, r, err)
	}
	if coll.Name == "" {
		o.refreshName(ctx, coll, report)
	}

	refs = o.cleaner.Clean(refs)
	if len(refs) == 0 {
		return o.finish(ctx, coll, r, fmt.Errorf("%w: %s has no tracks", ErrNoItems, report.CollectionName))
	}
	o.logger.Info("[tracker] %s: %d tracks to check", report.CollectionName, len(refs))

	o.processAll(ctx, coll, refs, r)

	var runErr error
	switch {
	case r.fatal != nil:
		runErr = r.fatal
	case ctx.Err() != nil:
		runErr = fmt.Errorf("tracker: run interrupted: %w", ctx.Err())
	case report.Processed == 0 && report.Skipped == 0:
		runErr = fmt.Errorf("%w: all %d tracks failed", ErrNoItems, len(refs))
	}
	return o.finish(ctx, coll, r, runErr)
}

// processAll handles refs one at a time, or on a bounded worker pool when
// concurrency is enabled. Cancellation stops new tracks from starting;
// tracks already started run to completion.
func (o *Orchestrator) processAll(ctx context.Context, coll *models.Collection, refs []models.TrackRef, r *run) {
	day := r.report.Day

	if o.maxConcurrency <= 1 {
		for _, ref := range refs {
			if ctx.Err() != nil || r.aborted() {
				return
			}
			o.processOne(ctx, coll, ref, day, r)
		}
		return
	}

	pool := utils.NewWorkerPool(o.maxConcurrency, o.rateLimitMs)
	for _, ref := range refs {
		if r.aborted() {
			break
		}
		ref := ref
		if !pool.Submit(ctx, func() { o.processOne(ctx, coll, ref, day, r) }) {
			break
		}
	}
	pool.Wait()
}

func (o *Orchestrator) processOne(ctx context.Context, coll *models.Collection, ref models.TrackRef, day time.Time, r *run) {
	itemCtx, cancel := o.itemContext(ctx)
	defer cancel()

	rec, err := o.processItem(itemCtx, coll, ref, day, r.counters)
	switch {
	case err != nil:
		o.logger.Error("[tracker] %s: %v", ref.Name, err)
		r.fail(ref, err)
	case rec == nil:
		r.skip()
	default:
		r.record(rec)
	}
}

// itemContext detaches a started item from run cancellation so it can
// finish and commit. itemTimeout still bounds it.
func (o *Orchestrator) itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if o.itemTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.itemTimeout)
}

// storeErr classifies a ledger error. An expired item context is a timeout,
// not a storage failure, and must not abort the collection.
func storeErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %v", ErrItemTimeout, op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// processItem runs acquisition, reconciliation and aggregation for one
// track and commits the result. It returns nil, nil when today is already
// recorded.
func (o *Orchestrator) processItem(ctx context.Context, coll *models.Collection, ref models.TrackRef, day time.Time, counters *acquisition.Counters) (*models.DailyRecord, error) {
	unlock := o.locks.Lock(fmt.Sprintf("%d/%s", coll.ID, ref.ExternalID))
	defer unlock()

	track, err := o.store.UpsertTrack(ctx, coll.ID, ref)
	if err != nil {
		return nil, storeErr(ctx, "upsert track", err)
	}

	existing, err := o.store.GetRecord(ctx, track.ID, day)
	if err != nil {
		return nil, storeErr(ctx, "idempotency check", err)
	}
	if existing != nil {
		o.logger.Debug("[tracker] %s: already recorded for %s", track.Name, models.FormatDay(day))
		return nil, nil
	}

	acq := o.acquirer.Acquire(acquisition.WithDay(ctx, day), track, counters)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: acquire: %v", ErrItemTimeout, err)
	}

	last, err := o.store.GetLastRecord(ctx, track.ID)
	if err != nil {
		return nil, storeErr(ctx, "read last record", err)
	}

	result, err := o.reconciler.Reconcile(track, acq, last, day)
	if err != nil {
		return nil, err
	}
	if err := o.aggregates.Apply(ctx, result.Today, result.Imputed); err != nil {
		return nil, storeErr(ctx, "window sums", err)
	}

	records := append(result.Imputed, result.Today)
	if err := o.store.AppendRecords(ctx, records...); err != nil {
		if errors.Is(err, storage.ErrDuplicateRecord) {
			o.logger.Warn("[tracker] %s: recorded concurrently, skipping", track.Name)
			return nil, nil
		}
		return nil, storeErr(ctx, "append records", err)
	}

	o.logger.Debug("[tracker] %s: %s total=%d delta=%d via %s",
		track.Name, result.Today.Classification, result.Today.TotalCount, result.Today.DailyDelta, acq.Method)
	return result.Today, nil
}

// finish records the outcome on the collection and in the run log. Writes
// use a context detached from cancellation so an interrupted run is still
// marked.
func (o *Orchestrator) finish(ctx context.Context, coll *models.Collection, r *run, runErr error) (*models.RunReport, error) {
	ctx = context.WithoutCancel(ctx)
	report := r.report
	report.FinishedAt = o.now()
	report.MethodCounts = r.counters.Snapshot()

	report.Status = models.StatusCompleted
	logStatus := "Success"
	if runErr != nil {
		report.Status = models.StatusFailed
		logStatus = "Failure"
	}

	if err := o.store.MarkCollectionFinished(ctx, coll.ID, report.Status, report.FinishedAt); err != nil {
		o.logger.Error("[tracker] %s: mark finished: %v", report.CollectionName, err)
	}

	msg := fmt.Sprintf("processed %d, skipped %d, failed %d, hidden %d in %s",
		report.Processed, report.Skipped, len(report.Failures), report.Hidden,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	var details []string
	if runErr != nil {
		details = append(details, runErr.Error())
	}
	for _, f := range report.Failures {
		details = append(details, fmt.Sprintf("%s (%s): %s", f.Name, f.ExternalID, f.Err))
	}
	if err := o.store.AppendRunLog(ctx, &models.RunLog{
		Status:         logStatus,
		Message:        msg,
		CollectionName: report.CollectionName,
		ErrorDetails:   strings.Join(details, "\n"),
		CreatedAt:      report.FinishedAt,
	}); err != nil {
		o.logger.Error("[tracker] %s: append run log: %v", report.CollectionName, err)
	}

	if runErr != nil {
		o.logger.Error("[tracker] %s failed: %v", report.CollectionName, runErr)
	} else {
		o.logger.Info("[tracker] %s done: %s", report.CollectionName, msg)
	}
	return report, runErr
}

func (o *Orchestrator) refreshName(ctx context.Context, coll *models.Collection, report *models.RunReport) {
	name, err := o.catalog.PlaylistName(ctx, coll.ExternalID)
	if err != nil || name == "" {
		o.logger.Debug("[tracker] %s: no playlist name: %v", coll.ExternalID, err)
		return
	}
	coll.Name = name
	updated, err := o.store.UpsertCollection(ctx, coll)
	if err != nil {
		o.logger.Warn("[tracker] %s: store playlist name: %v", coll.ExternalID, err)
		return
	}
	report.CollectionName = updated.DisplayName()
}

// RunActive runs every active collection in turn. A failed collection is
// logged and reported; the others still run.
func (o *Orchestrator) RunActive(ctx context.Context) ([]*models.RunReport, error) {
	colls, err := o.store.ListActiveCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracker: list active collections: %w", err)
	}
	if len(colls) == 0 {
		o.logger.Warn("[tracker] No active collections")
		return nil, nil
	}

	reports := make([]*models.RunReport, 0, len(colls))
	for _, c := range colls {
		if ctx.Err() != nil {
			o.logger.Warn("[tracker] Run cancelled, %d collection(s) not started", len(colls)-len(reports))
			break
		}
		report, err := o.RunCollection(ctx, c.ID)
		if report == nil {
			o.logger.Error("[tracker] %s: %v", c.DisplayName(), err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// AddCollection registers a playlist by URL. The platform name is looked
// up from the catalog; customName, when set, overrides it for display.
func (o *Orchestrator) AddCollection(ctx context.Context, url, customName string) (*models.Collection, error) {
	id := config.ParsePlaylistID(url)
	if id == "" {
		return nil, fmt.Errorf("tracker: %w: %q", ErrInvalidCollectionURL, url)
	}

	name, err := o.catalog.PlaylistName(ctx, id)
	if err != nil {
		o.logger.Warn("[tracker] Could not fetch playlist name for %s: %v", id, err)
	}

	c, err := o.store.UpsertCollection(ctx, &models.Collection{
		ExternalID: id,
		Name:       name,
		CustomName: strings.TrimSpace(customName),
		URL:        url,
		Active:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: add collection: %w", err)
	}
	o.logger.Info("[tracker] Collection registered: %s (%s)", c.DisplayName(), c.ExternalID)
	return c, nil
}

// SeedCollections upserts the collections declared in the seed file.
func (o *Orchestrator) SeedCollections(ctx context.Context, seeds []config.CollectionSeed) error {
	for _, s := range seeds {
		id := config.ParsePlaylistID(s.URL)
		if id == "" {
			return fmt.Errorf("tracker: seed %q: %w", s.URL, ErrInvalidCollectionURL)
		}
		if _, err := o.store.UpsertCollection(ctx, &models.Collection{
			ExternalID: id,
			CustomName: s.Name,
			URL:        s.URL,
			Active:     s.IsActive(),
		}); err != nil {
			return fmt.Errorf("tracker: seed %s: %w", id, err)
		}
	}
	if len(seeds) > 0 {
		o.logger.Info("[tracker] Seeded %d collection(s)", len(seeds))
	}
	return nil
}
