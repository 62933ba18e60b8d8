package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stream-tracker/models"
)

// MemoryStore is a process-local Ledger used for dry runs and tests.
// It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	collections map[int64]*models.Collection
	tracks      map[int64]*models.Track
	records     map[int64]map[string]*models.DailyRecord // track id → day → record
	logs        []*models.RunLog
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[int64]*models.Collection),
		tracks:      make(map[int64]*models.Track),
		records:     make(map[int64]map[string]*models.DailyRecord),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) UpsertCollection(_ context.Context, c *models.Collection) (*models.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.collections {
		if existing.ExternalID == c.ExternalID {
			if c.Name != "" {
				existing.Name = c.Name
			}
			if c.CustomName != "" {
				existing.CustomName = c.CustomName
			}
			existing.URL = c.URL
			existing.Active = c.Active
			cp := *existing
			return &cp, nil
		}
	}

	stored := *c
	stored.ID = m.id()
	stored.Status = models.StatusIdle
	stored.CreatedAt = time.Now().UTC()
	m.collections[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (m *MemoryStore) GetCollection(_ context.Context, id int64) (*models.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) GetCollectionByExternalID(_ context.Context, externalID string) (*models.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.collections {
		if c.ExternalID == externalID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListCollections(_ context.Context) ([]*models.Collection, error) {
	return m.listCollections(func(*models.Collection) bool { return true }), nil
}

func (m *MemoryStore) ListActiveCollections(_ context.Context) ([]*models.Collection, error) {
	return m.listCollections(func(c *models.Collection) bool { return c.Active }), nil
}

func (m *MemoryStore) listCollections(keep func(*models.Collection) bool) []*models.Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Collection
	for _, c := range m.collections {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) MarkCollectionStarted(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = models.StatusUpdating
	c.UpdateStartedAt = &at
	return nil
}

func (m *MemoryStore) MarkCollectionFinished(_ context.Context, id int64, status models.CollectionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdateCompletedAt = &at
	c.LastUpdated = &at
	if status == models.StatusCompleted {
		c.LastSuccessfulUpdate = &at
	}
	return nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[id]; !ok {
		return ErrNotFound
	}
	delete(m.collections, id)
	for tid, t := range m.tracks {
		if t.CollectionID == id {
			delete(m.tracks, tid)
			delete(m.records, tid)
		}
	}
	return nil
}

func (m *MemoryStore) UpsertTrack(_ context.Context, collectionID int64, ref models.TrackRef) (*models.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collectionID]; !ok {
		return nil, fmt.Errorf("memory: upsert track: collection %d: %w", collectionID, ErrNotFound)
	}
	for _, t := range m.tracks {
		if t.CollectionID == collectionID && t.ExternalID == ref.ExternalID {
			t.Name, t.Artist, t.URL = ref.Name, ref.Artist, ref.URL
			cp := *t
			return &cp, nil
		}
	}

	t := &models.Track{
		ID:           m.id(),
		ExternalID:   ref.ExternalID,
		Name:         ref.Name,
		Artist:       ref.Artist,
		URL:          ref.URL,
		CollectionID: collectionID,
	}
	m.tracks[t.ID] = t
	cp := *t
	return &cp, nil
}

// sortedRecords returns a track's records oldest first. Caller holds mu.
func (m *MemoryStore) sortedRecords(trackID int64) []*models.DailyRecord {
	byDay := m.records[trackID]
	out := make([]*models.DailyRecord, 0, len(byDay))
	for _, r := range byDay {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

func copyRecord(r *models.DailyRecord) *models.DailyRecord {
	cp := *r
	if r.Confidence != nil {
		c := *r.Confidence
		cp.Confidence = &c
	}
	return &cp
}

func (m *MemoryStore) GetLastRecord(_ context.Context, trackID int64) (*models.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.sortedRecords(trackID)
	if len(recs) == 0 {
		return nil, nil
	}
	return copyRecord(recs[len(recs)-1]), nil
}

func (m *MemoryStore) GetRecord(_ context.Context, trackID int64, day time.Time) (*models.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[trackID][dayParam(day)]
	if !ok {
		return nil, nil
	}
	return copyRecord(r), nil
}

func (m *MemoryStore) RecentRealRecords(_ context.Context, trackID int64, limit int) ([]*models.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.sortedRecords(trackID)
	var out []*models.DailyRecord
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		if !recs[i].IsSimulated {
			out = append(out, copyRecord(recs[i]))
		}
	}
	return out, nil
}

func (m *MemoryStore) CountRecordsInWindow(_ context.Context, trackID int64, from, to time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	m.eachInWindow(trackID, from, to, func(*models.DailyRecord) { n++ })
	return n, nil
}

func (m *MemoryStore) SumDeltasInWindow(_ context.Context, trackID int64, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum int64
	m.eachInWindow(trackID, from, to, func(r *models.DailyRecord) { sum += r.DailyDelta })
	return sum, nil
}

func (m *MemoryStore) eachInWindow(trackID int64, from, to time.Time, fn func(*models.DailyRecord)) {
	lo, hi := dayParam(from), dayParam(to)
	for day, r := range m.records[trackID] {
		if day >= lo && day < hi {
			fn(r)
		}
	}
}

func (m *MemoryStore) AppendRecords(_ context.Context, records ...*models.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		key := fmt.Sprintf("%d/%s", r.TrackID, dayParam(r.Day))
		if _, exists := m.records[r.TrackID][dayParam(r.Day)]; exists || seen[key] {
			return fmt.Errorf("%w: track %d on %s", ErrDuplicateRecord, r.TrackID, dayParam(r.Day))
		}
		if _, ok := m.tracks[r.TrackID]; !ok {
			return fmt.Errorf("memory: append record: track %d: %w", r.TrackID, ErrNotFound)
		}
		seen[key] = true
	}

	for _, r := range records {
		byDay, ok := m.records[r.TrackID]
		if !ok {
			byDay = make(map[string]*models.DailyRecord)
			m.records[r.TrackID] = byDay
		}
		cp := copyRecord(r)
		cp.Day = models.Day(r.Day)
		if cp.RecordedAt.IsZero() {
			cp.RecordedAt = time.Now()
		}
		byDay[dayParam(r.Day)] = cp
	}
	return nil
}

func (m *MemoryStore) AppendRunLog(_ context.Context, l *models.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	cp.ID = m.id()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *MemoryStore) RecentRunLogs(_ context.Context, limit int) ([]*models.RunLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RunLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) CollectionTotals(_ context.Context) ([]models.CollectionTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCollection := make(map[int64]*models.CollectionTotal, len(m.collections))
	for _, c := range m.collections {
		byCollection[c.ID] = &models.CollectionTotal{CollectionID: c.ID, Name: c.DisplayName(), Active: c.Active}
	}
	for _, t := range m.tracks {
		total, ok := byCollection[t.CollectionID]
		if !ok {
			continue
		}
		total.TrackCount++
		recs := m.sortedRecords(t.ID)
		if len(recs) == 0 {
			continue
		}
		latest := recs[len(recs)-1]
		total.TotalCount += latest.TotalCount
		total.Daily += latest.DailyDelta
		total.Weekly += latest.WeeklySum
		total.Monthly += latest.MonthlySum
	}

	out := make([]models.CollectionTotal, 0, len(byCollection))
	for _, t := range byCollection {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectionID < out[j].CollectionID })
	return out, nil
}

func (m *MemoryStore) RecordsForDay(_ context.Context, day time.Time) ([]models.LedgerRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := dayParam(day)
	var out []models.LedgerRow
	for _, t := range m.tracks {
		r, ok := m.records[t.ID][key]
		if !ok {
			continue
		}
		row := models.LedgerRow{Track: t.Name, Artist: t.Artist, ExternalID: t.ExternalID, Record: *copyRecord(r)}
		if c, ok := m.collections[t.CollectionID]; ok {
			row.Collection = c.DisplayName()
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.TrackID < out[j].Record.TrackID })
	return out, nil
}

var _ Ledger = (*MemoryStore)(nil)
var _ Ledger = (*SQLStore)(nil)
