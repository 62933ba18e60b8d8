package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stream-tracker/models"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name     string
	numbered bool // $1, $2 ... placeholders instead of ?
	schema   string
}

// SQLStore implements Ledger on top of database/sql. Queries are written
// with ? placeholders and rebound for the active dialect.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", d.name, err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(s.dialect.schema)
	return err
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for dialects that need it.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) errorf(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", s.dialect.name, op, err)
}

// ── collections ─────────────────────────────────────────────────────────

const collectionColumns = `id, external_id, name, custom_name, url, is_active, update_status,
	last_updated, update_started_at, update_completed_at, last_successful_update, created_at`

func (s *SQLStore) UpsertCollection(ctx context.Context, c *models.Collection) (*models.Collection, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO collections (external_id, name, custom_name, url, is_active, update_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			name        = CASE WHEN excluded.name <> '' THEN excluded.name ELSE collections.name END,
			custom_name = CASE WHEN excluded.custom_name <> '' THEN excluded.custom_name ELSE collections.custom_name END,
			url         = excluded.url,
			is_active   = excluded.is_active
		RETURNING id
	`), c.ExternalID, c.Name, c.CustomName, c.URL, c.Active, string(models.StatusIdle), time.Now().UTC()).Scan(&id)
	if err != nil {
		return nil, s.errorf("upsert collection", err)
	}
	return s.GetCollection(ctx, id)
}

func (s *SQLStore) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+collectionColumns+` FROM collections WHERE id = ?`), id)
	return s.scanCollection(row)
}

func (s *SQLStore) GetCollectionByExternalID(ctx context.Context, externalID string) (*models.Collection, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+collectionColumns+` FROM collections WHERE external_id = ?`), externalID)
	return s.scanCollection(row)
}

func (s *SQLStore) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	return s.queryCollections(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY created_at, id`)
}

func (s *SQLStore) ListActiveCollections(ctx context.Context) ([]*models.Collection, error) {
	return s.queryCollections(ctx, `SELECT `+collectionColumns+` FROM collections WHERE is_active = ? ORDER BY created_at, id`, true)
}

func (s *SQLStore) queryCollections(ctx context.Context, query string, args ...any) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.errorf("list collections", err)
	}
	defer rows.Close()

	var out []*models.Collection
	for rows.Next() {
		c, err := s.scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanCollection(row rowScanner) (*models.Collection, error) {
	c := &models.Collection{}
	var status string
	var lastUpdated, started, completed, lastOK sql.NullTime
	err := row.Scan(&c.ID, &c.ExternalID, &c.Name, &c.CustomName, &c.URL, &c.Active, &status,
		&lastUpdated, &started, &completed, &lastOK, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.errorf("scan collection", err)
	}
	c.Status = models.CollectionStatus(status)
	c.LastUpdated = timePtr(lastUpdated)
	c.UpdateStartedAt = timePtr(started)
	c.UpdateCompletedAt = timePtr(completed)
	c.LastSuccessfulUpdate = timePtr(lastOK)
	return c, nil
}

func (s *SQLStore) MarkCollectionStarted(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE collections SET update_status = ?, update_started_at = ? WHERE id = ?
	`), string(models.StatusUpdating), at.UTC(), id)
	if err != nil {
		return s.errorf("mark collection started", err)
	}
	return nil
}

func (s *SQLStore) MarkCollectionFinished(ctx context.Context, id int64, status models.CollectionStatus, at time.Time) error {
	query := `UPDATE collections SET update_status = ?, update_completed_at = ?, last_updated = ? WHERE id = ?`
	args := []any{string(status), at.UTC(), at.UTC(), id}
	if status == models.StatusCompleted {
		query = `UPDATE collections SET update_status = ?, update_completed_at = ?, last_updated = ?,
			last_successful_update = ? WHERE id = ?`
		args = []any{string(status), at.UTC(), at.UTC(), at.UTC(), id}
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return s.errorf("mark collection finished", err)
	}
	return nil
}

// DeleteCollection removes a collection; its tracks and their ledger
// entries go with it.
func (s *SQLStore) DeleteCollection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM collections WHERE id = ?`), id)
	if err != nil {
		return s.errorf("delete collection", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ── tracks and ledger ───────────────────────────────────────────────────

func (s *SQLStore) UpsertTrack(ctx context.Context, collectionID int64, ref models.TrackRef) (*models.Track, error) {
	t := &models.Track{
		ExternalID:   ref.ExternalID,
		Name:         ref.Name,
		Artist:       ref.Artist,
		URL:          ref.URL,
		CollectionID: collectionID,
	}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO tracks (collection_id, external_id, name, artist, url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection_id, external_id) DO UPDATE SET
			name = excluded.name, artist = excluded.artist, url = excluded.url
		RETURNING id
	`), collectionID, ref.ExternalID, ref.Name, ref.Artist, ref.URL).Scan(&t.ID)
	if err != nil {
		return nil, s.errorf("upsert track", err)
	}
	return t, nil
}

const recordColumns = `track_id, day, total_count, daily_delta, weekly_sum, monthly_sum,
	classification, is_hidden, is_simulated, method, confidence, recorded_at`

func (s *SQLStore) GetLastRecord(ctx context.Context, trackID int64) (*models.DailyRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+recordColumns+` FROM daily_records WHERE track_id = ? ORDER BY day DESC LIMIT 1
	`), trackID)
	return s.scanOptionalRecord(row)
}

func (s *SQLStore) GetRecord(ctx context.Context, trackID int64, day time.Time) (*models.DailyRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+recordColumns+` FROM daily_records WHERE track_id = ? AND day = ?
	`), trackID, dayParam(day))
	return s.scanOptionalRecord(row)
}

// RecentRealRecords returns up to limit non-simulated records, newest first.
func (s *SQLStore) RecentRealRecords(ctx context.Context, trackID int64, limit int) ([]*models.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+recordColumns+` FROM daily_records
		WHERE track_id = ? AND is_simulated = ?
		ORDER BY day DESC LIMIT ?
	`), trackID, false, limit)
	if err != nil {
		return nil, s.errorf("recent records", err)
	}
	defer rows.Close()

	var out []*models.DailyRecord
	for rows.Next() {
		r, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountRecordsInWindow(ctx context.Context, trackID int64, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM daily_records WHERE track_id = ? AND day >= ? AND day < ?
	`), trackID, dayParam(from), dayParam(to)).Scan(&n)
	if err != nil {
		return 0, s.errorf("count window", err)
	}
	return n, nil
}

func (s *SQLStore) SumDeltasInWindow(ctx context.Context, trackID int64, from, to time.Time) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COALESCE(SUM(daily_delta), 0) FROM daily_records WHERE track_id = ? AND day >= ? AND day < ?
	`), trackID, dayParam(from), dayParam(to)).Scan(&sum)
	if err != nil {
		return 0, s.errorf("sum window", err)
	}
	return sum, nil
}

// AppendRecords inserts records in one transaction. If any (track, day)
// already exists the transaction is rolled back and ErrDuplicateRecord
// returned.
func (s *SQLStore) AppendRecords(ctx context.Context, records ...*models.DailyRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.errorf("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO daily_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id, day) DO NOTHING
	`))
	if err != nil {
		return s.errorf("prepare insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var confidence sql.NullFloat64
		if r.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
		}
		recordedAt := r.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now()
		}

		res, err := stmt.ExecContext(ctx,
			r.TrackID, dayParam(r.Day), r.TotalCount, r.DailyDelta, r.WeeklySum, r.MonthlySum,
			string(r.Classification), r.IsHidden, r.IsSimulated, string(r.Method), confidence, recordedAt.UTC())
		if err != nil {
			return s.errorf("insert record", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: track %d on %s", ErrDuplicateRecord, r.TrackID, models.FormatDay(r.Day))
		}
	}

	if err := tx.Commit(); err != nil {
		return s.errorf("commit", err)
	}
	return nil
}

func (s *SQLStore) scanOptionalRecord(row rowScanner) (*models.DailyRecord, error) {
	r, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLStore) scanRecord(row rowScanner) (*models.DailyRecord, error) {
	r := &models.DailyRecord{}
	var day dayValue
	var class, method string
	var confidence sql.NullFloat64
	err := row.Scan(&r.TrackID, &day, &r.TotalCount, &r.DailyDelta, &r.WeeklySum, &r.MonthlySum,
		&class, &r.IsHidden, &r.IsSimulated, &method, &confidence, &r.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, s.errorf("scan record", err)
	}
	r.Day = day.Time
	r.Classification = models.Classification(class)
	r.Method = models.Method(method)
	if confidence.Valid {
		c := confidence.Float64
		r.Confidence = &c
	}
	return r, nil
}

// ── reporting ───────────────────────────────────────────────────────────

func (s *SQLStore) AppendRunLog(ctx context.Context, l *models.RunLog) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO run_logs (created_at, status, message, collection_name, error_details)
		VALUES (?, ?, ?, ?, ?)
	`), createdAt.UTC(), l.Status, l.Message, l.CollectionName, l.ErrorDetails)
	if err != nil {
		return s.errorf("append run log", err)
	}
	return nil
}

func (s *SQLStore) RecentRunLogs(ctx context.Context, limit int) ([]*models.RunLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, created_at, status, message, collection_name, error_details
		FROM run_logs ORDER BY created_at DESC, id DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, s.errorf("recent run logs", err)
	}
	defer rows.Close()

	var out []*models.RunLog
	for rows.Next() {
		l := &models.RunLog{}
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.Status, &l.Message, &l.CollectionName, &l.ErrorDetails); err != nil {
			return nil, s.errorf("scan run log", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CollectionTotals sums the latest ledger entry of every track per
// collection.
func (s *SQLStore) CollectionTotals(ctx context.Context) ([]models.CollectionTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.custom_name, c.is_active,
			COUNT(t.id),
			COALESCE(SUM(r.total_count), 0),
			COALESCE(SUM(r.daily_delta), 0),
			COALESCE(SUM(r.weekly_sum), 0),
			COALESCE(SUM(r.monthly_sum), 0)
		FROM collections c
		LEFT JOIN tracks t ON t.collection_id = c.id
		LEFT JOIN daily_records r ON r.track_id = t.id
			AND r.day = (SELECT MAX(d.day) FROM daily_records d WHERE d.track_id = t.id)
		GROUP BY c.id, c.name, c.custom_name, c.is_active
		ORDER BY c.id
	`)
	if err != nil {
		return nil, s.errorf("collection totals", err)
	}
	defer rows.Close()

	var out []models.CollectionTotal
	for rows.Next() {
		var t models.CollectionTotal
		var name, custom string
		if err := rows.Scan(&t.CollectionID, &name, &custom, &t.Active, &t.TrackCount,
			&t.TotalCount, &t.Daily, &t.Weekly, &t.Monthly); err != nil {
			return nil, s.errorf("scan collection totals", err)
		}
		t.Name = (&models.Collection{Name: name, CustomName: custom}).DisplayName()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) RecordsForDay(ctx context.Context, day time.Time) ([]models.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT c.name, c.custom_name, t.name, t.artist, t.external_id,
			r.track_id, r.day, r.total_count, r.daily_delta, r.weekly_sum, r.monthly_sum,
			r.classification, r.is_hidden, r.is_simulated, r.method, r.confidence, r.recorded_at
		FROM daily_records r
		JOIN tracks t ON t.id = r.track_id
		JOIN collections c ON c.id = t.collection_id
		WHERE r.day = ?
		ORDER BY c.id, t.id
	`), dayParam(day))
	if err != nil {
		return nil, s.errorf("records for day", err)
	}
	defer rows.Close()

	var out []models.LedgerRow
	for rows.Next() {
		var row models.LedgerRow
		var cName, cCustom, class, method string
		var d dayValue
		var confidence sql.NullFloat64
		r := &row.Record
		if err := rows.Scan(&cName, &cCustom, &row.Track, &row.Artist, &row.ExternalID,
			&r.TrackID, &d, &r.TotalCount, &r.DailyDelta, &r.WeeklySum, &r.MonthlySum,
			&class, &r.IsHidden, &r.IsSimulated, &method, &confidence, &r.RecordedAt); err != nil {
			return nil, s.errorf("scan ledger row", err)
		}
		row.Collection = (&models.Collection{Name: cName, CustomName: cCustom}).DisplayName()
		r.Day = d.Time
		r.Classification = models.Classification(class)
		r.Method = models.Method(method)
		if confidence.Valid {
			c := confidence.Float64
			r.Confidence = &c
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ── helpers ─────────────────────────────────────────────────────────────

// dayParam renders a calendar day the same way for every backend.
func dayParam(t time.Time) string {
	return models.FormatDay(models.Day(t))
}

// dayValue scans a DATE column whichever Go type the driver hands back.
type dayValue struct {
	Time time.Time
}

func (d *dayValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		// A DATE carries no instant; keep the driver's calendar date
		// whatever zone it was decoded in.
		y, m, day := v.Date()
		d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("storage: cannot scan %T into day", src)
	}
}

func (d *dayValue) parse(s string) error {
	if len(s) < 10 {
		return fmt.Errorf("storage: bad day %q", s)
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return fmt.Errorf("storage: bad day %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
