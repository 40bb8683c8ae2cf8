package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-intel/internal/model"
)

// sqliteTime is fixed-width so stored timestamps compare lexicographically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection keeps them in force and
	// serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS targets (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	normalized_name    TEXT NOT NULL DEFAULT '',
	tax_id             TEXT NOT NULL DEFAULT '',
	domain             TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	technologies       TEXT NOT NULL DEFAULT '[]',
	enrichment         TEXT NOT NULL DEFAULT '{}',
	latest_status      TEXT NOT NULL DEFAULT '',
	latest_score       INTEGER NOT NULL DEFAULT 0,
	latest_temperature TEXT NOT NULL DEFAULT '',
	latest_confidence  TEXT NOT NULL DEFAULT '',
	latest_checked_at  TEXT,
	enriched_at        TEXT,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_targets_tax_id ON targets(tax_id) WHERE tax_id <> '';
CREATE INDEX IF NOT EXISTS idx_targets_domain ON targets(domain);
CREATE INDEX IF NOT EXISTS idx_targets_normalized_name ON targets(normalized_name);

CREATE TABLE IF NOT EXISTS enrichment_records (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL REFERENCES targets(id),
	source     TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL,
	UNIQUE (target_id, source)
);

CREATE TABLE IF NOT EXISTS history (
	id                TEXT PRIMARY KEY,
	target_id         TEXT NOT NULL REFERENCES targets(id),
	kind              TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT '',
	confidence        TEXT NOT NULL DEFAULT '',
	score             INTEGER NOT NULL DEFAULT 0,
	temperature       TEXT NOT NULL DEFAULT '',
	evidence          TEXT NOT NULL DEFAULT '[]',
	score_breakdown   TEXT,
	sources_consulted TEXT NOT NULL DEFAULT '{}',
	queries_executed  TEXT NOT NULL DEFAULT '[]',
	duration_ms       INTEGER NOT NULL DEFAULT 0,
	full_report       TEXT NOT NULL DEFAULT '{}',
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_target_created ON history(target_id, created_at);

CREATE TABLE IF NOT EXISTS usage_events (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	target_id  TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_events_provider_created ON usage_events(provider, created_at);

CREATE TABLE IF NOT EXISTS contacts (
	id           TEXT PRIMARY KEY,
	target_id    TEXT NOT NULL REFERENCES targets(id),
	name_key     TEXT NOT NULL,
	email_key    TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_target_name ON contacts(target_id, name_key);
CREATE INDEX IF NOT EXISTS idx_contacts_target_email ON contacts(target_id, email_key);
`

const sqliteTargetColumns = `id, name, normalized_name, tax_id, domain, industry, city, state,
	technologies, enrichment, latest_status, latest_score, latest_temperature,
	latest_confidence, latest_checked_at, enriched_at, created_at, updated_at`

const sqliteHistoryColumns = `id, target_id, kind, status, confidence, score, temperature,
	evidence, score_breakdown, sources_consulted, queries_executed, duration_ms,
	full_report, created_at`

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates tables and indexes if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTarget(ctx context.Context, t *model.Target) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	blobs, err := encodeTargetBlobs(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO targets (id, name, normalized_name, tax_id, domain, industry, city, state,
			technologies, enrichment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.NormalizedName, t.TaxID, t.Domain, t.Industry, t.City, t.State,
		string(blobs.technologies), string(blobs.enrichment), fmtTime(now), fmtTime(now),
	)
	return eris.Wrapf(err, "sqlite: insert target %s", t.ID)
}

func (s *SQLiteStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	return s.getTarget(ctx, s.db, id)
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getTarget(ctx context.Context, q sqlQuerier, id string) (*model.Target, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sqliteTargetColumns+` FROM targets WHERE id = ?`, id)
	t, err := sqliteScanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: target %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get target %s", id)
	}
	return t, nil
}

func (s *SQLiteStore) FindTarget(ctx context.Context, lookup TargetLookup) (*model.Target, error) {
	for _, kv := range lookupKeys(lookup) {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+sqliteTargetColumns+` FROM targets WHERE `+kv[0]+` = ? ORDER BY created_at LIMIT 1`,
			kv[1],
		)
		t, err := sqliteScanTarget(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: find target by %s", kv[0])
		}
		return t, nil
	}
	return nil, ErrNotFound
}

func (s *SQLiteStore) ListTargets(ctx context.Context, filter TargetFilter) ([]model.Target, error) {
	query := `SELECT ` + sqliteTargetColumns + ` FROM targets WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND latest_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Temperature != "" {
		query += ` AND latest_temperature = ?`
		args = append(args, string(filter.Temperature))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list targets")
	}
	defer rows.Close() //nolint:errcheck

	targets := []model.Target{}
	for rows.Next() {
		t, err := sqliteScanTarget(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan target")
		}
		targets = append(targets, *t)
	}
	return targets, eris.Wrap(rows.Err(), "sqlite: list targets iterate")
}

func (s *SQLiteStore) MutateTarget(ctx context.Context, id string, fn TargetMutator) (*model.Target, error) {
	var out *model.Target
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := s.getTarget(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = time.Now().UTC()

		blobs, err := encodeTargetBlobs(t)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE targets SET name = ?, normalized_name = ?, tax_id = ?, domain = ?,
				industry = ?, city = ?, state = ?, technologies = ?, enrichment = ?,
				enriched_at = ?, updated_at = ?
			WHERE id = ?`,
			t.Name, t.NormalizedName, t.TaxID, t.Domain, t.Industry, t.City, t.State,
			string(blobs.technologies), string(blobs.enrichment), fmtTimePtr(t.EnrichedAt),
			fmtTime(t.UpdatedAt), id,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update target %s", id)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *SQLiteStore) UpdateLatestStatus(ctx context.Context, id string, st model.LatestStatus) (bool, error) {
	if st.CheckedAt == nil {
		return false, eris.New("sqlite: latest status requires checked_at")
	}
	checked := fmtTime(*st.CheckedAt)
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET latest_status = ?, latest_score = ?, latest_temperature = ?,
			latest_confidence = ?, latest_checked_at = ?, updated_at = ?
		WHERE id = ? AND (latest_checked_at IS NULL OR latest_checked_at <= ?)`,
		string(st.Status), st.Score, string(st.Temperature), string(st.Confidence),
		checked, fmtTime(time.Now()), id, checked,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update latest status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpsertEnrichmentRecord(ctx context.Context, targetID, source string, data map[string]any) error {
	raw, err := jsonOrEmpty(data, "{}")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_records (id, target_id, source, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (target_id, source) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		uuid.New().String(), targetID, source, string(raw), fmtTime(time.Now()),
	)
	return eris.Wrapf(err, "sqlite: upsert enrichment record %s/%s", targetID, source)
}

func (s *SQLiteStore) InsertHistory(ctx context.Context, rec *model.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	hb, err := encodeHistoryBlobs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (`+sqliteHistoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TargetID, string(rec.Kind), string(rec.Status), string(rec.Confidence),
		rec.Score, string(rec.Temperature), string(hb.evidence), string(hb.breakdown),
		string(hb.sources), string(hb.queries), rec.DurationMS, string(hb.fullReport),
		fmtTime(rec.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert history %s", rec.ID)
}

func (s *SQLiteStore) LatestHistory(ctx context.Context, targetID string) (*model.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteHistoryColumns+` FROM history WHERE target_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		targetID,
	)
	rec, err := sqliteScanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest history %s", targetID)
	}
	return rec, nil
}

func (s *SQLiteStore) ListHistory(ctx context.Context, targetID string, limit int) ([]model.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteHistoryColumns+` FROM history WHERE target_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		targetID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list history %s", targetID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.HistoryRecord{}
	for rows.Next() {
		rec, err := sqliteScanHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list history iterate")
}

func (s *SQLiteStore) MutateLatestReport(ctx context.Context, targetID string, fn ReportMutator) (string, error) {
	var id string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT id, full_report FROM history WHERE target_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
			targetID,
		).Scan(&id, &raw)
		if errors.Is(err, sql.ErrNoRows) {
			id = ""
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: read latest history %s", targetID)
		}

		existing, err := decodeReport([]byte(raw))
		if err != nil {
			return err
		}
		merged, err := jsonOrEmpty(fn(existing), "{}")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE history SET full_report = ? WHERE id = ?`, string(merged), id)
		return eris.Wrapf(err, "sqlite: update full report %s", id)
	})
	return id, err
}

func (s *SQLiteStore) CountUsage(ctx context.Context, provider string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM usage_events WHERE provider = ? AND created_at >= ? AND created_at < ?`,
		provider, fmtTime(from), fmtTime(to),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count usage %s", provider)
	}
	return n, nil
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, provider, targetID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, provider, target_id, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), provider, targetID, fmtTime(at),
	)
	return eris.Wrapf(err, "sqlite: record usage %s", provider)
}

// UpsertContact updates the contact matching c by email, or by name when
// either side has no email, and inserts a new row otherwise.
func (s *SQLiteStore) UpsertContact(ctx context.Context, c *model.Contact) error {
	now := time.Now().UTC()
	c.UpdatedAt = now
	nameKey, emailKey := c.NameKey(), c.EmailKey()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM contacts
			WHERE target_id = ? AND ((? <> '' AND email_key = ?) OR (name_key = ? AND (email_key = '' OR ? = '')))
			ORDER BY CASE WHEN email_key = ? THEN 0 ELSE 1 END, created_at
			LIMIT 1`,
			c.TargetID, emailKey, emailKey, nameKey, emailKey, emailKey,
		).Scan(&id)
		var created string
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = tx.QueryRowContext(ctx,
				`INSERT INTO contacts (id, target_id, name_key, email_key, name, title, email, linkedin_url, source, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id, created_at`,
				uuid.New().String(), c.TargetID, nameKey, emailKey, c.Name, c.Title, c.Email, c.LinkedInURL,
				c.Source, fmtTime(now), fmtTime(now),
			).Scan(&c.ID, &created)
		case err != nil:
			return eris.Wrapf(err, "sqlite: find contact %s", c.Name)
		default:
			err = tx.QueryRowContext(ctx,
				`UPDATE contacts SET
					name = ?,
					name_key = ?,
					email_key = COALESCE(NULLIF(?, ''), email_key),
					title = COALESCE(NULLIF(?, ''), title),
					email = COALESCE(NULLIF(?, ''), email),
					linkedin_url = COALESCE(NULLIF(?, ''), linkedin_url),
					source = ?,
					updated_at = ?
				WHERE id = ?
				RETURNING id, created_at`,
				c.Name, nameKey, emailKey, c.Title, c.Email, c.LinkedInURL, c.Source, fmtTime(now), id,
			).Scan(&c.ID, &created)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert contact %s", c.Name)
		}
		c.CreatedAt, err = parseTime(created)
		return err
	})
	return err
}

func (s *SQLiteStore) ListContacts(ctx context.Context, targetID string) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, name, title, email, linkedin_url, source, created_at, updated_at
		FROM contacts WHERE target_id = ? ORDER BY name`,
		targetID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list contacts %s", targetID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		var created, updated string
		if err := rows.Scan(&c.ID, &c.TargetID, &c.Name, &c.Title, &c.Email, &c.LinkedInURL,
			&c.Source, &created, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list contacts iterate")
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

type scannable interface {
	Scan(dest ...any) error
}

func sqliteScanTarget(row scannable) (*model.Target, error) {
	var t model.Target
	var tech, enr, created, updated string
	var checked, enriched sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.NormalizedName, &t.TaxID, &t.Domain, &t.Industry,
		&t.City, &t.State, &tech, &enr, &t.Latest.Status, &t.Latest.Score,
		&t.Latest.Temperature, &t.Latest.Confidence, &checked, &enriched, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := decodeTargetBlobs(&t, []byte(tech), []byte(enr)); err != nil {
		return nil, err
	}
	if t.Latest.CheckedAt, err = parseNullTime(checked); err != nil {
		return nil, err
	}
	if t.EnrichedAt, err = parseNullTime(enriched); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}

func sqliteScanHistory(row scannable) (*model.HistoryRecord, error) {
	var rec model.HistoryRecord
	var evidence, sources, queries, report, created string
	var breakdown sql.NullString
	err := row.Scan(&rec.ID, &rec.TargetID, &rec.Kind, &rec.Status, &rec.Confidence,
		&rec.Score, &rec.Temperature, &evidence, &breakdown, &sources, &queries,
		&rec.DurationMS, &report, &created)
	if err != nil {
		return nil, err
	}
	hb := historyBlobs{
		evidence:   []byte(evidence),
		sources:    []byte(sources),
		queries:    []byte(queries),
		fullReport: []byte(report),
	}
	if breakdown.Valid {
		hb.breakdown = []byte(breakdown.String)
	}
	if err := decodeHistoryBlobs(&rec, hb); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &rec, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
