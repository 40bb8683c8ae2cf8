package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-intel/internal/db"
	"github.com/sells-group/lead-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS targets (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	normalized_name    TEXT NOT NULL DEFAULT '',
	tax_id             TEXT NOT NULL DEFAULT '',
	domain             TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	technologies       JSONB NOT NULL DEFAULT '[]',
	enrichment         JSONB NOT NULL DEFAULT '{}',
	latest_status      TEXT NOT NULL DEFAULT '',
	latest_score       INTEGER NOT NULL DEFAULT 0,
	latest_temperature TEXT NOT NULL DEFAULT '',
	latest_confidence  TEXT NOT NULL DEFAULT '',
	latest_checked_at  TIMESTAMPTZ,
	enriched_at        TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_targets_tax_id ON targets(tax_id) WHERE tax_id <> '';
CREATE INDEX IF NOT EXISTS idx_targets_domain ON targets(domain) WHERE domain <> '';
CREATE INDEX IF NOT EXISTS idx_targets_normalized_name ON targets(normalized_name);
CREATE INDEX IF NOT EXISTS idx_targets_latest_temperature ON targets(latest_temperature);

CREATE TABLE IF NOT EXISTS enrichment_records (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL REFERENCES targets(id),
	source     TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	evidence          JSONB NOT NULL DEFAULT '[]',
	score_breakdown   JSONB,
	sources_consulted JSONB NOT NULL DEFAULT '{}',
	queries_executed  JSONB NOT NULL DEFAULT '[]',
	duration_ms       BIGINT NOT NULL DEFAULT 0,
	full_report       JSONB NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_history_target_created ON history(target_id, created_at DESC);

CREATE TABLE IF NOT EXISTS usage_events (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	target_id  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_target_name ON contacts(target_id, name_key);
CREATE INDEX IF NOT EXISTS idx_contacts_target_email ON contacts(target_id, email_key);
`

const pgTargetColumns = `id, name, normalized_name, tax_id, domain, industry, city, state,
	technologies, enrichment, latest_status, latest_score, latest_temperature,
	latest_confidence, latest_checked_at, enriched_at, created_at, updated_at`

const pgHistoryColumns = `id, target_id, kind, status, confidence, score, temperature,
	evidence, score_breakdown, sources_consulted, queries_executed, duration_ms,
	full_report, created_at`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates tables and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTarget(ctx context.Context, t *model.Target) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	blobs, err := encodeTargetBlobs(t)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO targets (id, name, normalized_name, tax_id, domain, industry, city, state,
			technologies, enrichment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Name, t.NormalizedName, t.TaxID, t.Domain, t.Industry, t.City, t.State,
		blobs.technologies, blobs.enrichment, now, now,
	)
	return eris.Wrapf(err, "postgres: insert target %s", t.ID)
}

func (s *PostgresStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgTargetColumns+` FROM targets WHERE id = $1`, id)
	t, err := pgScanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: target %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get target %s", id)
	}
	return t, nil
}

func (s *PostgresStore) FindTarget(ctx context.Context, lookup TargetLookup) (*model.Target, error) {
	for _, kv := range lookupKeys(lookup) {
		row := s.pool.QueryRow(ctx,
			`SELECT `+pgTargetColumns+` FROM targets WHERE `+kv[0]+` = $1 ORDER BY created_at LIMIT 1`,
			kv[1],
		)
		t, err := pgScanTarget(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: find target by %s", kv[0])
		}
		return t, nil
	}
	return nil, ErrNotFound
}

func (s *PostgresStore) ListTargets(ctx context.Context, filter TargetFilter) ([]model.Target, error) {
	query := `SELECT ` + pgTargetColumns + ` FROM targets WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND latest_status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Temperature != "" {
		query += fmt.Sprintf(` AND latest_temperature = $%d`, argIdx)
		args = append(args, string(filter.Temperature))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list targets")
	}
	defer rows.Close()

	targets := []model.Target{}
	for rows.Next() {
		t, err := pgScanTarget(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan target")
		}
		targets = append(targets, *t)
	}
	return targets, eris.Wrap(rows.Err(), "postgres: list targets iterate")
}

func (s *PostgresStore) MutateTarget(ctx context.Context, id string, fn TargetMutator) (*model.Target, error) {
	var out *model.Target
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+pgTargetColumns+` FROM targets WHERE id = $1 FOR UPDATE`, id)
		t, err := pgScanTarget(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: target %s", id)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock target %s", id)
		}

		if err := fn(t); err != nil {
			return err
		}
		t.UpdatedAt = time.Now().UTC()

		blobs, err := encodeTargetBlobs(t)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE targets SET name = $1, normalized_name = $2, tax_id = $3, domain = $4,
				industry = $5, city = $6, state = $7, technologies = $8, enrichment = $9,
				enriched_at = $10, updated_at = $11
			WHERE id = $12`,
			t.Name, t.NormalizedName, t.TaxID, t.Domain, t.Industry, t.City, t.State,
			blobs.technologies, blobs.enrichment, t.EnrichedAt, t.UpdatedAt, id,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update target %s", id)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *PostgresStore) UpdateLatestStatus(ctx context.Context, id string, st model.LatestStatus) (bool, error) {
	if st.CheckedAt == nil {
		return false, eris.New("postgres: latest status requires checked_at")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET latest_status = $1, latest_score = $2, latest_temperature = $3,
			latest_confidence = $4, latest_checked_at = $5, updated_at = $6
		WHERE id = $7 AND (latest_checked_at IS NULL OR latest_checked_at <= $5)`,
		string(st.Status), st.Score, string(st.Temperature), string(st.Confidence),
		st.CheckedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update latest status %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpsertEnrichmentRecord(ctx context.Context, targetID, source string, data map[string]any) error {
	raw, err := jsonOrEmpty(data, "{}")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_records (id, target_id, source, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (target_id, source) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), targetID, source, raw, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert enrichment record %s/%s", targetID, source)
}

func (s *PostgresStore) InsertHistory(ctx context.Context, rec *model.HistoryRecord) error {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO history (`+pgHistoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.TargetID, string(rec.Kind), string(rec.Status), string(rec.Confidence),
		rec.Score, string(rec.Temperature), hb.evidence, hb.breakdown, hb.sources,
		hb.queries, rec.DurationMS, hb.fullReport, rec.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert history %s", rec.ID)
}

func (s *PostgresStore) LatestHistory(ctx context.Context, targetID string) (*model.HistoryRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgHistoryColumns+` FROM history WHERE target_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		targetID,
	)
	rec, err := pgScanHistory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest history %s", targetID)
	}
	return rec, nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, targetID string, limit int) ([]model.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgHistoryColumns+` FROM history WHERE target_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		targetID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list history %s", targetID)
	}
	defer rows.Close()

	out := []model.HistoryRecord{}
	for rows.Next() {
		rec, err := pgScanHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list history iterate")
}

func (s *PostgresStore) MutateLatestReport(ctx context.Context, targetID string, fn ReportMutator) (string, error) {
	var id string
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx,
			`SELECT id, full_report FROM history WHERE target_id = $1
			ORDER BY created_at DESC, id DESC LIMIT 1 FOR UPDATE`,
			targetID,
		).Scan(&id, &raw)
		if errors.Is(err, pgx.ErrNoRows) {
			id = ""
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock latest history %s", targetID)
		}

		existing, err := decodeReport(raw)
		if err != nil {
			return err
		}
		merged, err := jsonOrEmpty(fn(existing), "{}")
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE history SET full_report = $1 WHERE id = $2`, merged, id)
		return eris.Wrapf(err, "postgres: update full report %s", id)
	})
	return id, err
}

func (s *PostgresStore) CountUsage(ctx context.Context, provider string, from, to time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM usage_events WHERE provider = $1 AND created_at >= $2 AND created_at < $3`,
		provider, from.UTC(), to.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count usage %s", provider)
	}
	return n, nil
}

func (s *PostgresStore) RecordUsage(ctx context.Context, provider, targetID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (id, provider, target_id, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), provider, targetID, at.UTC(),
	)
	return eris.Wrapf(err, "postgres: record usage %s", provider)
}

// UpsertContact updates the contact matching c by email, or by name when
// either side has no email, and inserts a new row otherwise. The target row
// is locked so concurrent upserts for one target serialize.
func (s *PostgresStore) UpsertContact(ctx context.Context, c *model.Contact) error {
	now := time.Now().UTC()
	c.UpdatedAt = now
	nameKey, emailKey := c.NameKey(), c.EmailKey()

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM targets WHERE id = $1 FOR UPDATE`, c.TargetID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: target %s", c.TargetID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: lock target %s", c.TargetID)
		}

		var id string
		err = tx.QueryRow(ctx,
			`SELECT id FROM contacts
			WHERE target_id = $1 AND (($2 <> '' AND email_key = $2) OR (name_key = $3 AND (email_key = '' OR $2 = '')))
			ORDER BY CASE WHEN email_key = $2 THEN 0 ELSE 1 END, created_at
			LIMIT 1`,
			c.TargetID, emailKey, nameKey,
		).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			err = tx.QueryRow(ctx,
				`INSERT INTO contacts (id, target_id, name_key, email_key, name, title, email, linkedin_url, source, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
				RETURNING id, created_at`,
				uuid.New().String(), c.TargetID, nameKey, emailKey, c.Name, c.Title, c.Email, c.LinkedInURL, c.Source, now,
			).Scan(&c.ID, &c.CreatedAt)
		case err != nil:
			return eris.Wrapf(err, "postgres: find contact %s", c.Name)
		default:
			err = tx.QueryRow(ctx,
				`UPDATE contacts SET
					name = $1,
					name_key = $2,
					email_key = COALESCE(NULLIF($3, ''), email_key),
					title = COALESCE(NULLIF($4, ''), title),
					email = COALESCE(NULLIF($5, ''), email),
					linkedin_url = COALESCE(NULLIF($6, ''), linkedin_url),
					source = $7,
					updated_at = $8
				WHERE id = $9
				RETURNING id, created_at`,
				c.Name, nameKey, emailKey, c.Title, c.Email, c.LinkedInURL, c.Source, now, id,
			).Scan(&c.ID, &c.CreatedAt)
		}
		return eris.Wrapf(err, "postgres: upsert contact %s", c.Name)
	})
}

func (s *PostgresStore) ListContacts(ctx context.Context, targetID string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_id, name, title, email, linkedin_url, source, created_at, updated_at
		FROM contacts WHERE target_id = $1 ORDER BY name`,
		targetID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contacts %s", targetID)
	}
	defer rows.Close()

	out := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.TargetID, &c.Name, &c.Title, &c.Email, &c.LinkedInURL,
			&c.Source, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contacts iterate")
}

func pgScanTarget(row pgx.Row) (*model.Target, error) {
	var t model.Target
	var tech, enr []byte
	err := row.Scan(&t.ID, &t.Name, &t.NormalizedName, &t.TaxID, &t.Domain, &t.Industry,
		&t.City, &t.State, &tech, &enr, &t.Latest.Status, &t.Latest.Score,
		&t.Latest.Temperature, &t.Latest.Confidence, &t.Latest.CheckedAt, &t.EnrichedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeTargetBlobs(&t, tech, enr); err != nil {
		return nil, err
	}
	return &t, nil
}

func pgScanHistory(row pgx.Row) (*model.HistoryRecord, error) {
	var rec model.HistoryRecord
	var hb historyBlobs
	err := row.Scan(&rec.ID, &rec.TargetID, &rec.Kind, &rec.Status, &rec.Confidence,
		&rec.Score, &rec.Temperature, &hb.evidence, &hb.breakdown, &hb.sources,
		&hb.queries, &rec.DurationMS, &hb.fullReport, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeHistoryBlobs(&rec, hb); err != nil {
		return nil, err
	}
	return &rec, nil
}
