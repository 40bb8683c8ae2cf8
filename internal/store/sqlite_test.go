package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	tgt := model.Target{Name: "Acme", NormalizedName: "acme"}
	require.NoError(t, st.CreateTarget(ctx, &tgt))
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	got, err := st.GetTarget(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
}

func TestSQLite_DuplicateTaxIDRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := model.Target{Name: "A", TaxID: "11222333000181"}
	require.NoError(t, st.CreateTarget(ctx, &a))
	b := model.Target{Name: "B", TaxID: "11222333000181"}
	assert.Error(t, st.CreateTarget(ctx, &b))

	// Empty tax ids never collide.
	c := model.Target{Name: "C"}
	d := model.Target{Name: "D"}
	require.NoError(t, st.CreateTarget(ctx, &c))
	require.NoError(t, st.CreateTarget(ctx, &d))
}

func TestSQLite_HistoryRequiresTarget(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.InsertHistory(context.Background(), &model.HistoryRecord{TargetID: "nope", Kind: model.HistoryVerification})
	assert.Error(t, err)
}

func TestSQLite_TimeFormatSortsLexically(t *testing.T) {
	early := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	late := early.Add(time.Nanosecond * 994)
	inZone := early.In(time.FixedZone("BRT", -3*3600))

	assert.Less(t, fmtTime(early), fmtTime(late))
	assert.Equal(t, fmtTime(early), fmtTime(inZone))
	assert.Len(t, fmtTime(early), len(fmtTime(late)))

	parsed, err := parseTime(fmtTime(late))
	require.NoError(t, err)
	assert.True(t, late.Equal(parsed))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}

func TestSQLite_ParseNullTime(t *testing.T) {
	got, err := parseNullTime(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().UTC()
	got, err = parseNullTime(sql.NullString{String: fmtTime(now), Valid: true})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, now.Equal(*got))

	assert.Nil(t, fmtTimePtr(nil))
	assert.Equal(t, fmtTime(now), fmtTimePtr(&now))
}
