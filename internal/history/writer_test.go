package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/resilience"
	"github.com/sells-group/lead-intel/internal/store"
)

var fastRetry = resilience.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTarget(t *testing.T, st store.Store, name string) *model.Target {
	t.Helper()
	tgt := model.TargetInput{Name: name}.ToTarget()
	require.NoError(t, st.CreateTarget(context.Background(), &tgt))
	return &tgt
}

// flakyStore fails the first N history inserts with a transient error.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

func (f *flakyStore) InsertHistory(ctx context.Context, rec *model.HistoryRecord) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("sqlite: insert history: database is locked")
	}
	return f.Store.InsertHistory(ctx, rec)
}

func TestMergeStructured(t *testing.T) {
	existing := map[string]any{"a": 1, "nested": map[string]any{"x": 1}}
	incoming := map[string]any{"b": 2, "nested": map[string]any{"y": 2}}

	got := MergeStructured(existing, incoming)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "nested": map[string]any{"y": 2}}, got)

	// Inputs untouched.
	assert.Equal(t, map[string]any{"a": 1, "nested": map[string]any{"x": 1}}, existing)
	assert.Equal(t, map[string]any{"b": 2, "nested": map[string]any{"y": 2}}, incoming)

	assert.Equal(t, map[string]any{}, MergeStructured(nil, nil))
	assert.Equal(t, map[string]any{"a": 1}, MergeStructured(nil, map[string]any{"a": 1}))
	assert.Equal(t, map[string]any{"a": 1}, MergeStructured(map[string]any{"a": 1}, nil))
}

func TestMergeStructured_Idempotent(t *testing.T) {
	m := map[string]any{"k": "v"}
	once := MergeStructured(m, m)
	assert.Equal(t, m, once)
	assert.Equal(t, once, MergeStructured(once, m))
}

func TestWriter_MergeEnrichmentKeepsProviders(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")
	ctx := context.Background()

	require.NoError(t, w.MergeEnrichment(ctx, tgt.ID, "providerA", map[string]any{"x": 1}))
	require.NoError(t, w.MergeEnrichment(ctx, tgt.ID, "providerB", map[string]any{"y": 2}))

	got, err := st.GetTarget(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"providerA": map[string]any{"x": 1.0},
		"providerB": map[string]any{"y": 2.0},
	}, got.Enrichment)
	assert.NotNil(t, got.EnrichedAt)

	require.NoError(t, w.MergeEnrichment(ctx, tgt.ID, "providerA", map[string]any{"z": 3}))
	got, err = st.GetTarget(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"z": 3.0}, got.Enrichment["providerA"])
	assert.Contains(t, got.Enrichment, "providerB")

	assert.Error(t, w.MergeEnrichment(ctx, tgt.ID, "", nil))
	assert.True(t, errors.Is(w.MergeEnrichment(ctx, "missing", "p", nil), store.ErrNotFound))
}

func TestWriter_RecordRunRetriesTransient(t *testing.T) {
	st := newTestStore(t)
	flaky := &flakyStore{Store: st, failures: 2}
	w := NewWriter(flaky, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")

	rec := &model.HistoryRecord{TargetID: tgt.ID, Kind: model.HistoryVerification, Score: 30}
	require.NoError(t, w.RecordRun(context.Background(), rec))
	assert.Equal(t, 3, flaky.calls)
	assert.NotEmpty(t, rec.ID)

	all, err := st.ListHistory(context.Background(), tgt.ID, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
}

func TestWriter_RecordRunGivesUp(t *testing.T) {
	st := newTestStore(t)
	flaky := &flakyStore{Store: st, failures: 10}
	w := NewWriter(flaky, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")

	err := w.RecordRun(context.Background(), &model.HistoryRecord{TargetID: tgt.ID, Kind: model.HistoryVerification})
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)

	assert.Error(t, w.RecordRun(context.Background(), &model.HistoryRecord{}))
}

func TestWriter_UpdateLatestLastWriterWins(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")
	ctx := context.Background()

	t1 := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	// The later completion lands first; the earlier one must not overwrite it.
	require.NoError(t, w.UpdateLatest(ctx, tgt.ID, model.LatestStatus{Status: model.StatusConfirmed, Score: 80, CheckedAt: &t2}))
	require.NoError(t, w.UpdateLatest(ctx, tgt.ID, model.LatestStatus{Status: model.StatusUnverified, Score: 30, CheckedAt: &t1}))

	got, err := st.GetTarget(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Latest.Status)
	assert.Equal(t, 80, got.Latest.Score)
}

func TestWriter_UpdateLatestDefaultsCheckedAt(t *testing.T) {
	st := newTestStore(t)
	fixed := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	w := NewWriter(st, WithRetryPolicy(fastRetry), WithClock(func() time.Time { return fixed }))
	tgt := newTarget(t, st, "Acme")

	require.NoError(t, w.UpdateLatest(context.Background(), tgt.ID, model.LatestStatus{Status: model.StatusNotFound}))
	got, err := st.GetTarget(context.Background(), tgt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Latest.CheckedAt)
	assert.True(t, fixed.Equal(*got.Latest.CheckedAt))
}

func TestWriter_AttachSubReport(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")
	ctx := context.Background()

	// No history yet: a sub_report record is appended.
	require.NoError(t, w.AttachSubReport(ctx, tgt.ID, "digital_presence", map[string]any{"summary": "first"}))
	latest, err := st.LatestHistory(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HistorySubReport, latest.Kind)

	// A later run gets later sub-reports merged into it.
	run := &model.HistoryRecord{TargetID: tgt.ID, Kind: model.HistoryVerification, FullReport: map[string]any{"product": "TOTVS"}}
	require.NoError(t, w.RecordRun(ctx, run))
	require.NoError(t, w.AttachSubReport(ctx, tgt.ID, "decision_makers", []string{"Ana"}))

	latest, err = st.LatestHistory(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, "TOTVS", latest.FullReport["product"])
	assert.Equal(t, []any{"Ana"}, latest.FullReport["decision_makers"])

	all, err := st.ListHistory(ctx, tgt.ID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Error(t, w.AttachSubReport(ctx, tgt.ID, "", nil))
}

func TestWriter_ApplyDiscovery(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")

	got, changed, err := w.ApplyDiscovery(context.Background(), tgt.ID, model.Discovery{
		Domain: "acme.com.br", City: "Campinas", State: "sp", Technologies: []string{"Protheus"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, changed)
	assert.Equal(t, "acme.com.br", got.Domain)
	assert.Equal(t, "SP", got.State)

	_, changed, err = w.ApplyDiscovery(context.Background(), tgt.ID, model.Discovery{City: "Outra", Technologies: []string{"protheus"}})
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestWriter_UpsertContacts(t *testing.T) {
	st := newTestStore(t)
	w := NewWriter(st, WithRetryPolicy(fastRetry))
	tgt := newTarget(t, st, "Acme")
	ctx := context.Background()

	n, err := w.UpsertContacts(ctx, tgt.ID, []model.Contact{
		{Name: "Ana Souza", Title: "CIO", Source: "web"},
		{Name: "ana souza", Title: "CIO", Source: "web"},
		{Name: "", Title: "ghost"},
		{Name: "Bruno", Email: "bruno@acme.com", Source: "web"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	contacts, err := st.ListContacts(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
}
