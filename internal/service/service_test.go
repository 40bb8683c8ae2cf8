package service_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-intel/internal/enrichment"
	emocks "github.com/sells-group/lead-intel/internal/enrichment/mocks"
	"github.com/sells-group/lead-intel/internal/evidence"
	"github.com/sells-group/lead-intel/internal/history"
	"github.com/sells-group/lead-intel/internal/model"
	"github.com/sells-group/lead-intel/internal/presence"
	"github.com/sells-group/lead-intel/internal/search"
	smocks "github.com/sells-group/lead-intel/internal/search/mocks"
	"github.com/sells-group/lead-intel/internal/service"
	"github.com/sells-group/lead-intel/internal/store"
	"github.com/sells-group/lead-intel/pkg/perplexity"
)

type harness struct {
	svc      *service.Service
	st       store.Store
	searcher *smocks.MockSearcher
	registry *emocks.MockLayer
}

// jobsOnly answers job-posting queries with one hit naming Acme.
func jobsOnly(_ context.Context, q string, _ int) []search.Result {
	if strings.Contains(q, " vaga ") {
		return []search.Result{{Title: "Vaga Analista Protheus", Snippet: "Acme contrata analista", URL: "https://vagas.example/acme/1"}}
	}
	if strings.Contains(q, "Acme") && strings.Contains(q, "cliente") {
		return []search.Result{{Title: "Cliente: Acme S.A.", Snippet: "", URL: "https://news.example/acme"}}
	}
	return []search.Result{}
}

// newHarness wires a service over a fresh SQLite store. A non-empty
// perplexityURL enables the presence analyzer.
func newHarness(t *testing.T, perplexityURL string) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	s := smocks.NewMockSearcher(t)
	s.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(jobsOnly).Maybe()

	reg := emocks.NewMockLayer(t)
	reg.On("Provider").Return("brasilapi").Maybe()

	w := history.NewWriter(st)
	pb := evidence.DefaultPlaybook()
	quota := enrichment.NewQuota(st, "apollo", 50)

	var pres *presence.Analyzer
	if perplexityURL != "" {
		pres = presence.NewAnalyzer(perplexity.NewClient("k", perplexity.WithBaseURL(perplexityURL)), w, time.Second)
	}

	svc := service.New(service.Deps{
		Store:        st,
		Verifier:     evidence.NewVerifier(evidence.NewCollector(s, pb), pb, w),
		Orchestrator: enrichment.NewOrchestrator(st, w, enrichment.Layers{Registry: reg}, quota),
		Discoverer:   evidence.NewDiscoverer(s),
		Quotas:       []*enrichment.Quota{quota},
		Presence:     pres,
	})
	return &harness{svc: svc, st: st, searcher: s, registry: reg}
}

func TestRegister_CreateThenFind(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	first, created, err := h.svc.Register(ctx, model.TargetInput{Name: "Acme Ltda", TaxID: "11.222.333/0001-81"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "11222333000181", first.TaxID)

	again, created, err := h.svc.Register(ctx, model.TargetInput{Name: "ACME", TaxID: "11222333000181", Domain: "https://www.acme.com.br"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Acme Ltda", again.Name, "existing name kept")
	assert.Equal(t, "acme.com.br", again.Domain, "new domain merged")

	_, _, err = h.svc.Register(ctx, model.TargetInput{})
	assert.True(t, errors.Is(err, model.ErrInvalidTarget))
}

func TestVerify_JobPostingOnlyIsCold(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	tgt, _, err := h.svc.Register(ctx, model.TargetInput{Name: "Acme"})
	require.NoError(t, err)

	report, err := h.svc.Verify(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, report.Breakdown.TotalScore)
	assert.Equal(t, model.TemperatureCold, report.Breakdown.Temperature)
	assert.Equal(t, model.StatusUnverified, report.Status)
	assert.True(t, report.Persisted)

	stored, err := h.svc.Target(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Latest.Score)

	recs, err := h.svc.History(ctx, tgt.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, report.HistoryID, recs[0].ID)
}

func TestVerify_AttachesDigitalPresence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"sonar","choices":[{"message":{"role":"assistant","content":"Presença ativa."}}],"citations":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	h := newHarness(t, srv.URL)

	ctx := context.Background()
	tgt, _, err := h.svc.Register(ctx, model.TargetInput{Name: "Acme"})
	require.NoError(t, err)

	_, err = h.svc.Verify(ctx, tgt.ID)
	require.NoError(t, err)

	latest, err := h.st.LatestHistory(ctx, tgt.ID)
	require.NoError(t, err)
	require.Contains(t, latest.FullReport, presence.SubReportKey)
	assert.Equal(t, model.HistoryVerification, latest.Kind)
}

func TestEnrich_DelegatesToOrchestrator(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	tgt, _, err := h.svc.Register(ctx, model.TargetInput{Name: "Acme", TaxID: "11222333000181"})
	require.NoError(t, err)

	h.registry.On("Enrich", mock.Anything, mock.Anything).
		Return(&enrichment.Output{Data: map[string]any{"city": "Campinas"}, FieldsEnriched: 1}, nil).Once()

	report, err := h.svc.Enrich(ctx, enrichment.Request{TargetID: tgt.ID, IncludePremium: true})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[0].Succeeded())
	assert.Equal(t, 1, report.TotalFieldsEnriched)
}

func TestBatches_CountFailures(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	tgt, _, err := h.svc.Register(ctx, model.TargetInput{Name: "Acme"})
	require.NoError(t, err)

	sum, err := h.svc.VerifyBatch(ctx, []string{tgt.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)

	sum, err = h.svc.EnrichBatch(ctx, []string{"missing"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
}

func TestUsage(t *testing.T) {
	h := newHarness(t, "")
	u, err := h.svc.Usage(context.Background(), "Apollo")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Used)
	assert.Equal(t, 50, u.Limit)
	assert.Equal(t, 50, u.Remaining())

	_, err = h.svc.Usage(context.Background(), "brasilapi")
	assert.True(t, errors.Is(err, service.ErrUnknownProvider))
}

func TestDiscover(t *testing.T) {
	h := newHarness(t, "")

	got, err := h.svc.Discover(context.Background(), `"Acme" cliente TOTVS`, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme S.A.", got[0].Name)

	_, err = h.svc.Discover(context.Background(), "  ", 0)
	assert.True(t, errors.Is(err, service.ErrInvalidInput))
}

func TestLookups_MissingTarget(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.svc.History(ctx, "missing", 10)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = h.svc.Contacts(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = h.svc.Verify(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
