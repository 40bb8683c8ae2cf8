package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/batch"
	"github.com/sells-group/lead-intel/internal/config"
	"github.com/sells-group/lead-intel/internal/enrichment"
	"github.com/sells-group/lead-intel/internal/enrichment/layers"
	"github.com/sells-group/lead-intel/internal/evidence"
	"github.com/sells-group/lead-intel/internal/history"
	"github.com/sells-group/lead-intel/internal/presence"
	"github.com/sells-group/lead-intel/internal/resilience"
	"github.com/sells-group/lead-intel/internal/search"
	"github.com/sells-group/lead-intel/internal/service"
	"github.com/sells-group/lead-intel/internal/store"
	"github.com/sells-group/lead-intel/pkg/anthropic"
	"github.com/sells-group/lead-intel/pkg/apollo"
	"github.com/sells-group/lead-intel/pkg/brasilapi"
	"github.com/sells-group/lead-intel/pkg/jina"
	"github.com/sells-group/lead-intel/pkg/perplexity"
	"github.com/sells-group/lead-intel/pkg/serper"
)

const apolloProvider = "apollo"

// appEnv holds the store and the service the commands run against.
type appEnv struct {
	Store   store.Store
	Service *service.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens and migrates the store, builds every client and wires the
// service. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	svc, err := buildService(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &appEnv{Store: st, Service: svc}, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		return store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{MaxConns: sc.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// buildService wires the pipelines over st from c.
func buildService(c *config.Config, st store.Store) (*service.Service, error) {
	playbook, err := evidence.LoadPlaybook(c.Scoring.PlaybookPath)
	if err != nil {
		return nil, err
	}

	breakerCfg, retry := resilience.FromConfig(
		c.Resilience.FailureThreshold,
		c.Resilience.CooldownSecs,
		c.Resilience.RetryAttempts,
		c.Resilience.RetryBaseMS,
	)
	writer := history.NewWriter(st, history.WithRetryPolicy(retry))
	searcher := buildSearcher(c)

	webOpts := []layers.WebPresenceOption{layers.WithResultLimit(c.Search.Limit)}
	if c.Anthropic.Key != "" {
		webOpts = append(webOpts, layers.WithExtractor(anthropic.NewClient(c.Anthropic.Key), c.Anthropic.Model))
	} else {
		zap.L().Debug("LEADINTEL_ANTHROPIC_KEY not set, decision makers parsed from result titles")
	}

	lay := enrichment.Layers{
		Registry: layers.NewRegistry(brasilapi.NewClient(brasilapi.WithBaseURL(c.BrasilAPI.BaseURL))),
		Presence: layers.NewWebPresence(searcher, webOpts...),
	}
	if c.Apollo.Key != "" {
		lay.Premium = layers.NewPremium(apollo.NewClient(c.Apollo.Key, apollo.WithBaseURL(c.Apollo.BaseURL)))
	} else {
		zap.L().Debug("LEADINTEL_APOLLO_KEY not set, premium layer disabled")
	}

	quota := enrichment.NewQuota(st, apolloProvider, c.Apollo.MonthlyLimit,
		enrichment.WithLocation(c.Enrichment.Location()))

	orch := enrichment.NewOrchestrator(st, writer, lay, quota,
		enrichment.WithLayerTimeout(c.Enrichment.LayerTimeout()),
		enrichment.WithBreakers(resilience.NewBreakers(breakerCfg)),
	)

	var analyzer *presence.Analyzer
	if c.Perplexity.Key != "" {
		pc := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model))
		analyzer = presence.NewAnalyzer(pc, writer, c.Enrichment.LayerTimeout())
		zap.L().Info("digital presence analysis enabled")
	}

	collector := evidence.NewCollector(searcher, playbook, evidence.WithResultsPerQuery(c.Search.Limit))

	return service.New(service.Deps{
		Store:        st,
		Verifier:     evidence.NewVerifier(collector, playbook, writer),
		Orchestrator: orch,
		Discoverer:   evidence.NewDiscoverer(searcher),
		Quotas:       []*enrichment.Quota{quota},
		Presence:     analyzer,
		Batch:        batch.NewDriver(time.Duration(c.Batch.DelayMS)*time.Millisecond, c.Batch.MaxConcurrent),
	}), nil
}

// buildSearcher puts the configured primary provider first and the other
// one behind it as fallback. Providers without a key are left out.
func buildSearcher(c *config.Config) *search.Adapter {
	var sp, jp search.Provider
	if c.Serper.Key != "" {
		sp = search.NewSerperProvider(serper.NewClient(c.Serper.Key, serper.WithBaseURL(c.Serper.BaseURL)), c.Search.Country, c.Search.Language)
	}
	if c.Jina.Key != "" {
		jp = search.NewJinaProvider(jina.NewClient(c.Jina.Key, jina.WithSearchBaseURL(c.Jina.SearchBaseURL)), c.Search.Country, c.Search.Language)
	}
	if sp == nil && jp == nil {
		zap.L().Warn("no search provider configured, evidence searches will return nothing")
	}

	timeout := search.WithTimeout(time.Duration(c.Search.TimeoutSecs) * time.Second)
	if c.Search.Primary == "jina" {
		return search.NewAdapter(jp, sp, timeout)
	}
	return search.NewAdapter(sp, jp, timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}
