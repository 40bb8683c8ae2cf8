package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lead-intel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2000, cfg.Batch.DelayMS)
	assert.Equal(t, 1, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "serper", cfg.Search.Primary)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, "br", cfg.Search.Country)
	assert.Equal(t, "pt-br", cfg.Search.Language)
	assert.Equal(t, "https://google.serper.dev", cfg.Serper.BaseURL)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "https://brasilapi.com.br", cfg.BrasilAPI.BaseURL)
	assert.Equal(t, 50, cfg.Apollo.MonthlyLimit)
	assert.Equal(t, "sonar", cfg.Perplexity.Model)
	assert.Equal(t, 30*time.Second, cfg.Enrichment.LayerTimeout())
	assert.Equal(t, time.UTC, cfg.Enrichment.Location())
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
apollo:
  monthly_limit: 120
enrichment:
  quota_timezone: America/Sao_Paulo
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 120, cfg.Apollo.MonthlyLimit)
	assert.Equal(t, "America/Sao_Paulo", cfg.Enrichment.Location().String())
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Search.Limit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("apollo:\n  monthly_limit: 10\n"), 0o644))
	t.Setenv("LEADINTEL_APOLLO_MONTHLY_LIMIT", "75")
	t.Setenv("LEADINTEL_SERPER_KEY", "serper-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Apollo.MonthlyLimit)
	assert.Equal(t, "serper-secret", cfg.Serper.Key)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Store:  StoreConfig{Driver: "mysql"},
		Apollo: ApolloConfig{MonthlyLimit: -1},
		Search: SearchConfig{Primary: "bing"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"store.driver", "store.database_url", "apollo.monthly_limit", "batch.max_concurrent", "search.primary"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLocation_Unknown(t *testing.T) {
	assert.Equal(t, time.UTC, EnrichmentConfig{QuotaTimezone: "Mars/Olympus"}.Location())
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	err := InitLogger(LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}
