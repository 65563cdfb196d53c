package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 85*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Server.HTTP.WriteTimeout)
	assert.Equal(t, 3.0, cfg.Billing.Pricing.InputPerMillion)
	assert.Equal(t, 15.0, cfg.Billing.Pricing.OutputPerMillion)
	assert.Equal(t, 20.0, cfg.Billing.CreditsPerUSD)
	assert.Equal(t, "Claude API usage", cfg.Billing.DebitDescription)
	require.Len(t, cfg.Billing.Packages, 4)
	assert.Equal(t, "starter", cfg.Billing.Packages[0].Keyword)
	assert.Equal(t, int64(5000), cfg.Billing.Packages[3].Credits)
	assert.Equal(t, "X-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "memory", cfg.Webhook.Dedup.Backend)
}

func TestLoadFrom_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("TEST_LEDGER_URL", "https://ledger.internal")
	dir := writeConfig(t, `
ledger:
  base_url: ${TEST_LEDGER_URL:http://fallback}
webhook:
  secret: ${TEST_WEBHOOK_SECRET_UNSET:from-default}
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://ledger.internal", cfg.Ledger.BaseURL)
	assert.Equal(t, "from-default", cfg.Webhook.Secret)
}

func TestLoadFrom_RejectsProviderTimeoutBeyondWriteTimeout(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	dir := writeConfig(t, `
server:
  http:
    write_timeout: 60s
llm:
  timeout: 60s
`)

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.timeout")
}

func TestValidate_DedupBackendRequiresStore(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	cfg.Webhook.Dedup.Backend = "redis"
	cfg.Cache.Redis.Enabled = false
	assert.ErrorContains(t, cfg.Validate(), "webhook.dedup.backend=redis")

	cfg.Webhook.Dedup.Backend = "bogus"
	assert.ErrorContains(t, cfg.Validate(), "unknown webhook.dedup.backend")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("EXPAND_SET", "value")

	assert.Equal(t, "a=value", expandEnv("a=${EXPAND_SET}"))
	assert.Equal(t, "a=value", expandEnv("a=${EXPAND_SET:other}"))
	assert.Equal(t, "a=other", expandEnv("a=${EXPAND_UNSET_X:other}"))
	assert.Equal(t, "a=", expandEnv("a=${EXPAND_UNSET_X:}"))
	assert.Equal(t, "a=${EXPAND_UNSET_X}", expandEnv("a=${EXPAND_UNSET_X}"))
}
