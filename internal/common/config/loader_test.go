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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
workers:
  underwrite-application:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Warehouse.Catalog)
	assert.Equal(t, "loan_underwriting", cfg.Warehouse.Schema)
	assert.Equal(t, 30000, cfg.DecisionEngine.Timeout)
	assert.True(t, cfg.DecisionEngine.DirectIntegration)
	assert.False(t, cfg.DecisionEngine.UsesHTTP())
	assert.Equal(t, 1000000.0, cfg.Underwriting.MaxLoanAmount)
	assert.Equal(t, "0 5 0 * * *", cfg.Scheduler.AnalyticsSchedule)
	assert.Equal(t, ":8080", cfg.Server.Address)

	w := cfg.Workers["underwrite-application"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 3, w.MaxRetries)
}

func TestLoadFromFile_LegacyEnvironment(t *testing.T) {
	t.Setenv("DATABRICKS_SERVER_HOSTNAME", "https://warehouse.example.com")
	t.Setenv("DATABRICKS_HTTP_PATH", "/underwriting")
	t.Setenv("DATABRICKS_TOKEN", "secret-token")
	t.Setenv("AGENT_BRICKS_ENDPOINT", "https://engine.example.com/decide")
	t.Setenv("AGENT_BRICKS_API_KEY", "engine-key")
	t.Setenv("DEBUG", "true")

	path := writeConfig(t, `
decision_engine:
  direct_integration: false
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "warehouse.example.com", cfg.Warehouse.Host)
	assert.Equal(t, "secret-token", cfg.Warehouse.Token)
	assert.Equal(t, "https://engine.example.com/decide", cfg.DecisionEngine.EndpointURL)
	assert.True(t, cfg.DecisionEngine.UsesHTTP())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Contains(t, cfg.Warehouse.GetDSN(), "dbname=underwriting")
	assert.Contains(t, cfg.Warehouse.GetDSN(), "application_name=main")
	assert.Contains(t, cfg.Warehouse.GetDSN(), "connect_timeout=10")
}

func TestLoadFromFile_ExpandsPlaceholders(t *testing.T) {
	t.Setenv("UNDERWRITING_DB_HOST", "db.internal")
	path := writeConfig(t, `
warehouse:
  host: ${UNDERWRITING_DB_HOST}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Warehouse.Host)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"postgres without host", "store:\n  driver: postgres\n", "warehouse.host"},
		{"unknown driver", "store:\n  driver: sqlite\n", "store.driver"},
		{"camunda without broker", "store:\n  driver: memory\ncamunda:\n  enabled: true\n", "broker_address"},
		{"bad engine url", "store:\n  driver: memory\ndecision_engine:\n  endpoint_url: not-a-url\n", "endpoint_url"},
		{"sns without topic", "store:\n  driver: memory\nnotifications:\n  sns:\n    enabled: true\n", "topic_arn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"a": {Enabled: false}}}

	assert.False(t, IsWorkerEnabled(cfg, "a"))
	assert.True(t, IsWorkerEnabled(cfg, "b"))
	assert.Equal(t, 30000, GetWorkerConfig(cfg, "b").Timeout)
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}
