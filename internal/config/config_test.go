package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/envmodel"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Tick)
	assert.Equal(t, "accelerated", cfg.Mode)
	assert.Equal(t, 2000.0, cfg.PlasmaSpeed)
	assert.Equal(t, core.DefaultThresholds(), cfg.Thresholds())
	assert.Equal(t, envmodel.DefaultParams(), cfg.EnvironmentParams())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "vesselsim", cfg.Tracing.ServiceName)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, "parent_ratio", cfg.Tracing.Sampler)
	assert.True(t, cfg.Tracing.Insecure)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vesselsim.yaml")
	doc := `
scenario: systems/kerbin.yaml
tick: 250ms
mode: realtime
cache:
  analytic_warp_threshold: 100
  analytic_gate: 600
logging:
  level: debug
  format: json
metrics:
  enabled: true
  address: 127.0.0.1:9100
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "systems/kerbin.yaml", cfg.Scenario)
	assert.Equal(t, 250*time.Millisecond, cfg.Tick)
	assert.Equal(t, "realtime", cfg.Mode)
	assert.Equal(t, 100.0, cfg.Thresholds().AnalyticWarpThreshold)
	assert.Equal(t, 600.0, cfg.Thresholds().AnalyticGate)
	assert.Equal(t, 1.0, cfg.Thresholds().PositionEpsilon)
	assert.Equal(t, "debug", cfg.LoggerConfig().Level)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Address)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vesselsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  analytic_gate: 600\n"), 0o644))

	t.Setenv("VESSELSIM_CACHE_ANALYTIC_GATE", "1200")
	t.Setenv("VESSELSIM_TICK", "2s")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 1200.0, cfg.Cache.AnalyticGate)
	assert.Equal(t, 2*time.Second, cfg.Tick)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(New(), "/nonexistent/vesselsim.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"VESSELSIM_MODE":                          "sideways",
		"VESSELSIM_CACHE_ANALYTIC_WARP_THRESHOLD": "0.5",
		"VESSELSIM_CACHE_POSITION_EPSILON":        "0",
		"VESSELSIM_LOGGING_FORMAT":                "xml",
		"VESSELSIM_TRACING_SAMPLE_RATIO":          "2",
		"VESSELSIM_TRACING_SAMPLER":               "sometimes",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load(New(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestDefaultIgnoresEnvironment(t *testing.T) {
	t.Setenv("VESSELSIM_MODE", "realtime")
	assert.Equal(t, "accelerated", Default().Mode)
}
