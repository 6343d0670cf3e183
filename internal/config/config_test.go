package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamilpajak/crestline/pkg/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"CRESTLINE_SERVER", "CRESTLINE_HISTORY", "DATABASE_URL", "LOG_LEVEL", "CRESTLINE_TIMEOUT", "CRESTLINE_PORT", "AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server: https://cbct.example.org
mode: measure
zoom: "1.0"
timeout: 45s
dashboard:
  port: 9090
  rate_limit: 2
  burst: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://cbct.example.org", cfg.Server)
	assert.Equal(t, analysis.ModeMeasure, cfg.DefaultMode())
	assert.Equal(t, "1.0", cfg.Zoom)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
	assert.Equal(t, 5, cfg.Dashboard.Burst)
	assert.Equal(t, "127.0.0.1", cfg.Dashboard.Host)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server: http://file:5000\n")
	t.Setenv("CRESTLINE_SERVER", "http://env:5000")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/crestline")
	t.Setenv("CRESTLINE_TIMEOUT", "10s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env:5000", cfg.Server)
	assert.Equal(t, "postgres://u:p@db/crestline", cfg.History)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"bad server", "server: ftp://x\n"},
		{"bad mode", "mode: classify\n"},
		{"bad port", "dashboard:\n  port: 70000\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, analysis.DefaultZoomText, cfg.Zoom)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
}
