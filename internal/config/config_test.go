package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.InDelta(t, 0.6, cfg.Consensus.ConfidenceFloor, 0.0001)
	assert.InDelta(t, 0.5, cfg.Tables.BaseConfidence, 0.0001)
	assert.InDelta(t, 0.20, cfg.Tables.HeaderBonus, 0.0001)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
consensus:
  confidence_floor: 0.75
tables:
  row_tolerance_y: 6.5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.75, cfg.Consensus.ConfidenceFloor, 0.0001)
	assert.InDelta(t, 6.5, cfg.Tables.RowToleranceY, 0.0001)
	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Cache.Driver)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("OCR_BINARY", "/usr/local/bin/tesseract")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.OCR.Enabled, "setting the binary enables OCR")
	assert.Equal(t, "/usr/local/bin/tesseract", cfg.OCR.Binary)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"unknown cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"floor above one", func(c *Config) { c.Consensus.ConfidenceFloor = 1.5 }},
		{"zero row tolerance", func(c *Config) { c.Tables.RowToleranceY = 0 }},
		{"column support above one", func(c *Config) { c.Tables.MinColumnSupport = 2 }},
		{"no page workers", func(c *Config) { c.Pipeline.PageWorkers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
