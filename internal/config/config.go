// Package config provides unified configuration loading for the extraction engine.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the extraction engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Cache         CacheConfig         `yaml:"cache"`
	Router        RouterConfig        `yaml:"router"`
	Tables        TableConfig         `yaml:"tables"`
	Entities      EntityConfig        `yaml:"entities"`
	Consensus     ConsensusConfig     `yaml:"consensus"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	OCR           OCRConfig           `yaml:"ocr"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RouterConfig holds method-routing thresholds.
type RouterConfig struct {
	// NativeTextMaxBytes is the size ceiling for the native-text strategy.
	NativeTextMaxBytes int64 `yaml:"native_text_max_bytes"`
	// MachineReadableMin is the fraction of pages that must carry
	// machine-readable text for the native-text strategy.
	MachineReadableMin float64 `yaml:"machine_readable_min"`
	// TableKeywordMin is the keyword-density floor that routes to the
	// table-focused strategy.
	TableKeywordMin float64 `yaml:"table_keyword_min"`
}

// TableConfig holds table-region detector tolerances and bonus weights.
// The defaults are calibration starting points, not fixed constants.
type TableConfig struct {
	RowToleranceY    float64 `yaml:"row_tolerance_y"`    // y-center tolerance for same-row grouping
	ColToleranceX    float64 `yaml:"col_tolerance_x"`    // x-cluster tolerance for column inference
	MinColumnSupport float64 `yaml:"min_column_support"` // fraction of rows aligned at an x for a column
	MinRegionRows    int     `yaml:"min_region_rows"`
	BaseConfidence   float64 `yaml:"base_confidence"`
	HeaderBonus      float64 `yaml:"header_bonus"`
	UniformRowBonus  float64 `yaml:"uniform_row_bonus"`
	NumericColBonus  float64 `yaml:"numeric_col_bonus"`
	KeywordBonus     float64 `yaml:"keyword_bonus"`
}

// EntityConfig holds entity engine settings.
type EntityConfig struct {
	// KnownPeople and KnownOrganizations seed the dictionary engine.
	KnownPeople        []string      `yaml:"known_people"`
	KnownOrganizations []string      `yaml:"known_organizations"`
	EngineTimeout      time.Duration `yaml:"engine_timeout"`
	// EngineAllowlist restricts scanning to the named engines. Empty
	// means every registered engine runs.
	EngineAllowlist []string `yaml:"engine_allowlist"`
}

// ConsensusConfig holds aggregator settings.
type ConsensusConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

// PipelineConfig holds orchestrator concurrency settings.
type PipelineConfig struct {
	PageWorkers     int           `yaml:"page_workers"`
	JobWorkers      int           `yaml:"job_workers"`
	ProgressBuffer  int           `yaml:"progress_buffer"`
	ExternalTimeout time.Duration `yaml:"external_timeout"`
	// JobRetention is how long a finished job stays queryable before it
	// is evicted from the in-memory job table.
	JobRetention time.Duration `yaml:"job_retention"`
}

// OCRConfig holds settings for the external OCR collaborator.
type OCRConfig struct {
	Enabled bool          `yaml:"enabled"`
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8086,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     60 * time.Second,
			MaxUploadBytes:   64 << 20,
			GracefulShutdown: 10 * time.Second,
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        30 * time.Minute,
			MaxEntries: 1024,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Router: RouterConfig{
			NativeTextMaxBytes: 32 << 20,
			MachineReadableMin: 0.5,
			TableKeywordMin:    0.15,
		},
		Tables: TableConfig{
			RowToleranceY:    4.0,
			ColToleranceX:    12.0,
			MinColumnSupport: 0.5,
			MinRegionRows:    2,
			BaseConfidence:   0.5,
			HeaderBonus:      0.20,
			UniformRowBonus:  0.15,
			NumericColBonus:  0.10,
			KeywordBonus:     0.05,
		},
		Entities: EntityConfig{
			EngineTimeout: 20 * time.Second,
		},
		Consensus: ConsensusConfig{
			ConfidenceFloor: 0.6,
		},
		Pipeline: PipelineConfig{
			PageWorkers:     4,
			JobWorkers:      2,
			ProgressBuffer:  64,
			ExternalTimeout: 30 * time.Second,
			JobRetention:    15 * time.Minute,
		},
		OCR: OCRConfig{
			Enabled: false,
			Binary:  "tesseract",
			Timeout: 45 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Consensus.ConfidenceFloor < 0 || c.Consensus.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence_floor must be in [0,1], got %v", c.Consensus.ConfidenceFloor)
	}

	if c.Tables.RowToleranceY <= 0 || c.Tables.ColToleranceX <= 0 {
		return fmt.Errorf("table tolerances must be positive")
	}

	if c.Tables.MinColumnSupport <= 0 || c.Tables.MinColumnSupport > 1 {
		return fmt.Errorf("min_column_support must be in (0,1], got %v", c.Tables.MinColumnSupport)
	}

	if c.Pipeline.PageWorkers < 1 {
		return fmt.Errorf("page_workers must be at least 1")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	if v := os.Getenv("OCR_BINARY"); v != "" {
		cfg.OCR.Enabled = true
		cfg.OCR.Binary = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
