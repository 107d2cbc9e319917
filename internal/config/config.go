package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

// Config carries everything the pipeline needs: store connection, data
// locations, and the policy knobs (batching, retry, quality thresholds).
type Config struct {
	Neo4j struct {
		URI            string `yaml:"uri"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		Database       string `yaml:"database"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxPoolSize    int    `yaml:"max_pool_size"`
	} `yaml:"neo4j"`

	DataDir        string `yaml:"data_dir"`
	CheckpointPath string `yaml:"checkpoint_path"`

	Batch struct {
		Size    int `yaml:"size"`
		MaxSize int `yaml:"max_size"`
	} `yaml:"batch"`

	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		MinBackoff  time.Duration `yaml:"min_backoff"`
		MaxBackoff  time.Duration `yaml:"max_backoff"`
		JitterFrac  float64       `yaml:"jitter_frac"`
	} `yaml:"retry"`

	Talisman struct {
		MinValidationRatio float64 `yaml:"min_validation_ratio"`
		OverlapThreshold   float64 `yaml:"overlap_threshold"`
	} `yaml:"talisman"`

	Interconnect struct {
		MinSharedGenes   int `yaml:"min_shared_genes"`
		MediumConfidence int `yaml:"medium_confidence"`
		HighConfidence   int `yaml:"high_confidence"`
	} `yaml:"interconnect"`
}

// Load builds the config from environment variables, then overlays the
// optional YAML file at path (empty path skips the file).
func Load(path string, log *logger.Logger) (*Config, error) {
	cfg := defaults(log)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func defaults(log *logger.Logger) *Config {
	cfg := &Config{}
	cfg.Neo4j.URI = GetEnv("NEO4J_URI", "bolt://localhost:7687", log)
	cfg.Neo4j.User = GetEnv("NEO4J_USER", "neo4j", log)
	cfg.Neo4j.Password = GetEnv("NEO4J_PASSWORD", "password", log)
	cfg.Neo4j.Database = GetEnv("NEO4J_DATABASE", "", log)
	cfg.Neo4j.TimeoutSeconds = GetEnvAsInt("NEO4J_TIMEOUT_SECONDS", 10, log)
	cfg.Neo4j.MaxPoolSize = GetEnvAsInt("NEO4J_MAX_POOL_SIZE", 50, log)

	cfg.DataDir = GetEnv("BIOKG_DATA_DIR", "data", log)
	cfg.CheckpointPath = GetEnv("BIOKG_CHECKPOINT", "biokg_checkpoint.json", log)

	cfg.Batch.Size = GetEnvAsInt("BIOKG_BATCH_SIZE", 1000, log)
	cfg.Batch.MaxSize = GetEnvAsInt("BIOKG_BATCH_MAX_SIZE", 5000, log)

	cfg.Retry.MaxAttempts = 5
	cfg.Retry.MinBackoff = 1 * time.Second
	cfg.Retry.MaxBackoff = 30 * time.Second
	cfg.Retry.JitterFrac = 0.20

	cfg.Talisman.MinValidationRatio = 0.5
	cfg.Talisman.OverlapThreshold = 0.3

	cfg.Interconnect.MinSharedGenes = 3
	cfg.Interconnect.MediumConfidence = 5
	cfg.Interconnect.HighConfidence = 10
	return cfg
}

// Validate catches the misconfigurations worth failing fast on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Neo4j.URI) == "" {
		return fmt.Errorf("config: neo4j uri required")
	}
	if c.Batch.Size <= 0 {
		return fmt.Errorf("config: batch size must be positive")
	}
	if c.Batch.MaxSize > 0 && c.Batch.Size > c.Batch.MaxSize {
		return fmt.Errorf("config: batch size %d exceeds max %d", c.Batch.Size, c.Batch.MaxSize)
	}
	if c.Talisman.MinValidationRatio < 0 || c.Talisman.MinValidationRatio > 1 {
		return fmt.Errorf("config: min validation ratio must be in [0,1]")
	}
	return nil
}

func GetEnv(key, fallback string, log *logger.Logger) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if log != nil {
		log.Debug("env var not set, using fallback", "key", key, "fallback", fallback)
	}
	return fallback
}

func GetEnvAsInt(key string, fallback int, log *logger.Logger) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("env var is not an integer, using fallback", "key", key, "value", v)
		}
		return fallback
	}
	return parsed
}
