// Package config loads txgroup settings from an optional YAML file and the
// environment. Environment variables win over the file; both fall back to
// Default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/dvloznov/txgroup/internal/domain"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendBigQuery = "bigquery"
	BackendPostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	DefaultCurrency     string  `yaml:"default_currency"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	FallbackLimit       int     `yaml:"fallback_limit"`

	Store  StoreConfig  `yaml:"store"`
	GCS    GCSConfig    `yaml:"gcs"`
	Notion NotionConfig `yaml:"notion"`
	HTTP   HTTPConfig   `yaml:"http"`
	Log    LogConfig    `yaml:"log"`
	Jobs   JobsConfig   `yaml:"jobs"`

	// Categories are seeded on startup; existing names are left alone.
	Categories []CategoryConfig `yaml:"categories"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Bolt     BoltConfig     `yaml:"bolt"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	DatasetID string `yaml:"dataset_id"`
}

type PostgresConfig struct {
	// DSN is a lib/pq connection string.
	// SENSITIVE: may carry a password, never log it.
	DSN string `yaml:"dsn"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

type NotionConfig struct {
	// SENSITIVE: never log this value.
	Token      string `yaml:"token"`
	DatabaseID string `yaml:"database_id"`
}

// IsConfigured returns true if both the token and the database are set.
func (c NotionConfig) IsConfigured() bool {
	return c.Token != "" && c.DatabaseID != ""
}

type HTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type JobsConfig struct {
	BufferSize int           `yaml:"buffer_size"`
	Workers    int           `yaml:"workers"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

type CategoryConfig struct {
	Name                    string `yaml:"name"`
	Color                   string `yaml:"color"`
	ExcludeFromCalculations bool   `yaml:"exclude_from_calculations"`
}

// DefaultCategories is the starter category set.
var DefaultCategories = []CategoryConfig{
	{Name: "Exclude", Color: "#FF4444", ExcludeFromCalculations: true},
	{Name: "Eating Out", Color: "#FF9800"},
	{Name: "Medical", Color: "#2196F3"},
	{Name: "Self-Care", Color: "#E91E63"},
	{Name: "Pets", Color: "#9C27B0"},
	{Name: "Insurance", Color: "#607D8B"},
	{Name: "Investing", Color: "#4CAF50"},
	{Name: "Car", Color: "#795548"},
	{Name: "House", Color: "#009688"},
	{Name: "Phone", Color: "#3F51B5"},
	{Name: "Others", Color: "#9E9E9E"},
	{Name: "Food", Color: "#8BC34A"},
	{Name: "Hobby", Color: "#673AB7"},
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DefaultCurrency:     "PLN",
		SimilarityThreshold: 80,
		FallbackLimit:       5,
		Store: StoreConfig{
			Backend:  BackendMemory,
			Bolt:     BoltConfig{Path: "txgroup.db"},
			BigQuery: BigQueryConfig{DatasetID: "txgroup"},
		},
		HTTP: HTTPConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		Log:  LogConfig{Level: "info", Format: "console"},
		Jobs: JobsConfig{BufferSize: 100, Workers: 2, MaxRetries: 3, Backoff: time.Second},
		Categories: append([]CategoryConfig(nil), DefaultCategories...),
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, fmt.Errorf("Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment.
//
// Environment variables:
//   - TXGROUP_STORE: memory, bolt, bigquery or postgres
//   - TXGROUP_BOLT_PATH, TXGROUP_POSTGRES_DSN
//   - TXGROUP_BQ_PROJECT, TXGROUP_BQ_DATASET
//   - TXGROUP_DEFAULT_CURRENCY, TXGROUP_THRESHOLD, TXGROUP_FALLBACK_LIMIT
//   - TXGROUP_LOG_LEVEL, TXGROUP_LOG_FORMAT
//   - PORT, GCS_BUCKET, NOTION_TOKEN, NOTION_DATABASE_ID
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("TXGROUP_STORE", &cfg.Store.Backend)
	str("TXGROUP_BOLT_PATH", &cfg.Store.Bolt.Path)
	str("TXGROUP_POSTGRES_DSN", &cfg.Store.Postgres.DSN)
	str("TXGROUP_BQ_PROJECT", &cfg.Store.BigQuery.ProjectID)
	str("TXGROUP_BQ_DATASET", &cfg.Store.BigQuery.DatasetID)
	str("TXGROUP_DEFAULT_CURRENCY", &cfg.DefaultCurrency)
	str("TXGROUP_LOG_LEVEL", &cfg.Log.Level)
	str("TXGROUP_LOG_FORMAT", &cfg.Log.Format)
	str("GCS_BUCKET", &cfg.GCS.Bucket)
	str("NOTION_TOKEN", &cfg.Notion.Token)
	str("NOTION_DATABASE_ID", &cfg.Notion.DatabaseID)

	if v, ok := lookup("TXGROUP_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TXGROUP_THRESHOLD: %w", err)
		}
		cfg.SimilarityThreshold = f
	}
	if err := num("TXGROUP_FALLBACK_LIMIT", &cfg.FallbackLimit); err != nil {
		return err
	}
	if err := num("PORT", &cfg.HTTP.Port); err != nil {
		return err
	}
	return nil
}

// Validate checks the values that cannot be defaulted later.
func (c Config) Validate() error {
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	switch c.Store.Backend {
	case BackendMemory:
	case BackendBolt:
		if c.Store.Bolt.Path == "" {
			return fmt.Errorf("store.bolt.path is required for the bolt backend")
		}
	case BackendBigQuery:
		if c.Store.BigQuery.ProjectID == "" || c.Store.BigQuery.DatasetID == "" {
			return fmt.Errorf("store.bigquery.project_id and dataset_id are required for the bigquery backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity_threshold %v is outside [0, 100]", c.SimilarityThreshold)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is invalid", c.HTTP.Port)
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("category without a name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("category %q listed twice", cat.Name)
		}
		seen[cat.Name] = true
	}
	return nil
}

// SeedCategories converts the configured categories for the store.
func (c Config) SeedCategories() []domain.Category {
	out := make([]domain.Category, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, domain.Category{
			Name:                    cat.Name,
			Color:                   cat.Color,
			ExcludeFromCalculations: cat.ExcludeFromCalculations,
		})
	}
	return out
}
