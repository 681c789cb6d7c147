package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
	if cfg.DefaultCurrency != "PLN" || cfg.SimilarityThreshold != 80 || cfg.FallbackLimit != 5 {
		t.Errorf("Default() = %+v", cfg)
	}

	seed := cfg.SeedCategories()
	if len(seed) != 13 {
		t.Fatalf("SeedCategories() returned %d categories, want 13", len(seed))
	}
	if seed[0].Name != "Exclude" || !seed[0].ExcludeFromCalculations {
		t.Errorf("first category = %+v, want the excluded one", seed[0])
	}
	for _, c := range seed[1:] {
		if c.ExcludeFromCalculations {
			t.Errorf("category %s should be calculable", c.Name)
		}
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txgroup.yaml")
	content := `
default_currency: EUR
similarity_threshold: 75
store:
  backend: bolt
  bolt:
    path: /var/lib/txgroup.db
jobs:
  workers: 4
  backoff: 250ms
categories:
  - name: Travel
    color: "#123456"
  - name: Ignore
    exclude_from_calculations: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(path, env(nil))
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.DefaultCurrency != "EUR" || cfg.SimilarityThreshold != 75 {
		t.Errorf("scalars not read: %+v", cfg)
	}
	if cfg.Store.Backend != BackendBolt || cfg.Store.Bolt.Path != "/var/lib/txgroup.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Jobs.Workers != 4 || cfg.Jobs.Backoff != 250*time.Millisecond || cfg.Jobs.MaxRetries != 3 {
		t.Errorf("Jobs = %+v", cfg.Jobs)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("unset HTTP port lost its default: %d", cfg.HTTP.Port)
	}
	if len(cfg.Categories) != 2 || !cfg.Categories[1].ExcludeFromCalculations {
		t.Errorf("Categories = %+v", cfg.Categories)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txgroup.yaml")
	if err := os.WriteFile(path, []byte("default_currency: EUR\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(path, env(map[string]string{
		"TXGROUP_DEFAULT_CURRENCY": "USD",
		"TXGROUP_STORE":            "postgres",
		"TXGROUP_POSTGRES_DSN":     "host=db user=tx dbname=tx sslmode=disable",
		"TXGROUP_THRESHOLD":        "90.5",
		"PORT":                     "9090",
		"GCS_BUCKET":               "statements",
		"NOTION_TOKEN":             "secret",
		"NOTION_DATABASE_ID":       "db",
	}))
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.DefaultCurrency != "USD" || cfg.SimilarityThreshold != 90.5 || cfg.HTTP.Port != 9090 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Store.Backend != BackendPostgres || cfg.GCS.Bucket != "statements" {
		t.Errorf("Store = %+v, GCS = %+v", cfg.Store, cfg.GCS)
	}
	if !cfg.Notion.IsConfigured() {
		t.Error("Notion not configured from env")
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("store: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		vars    map[string]string
		wantErr string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml"), nil, "reading"},
		{"bad yaml", bad, nil, "parsing"},
		{"bad threshold", "", map[string]string{"TXGROUP_THRESHOLD": "high"}, "TXGROUP_THRESHOLD"},
		{"bad port", "", map[string]string{"PORT": "http"}, "PORT"},
		{"unknown backend", "", map[string]string{"TXGROUP_STORE": "mongo"}, "unknown store backend"},
		{"bigquery without project", "", map[string]string{"TXGROUP_STORE": "bigquery"}, "project_id"},
		{"postgres without dsn", "", map[string]string{"TXGROUP_STORE": "postgres"}, "dsn"},
		{"threshold out of range", "", map[string]string{"TXGROUP_THRESHOLD": "120"}, "outside"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.path, env(tt.vars))
			if err == nil {
				t.Fatal("load() succeeded")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Categories(t *testing.T) {
	cfg := Default()
	cfg.Categories = append(cfg.Categories, CategoryConfig{Name: "Food"})
	if err := cfg.Validate(); err == nil {
		t.Error("duplicate category accepted")
	}

	cfg.Categories = []CategoryConfig{{Name: "  "}}
	if err := cfg.Validate(); err == nil {
		t.Error("blank category name accepted")
	}
}
