package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.BaseURL != "http://localhost:3001/api/v1" {
		t.Errorf("base URL %q", cfg.Analysis.BaseURL)
	}
	if cfg.Analysis.PollInterval != 2*time.Second || cfg.Analysis.MaxAttempts != 30 {
		t.Errorf("poll defaults %v/%d", cfg.Analysis.PollInterval, cfg.Analysis.MaxAttempts)
	}
	if !cfg.Analysis.UseCache || cfg.Analysis.NumCompletions != 1 {
		t.Errorf("submit defaults %v/%d", cfg.Analysis.UseCache, cfg.Analysis.NumCompletions)
	}
	if cfg.Index.StorageKey != "prompt-analyses" || cfg.Index.Backend != BackendFile {
		t.Errorf("index defaults %q/%q", cfg.Index.StorageKey, cfg.Index.Backend)
	}
	if cfg.Advisor.Provider != AdvisorHeuristic {
		t.Errorf("advisor %q", cfg.Advisor.Provider)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
analysis:
  pollInterval: 500ms
  maxAttempts: 5
index:
  backend: sqlite
  path: /tmp/petri.db
openai:
  apiKey: from-file
`)
	t.Setenv("PETRI_API_URL", "https://analysis.example.com/api/v1")
	t.Setenv("PETRI_LOG_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Analysis.PollInterval != 500*time.Millisecond || cfg.Analysis.MaxAttempts != 5 {
		t.Errorf("yaml not applied: %+v", cfg.Analysis)
	}
	if cfg.Analysis.BaseURL != "https://analysis.example.com/api/v1" || cfg.Log.Level != "debug" {
		t.Errorf("env not applied")
	}
	if cfg.Advisor.Provider != AdvisorOpenAI {
		t.Errorf("advisor %q", cfg.Advisor.Provider)
	}
	// untouched keys keep defaults
	if cfg.Analysis.NumCompletions != 1 {
		t.Errorf("numCompletions %d", cfg.Analysis.NumCompletions)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Index.Backend = "redis"
	cfg.Analysis.MaxAttempts = 0
	cfg.Analysis.BaseURL = "localhost:3001"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"index.backend", "maxAttempts", "baseURL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestDSNs(t *testing.T) {
	cfg := Default()
	cfg.Database.Host = "db"
	cfg.Database.User = "petri"
	cfg.Database.Password = "p@ss"
	cfg.Database.Name = "petri"

	if got := cfg.MySQLDSN(); got != "petri:p@ss@tcp(db:3306)/petri?parseTime=true&charset=utf8mb4&loc=UTC" {
		t.Errorf("mysql dsn %q", got)
	}
	if got := cfg.PostgresDSN(); got != "postgres://petri:p%40ss@db:5432/petri?sslmode=disable" {
		t.Errorf("postgres dsn %q", got)
	}
}
