package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

func TestLoad(t *testing.T) {
	_, path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
analysis:
  max_segment_length: 1000
  split_long_lines: false
models:
  download_timeout: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Analysis.MaxSegmentLength != 1000 || cfg.Analysis.SplitLongLinesOrDefault() {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Models.DownloadTimeout != 30*time.Second {
		t.Errorf("download_timeout = %s", cfg.Models.DownloadTimeout)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	_, path := writeConfig(t, `
debug: true
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir, path := writeConfig(t, `
storage:
  database_path: "./data/db/docanalysis.db"
  content_root: "./data/content"
models:
  dir: "./models"
  index_url: "file:///srv/models/compatibility.json"
watch:
  directories: ["./inbox"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name, got, want string
	}{
		{"database_path", cfg.Storage.DatabasePath, filepath.Join(dir, "data", "db", "docanalysis.db")},
		{"content_root", cfg.Storage.ContentRoot, filepath.Join(dir, "data", "content")},
		{"models dir", cfg.Models.Dir, filepath.Join(dir, "models")},
		{"index_url", cfg.Models.IndexURL, "file:///srv/models/compatibility.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, tt.got, tt.want)
		}
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	_, path := writeConfig(t, `
server:
  port: 9000
analysis:
  default_language: German
`)
	t.Setenv("DOCANALYSIS_PORT", "9100")
	t.Setenv("DOCANALYSIS_DEBUG", "true")
	t.Setenv("DOCANALYSIS_DEFAULT_LANGUAGE", "French")
	t.Setenv("DOCANALYSIS_DOWNLOAD_TIMEOUT", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 || !cfg.Debug {
		t.Errorf("server = %+v, debug = %v", cfg.Server, cfg.Debug)
	}
	if cfg.Analysis.DefaultLanguage != "French" || cfg.Watch.Language != "French" {
		t.Errorf("language = %s, watch language = %s", cfg.Analysis.DefaultLanguage, cfg.Watch.Language)
	}
	if cfg.Models.DownloadTimeout != 90*time.Second {
		t.Errorf("download_timeout = %s", cfg.Models.DownloadTimeout)
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir, path := writeConfig(t, "debug: false\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCANALYSIS_WORKERS=7\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set, so make
	// sure the test starts from a clean slate and cleans up after itself.
	t.Setenv("DOCANALYSIS_WORKERS", "")
	os.Unsetenv("DOCANALYSIS_WORKERS")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dispatch.Workers != 7 {
		t.Errorf("workers = %d, want 7 from .env", cfg.Dispatch.Workers)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	_, path := writeConfig(t, "debug: false\n")
	t.Setenv("DOCANALYSIS_PORT", "eighty")
	if _, err := Load(path); err == nil {
		t.Error("expected error for a non-numeric port")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	_, path := writeConfig(t, "server: [")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Analysis.MaxSegmentLength != 900000 || !cfg.Analysis.SplitLongLinesOrDefault() {
		t.Errorf("analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.Analysis.EngineName != "spacy" || cfg.Analysis.ArtifactExt != "nlpdoc" || cfg.Analysis.DefaultLanguage != "English" {
		t.Errorf("analysis names: %+v", cfg.Analysis)
	}
	if cfg.Models.RuntimeVersion != "3.8.0" || cfg.Models.CompatibilityFamily != "3.8" || cfg.Models.SizeClass != "md" {
		t.Errorf("model defaults: %+v", cfg.Models)
	}
	if cfg.Models.DownloadTimeout != 5*time.Minute {
		t.Errorf("download timeout: %s", cfg.Models.DownloadTimeout)
	}
	if cfg.Dispatch.Workers != 2 || cfg.Dispatch.QueueSize != 64 {
		t.Errorf("dispatch defaults: %+v", cfg.Dispatch)
	}
	if len(cfg.Watch.Extensions) != 10 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Watch.Language != "English" {
		t.Errorf("watch language: %s", cfg.Watch.Language)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name string
		val  *bool
		want bool
	}{
		{"nil_returns_true", nil, true},
		{"true_returns_true", &yes, true},
		{"false_returns_false", &no, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &WatchConfig{Recursive: tt.val}
			if got := w.RecursiveOrDefault(); got != tt.want {
				t.Errorf("RecursiveOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}
