package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/procedure"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after positionals are moved first",
			args:     []string{"read", "c1", "--wait", "--language", "German"},
			expected: []string{"--wait", "--language", "German", "read", "c1"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"--wait", "read", "c1"},
			expected: []string{"--wait", "read", "c1"},
		},
		{
			name:     "positionals only returns unchanged",
			args:     []string{"read", "c1"},
			expected: []string{"read", "c1"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestResolveProcedure(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{models.ProcedureReadText, models.ProcedureReadText},
		{models.ProcedureTagEntities, models.ProcedureTagEntities},
		{"read", models.ProcedureReadText},
		{"read-text", models.ProcedureReadText},
		{"TAG", models.ProcedureTagEntities},
		{"ner", models.ProcedureTagEntities},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := resolveProcedure(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("resolveProcedure(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if _, err := resolveProcedure("summarize"); !errors.Is(err, procedure.ErrUnknownProcedure) {
		t.Errorf("unknown procedure: err = %v", err)
	}
}

func TestContentInputFor(t *testing.T) {
	in, err := contentInputFor("docs/report.pdf", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(in.SourcePath) || in.Name != "report.pdf" || in.ID != "" {
		t.Errorf("input = %+v", in)
	}
	in, _ = contentInputFor("report.pdf", "c1", "Quarterly")
	if in.ID != "c1" || in.Name != "Quarterly" {
		t.Errorf("explicit values not kept: %+v", in)
	}
	for _, id := range []string{"../escape", "a/b", ".hidden"} {
		if _, err := contentInputFor("report.pdf", id, ""); err == nil {
			t.Errorf("id %q should be rejected", id)
		}
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
analysis:
  default_language: German
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Analysis.DefaultLanguage != "German" || cfg.Watch.Language != "German" {
		t.Errorf("language defaults: %+v / %+v", cfg.Analysis, cfg.Watch)
	}
}

func TestInitializeComponents(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "` + filepath.Join(dir, "db.sqlite") + `"
  content_root: "` + filepath.Join(dir, "content") + `"
  entity_index_path: "` + filepath.Join(dir, "entities") + `"
models:
  dir: "` + filepath.Join(dir, "models") + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	c, err := initializeComponents(cfg, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Layout.Engine != "spacy" || c.Layout.Ext != "nlpdoc" || c.Layout.Root != cfg.Storage.ContentRoot {
		t.Errorf("layout = %+v", c.Layout)
	}
	if n, err := c.Storage.CountContent(context.Background()); err != nil || n != 0 {
		t.Errorf("CountContent = %d, %v", n, err)
	}
}
