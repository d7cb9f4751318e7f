// Package config provides configuration loading and structs for the docanalysis server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable that overrides a config value.
const EnvPrefix = "DOCANALYSIS_"

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Models   ModelsConfig   `yaml:"models"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database, content directories and the entity index.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	ContentRoot     string `yaml:"content_root"`
	EntityIndexPath string `yaml:"entity_index_path"`
}

// AnalysisConfig controls segmentation and artifact naming.
type AnalysisConfig struct {
	MaxSegmentLength int    `yaml:"max_segment_length"`
	SplitLongLines   *bool  `yaml:"split_long_lines"`
	EngineName       string `yaml:"engine_name"`
	ArtifactExt      string `yaml:"artifact_ext"`
	DefaultLanguage  string `yaml:"default_language"`
}

// SplitLongLinesOrDefault returns whether long lines may be cut; defaults to true when unset.
func (a *AnalysisConfig) SplitLongLinesOrDefault() bool {
	if a.SplitLongLines != nil {
		return *a.SplitLongLines
	}
	return true
}

// ModelsConfig describes where language models come from.
type ModelsConfig struct {
	RuntimeVersion      string        `yaml:"runtime_version"`
	CompatibilityFamily string        `yaml:"compatibility_family"`
	SizeClass           string        `yaml:"size_class"`
	IndexURL            string        `yaml:"index_url"`
	DownloadURL         string        `yaml:"download_url"`
	Dir                 string        `yaml:"dir"`
	DownloadTimeout     time.Duration `yaml:"download_timeout"`
}

// DispatchConfig sizes the job worker pool.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// WatchConfig holds inbox directory settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// Language is the language parameter of read text jobs created for new files.
	Language string `yaml:"language"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, loads a .env file next to
// it when present, applies DOCANALYSIS_* environment overrides and defaults,
// and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.ContentRoot = expandPath(cfg.Storage.ContentRoot, configDir)
	cfg.Storage.EntityIndexPath = expandPath(cfg.Storage.EntityIndexPath, configDir)
	cfg.Models.Dir = expandPath(cfg.Models.Dir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides cfg with DOCANALYSIS_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"HOST":                 &cfg.Server.Host,
		"DATABASE_PATH":        &cfg.Storage.DatabasePath,
		"CONTENT_ROOT":         &cfg.Storage.ContentRoot,
		"ENTITY_INDEX_PATH":    &cfg.Storage.EntityIndexPath,
		"DEFAULT_LANGUAGE":     &cfg.Analysis.DefaultLanguage,
		"MODELS_INDEX_URL":     &cfg.Models.IndexURL,
		"MODELS_DOWNLOAD_URL":  &cfg.Models.DownloadURL,
		"MODELS_DIR":           &cfg.Models.Dir,
		"MODELS_RUNTIME":       &cfg.Models.RuntimeVersion,
		"COMPATIBILITY_FAMILY": &cfg.Models.CompatibilityFamily,
	}
	for key, dst := range strs {
		if val, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = val
		}
	}

	ints := map[string]*int{
		"PORT":               &cfg.Server.Port,
		"MAX_SEGMENT_LENGTH": &cfg.Analysis.MaxSegmentLength,
		"WORKERS":            &cfg.Dispatch.Workers,
	}
	for key, dst := range ints {
		val, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if val, ok := os.LookupEnv(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %sDEBUG: %w", EnvPrefix, err)
		}
		cfg.Debug = b
	}
	if val, ok := os.LookupEnv(EnvPrefix + "DOWNLOAD_TIMEOUT"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %sDOWNLOAD_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Models.DownloadTimeout = d
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. URLs are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) || strings.Contains(path, "://") {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
