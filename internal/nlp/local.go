package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const modelFile = "model.yaml"

// LocalConfig configures a LocalRuntime.
type LocalConfig struct {
	// ModelsDir holds one directory per installed model.
	ModelsDir string
	// IndexURL points at the compatibility index (http(s) URL or local file).
	IndexURL string
	// DownloadURL is the base URL model packages are fetched from.
	DownloadURL string
	// RuntimeVersion selects the compatibility table inside the index.
	RuntimeVersion string
	// Engine is the top-level key of the compatibility index.
	Engine  string
	Timeout time.Duration
}

// LocalRuntime serves gazetteer models installed under a directory and
// provisions missing ones from a distribution server.
type LocalRuntime struct {
	cfg    LocalConfig
	client *resty.Client
	mu     sync.Mutex
	logger *zap.Logger
}

// LocalRuntimeOption configures a LocalRuntime.
type LocalRuntimeOption func(*LocalRuntime)

// WithLogger sets a logger for download and load events.
func WithLogger(l *zap.Logger) LocalRuntimeOption {
	return func(r *LocalRuntime) { r.logger = l }
}

// NewLocalRuntime creates a runtime rooted at cfg.ModelsDir.
func NewLocalRuntime(cfg LocalConfig, opts ...LocalRuntimeOption) *LocalRuntime {
	if cfg.Engine == "" {
		cfg.Engine = "spacy"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	r := &LocalRuntime{cfg: cfg, client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Compatibility reads the index and returns the table for the configured
// runtime version.
func (r *LocalRuntime) Compatibility(ctx context.Context) (map[string][]string, error) {
	data, err := r.fetch(ctx, r.cfg.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("compatibility index: %w", err)
	}
	var index map[string]map[string]map[string][]string
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse compatibility index: %w", err)
	}
	table, ok := index[r.cfg.Engine][r.cfg.RuntimeVersion]
	if !ok {
		return nil, fmt.Errorf("compatibility index has no entry for %s %s", r.cfg.Engine, r.cfg.RuntimeVersion)
	}
	return table, nil
}

// Load reads and compiles the installed model package.
func (r *LocalRuntime) Load(ctx context.Context, name string) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(r.cfg.ModelsDir, name, modelFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", name, ErrModelNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	pkg, err := parsePackage(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	m, err := NewGazetteerModel(pkg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	r.logger.Debug("model loaded", zap.String("model", name), zap.String("version", pkg.Version), zap.Int("labels", len(pkg.Labels)))
	return m, nil
}

// Download fetches {DownloadURL}/{name}-{version}/{name}-{version}.yaml and
// installs it. Concurrent downloads are serialized.
func (r *LocalRuntime) Download(ctx context.Context, name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	release := name + "-" + version
	url := strings.TrimRight(r.cfg.DownloadURL, "/") + "/" + release + "/" + release + ".yaml"
	r.logger.Info("downloading model", zap.String("model", name), zap.String("version", version), zap.String("url", url))

	data, err := r.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("download %s: %w", release, err)
	}
	pkg, err := parsePackage(data)
	if err != nil {
		return fmt.Errorf("download %s: %w", release, err)
	}
	if pkg.Name != name {
		return fmt.Errorf("download %s: package is named %q", release, pkg.Name)
	}

	dir := filepath.Join(r.cfg.ModelsDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("download %s: %w", release, err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return fmt.Errorf("download %s: %w", release, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", release, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("download %s: %w", release, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, modelFile)); err != nil {
		return fmt.Errorf("download %s: %w", release, err)
	}
	return nil
}

func (r *LocalRuntime) fetch(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return os.ReadFile(strings.TrimPrefix(location, "file://"))
	}
	resp, err := r.client.R().SetContext(ctx).Get(location)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: %s", location, resp.Status())
	}
	return resp.Body(), nil
}

func parsePackage(data []byte) (*Package, error) {
	var pkg Package
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse model package: %w", err)
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return &pkg, nil
}
