// Package resolver maps language display names to model identifiers and
// makes sure the chosen model is loadable.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/nlp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnknownLanguage is returned for a language name the runtime cannot serve.
var ErrUnknownLanguage = errors.New("unknown language")

// Config selects which advertised models are eligible.
type Config struct {
	// Family is the required prefix of a model's first compatible version.
	Family string
	// SizeClass is the model size suffix, e.g. "md".
	SizeClass string
}

// Resolver resolves languages against a runtime. The language table is built
// once per Resolver and loaded models are cached and shared. Provisioning one
// model never blocks lookups or the loading of another model.
type Resolver struct {
	runtime nlp.Runtime
	cfg     Config
	logger  *zap.Logger

	tableMu   sync.Mutex
	languages map[string]models.LanguageInfo

	mu     sync.Mutex
	loaded map[string]nlp.Model
	flight singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets a logger for resolution and provisioning events.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver. Empty config fields default to family "3.8" and size "md".
func New(runtime nlp.Runtime, cfg Config, opts ...ResolverOption) *Resolver {
	if cfg.Family == "" {
		cfg.Family = "3.8"
	}
	if cfg.SizeClass == "" {
		cfg.SizeClass = "md"
	}
	r := &Resolver{
		runtime: runtime,
		cfg:     cfg,
		logger:  zap.NewNop(),
		loaded:  make(map[string]nlp.Model),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Languages returns the selectable languages keyed by display name.
func (r *Resolver) Languages(ctx context.Context) (map[string]models.LanguageInfo, error) {
	r.tableMu.Lock()
	defer r.tableMu.Unlock()
	if r.languages != nil {
		return copyLanguages(r.languages), nil
	}

	compat, err := r.runtime.Compatibility(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate languages: %w", err)
	}
	names := make([]string, 0, len(compat))
	for name := range compat {
		names = append(names, name)
	}
	sort.Strings(names)

	webSuffix := "_core_web_" + r.cfg.SizeClass
	newsSuffix := "_core_news_" + r.cfg.SizeClass
	table := make(map[string]models.LanguageInfo)
	for _, name := range names {
		versions := compat[name]
		if len(versions) == 0 || !strings.HasPrefix(versions[0], r.cfg.Family) {
			continue
		}
		web := strings.HasSuffix(name, webSuffix)
		if !web && !strings.HasSuffix(name, newsSuffix) {
			continue
		}
		code, _, _ := strings.Cut(name, "_")
		tag, err := language.Parse(code)
		if err != nil {
			r.logger.Debug("skipping model with unparseable language code", zap.String("model", name))
			continue
		}
		langName := display.English.Languages().Name(tag)
		if langName == "" {
			continue
		}
		if prev, ok := table[langName]; ok && strings.HasSuffix(prev.Model, webSuffix) && !web {
			continue
		}
		table[langName] = models.LanguageInfo{
			Name:    langName,
			Code:    code,
			Model:   name,
			Version: versions[0],
		}
	}
	r.languages = table
	r.logger.Debug("language table built", zap.Int("languages", len(table)))
	return copyLanguages(table), nil
}

// Names returns the selectable language names in sorted order.
func (r *Resolver) Names(ctx context.Context) ([]string, error) {
	table, err := r.Languages(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Resolve returns the model info for a language display name.
func (r *Resolver) Resolve(ctx context.Context, name string) (models.LanguageInfo, error) {
	table, err := r.Languages(ctx)
	if err != nil {
		return models.LanguageInfo{}, err
	}
	info, ok := table[name]
	if !ok {
		names := make([]string, 0, len(table))
		for n := range table {
			names = append(names, n)
		}
		if hint := Suggest(name, names); hint != "" {
			return models.LanguageInfo{}, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownLanguage, name, hint)
		}
		return models.LanguageInfo{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
	}
	return info, nil
}

// Ensure returns a loaded model for info. A failed load triggers exactly one
// download followed by exactly one more load; failure of either is returned.
// Concurrent calls for the same model share one provisioning attempt.
func (r *Resolver) Ensure(ctx context.Context, info models.LanguageInfo) (nlp.Model, error) {
	if m, ok := r.cached(info.Model); ok {
		return m, nil
	}
	v, err, _ := r.flight.Do(info.Model, func() (interface{}, error) {
		if m, ok := r.cached(info.Model); ok {
			return m, nil
		}
		m, err := r.provision(ctx, info)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.loaded[info.Model] = m
		r.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(nlp.Model), nil
}

func (r *Resolver) cached(name string) (nlp.Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.loaded[name]
	return m, ok
}

func (r *Resolver) provision(ctx context.Context, info models.LanguageInfo) (nlp.Model, error) {
	m, err := r.runtime.Load(ctx, info.Model)
	if err == nil {
		return m, nil
	}
	r.logger.Info("model not loadable, downloading", zap.String("model", info.Model), zap.String("version", info.Version), zap.Error(err))
	if derr := r.runtime.Download(ctx, info.Model, info.Version); derr != nil {
		return nil, fmt.Errorf("provision model %s %s: %w", info.Model, info.Version, derr)
	}
	m, err = r.runtime.Load(ctx, info.Model)
	if err != nil {
		return nil, fmt.Errorf("load model %s after download: %w", info.Model, err)
	}
	return m, nil
}

func copyLanguages(in map[string]models.LanguageInfo) map[string]models.LanguageInfo {
	out := make(map[string]models.LanguageInfo, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
