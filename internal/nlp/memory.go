package nlp

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRuntime is an in-process Runtime backed by a fixed set of model
// packages. Packages listed as remote become loadable only after Download.
// Used for tests and for running without a model distribution server.
type MemoryRuntime struct {
	mu        sync.Mutex
	compat    map[string][]string
	installed map[string]*Package
	remote    map[string]*Package
	loads     map[string]int
	downloads map[string]int
	failLoad  map[string]bool
}

// NewMemoryRuntime creates an empty runtime.
func NewMemoryRuntime() *MemoryRuntime {
	return &MemoryRuntime{
		compat:    make(map[string][]string),
		installed: make(map[string]*Package),
		remote:    make(map[string]*Package),
		loads:     make(map[string]int),
		downloads: make(map[string]int),
		failLoad:  make(map[string]bool),
	}
}

// Advertise adds a compatibility entry without a package behind it.
func (r *MemoryRuntime) Advertise(name string, versions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compat[name] = versions
}

// Install makes pkg loadable immediately and advertises it.
func (r *MemoryRuntime) Install(pkg *Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[pkg.Name] = pkg
	r.compat[pkg.Name] = []string{pkg.Version}
}

// Publish advertises pkg and makes it available to Download only.
func (r *MemoryRuntime) Publish(pkg *Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote[pkg.Name] = pkg
	r.compat[pkg.Name] = []string{pkg.Version}
}

// BreakLoad makes every Load of name fail, even after download.
func (r *MemoryRuntime) BreakLoad(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLoad[name] = true
}

// Loads returns how many times name was loaded.
func (r *MemoryRuntime) Loads(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads[name]
}

// Downloads returns how many times name was downloaded.
func (r *MemoryRuntime) Downloads(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloads[name]
}

func (r *MemoryRuntime) Compatibility(ctx context.Context) (map[string][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]string, len(r.compat))
	for k, v := range r.compat {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (r *MemoryRuntime) Load(ctx context.Context, name string) (Model, error) {
	r.mu.Lock()
	r.loads[name]++
	pkg, ok := r.installed[name]
	broken := r.failLoad[name]
	r.mu.Unlock()
	if broken {
		return nil, fmt.Errorf("load %s: model package is corrupt", name)
	}
	if !ok {
		return nil, fmt.Errorf("load %s: %w", name, ErrModelNotFound)
	}
	return NewGazetteerModel(pkg)
}

func (r *MemoryRuntime) Download(ctx context.Context, name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[name]++
	pkg, ok := r.remote[name]
	if !ok || pkg.Version != version {
		return fmt.Errorf("download %s-%s: not published", name, version)
	}
	r.installed[name] = pkg
	return nil
}
