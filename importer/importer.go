// Package importer provides the IMPORT collaborator: resolving a package
// name to the object graph an IMPORT instruction pushes. This mirrors the
// host-supplied Importer the teacher's VM takes via WithImporter, except
// zimvm's importer resolves to an *object.Object rather than a module of
// Go-native builtins.
package importer

import (
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/zimvm/object"
)

// Importer resolves a package name to its exported-object package. It is
// the same collaborator interface vm.VM.Importer expects; this package
// just supplies ready-made implementations of it.
type Importer interface {
	Import(name string) (*object.Object, error)
}

// Registry is an in-memory Importer backed by a fixed name-to-package
// map, set up once at VM construction time. It's the natural choice for
// an embedder that wires a handful of host modules (modules/randmod,
// modules/sqlmod, modules/s3mod, ...) rather than loading packages off
// disk, the way the teacher's default (non-local) importer resolves
// Risor's builtin modules.
type Registry struct {
	mu       sync.RWMutex
	packages map[string]*object.Object
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{packages: make(map[string]*object.Object)}
}

// Register adds or replaces the package exported under name.
func (r *Registry) Register(name string, pkg *object.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[name] = pkg
}

// Import implements Importer.
func (r *Registry) Import(name string) (*object.Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg, ok := r.packages[name]
	if !ok {
		return nil, fmt.Errorf("no such package %q", name)
	}
	return pkg, nil
}

// Cached wraps a slower Importer (for example one backed by image.Load
// reading files off disk) with a memoizing cache, so a package imported
// from multiple call sites across a program is only resolved once. This
// mirrors the teacher's WithLocalImporter path, which re-resolves from
// disk by name but would benefit from the same caching this adds.
type Cached struct {
	inner Importer

	mu    sync.Mutex
	cache map[string]*object.Object
}

// NewCached wraps inner with a package cache.
func NewCached(inner Importer) *Cached {
	return &Cached{inner: inner, cache: make(map[string]*object.Object)}
}

func (c *Cached) Import(name string) (*object.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pkg, ok := c.cache[name]; ok {
		return pkg, nil
	}
	pkg, err := c.inner.Import(name)
	if err != nil {
		return nil, err
	}
	c.cache[name] = pkg
	return pkg, nil
}
