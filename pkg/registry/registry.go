// Package registry implements the runtime asset registry (C10): a
// refcounted handle table fed by a loader/locator chain, with all-or-one
// scheduling serialized per GUID through the dependency cache.
//
// Grounded on the source engine's AssetRegistry module: AssetStatus,
// AssetData's inline argument_storage, the loader/locator vtables, and the
// load/unload protocols are carried over with the same names and the same
// state machine, reimplemented as Go interfaces and a mutex-protected map
// instead of a recursive spinlock (Design Notes: the handle-table lock is
// always a leaf and never held across a dependency-cache wait).
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/forgekit/assetpipe/pkg/depcache"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/jobpool"
	"github.com/forgekit/assetpipe/pkg/typeref"
)

// Status is a CacheEntry's lifecycle state.
type Status int

const (
	StatusUnloaded Status = iota
	StatusLoading
	StatusLoadingFailed
	StatusLoaded
)

// maxArgumentBytes bounds the inline argument_storage block.
const maxArgumentBytes = 128

// StreamKind distinguishes a file-backed stream from an in-memory buffer.
type StreamKind int

const (
	StreamFile StreamKind = iota
	StreamBuffer
)

// Stream describes one piece of a Location: either a file path plus offset,
// or an in-memory buffer plus offset.
type Stream struct {
	Type   typeref.TypeRef
	Kind   StreamKind
	Path   string
	Offset int64
	Buffer []byte
}

// Location is what a Locator returns for a GUID: the artifact's declared
// type plus its ordered stream list.
type Location struct {
	Type    typeref.TypeRef
	Streams []Stream
}

// Locator resolves a GUID to a Location. The registry tries locators in
// registration order; the first to return a Location wins.
type Locator interface {
	Name() string
	Locate(g guid.GUID) (Location, bool)
}

// LoaderContext is handed to a Loader's Load/Unload calls.
type LoaderContext struct {
	GUID     guid.GUID
	Type     typeref.TypeRef
	ArgType  typeref.TypeRef
	Arg      []byte
	registry *Registry
}

// OwningRegistry returns the owning Registry, so a loader can resolve nested
// asset dependencies via Load.
func (c *LoaderContext) OwningRegistry() *Registry { return c.registry }

// Loader implements load/unload for one asset type.
type Loader interface {
	SupportedTypes() []typeref.TypeRef
	ParameterType() typeref.TypeRef
	Allocate(t typeref.TypeRef) (any, error)
	Load(ctx *LoaderContext, streams []Stream) error
	Unload(ctx *LoaderContext, payload any) error
}

// entry is the runtime CacheEntry.
type entry struct {
	guid          guid.GUID
	status        atomic.Int32
	loader        Loader
	refcount      atomic.Int32
	typ           typeref.TypeRef
	paramType     typeref.TypeRef
	payload       any
	argStorage    [maxArgumentBytes]byte
	argLen        int
}

// Manifest is a named set of friendly-name to GUID mappings.
type Manifest struct {
	Name    string
	entries map[string]guid.GUID
}

func newManifest(name string) *Manifest {
	return &Manifest{Name: name, entries: make(map[string]guid.GUID)}
}

// Add registers name -> g in the manifest.
func (m *Manifest) Add(name string, g guid.GUID) { m.entries[name] = g }

// Get resolves a friendly name to its GUID.
func (m *Manifest) Get(name string) (guid.GUID, bool) {
	g, ok := m.entries[name]
	return g, ok
}

// Registry is the runtime asset cache: handle table, loader/locator chains,
// and named manifests.
type Registry struct {
	mu        sync.Mutex // protects entries, loaders, locators, manifests (leaf lock; never held across a depcache wait)
	entries   map[guid.GUID]*entry
	loaders   map[uint32]Loader // keyed by typeref.TypeRef.Hash
	locators  []Locator
	manifests map[string]*Manifest

	deps *depcache.Cache
	pool *jobpool.Pool
}

// New creates an empty runtime registry bound to a dependency cache and
// worker pool (typically the ones owned by the pipeline).
func New(deps *depcache.Cache, pool *jobpool.Pool) *Registry {
	return &Registry{
		entries:   make(map[guid.GUID]*entry),
		loaders:   make(map[uint32]Loader),
		manifests: make(map[string]*Manifest),
		deps:      deps,
		pool:      pool,
	}
}

// AddLoader registers a loader for every type it declares support for.
// Two loaders may never claim the same type.
func (r *Registry) AddLoader(l Loader) error {
	const op = "registry.AddLoader"
	r.deps.WaitAll()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range l.SupportedTypes() {
		if _, exists := r.loaders[t.Hash]; exists {
			return errs.New(op, errs.DuplicateRegistration, nil)
		}
	}
	for _, t := range l.SupportedTypes() {
		r.loaders[t.Hash] = l
	}
	return nil
}

// RemoveLoader unregisters every type l was handling.
func (r *Registry) RemoveLoader(l Loader) {
	r.deps.WaitAll()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range l.SupportedTypes() {
		if r.loaders[t.Hash] == l {
			delete(r.loaders, t.Hash)
		}
	}
}

// AddLocator appends l to the end of the locator chain.
func (r *Registry) AddLocator(l Locator) {
	r.deps.WaitAll()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locators = append(r.locators, l)
}

// RemoveLocator removes the locator with the given name.
func (r *Registry) RemoveLocator(name string) {
	r.deps.WaitAll()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.locators {
		if l.Name() == name {
			r.locators = append(r.locators[:i], r.locators[i+1:]...)
			return
		}
	}
}

func (r *Registry) locate(g guid.GUID) (Location, bool) {
	r.mu.Lock()
	locators := append([]Locator(nil), r.locators...)
	r.mu.Unlock()

	for _, l := range locators {
		if loc, ok := l.Locate(g); ok {
			return loc, true
		}
	}
	return Location{}, false
}

// AddManifest registers a new named manifest, replacing any existing one
// with the same name.
func (r *Registry) AddManifest(name string) *Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := newManifest(name)
	r.manifests[name] = m
	return m
}

// RemoveManifest drops a named manifest.
func (r *Registry) RemoveManifest(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.manifests, name)
}

// GetManifest returns a previously added manifest.
func (r *Registry) GetManifest(name string) (*Manifest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.manifests[name]
	return m, ok
}

// Load resolves g as type t with the given argument bytes, following the
// protocol in §4.10: reusing or creating a CacheEntry, serializing the
// actual load job per-GUID on the dependency cache, and blocking the
// caller until the load completes.
func (r *Registry) Load(g guid.GUID, t typeref.TypeRef, argType typeref.TypeRef, arg []byte) error {
	const op = "registry.Load"
	if len(arg) > maxArgumentBytes {
		return errs.New(op, errs.InvalidInput, nil)
	}

	r.mu.Lock()
	e, exists := r.entries[g]
	if exists && e.typ.Hash != t.Hash {
		r.mu.Unlock()
		return errs.New(op, errs.InvalidInput, nil)
	}
	loader, hasLoader := r.loaders[t.Hash]
	if !hasLoader {
		r.mu.Unlock()
		return errs.New(op, errs.NotFound, nil)
	}
	if !exists {
		e = &entry{guid: g, typ: t, loader: loader, paramType: argType}
		r.entries[g] = e
	}
	e.argLen = copy(e.argStorage[:], arg)

	status := Status(e.status.Load())
	if status == StatusLoaded || status == StatusLoading {
		e.refcount.Add(1)
		r.mu.Unlock()
		return nil
	}
	e.status.Store(int32(StatusLoading))
	r.mu.Unlock()

	fp := depcache.Fingerprint(g[:])
	done := make(chan error, 1)

	run := func() {
		r.deps.ScheduleWrite(fp, func() {
			done <- r.runLoad(e, loader)
		})
	}
	if r.pool != nil {
		r.pool.Submit(run)
	} else {
		run()
	}

	return <-done
}

func (r *Registry) runLoad(e *entry, loader Loader) error {
	loc, ok := r.locate(e.guid)
	if !ok {
		e.status.Store(int32(StatusLoadingFailed))
		return errs.New("registry.load", errs.LoadFailed, nil)
	}
	if loc.Type.Hash != e.typ.Hash {
		e.status.Store(int32(StatusLoadingFailed))
		return errs.New("registry.load", errs.LoadFailed, nil)
	}

	ctx := &LoaderContext{
		GUID:     e.guid,
		Type:     e.typ,
		ArgType:  e.paramType,
		Arg:      append([]byte(nil), e.argStorage[:e.argLen]...),
		registry: r,
	}
	if err := loader.Load(ctx, loc.Streams); err != nil {
		e.status.Store(int32(StatusLoadingFailed))
		return errs.New("registry.load", errs.LoadFailed, err)
	}

	e.status.Store(int32(StatusLoaded))
	e.refcount.Add(1)
	return nil
}

// UnloadMode selects release-vs-destroy semantics on Unload.
type UnloadMode int

const (
	UnloadRelease UnloadMode = iota
	UnloadDestroy
)

// Unload schedules the loader's unload on the dependency cache: at once
// under UnloadDestroy (the refcount is not decremented), or under
// UnloadRelease only when decrementing g's refcount brings it to zero.
func (r *Registry) Unload(g guid.GUID, mode UnloadMode) error {
	r.mu.Lock()
	e, ok := r.entries[g]
	r.mu.Unlock()
	if !ok {
		return errs.New("registry.Unload", errs.NotFound, nil)
	}

	if mode == UnloadRelease {
		if n := e.refcount.Add(-1); n > 0 {
			return nil
		}
	}

	fp := depcache.Fingerprint(g[:])
	done := make(chan error, 1)
	run := func() {
		r.deps.ScheduleWrite(fp, func() {
			ctx := &LoaderContext{GUID: e.guid, Type: e.typ, registry: r}
			err := e.loader.Unload(ctx, e.payload)
			if err == nil {
				e.status.Store(int32(StatusUnloaded))
				r.mu.Lock()
				delete(r.entries, g)
				r.mu.Unlock()
			}
			done <- err
		})
	}
	if r.pool != nil {
		r.pool.Submit(run)
	} else {
		run()
	}
	return <-done
}

// StatusOf returns the current status and refcount of g's cache entry.
func (r *Registry) StatusOf(g guid.GUID) (Status, int32, bool) {
	r.mu.Lock()
	e, ok := r.entries[g]
	r.mu.Unlock()
	if !ok {
		return StatusUnloaded, 0, false
	}
	return Status(e.status.Load()), e.refcount.Load(), true
}
