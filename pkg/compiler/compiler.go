// Package compiler defines the asset compiler plugin contract and the
// registry that maps source extensions to ordered compiler chains.
package compiler

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/forgekit/assetpipe/pkg/chunkalloc"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/platform"
	"github.com/forgekit/assetpipe/pkg/typeref"
)

// Status is the outcome of a single compile call.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusUnsupported
)

// Output is one artifact buffer produced by a compile call.
type Output struct {
	Type typeref.TypeRef
	Data []byte
	Main bool
}

// Context is handed to a compiler's Compile method; it carries everything
// the compiler needs and collects its outputs.
type Context struct {
	Platform    platform.Platform
	SourcePath  string
	CacheDir    string
	Options     json.RawMessage
	allocator   *chunkalloc.Allocator
	outputs     []Output
	deps        []guid.GUID
	mainIdx     int
}

// NewContext builds a compile Context with its own scratch allocator.
func NewContext(plat platform.Platform, sourcePath, cacheDir string, options json.RawMessage) *Context {
	return &Context{
		Platform:   plat,
		SourcePath: sourcePath,
		CacheDir:   cacheDir,
		Options:    options,
		allocator:  chunkalloc.New(0),
		mainIdx:    -1,
	}
}

// Alloc returns a zeroed scratch buffer from the context's chunk allocator,
// valid only for the lifetime of the compile call.
func (c *Context) Alloc(n int) ([]byte, error) {
	return c.allocator.Alloc(n)
}

// AddArtifact registers a new output buffer with its TypeRef. If main is
// true, this output becomes (or replaces) the context's main artifact.
func (c *Context) AddArtifact(t typeref.TypeRef, data []byte, main bool) {
	c.outputs = append(c.outputs, Output{Type: t, Data: data, Main: main})
	if main {
		c.mainIdx = len(c.outputs) - 1
	}
}

// AddDependency records guid as a build-time dependency of the asset being
// compiled.
func (c *Context) AddDependency(g guid.GUID) {
	c.deps = append(c.deps, g)
}

// Outputs returns every artifact buffer produced so far.
func (c *Context) Outputs() []Output { return c.outputs }

// MainOutput returns the artifact explicitly marked main, or the first
// output if none was marked, or false if there are no outputs at all.
func (c *Context) MainOutput() (Output, bool) {
	if c.mainIdx >= 0 {
		return c.outputs[c.mainIdx], true
	}
	if len(c.outputs) > 0 {
		return c.outputs[0], true
	}
	return Output{}, false
}

// Dependencies returns the dependency GUIDs recorded during compilation.
func (c *Context) Dependencies() []guid.GUID { return c.deps }

// Release returns the context's scratch chunks to the free list. Called
// once the dispatcher has copied every output buffer it needs to keep.
func (c *Context) Release() { c.allocator.Reset() }

// Compiler is the plugin contract: a named transform from a source file's
// bytes plus options into one or more artifact buffers.
type Compiler interface {
	Name() string
	SupportedExtensions() []string
	OptionsType() typeref.TypeRef
	Init(workerCount int) error
	Destroy()
	Compile(workerID int, ctx *Context) (Status, error)
}

// Registry maps normalized file extensions to ordered compiler chains.
type Registry struct {
	mu        sync.RWMutex
	byExt     map[string][]Compiler
	byName    map[string]bool
}

// NewRegistry creates an empty compiler registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string][]Compiler),
		byName: make(map[string]bool),
	}
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Register adds c to every extension it declares support for. Registering
// the same plugin name twice is an error (errs.DuplicateRegistration);
// registering is otherwise idempotent per (name, extension) pair.
func (r *Registry) Register(c Compiler) error {
	const op = "compiler.Register"
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byName[c.Name()] {
		return errs.New(op, errs.DuplicateRegistration, nil)
	}
	r.byName[c.Name()] = true

	for _, ext := range c.SupportedExtensions() {
		key := normalizeExt(ext)
		if slices.ContainsFunc(r.byExt[key], func(e Compiler) bool { return e.Name() == c.Name() }) {
			continue
		}
		r.byExt[key] = append(r.byExt[key], c)
	}
	return nil
}

// Unregister removes c and its extension mappings. Assets of a now
// unsupported type are left untouched; the caller is expected to skip them
// on the next refresh with a warning.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byName, name)
	for ext, compilers := range r.byExt {
		filtered := compilers[:0]
		for _, c := range compilers {
			if c.Name() != name {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) == 0 {
			delete(r.byExt, ext)
		} else {
			r.byExt[ext] = filtered
		}
	}
}

// CompilersFor returns the ordered compiler chain for a source's extension
// (with or without leading dot).
func (r *Registry) CompilersFor(ext string) []Compiler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.byExt[normalizeExt(ext)]
	out := make([]Compiler, len(chain))
	copy(out, chain)
	return out
}
