// Package pipeline owns the single wired instance of every pipeline
// component (C1-C11), replacing the source engine's global mutable
// pipeline object with one explicitly constructed and passed-around value.
package pipeline

import (
	"os"
	"path/filepath"

	"github.com/forgekit/assetpipe/pkg/artifactstore"
	"github.com/forgekit/assetpipe/pkg/assetdb"
	"github.com/forgekit/assetpipe/pkg/assetsearch"
	"github.com/forgekit/assetpipe/pkg/compiler"
	"github.com/forgekit/assetpipe/pkg/depcache"
	"github.com/forgekit/assetpipe/pkg/dispatch"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/jobpool"
	"github.com/forgekit/assetpipe/pkg/platform"
	"github.com/forgekit/assetpipe/pkg/registry"
	"github.com/forgekit/assetpipe/pkg/watcher"
)

// Config controls where a Pipeline keeps its database and artifacts, and
// how many workers it runs compile/load jobs on.
type Config struct {
	ProjectRoot string
	CacheDir    string // defaults to <ProjectRoot>/.assetcache
	Workers     int    // 0 uses GOMAXPROCS
	Platform    platform.Platform
	Search      assetsearch.Config
}

// Logger is the narrow logging surface the pipeline and its dispatcher need.
type Logger = dispatch.Logger

// Pipeline is the single owned root of the asset pipeline: one AssetDB, one
// artifact store, one compiler registry, one dependency cache, one worker
// pool, one directory watcher, one runtime registry, one search index.
type Pipeline struct {
	cfg        Config
	db         *assetdb.DB
	artifacts  *artifactstore.Store
	compilers  *compiler.Registry
	deps       *depcache.Cache
	pool       *jobpool.Pool
	watch      *watcher.Watcher
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	search     *assetsearch.Index
}

// Open wires every component and returns a ready-to-use Pipeline. The
// caller must call Close when finished.
func Open(cfg Config, log Logger) (*Pipeline, error) {
	const op = "pipeline.Open"

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.ProjectRoot, ".assetcache")
	}
	if cfg.Platform == platform.None {
		cfg.Platform = platform.Current()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, errs.New(op, errs.SourceUnavailable, err)
	}

	db, err := assetdb.Open(filepath.Join(cfg.CacheDir, "assets.db"))
	if err != nil {
		return nil, err
	}

	artifacts, err := artifactstore.Open(filepath.Join(cfg.CacheDir, "Artifacts"))
	if err != nil {
		db.Close()
		return nil, err
	}

	search, err := assetsearch.Open(cfg.Search)
	if err != nil {
		db.Close()
		return nil, err
	}

	compilers := compiler.NewRegistry()
	deps := depcache.New()
	pool := jobpool.New(cfg.Workers)
	reg := registry.New(deps, pool)
	dispatcher := dispatch.New(db, artifacts, compilers, deps, cfg.Platform, cfg.ProjectRoot, cfg.CacheDir, log)

	p := &Pipeline{
		cfg: cfg, db: db, artifacts: artifacts, compilers: compilers,
		deps: deps, pool: pool, registry: reg, dispatcher: dispatcher, search: search,
	}

	w, err := watcher.New(watcher.DefaultConfig(), p.onPathChanged)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.watch = w

	return p, nil
}

// Close stops the watcher, drains the job pool, and releases the database
// file handle. Safe to call once; subsequent calls are harmless no-ops
// beyond the underlying Close calls' own idempotency.
func (p *Pipeline) Close() error {
	if p.watch != nil {
		_ = p.watch.Stop()
	}
	p.deps.WaitAll()
	p.pool.Close()
	if p.search != nil {
		_ = p.search.Close()
	}
	return p.db.Close()
}

// Compilers returns the pipeline's compiler registry, for registering
// compiler plugins before the watcher starts.
func (p *Pipeline) Compilers() *compiler.Registry { return p.compilers }

// Registry returns the pipeline's runtime asset registry.
func (p *Pipeline) Registry() *registry.Registry { return p.registry }

// DB returns the pipeline's AssetDB, for read-only inspection by the HTTP
// and MCP surfaces.
func (p *Pipeline) DB() *assetdb.DB { return p.db }

// Search returns the pipeline's convenience asset search index.
func (p *Pipeline) Search() *assetsearch.Index { return p.search }

// Artifacts returns the pipeline's content-addressed artifact store.
func (p *Pipeline) Artifacts() *artifactstore.Store { return p.artifacts }

// PoolWorkers returns the number of workers in the pipeline's job pool.
func (p *Pipeline) PoolWorkers() int { return p.pool.Workers() }

// PoolRunning reports whether the pipeline's job pool is still accepting work.
func (p *Pipeline) PoolRunning() bool { return p.pool.IsRunning() }

// QueuedJobs returns the number of jobs currently queued in the job pool.
func (p *Pipeline) QueuedJobs() int { return p.pool.QueuedWork() }

// AddRoot starts watching dir for source changes and performs an initial
// refresh of its current contents.
func (p *Pipeline) AddRoot(dir string) error {
	if err := p.watch.AddRoot(dir); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		p.pool.Submit(func() { p.onPathChanged(path) })
		return nil
	})
}

// StartWatching begins background event processing. Call after registering
// compilers and adding roots.
func (p *Pipeline) StartWatching() { p.watch.Start() }

func (p *Pipeline) onPathChanged(path string) {
	if filepath.Ext(path) == sidecarExt {
		return // sidecars are derived data, never a refresh trigger themselves
	}
	p.refresh(path)
}

const sidecarExt = ".asset"

// sidecarModTime returns the sidecar's mtime in UnixNano, or 0 if the
// sidecar doesn't exist yet (a GUID not yet minted has no stored value to
// compare against, so 0 never spuriously matches a later real mtime).
func sidecarModTime(source string) int64 {
	info, err := os.Stat(source + sidecarExt)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

func (p *Pipeline) refresh(path string) {
	p.doRefresh(path, false)
}

func (p *Pipeline) doRefresh(path string, force bool) {
	info, err := os.Stat(path)
	if err != nil {
		// source gone: resolve any existing record by path and delete it
		_ = p.db.WithRead(func(tx *assetdb.ReadTxn) error {
			rec, err := tx.GetAssetByPath(relPath(p.cfg.ProjectRoot, path))
			if err != nil {
				return nil
			}
			p.pool.Submit(func() {
				if p.dispatcher.Delete(rec.GUID) == nil && p.search != nil {
					_ = p.search.Remove(rec.GUID)
				}
			})
			return nil
		})
		return
	}
	if info.IsDir() {
		return
	}

	rel := relPath(p.cfg.ProjectRoot, path)
	srcMTime := info.ModTime().UnixNano()
	sidecarMTime := sidecarModTime(path)

	if !force {
		var existing *assetdb.Record
		_ = p.db.WithRead(func(tx *assetdb.ReadTxn) error {
			rec, err := tx.GetAssetByPath(rel)
			if err == nil {
				existing = rec
			}
			return nil
		})
		// step 5: unchanged mtimes mean nothing to do, not even a hash
		// recompute or a write transaction.
		if existing != nil && existing.SrcTimestamp == srcMTime && existing.SidecarTimestamp == sidecarMTime {
			return
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_, _ = p.dispatcher.Import(dispatch.ImportRequest{
		Source:       path,
		Content:      content,
		SrcMTime:     srcMTime,
		SidecarMTime: sidecarMTime,
		Force:        force,
	})
	if p.search != nil {
		_ = p.db.WithRead(func(tx *assetdb.ReadTxn) error {
			rec, err := tx.GetAssetByPath(rel)
			if err != nil {
				return nil
			}
			return p.search.Upsert(rec.GUID, rec.SourceURI, rec.FriendlyName, rec.MainArtifact.TypeHash.Hash)
		})
	}
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Refresh forces an immediate re-evaluation of a single source path,
// bypassing the watcher's debounce. Still subject to the mtime/hash
// short-circuits in §4.7 steps 5-6.
func (p *Pipeline) Refresh(path string) { p.refresh(path) }

// Reimport forces recompilation of g regardless of whether its content hash
// or mtimes changed, by reading its current record and re-running the
// refresh protocol against its resolved source path with the hash/mtime
// short-circuits disabled.
func (p *Pipeline) Reimport(g guid.GUID) error {
	var sourcePath string
	err := p.db.WithRead(func(tx *assetdb.ReadTxn) error {
		rec, err := tx.GetAsset(g)
		if err != nil {
			return err
		}
		sourcePath = filepath.Join(p.cfg.ProjectRoot, rec.SourceURI)
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return errs.New("pipeline.Reimport", errs.SourceUnavailable, err)
	}
	p.doRefresh(sourcePath, true)
	return nil
}
