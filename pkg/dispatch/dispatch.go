// Package dispatch implements the compile dispatcher (C9): the core
// fingerprint -> dedupe -> compile -> persist pipeline driving every
// asset import.
package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/forgekit/assetpipe/pkg/artifactstore"
	"github.com/forgekit/assetpipe/pkg/assetdb"
	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/forgekit/assetpipe/pkg/compiler"
	"github.com/forgekit/assetpipe/pkg/depcache"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/platform"
	"github.com/forgekit/assetpipe/pkg/sidecar"
)

// Logger is the narrow logging surface dispatch needs; satisfied by
// internal/logger's arbor-backed logger.
type Logger interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// Dispatcher drives compile requests against the compiler registry,
// AssetDB, and artifact store, serialized per source through the
// dependency cache.
type Dispatcher struct {
	db          *assetdb.DB
	artifacts   *artifactstore.Store
	compilers   *compiler.Registry
	deps        *depcache.Cache
	platform    platform.Platform
	projectRoot string
	cacheDir    string
	log         Logger
}

// New creates a Dispatcher. log may be nil to discard warnings/errors.
func New(db *assetdb.DB, artifacts *artifactstore.Store, compilers *compiler.Registry, deps *depcache.Cache, plat platform.Platform, projectRoot, cacheDir string, log Logger) *Dispatcher {
	if log == nil {
		log = noopLogger{}
	}
	return &Dispatcher{
		db: db, artifacts: artifacts, compilers: compilers, deps: deps,
		platform: plat, projectRoot: projectRoot, cacheDir: cacheDir, log: log,
	}
}

// ImportRequest carries a source's current content plus the mtime evidence
// refresh() gathered about it. The timestamp check (spec.md §4.7 step 5) is
// made by the caller before Import is reached; Import applies step 6 and
// only touches the stored timestamps when the content hash still matches
// the stored record. Force bypasses that hash check, for an explicit
// reimport.
type ImportRequest struct {
	Source       string
	Content      []byte
	Options      json.RawMessage
	SrcMTime     int64
	SidecarMTime int64
	Force        bool
}

// Import runs the compile-dispatch protocol (spec §4.9) for req.Source,
// short-circuiting to a timestamp-only update when the recomputed content
// hash still matches the stored record (§4.7 step 6), unless req.Force is
// set.
func (d *Dispatcher) Import(req ImportRequest) (*assetdb.Record, error) {
	ext := filepath.Ext(req.Source)
	chain := d.compilers.CompilersFor(ext)
	if len(chain) == 0 {
		d.log.Warnf("dispatch: no compiler registered for %q, source tracked but skipped", req.Source)
		return nil, nil
	}

	sc, err := d.loadOrCreateSidecar(req.Source, req.Options)
	if err != nil {
		return nil, err
	}

	contentHash := d.hashSource(req.Content, sc.Options)

	fp := depcache.Fingerprint([]byte(req.Source))

	var (
		rec     *assetdb.Record
		dispErr error
	)
	d.deps.ScheduleWrite(fp, func() {
		rec, dispErr = d.compileOrTouch(req, sc, chain, contentHash)
	})
	if dispErr != nil {
		d.log.Errorf("dispatch: compile failed for %q: %v", req.Source, dispErr)
		return nil, dispErr
	}
	return rec, nil
}

// compileOrTouch runs under the per-fingerprint write gate. When the
// content hash is unchanged from the stored record and the caller isn't
// forcing a reimport, it only refreshes the stored timestamps; otherwise it
// recompiles and persists a new record.
func (d *Dispatcher) compileOrTouch(req ImportRequest, sc *sidecar.Sidecar, chain []compiler.Compiler, contentHash chash.Hash) (*assetdb.Record, error) {
	if !req.Force {
		var existing *assetdb.Record
		_ = d.db.WithRead(func(tx *assetdb.ReadTxn) error {
			rec, err := tx.GetAsset(sc.GUID)
			if err == nil {
				existing = rec
			}
			return nil
		})
		if existing != nil && existing.SourceHash == contentHash {
			updated := *existing
			updated.SrcTimestamp = req.SrcMTime
			updated.SidecarTimestamp = req.SidecarMTime
			if err := d.db.WithWrite(func(tx *assetdb.WriteTxn) error {
				return tx.PutAsset(&updated)
			}); err != nil {
				return nil, err
			}
			return &updated, nil
		}
	}
	return d.compileAndPersist(req.Source, req.Content, sc, chain, contentHash, req.SrcMTime, req.SidecarMTime)
}

func (d *Dispatcher) loadOrCreateSidecar(source string, options json.RawMessage) (*sidecar.Sidecar, error) {
	sc, err := sidecar.Read(source)
	if err != nil {
		if errs.Of(err) != errs.NotFound {
			return nil, err
		}
		sc = &sidecar.Sidecar{GUID: guid.New(), Source: relativize(d.projectRoot, source)}
	}
	if options != nil {
		sc.Options = &sidecar.Options{Fields: options}
	}
	return sc, nil
}

func relativize(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (d *Dispatcher) hashSource(content []byte, opts *sidecar.Options) chash.Hash {
	b := chash.NewBuilder()
	_, _ = b.Write(content)
	if opts != nil {
		_, _ = b.Write(opts.Fields)
	}
	return b.Sum()
}

func (d *Dispatcher) compileAndPersist(source string, content []byte, sc *sidecar.Sidecar, chain []compiler.Compiler, contentHash chash.Hash, srcMTime, sidecarMTime int64) (*assetdb.Record, error) {
	const op = "dispatch.compileAndPersist"

	var optsRaw json.RawMessage
	if sc.Options != nil {
		optsRaw = sc.Options.Fields
	}

	ctx := compiler.NewContext(d.platform, source, d.cacheDir, optsRaw)
	defer ctx.Release()

	for _, c := range chain {
		status, err := c.Compile(0, ctx)
		if err != nil || status != compiler.StatusSuccess {
			return nil, errs.NewStatus(op, errs.CompileFailed, fmt.Sprint(status), err)
		}
	}

	outputs := ctx.Outputs()
	artifacts := make([]assetdb.Artifact, 0, len(outputs))
	blobs := make(map[chash.Hash][]byte, len(outputs))
	for _, o := range outputs {
		h := chash.OfBytes(o.Data)
		artifacts = append(artifacts, assetdb.Artifact{ContentHash: h, TypeHash: o.Type})
		blobs[h] = o.Data
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ContentHash.String() < artifacts[j].ContentHash.String()
	})

	main, hasMain := ctx.MainOutput()
	var mainArtifact assetdb.Artifact
	if hasMain {
		mainArtifact = assetdb.Artifact{ContentHash: chash.OfBytes(main.Data), TypeHash: main.Type}
	}

	rec := &assetdb.Record{
		GUID:             sc.GUID,
		SourceURI:        sc.Source,
		MainArtifact:     mainArtifact,
		Artifacts:        artifacts,
		Options:          optsRaw,
		SourceHash:       contentHash,
		FriendlyName:     sc.Name,
		IsDirectory:      sc.IsDirectory,
		SrcTimestamp:     srcMTime,
		SidecarTimestamp: sidecarMTime,
	}

	err := d.db.WithWrite(func(tx *assetdb.WriteTxn) error {
		if existing, err := tx.GetAsset(sc.GUID); err == nil {
			for _, a := range diffArtifacts(existing.Artifacts, artifacts) {
				left, err := tx.RemoveArtifact(sc.GUID, a)
				if err != nil {
					return err
				}
				if left == 0 {
					if err := d.artifacts.Delete(a.ContentHash); err != nil {
						return err
					}
				}
			}
		}
		for _, a := range artifacts {
			if err := d.artifacts.Put(a.ContentHash, blobs[a.ContentHash]); err != nil {
				return err
			}
			if err := tx.PutArtifact(sc.GUID, a); err != nil {
				return err
			}
		}
		if err := tx.SetDependencies(sc.GUID, ctx.Dependencies()); err != nil {
			return err
		}
		return tx.PutAsset(rec)
	})
	if err != nil {
		return nil, err
	}

	sc.Artifacts = make([]string, len(artifacts))
	for i, a := range artifacts {
		sc.Artifacts[i] = a.ContentHash.String()
	}
	sc.SourceHash = contentHash.String()
	if err := sidecar.Write(source, sc); err != nil {
		return nil, err
	}
	// Store the mtime this sidecar write produced, so an immediate refresh
	// sees matching timestamps and changes nothing.
	if info, err := os.Stat(sidecar.PathFor(source)); err == nil && info.ModTime().UnixNano() != rec.SidecarTimestamp {
		rec.SidecarTimestamp = info.ModTime().UnixNano()
		if err := d.db.WithWrite(func(tx *assetdb.WriteTxn) error { return tx.PutAsset(rec) }); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func diffArtifacts(oldA, newA []assetdb.Artifact) []assetdb.Artifact {
	keep := make(map[chash.Hash]bool, len(newA))
	for _, a := range newA {
		keep[a.ContentHash] = true
	}
	var stale []assetdb.Artifact
	for _, a := range oldA {
		if !keep[a.ContentHash] {
			stale = append(stale, a)
		}
	}
	return stale
}

// Delete runs the delete-asset protocol: drop artifact references, then
// the record itself, releasing any artifact blob whose last reference was
// just removed.
func (d *Dispatcher) Delete(g guid.GUID) error {
	return d.db.WithWrite(func(tx *assetdb.WriteTxn) error {
		return tx.DeleteAsset(g, func(h chash.Hash) error {
			return d.artifacts.Delete(h)
		})
	})
}
