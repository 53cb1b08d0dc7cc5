// Package assetsearch provides a convenience, rebuildable-from-scratch
// keyword index over asset GUIDs, source URIs, and friendly names, backed
// by chromem-go's embedded document collection. It is never consulted by
// AssetDB write operations and exists purely to let an editor-facing tool
// find an asset by name without walking the whole database.
//
// Grounded on the teacher's own chromem-go-backed search, including its
// semantic-search-with-keyword-fallback shape: the collection uses a
// constant placeholder embedding, every query runs the keyword path, and
// the feature works fully offline.
package assetsearch

import (
	"context"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
)

// Config controls where the index persists its collection.
type Config struct {
	// PersistPath, if non-empty, makes the index durable across restarts.
	// Empty uses an in-memory-only collection.
	PersistPath string
}

// Entry is one indexed asset.
type Entry struct {
	GUID         guid.GUID
	URI          string
	FriendlyName string
	TypeHash     uint32
}

// Index is a keyword-searchable view over indexed assets.
type Index struct {
	mu         sync.RWMutex
	byGUID     map[guid.GUID]Entry
	db         *chromem.DB
	collection *chromem.Collection
}

const collectionName = "assets"

// Open creates or loads the index described by cfg.
func Open(cfg Config) (*Index, error) {
	const op = "assetsearch.Open"

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, errs.New(op, errs.SourceUnavailable, err)
	}

	// Every document and query gets the same unit vector: matching is by
	// keyword only, and chromem-go never calls its default remote embedder.
	constantEmbedding := func(context.Context, string) ([]float32, error) { return []float32{1}, nil }
	coll, err := db.GetOrCreateCollection(collectionName, nil, constantEmbedding)
	if err != nil {
		return nil, errs.New(op, errs.DbError, err)
	}

	idx := &Index{byGUID: make(map[guid.GUID]Entry), db: db, collection: coll}
	idx.hydrate()
	return idx, nil
}

// hydrate rebuilds the in-memory lookup map from whatever the collection
// already persisted, so a restarted process doesn't need a full AssetDB
// rescan to serve search queries immediately. chromem-go has no "list all"
// API and rejects an empty query text, so this queries with a placeholder
// text and a limit equal to the collection size; since every document has
// the same embedding, that returns all of them. Type hashes are not
// persisted, so restored entries have TypeHash zero.
func (idx *Index) hydrate() {
	count := idx.collection.Count()
	if count == 0 {
		return
	}
	docs, err := idx.collection.Query(context.Background(), "asset", count, nil, nil)
	if err != nil {
		return
	}
	for _, doc := range docs {
		g, err := guid.Parse(doc.ID)
		if err != nil {
			continue
		}
		idx.byGUID[g] = Entry{GUID: g, URI: doc.Metadata["uri"], FriendlyName: doc.Metadata["name"]}
	}
}

// Upsert indexes (or reindexes) one asset.
func (idx *Index) Upsert(g guid.GUID, uri, friendlyName string, typeHash uint32) error {
	const op = "assetsearch.Upsert"

	doc := chromem.Document{
		ID:      g.String(),
		Content: strings.Join([]string{uri, friendlyName}, " "),
		Metadata: map[string]string{
			"uri":  uri,
			"name": friendlyName,
		},
	}
	if err := idx.collection.AddDocument(context.Background(), doc); err != nil {
		return errs.New(op, errs.DbError, err)
	}

	idx.mu.Lock()
	idx.byGUID[g] = Entry{GUID: g, URI: uri, FriendlyName: friendlyName, TypeHash: typeHash}
	idx.mu.Unlock()
	return nil
}

// Remove deletes an asset from the index.
func (idx *Index) Remove(g guid.GUID) error {
	if err := idx.collection.Delete(context.Background(), nil, nil, g.String()); err != nil {
		return errs.New("assetsearch.Remove", errs.DbError, err)
	}
	idx.mu.Lock()
	delete(idx.byGUID, g)
	idx.mu.Unlock()
	return nil
}

// Search runs a keyword match over indexed URIs and friendly names. The
// collection's vectors are all the same placeholder and say nothing about
// similarity, so this is the index's only query path, matching the keyword
// fallback the corpus's own search pattern uses when semantic search is
// unavailable.
func (idx *Index) Search(query string, limit int) []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	q := strings.ToLower(query)
	var out []Entry
	for _, e := range idx.byGUID {
		if strings.Contains(strings.ToLower(e.URI), q) || strings.Contains(strings.ToLower(e.FriendlyName), q) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Close releases any resources the underlying collection holds. chromem-go
// persists synchronously on write, so there is nothing further to flush.
func (idx *Index) Close() error { return nil }
