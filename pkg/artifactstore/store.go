// Package artifactstore implements the content-addressed blob store for
// compiled artifact payloads, sharded by the first two hex characters of
// their content hash.
package artifactstore

import (
	"os"
	"path/filepath"

	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/forgekit/assetpipe/pkg/errs"
)

// Store is a content-addressed directory of artifact blobs.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating dir if necessary.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New("artifactstore.Open", errs.SourceUnavailable, err)
	}
	return &Store{root: dir}, nil
}

// PathFor returns the on-disk path for a content hash, without guaranteeing
// the file exists.
func (s *Store) PathFor(h chash.Hash) string {
	hex := h.String()
	return filepath.Join(s.root, hex[:2], hex)
}

// Put writes data under its content hash. Idempotent: if a blob already
// exists at the target path the write is skipped, since content-addressing
// guarantees any existing blob there has identical bytes.
func (s *Store) Put(h chash.Hash, data []byte) error {
	const op = "artifactstore.Put"
	path := s.PathFor(h)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.New(op, errs.SourceUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*.tmp")
	if err != nil {
		return errs.New(op, errs.SourceUnavailable, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.New(op, errs.SourceUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.New(op, errs.SourceUnavailable, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errs.New(op, errs.SourceUnavailable, err)
	}
	return nil
}

// Get reads the blob stored under h. Returns errs.NotFound if absent.
func (s *Store) Get(h chash.Hash) ([]byte, error) {
	data, err := os.ReadFile(s.PathFor(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New("artifactstore.Get", errs.NotFound, err)
		}
		return nil, errs.New("artifactstore.Get", errs.SourceUnavailable, err)
	}
	return data, nil
}

// Has reports whether a blob exists for h.
func (s *Store) Has(h chash.Hash) bool {
	_, err := os.Stat(s.PathFor(h))
	return err == nil
}

// Delete removes the blob stored under h. The caller is responsible for
// only calling Delete once the AssetDB write transaction has proven the
// reference count for h is zero; Delete never checks references itself.
func (s *Store) Delete(h chash.Hash) error {
	err := os.Remove(s.PathFor(h))
	if err != nil && !os.IsNotExist(err) {
		return errs.New("artifactstore.Delete", errs.SourceUnavailable, err)
	}
	return nil
}
