// Package assetdb implements the transactional asset database: six logical
// tables over an embedded ordered KV store (go.etcd.io/bbolt), with
// snapshot-isolated reads and a single writer at a time.
package assetdb

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/typeref"
)

// Bucket names for the six logical tables. The four multi-value tables are
// realized as one nested bucket per primary key, whose keys are the
// (byte-sorted, deduplicated-by-bbolt) secondary values.
var (
	bucketGUIDToAsset        = []byte("guid_to_asset")
	bucketGUIDToDependencies = []byte("guid_to_dependencies")
	bucketGUIDToArtifact     = []byte("guid_to_artifact")
	bucketArtifactToGUID     = []byte("artifact_to_guid")
	bucketPathToGUID         = []byte("path_to_guid")
	bucketTypeToGUID         = []byte("type_to_guid")
)

var allBuckets = [][]byte{
	bucketGUIDToAsset,
	bucketGUIDToDependencies,
	bucketGUIDToArtifact,
	bucketArtifactToGUID,
	bucketPathToGUID,
	bucketTypeToGUID,
}

// Artifact identifies one compiled output of an asset.
type Artifact struct {
	ContentHash chash.Hash      `json:"content_hash"`
	TypeHash    typeref.TypeRef `json:"type_hash"`
}

// key renders the artifact as a sortable byte key: content hash then type hash.
func (a Artifact) key() []byte {
	b := make([]byte, chash.Size+4)
	copy(b, a.ContentHash[:])
	putUint32(b[chash.Size:], a.TypeHash.Hash)
	return b
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Record is the canonical persisted row for one logical asset.
type Record struct {
	GUID             guid.GUID       `json:"guid"`
	SourceURI        string          `json:"source_uri"`
	MainArtifact     Artifact        `json:"main_artifact"`
	Artifacts        []Artifact      `json:"artifacts"`
	Options          json.RawMessage `json:"options,omitempty"`
	SrcTimestamp     int64           `json:"src_timestamp"`
	SidecarTimestamp int64           `json:"sidecar_timestamp"`
	SourceHash       chash.Hash      `json:"source_hash"`
	FriendlyName     string          `json:"metadata_name,omitempty"`
	IsDirectory      bool            `json:"is_directory"`
}

// DB wraps a bbolt-backed asset database.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if necessary) the asset database file at path.
func Open(path string) (*DB, error) {
	const op = "assetdb.Open"
	b, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.New(op, errs.DbError, err)
	}
	err = b.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Close()
		return nil, errs.New(op, errs.DbError, err)
	}
	return &DB{bolt: b}, nil
}

// Close releases the underlying file handle.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// ReadTxn is a snapshot-isolated read transaction.
type ReadTxn struct{ tx *bbolt.Tx }

// WriteTxn is the single concurrent writer transaction.
type WriteTxn struct{ tx *bbolt.Tx }

// BeginRead starts a read-only snapshot transaction. Multiple may be open
// concurrently; they never see a partially committed writer.
func (db *DB) BeginRead() (*ReadTxn, error) {
	tx, err := db.bolt.Begin(false)
	if err != nil {
		return nil, errs.New("assetdb.BeginRead", errs.DbError, err)
	}
	return &ReadTxn{tx: tx}, nil
}

// Rollback releases a read transaction's snapshot.
func (t *ReadTxn) Rollback() error { return t.tx.Rollback() }

// BeginWrite starts the single writer transaction, excluding other writers
// but not readers.
func (db *DB) BeginWrite() (*WriteTxn, error) {
	tx, err := db.bolt.Begin(true)
	if err != nil {
		return nil, errs.New("assetdb.BeginWrite", errs.DbError, err)
	}
	return &WriteTxn{tx: tx}, nil
}

// Commit atomically applies every change made in the transaction.
func (t *WriteTxn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errs.New("assetdb.Commit", errs.DbError, err)
	}
	return nil
}

// Abort discards every change made in the transaction.
func (t *WriteTxn) Abort() error { return t.tx.Rollback() }

// WithRead runs fn inside a fresh read transaction, always rolling back.
func (db *DB) WithRead(fn func(*ReadTxn) error) error {
	txn, err := db.BeginRead()
	if err != nil {
		return err
	}
	defer txn.Rollback()
	return fn(txn)
}

// WithWrite runs fn inside a fresh write transaction: commits on success,
// aborts on any error, never leaving a partial write committed.
func (db *DB) WithWrite(fn func(*WriteTxn) error) error {
	txn, err := db.BeginWrite()
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		_ = txn.Abort()
		return err
	}
	return txn.Commit()
}

// --- guid -> asset --------------------------------------------------------

// GetAsset looks up a Record by GUID. Returns errs.NotFound if absent.
func (t *ReadTxn) GetAsset(g guid.GUID) (*Record, error) {
	b := t.tx.Bucket(bucketGUIDToAsset)
	v := b.Get(g[:])
	if v == nil {
		return nil, errs.New("assetdb.GetAsset", errs.NotFound, nil)
	}
	var rec Record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, errs.New("assetdb.GetAsset", errs.DbError, err)
	}
	return &rec, nil
}

// GetAssetByPath resolves a source URI to its Record.
func (t *ReadTxn) GetAssetByPath(uri string) (*Record, error) {
	b := t.tx.Bucket(bucketPathToGUID)
	v := b.Get([]byte(uri))
	if v == nil {
		return nil, errs.New("assetdb.GetAssetByPath", errs.NotFound, nil)
	}
	g, err := guid.FromBytes(v)
	if err != nil {
		return nil, errs.New("assetdb.GetAssetByPath", errs.DbError, err)
	}
	return t.GetAsset(g)
}

// GUIDsByType returns every GUID whose main artifact has the given type hash,
// sorted by GUID.
func (t *ReadTxn) GUIDsByType(typeHash uint32) ([]guid.GUID, error) {
	tb := t.tx.Bucket(bucketTypeToGUID)
	var key [4]byte
	putUint32(key[:], typeHash)
	sub := tb.Bucket(key[:])
	if sub == nil {
		return nil, nil
	}
	var out []guid.GUID
	c := sub.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		g, err := guid.FromBytes(k)
		if err != nil {
			return nil, errs.New("assetdb.GUIDsByType", errs.DbError, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Dependencies returns the sorted, deduplicated dependency set for guid g.
func (t *ReadTxn) Dependencies(g guid.GUID) ([]guid.GUID, error) {
	db := t.tx.Bucket(bucketGUIDToDependencies)
	sub := db.Bucket(g[:])
	if sub == nil {
		return nil, nil
	}
	var out []guid.GUID
	c := sub.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		dep, err := guid.FromBytes(k)
		if err != nil {
			return nil, errs.New("assetdb.Dependencies", errs.DbError, err)
		}
		out = append(out, dep)
	}
	return out, nil
}

// ArtifactsOf returns the artifacts currently associated with guid g.
func (t *ReadTxn) ArtifactsOf(g guid.GUID) ([]Artifact, error) {
	gb := t.tx.Bucket(bucketGUIDToArtifact)
	sub := gb.Bucket(g[:])
	if sub == nil {
		return nil, nil
	}
	var out []Artifact
	c := sub.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var a Artifact
		copy(a.ContentHash[:], k[:chash.Size])
		a.TypeHash.Hash = getUint32(k[chash.Size:])
		if len(v) > 0 {
			_ = json.Unmarshal(v, &a.TypeHash)
		}
		out = append(out, a)
	}
	return out, nil
}

// RefCount returns how many GUIDs currently reference the artifact with the
// given content hash.
func (t *ReadTxn) RefCount(h chash.Hash) (int, error) {
	ab := t.tx.Bucket(bucketArtifactToGUID)
	sub := ab.Bucket(h[:])
	if sub == nil {
		return 0, nil
	}
	return sub.Stats().KeyN, nil
}

// --- write operations ------------------------------------------------------

// PutAsset writes rec, preserving invariants I1/I4/I5: if the source URI
// changed relative to the existing record, the stale path->guid entry is
// removed before the new one is inserted; the type->guid index is kept in
// sync with the record's main artifact type.
func (t *WriteTxn) PutAsset(rec *Record) error {
	const op = "assetdb.PutAsset"
	assets := t.tx.Bucket(bucketGUIDToAsset)
	paths := t.tx.Bucket(bucketPathToGUID)
	types := t.tx.Bucket(bucketTypeToGUID)

	if existingRaw := assets.Get(rec.GUID[:]); existingRaw != nil {
		var existing Record
		if err := json.Unmarshal(existingRaw, &existing); err != nil {
			return errs.New(op, errs.DbError, err)
		}
		if existing.SourceURI != rec.SourceURI {
			if err := paths.Delete([]byte(existing.SourceURI)); err != nil {
				return errs.New(op, errs.DbError, err)
			}
		}
		if existing.MainArtifact.TypeHash.Hash != rec.MainArtifact.TypeHash.Hash {
			if err := removeFromTypeIndex(types, existing.MainArtifact.TypeHash.Hash, rec.GUID); err != nil {
				return err
			}
		}
	}

	if err := addToTypeIndex(types, rec.MainArtifact.TypeHash.Hash, rec.GUID); err != nil {
		return err
	}

	if err := paths.Put([]byte(rec.SourceURI), rec.GUID[:]); err != nil {
		return errs.New(op, errs.DbError, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errs.New(op, errs.InvalidInput, err)
	}
	if err := assets.Put(rec.GUID[:], data); err != nil {
		return errs.New(op, errs.DbError, err)
	}
	return nil
}

func addToTypeIndex(types *bbolt.Bucket, typeHash uint32, g guid.GUID) error {
	var key [4]byte
	putUint32(key[:], typeHash)
	sub, err := types.CreateBucketIfNotExists(key[:])
	if err != nil {
		return errs.New("assetdb.addToTypeIndex", errs.DbError, err)
	}
	if err := sub.Put(g[:], nil); err != nil {
		return errs.New("assetdb.addToTypeIndex", errs.DbError, err)
	}
	return nil
}

func removeFromTypeIndex(types *bbolt.Bucket, typeHash uint32, g guid.GUID) error {
	var key [4]byte
	putUint32(key[:], typeHash)
	sub := types.Bucket(key[:])
	if sub == nil {
		return nil
	}
	if err := sub.Delete(g[:]); err != nil {
		return errs.New("assetdb.removeFromTypeIndex", errs.DbError, err)
	}
	return nil
}

// DeleteAsset enumerates guid->artifact, releases each artifact reference,
// then removes path->guid, type->guid, guid->asset, guid->dependencies.
func (t *WriteTxn) DeleteAsset(g guid.GUID, releaseArtifact func(chash.Hash) error) error {
	const op = "assetdb.DeleteAsset"
	assets := t.tx.Bucket(bucketGUIDToAsset)
	paths := t.tx.Bucket(bucketPathToGUID)
	types := t.tx.Bucket(bucketTypeToGUID)
	deps := t.tx.Bucket(bucketGUIDToDependencies)
	guidArtifacts := t.tx.Bucket(bucketGUIDToArtifact)
	artifactGUIDs := t.tx.Bucket(bucketArtifactToGUID)

	raw := assets.Get(g[:])
	if raw == nil {
		return errs.New(op, errs.NotFound, nil)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return errs.New(op, errs.DbError, err)
	}

	var linked []Artifact
	if sub := guidArtifacts.Bucket(g[:]); sub != nil {
		c := sub.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			var a Artifact
			copy(a.ContentHash[:], k[:chash.Size])
			a.TypeHash.Hash = getUint32(k[chash.Size:])
			linked = append(linked, a)
		}
	}

	for _, a := range linked {
		if err := t.unlinkArtifact(guidArtifacts, artifactGUIDs, g, a); err != nil {
			return err
		}
		if left, err := t.artifactRefCount(artifactGUIDs, a.ContentHash); err != nil {
			return err
		} else if left == 0 && releaseArtifact != nil {
			if err := releaseArtifact(a.ContentHash); err != nil {
				return errs.New(op, errs.DbError, err)
			}
		}
	}

	if err := paths.Delete([]byte(rec.SourceURI)); err != nil {
		return errs.New(op, errs.DbError, err)
	}
	if err := removeFromTypeIndex(types, rec.MainArtifact.TypeHash.Hash, g); err != nil {
		return err
	}
	if err := deps.DeleteBucket(g[:]); err != nil && err != bbolt.ErrBucketNotFound {
		return errs.New(op, errs.DbError, err)
	}
	if err := guidArtifacts.DeleteBucket(g[:]); err != nil && err != bbolt.ErrBucketNotFound {
		return errs.New(op, errs.DbError, err)
	}
	if err := assets.Delete(g[:]); err != nil {
		return errs.New(op, errs.DbError, err)
	}
	return nil
}

// RemoveArtifact unlinks artifact a from guid g and returns the number of
// remaining references to a's content hash, so the caller can decide
// whether to release the underlying blob.
func (t *WriteTxn) RemoveArtifact(g guid.GUID, a Artifact) (int, error) {
	const op = "assetdb.RemoveArtifact"
	guidArtifacts := t.tx.Bucket(bucketGUIDToArtifact)
	artifactGUIDs := t.tx.Bucket(bucketArtifactToGUID)
	if err := t.unlinkArtifact(guidArtifacts, artifactGUIDs, g, a); err != nil {
		return 0, err
	}
	left, err := t.artifactRefCount(artifactGUIDs, a.ContentHash)
	if err != nil {
		return 0, errWrap(op, err)
	}
	return left, nil
}

// PutArtifact associates artifact a with guid g, idempotently.
func (t *WriteTxn) PutArtifact(g guid.GUID, a Artifact) error {
	const op = "assetdb.PutArtifact"
	guidArtifacts := t.tx.Bucket(bucketGUIDToArtifact)
	artifactGUIDs := t.tx.Bucket(bucketArtifactToGUID)
	return errWrap(op, t.linkArtifact(guidArtifacts, artifactGUIDs, g, a))
}

func (t *WriteTxn) linkArtifact(guidArtifacts, artifactGUIDs *bbolt.Bucket, g guid.GUID, a Artifact) error {
	sub, err := guidArtifacts.CreateBucketIfNotExists(g[:])
	if err != nil {
		return err
	}
	typeVal, err := json.Marshal(a.TypeHash)
	if err != nil {
		return err
	}
	if err := sub.Put(a.key(), typeVal); err != nil {
		return err
	}
	asub, err := artifactGUIDs.CreateBucketIfNotExists(a.ContentHash[:])
	if err != nil {
		return err
	}
	return asub.Put(g[:], nil)
}

func (t *WriteTxn) unlinkArtifact(guidArtifacts, artifactGUIDs *bbolt.Bucket, g guid.GUID, a Artifact) error {
	if sub := guidArtifacts.Bucket(g[:]); sub != nil {
		if err := sub.Delete(a.key()); err != nil {
			return errs.New("assetdb.unlinkArtifact", errs.DbError, err)
		}
	}
	if sub := artifactGUIDs.Bucket(a.ContentHash[:]); sub != nil {
		if err := sub.Delete(g[:]); err != nil {
			return errs.New("assetdb.unlinkArtifact", errs.DbError, err)
		}
	}
	return nil
}

func (t *WriteTxn) artifactRefCount(artifactGUIDs *bbolt.Bucket, h chash.Hash) (int, error) {
	sub := artifactGUIDs.Bucket(h[:])
	if sub == nil {
		return 0, nil
	}
	return sub.Stats().KeyN, nil
}

// SetDependencies atomically replaces the dependency set for guid g.
func (t *WriteTxn) SetDependencies(g guid.GUID, deps []guid.GUID) error {
	const op = "assetdb.SetDependencies"
	b := t.tx.Bucket(bucketGUIDToDependencies)
	if err := b.DeleteBucket(g[:]); err != nil && err != bbolt.ErrBucketNotFound {
		return errs.New(op, errs.DbError, err)
	}
	if len(deps) == 0 {
		return nil
	}
	sorted := append([]guid.GUID(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	sub, err := b.CreateBucket(g[:])
	if err != nil {
		return errs.New(op, errs.DbError, err)
	}
	for _, d := range sorted {
		if err := sub.Put(d[:], nil); err != nil {
			return errs.New(op, errs.DbError, err)
		}
	}
	return nil
}

func errWrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errs.New(op, errs.DbError, err)
}
