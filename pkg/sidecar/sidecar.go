// Package sidecar reads and writes the `.asset` JSON metadata file kept
// alongside every imported source file.
package sidecar

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
)

// Suffix is appended to a source path to form its sidecar path.
const Suffix = ".asset"

// Options is the polymorphic compile-options payload, tagged by the
// compiler's TypeRef hash so a reader can dispatch without knowing the
// concrete Go type in advance.
type Options struct {
	TypeHash uint32          `json:"__type"`
	Fields   json.RawMessage `json:"-"`
}

// MarshalJSON flattens Fields alongside __type into one object.
func (o Options) MarshalJSON() ([]byte, error) {
	base := map[string]json.RawMessage{}
	if len(o.Fields) > 0 {
		if err := json.Unmarshal(o.Fields, &base); err != nil {
			return nil, err
		}
	}
	th, _ := json.Marshal(o.TypeHash)
	base["__type"] = th
	return json.Marshal(base)
}

// UnmarshalJSON splits __type back out of the flattened object.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if th, ok := raw["__type"]; ok {
		if err := json.Unmarshal(th, &o.TypeHash); err != nil {
			return err
		}
		delete(raw, "__type")
	}
	rest, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	o.Fields = rest
	return nil
}

// Sidecar is the on-disk metadata stored next to an imported source file.
type Sidecar struct {
	GUID        guid.GUID `json:"guid"`
	Source      string    `json:"source"`
	Options     *Options  `json:"options,omitempty"`
	Name        string    `json:"name,omitempty"`
	IsDirectory bool      `json:"is_directory"`
	Artifacts   []string  `json:"artifacts,omitempty"`
	SourceHash  string    `json:"source_hash,omitempty"`
}

// PathFor returns the sidecar path for a given source path.
func PathFor(sourcePath string) string {
	return sourcePath + Suffix
}

// Read loads and decodes the sidecar for sourcePath. Returns errs.NotFound
// if no sidecar exists, errs.InvalidInput if it can't be parsed.
func Read(sourcePath string) (*Sidecar, error) {
	const op = "sidecar.Read"
	path := PathFor(sourcePath)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(op, errs.NotFound, err)
		}
		return nil, errs.New(op, errs.SourceUnavailable, err)
	}

	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, errs.New(op, errs.InvalidInput, err)
	}
	return &sc, nil
}

// Write atomically writes sc as the sidecar for sourcePath: it writes to a
// temp file in the same directory and renames over the destination, so a
// crash mid-write never leaves a partially written sidecar.
func Write(sourcePath string, sc *Sidecar) error {
	const op = "sidecar.Write"

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return errs.New(op, errs.InvalidInput, err)
	}

	dest := PathFor(sourcePath)
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".asset-*.tmp")
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

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return errs.New(op, errs.SourceUnavailable, err)
	}
	return nil
}

// Remove deletes the sidecar for sourcePath, if present. It is not an error
// for the sidecar to already be absent.
func Remove(sourcePath string) error {
	err := os.Remove(PathFor(sourcePath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sidecar.Remove: %w", err)
	}
	return nil
}

// Exists reports whether sourcePath has a sidecar on disk.
func Exists(sourcePath string) bool {
	_, err := os.Stat(PathFor(sourcePath))
	return err == nil
}
