package sidecar_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "texture.png")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o644))

	g := guid.New()
	in := &sidecar.Sidecar{GUID: g, Source: "texture.png", Options: &sidecar.Options{TypeHash: 42}}
	require.NoError(t, sidecar.Write(src, in))

	assert.True(t, sidecar.Exists(src))

	out, err := sidecar.Read(src)
	require.NoError(t, err)
	assert.Equal(t, g, out.GUID)
	require.NotNil(t, out.Options)
	assert.EqualValues(t, 42, out.Options.TypeHash)
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := sidecar.Read(filepath.Join(dir, "missing.png"))
	assert.Equal(t, errs.NotFound, errs.Of(err))
}

func TestReadMalformedReturnsInvalidInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "texture.png")
	require.NoError(t, os.WriteFile(sidecar.PathFor(src), []byte("not json"), 0o644))

	_, err := sidecar.Read(src)
	assert.Equal(t, errs.InvalidInput, errs.Of(err))
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "texture.png")
	require.NoError(t, sidecar.Remove(src))
	require.NoError(t, sidecar.Write(src, &sidecar.Sidecar{GUID: guid.New()}))
	require.NoError(t, sidecar.Remove(src))
	assert.False(t, sidecar.Exists(src))
	require.NoError(t, sidecar.Remove(src))
}
