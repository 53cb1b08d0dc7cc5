package registry_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/depcache"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/jobpool"
	"github.com/forgekit/assetpipe/pkg/registry"
	"github.com/forgekit/assetpipe/pkg/typeref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textureAsset struct{ Pixels []byte }

func textureType() typeref.TypeRef { return typeref.Of(textureAsset{}) }

type fakeLoader struct {
	loadCalls, unloadCalls int
	fail                   bool
}

func (f *fakeLoader) SupportedTypes() []typeref.TypeRef { return []typeref.TypeRef{textureType()} }
func (f *fakeLoader) ParameterType() typeref.TypeRef    { return typeref.TypeRef{} }
func (f *fakeLoader) Allocate(typeref.TypeRef) (any, error) {
	return &textureAsset{}, nil
}
func (f *fakeLoader) Load(ctx *registry.LoaderContext, streams []registry.Stream) error {
	f.loadCalls++
	if f.fail {
		return assertErr
	}
	return nil
}
func (f *fakeLoader) Unload(ctx *registry.LoaderContext, payload any) error {
	f.unloadCalls++
	return nil
}

var assertErr = errs.New("fakeLoader.Load", errs.LoadFailed, nil)

type fakeLocator struct{ guid.GUID }

func (l fakeLocator) Name() string { return "fake" }
func (l fakeLocator) Locate(g guid.GUID) (registry.Location, bool) {
	if g != l.GUID {
		return registry.Location{}, false
	}
	return registry.Location{Type: textureType(), Streams: []registry.Stream{{Kind: registry.StreamBuffer, Buffer: []byte("x")}}}, true
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	pool := jobpool.New(2)
	t.Cleanup(pool.Close)
	return registry.New(depcache.New(), pool)
}

func TestLoadUnknownTypeReturnsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Load(guid.New(), textureType(), typeref.TypeRef{}, nil)
	assert.Equal(t, errs.NotFound, errs.Of(err))
}

func TestLoadSucceedsAndIncrementsRefcount(t *testing.T) {
	r := newTestRegistry(t)
	g := guid.New()
	loader := &fakeLoader{}
	require.NoError(t, r.AddLoader(loader))
	r.AddLocator(fakeLocator{g})

	require.NoError(t, r.Load(g, textureType(), typeref.TypeRef{}, nil))
	status, refcount, ok := r.StatusOf(g)
	require.True(t, ok)
	assert.Equal(t, registry.StatusLoaded, status)
	assert.EqualValues(t, 1, refcount)
	assert.Equal(t, 1, loader.loadCalls)

	require.NoError(t, r.Load(g, textureType(), typeref.TypeRef{}, nil))
	_, refcount2, _ := r.StatusOf(g)
	assert.EqualValues(t, 2, refcount2)
	assert.Equal(t, 1, loader.loadCalls, "second load should hit the cache, not re-invoke the loader")
}

func TestLoadWithNoLocatorFails(t *testing.T) {
	r := newTestRegistry(t)
	g := guid.New()
	require.NoError(t, r.AddLoader(&fakeLoader{}))

	err := r.Load(g, textureType(), typeref.TypeRef{}, nil)
	assert.Equal(t, errs.LoadFailed, errs.Of(err))

	status, _, ok := r.StatusOf(g)
	require.True(t, ok)
	assert.Equal(t, registry.StatusLoadingFailed, status)
}

func TestUnloadReleaseDecrementsThenDestroys(t *testing.T) {
	r := newTestRegistry(t)
	g := guid.New()
	loader := &fakeLoader{}
	require.NoError(t, r.AddLoader(loader))
	r.AddLocator(fakeLocator{g})

	require.NoError(t, r.Load(g, textureType(), typeref.TypeRef{}, nil))
	require.NoError(t, r.Load(g, textureType(), typeref.TypeRef{}, nil))

	require.NoError(t, r.Unload(g, registry.UnloadRelease))
	_, refcount, ok := r.StatusOf(g)
	require.True(t, ok)
	assert.EqualValues(t, 1, refcount)
	assert.Equal(t, 0, loader.unloadCalls)

	require.NoError(t, r.Unload(g, registry.UnloadRelease))
	_, _, ok = r.StatusOf(g)
	assert.False(t, ok)
	assert.Equal(t, 1, loader.unloadCalls)
}

func TestAddLoaderRejectsDuplicateType(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddLoader(&fakeLoader{}))
	err := r.AddLoader(&fakeLoader{})
	assert.Equal(t, errs.DuplicateRegistration, errs.Of(err))
}

func TestManifestResolvesNameToGUID(t *testing.T) {
	r := newTestRegistry(t)
	m := r.AddManifest("levels")
	g := guid.New()
	m.Add("intro", g)

	got, ok := r.GetManifest("levels")
	require.True(t, ok)
	resolved, ok := got.Get("intro")
	require.True(t, ok)
	assert.Equal(t, g, resolved)
}
