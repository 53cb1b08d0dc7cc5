package assetsearch_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/assetsearch"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndKeywordSearch(t *testing.T) {
	idx, err := assetsearch.Open(assetsearch.Config{})
	require.NoError(t, err)
	defer idx.Close()

	g := guid.New()
	require.NoError(t, idx.Upsert(g, "textures/rock_diffuse.png", "Rock Diffuse", 7))

	results := idx.Search("rock", 10)
	require.Len(t, results, 1)
	assert.Equal(t, g, results[0].GUID)
}

func TestSearchNoMatchReturnsEmpty(t *testing.T) {
	idx, err := assetsearch.Open(assetsearch.Config{})
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(guid.New(), "meshes/cube.obj", "Cube", 1))
	assert.Empty(t, idx.Search("nonexistent", 10))
}

func TestRemoveDropsFromIndex(t *testing.T) {
	idx, err := assetsearch.Open(assetsearch.Config{})
	require.NoError(t, err)
	defer idx.Close()

	g := guid.New()
	require.NoError(t, idx.Upsert(g, "audio/hit.wav", "Hit", 3))
	require.NoError(t, idx.Remove(g))
	assert.Empty(t, idx.Search("hit", 10))
}
