package chunkalloc_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/chunkalloc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocWithinChunk(t *testing.T) {
	a := chunkalloc.New(1024)
	b1, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Len(t, b1, 100)
	assert.Equal(t, 1, a.NumChunks())

	b2, err := a.Alloc(100)
	require.NoError(t, err)
	assert.Len(t, b2, 100)
	assert.Equal(t, 1, a.NumChunks())
}

func TestAllocSpillsToNewChunk(t *testing.T) {
	a := chunkalloc.New(128)
	_, err := a.Alloc(100)
	require.NoError(t, err)
	_, err = a.Alloc(100)
	require.NoError(t, err)
	assert.Equal(t, 2, a.NumChunks())
}

func TestAllocRejectsOversized(t *testing.T) {
	a := chunkalloc.New(128)
	_, err := a.Alloc(200)
	assert.ErrorIs(t, err, chunkalloc.ErrTooLarge)
}

func TestResetReusesChunks(t *testing.T) {
	a := chunkalloc.New(128)
	_, _ = a.Alloc(100)
	_, _ = a.Alloc(100)
	assert.Equal(t, 2, a.NumChunks())

	a.Reset()
	assert.Equal(t, 2, a.NumChunks())

	_, err := a.Alloc(50)
	require.NoError(t, err)
	assert.Equal(t, 2, a.NumChunks(), "reset chunks should be reused, not reallocated")
}
