package artifactstore_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/artifactstore"
	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := artifactstore.Open(t.TempDir())
	require.NoError(t, err)

	data := []byte("compiled bytes")
	h := chash.OfBytes(data)

	require.NoError(t, s.Put(h, data))
	assert.True(t, s.Has(h))

	got, err := s.Get(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIsIdempotent(t *testing.T) {
	s, err := artifactstore.Open(t.TempDir())
	require.NoError(t, err)

	data := []byte("payload")
	h := chash.OfBytes(data)
	require.NoError(t, s.Put(h, data))
	require.NoError(t, s.Put(h, data))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s, err := artifactstore.Open(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(chash.OfBytes([]byte("nope")))
	assert.Equal(t, errs.NotFound, errs.Of(err))
}

func TestDeleteThenHasIsFalse(t *testing.T) {
	s, err := artifactstore.Open(t.TempDir())
	require.NoError(t, err)

	h := chash.OfBytes([]byte("x"))
	require.NoError(t, s.Put(h, []byte("x")))
	require.NoError(t, s.Delete(h))
	assert.False(t, s.Has(h))
	require.NoError(t, s.Delete(h))
}
