package guid_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsUnique(t *testing.T) {
	a := guid.New()
	b := guid.New()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsNil())
}

func TestStringRoundTrip(t *testing.T) {
	g := guid.New()
	parsed, err := guid.Parse(g.String())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := guid.FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNilIsZero(t *testing.T) {
	assert.True(t, guid.Nil.IsNil())
}
