package typeref_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/typeref"
	"github.com/stretchr/testify/assert"
)

type sampleOptions struct {
	Quality int
	Mip     bool
}

func TestOfIsStableAndDistinct(t *testing.T) {
	a := typeref.Of(sampleOptions{})
	b := typeref.Of(sampleOptions{})
	assert.Equal(t, a, b)
	assert.NotZero(t, a.Hash)

	c := typeref.Of(struct{ X int }{})
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestIsZero(t *testing.T) {
	var r typeref.TypeRef
	assert.True(t, r.IsZero())
}
