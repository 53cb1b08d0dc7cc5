package chash_test

import (
	"bytes"
	"testing"

	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfBytesIsDeterministic(t *testing.T) {
	a := chash.OfBytes([]byte("hello asset"))
	b := chash.OfBytes([]byte("hello asset"))
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}

func TestOfBytesDiffersOnContent(t *testing.T) {
	a := chash.OfBytes([]byte("a"))
	b := chash.OfBytes([]byte("b"))
	assert.NotEqual(t, a, b)
}

func TestBuilderIncludesOptions(t *testing.T) {
	b1 := chash.NewBuilder()
	_, _ = b1.Write([]byte("content"))
	_, _ = b1.Write([]byte(`{"quality":1}`))

	b2 := chash.NewBuilder()
	_, _ = b2.Write([]byte("content"))
	_, _ = b2.Write([]byte(`{"quality":2}`))

	assert.NotEqual(t, b1.Sum(), b2.Sum())
}

func TestWriteReaderMatchesWrite(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 100000)

	b1 := chash.NewBuilder()
	require.NoError(t, b1.WriteReader(bytes.NewReader(content)))

	b2 := chash.NewBuilder()
	_, _ = b2.Write(content)

	assert.Equal(t, b1.Sum(), b2.Sum())
}

func TestOfPathNormalizesSlashes(t *testing.T) {
	assert.Equal(t, chash.OfPath("a/b/c"), chash.OfPath(`a\b\c`))
}
