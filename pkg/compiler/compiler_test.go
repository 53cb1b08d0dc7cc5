package compiler_test

import (
	"testing"

	"github.com/forgekit/assetpipe/pkg/compiler"
	"github.com/forgekit/assetpipe/pkg/errs"
	"github.com/forgekit/assetpipe/pkg/typeref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompiler struct {
	name string
	exts []string
}

func (f *fakeCompiler) Name() string                 { return f.name }
func (f *fakeCompiler) SupportedExtensions() []string { return f.exts }
func (f *fakeCompiler) OptionsType() typeref.TypeRef  { return typeref.TypeRef{} }
func (f *fakeCompiler) Init(int) error                { return nil }
func (f *fakeCompiler) Destroy()                      {}
func (f *fakeCompiler) Compile(_ int, ctx *compiler.Context) (compiler.Status, error) {
	ctx.AddArtifact(typeref.Of(struct{ T int }{}), []byte("out"), true)
	return compiler.StatusSuccess, nil
}

func TestRegisterAndLookupByExtension(t *testing.T) {
	r := compiler.NewRegistry()
	c := &fakeCompiler{name: "png", exts: []string{".png", "PNG"}}
	require.NoError(t, r.Register(c))

	assert.Len(t, r.CompilersFor("png"), 1)
	assert.Len(t, r.CompilersFor(".PNG"), 1)
	assert.Empty(t, r.CompilersFor("jpg"))
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := compiler.NewRegistry()
	c := &fakeCompiler{name: "png", exts: []string{".png"}}
	require.NoError(t, r.Register(c))
	err := r.Register(c)
	assert.Equal(t, errs.DuplicateRegistration, errs.Of(err))
}

func TestUnregisterRemovesExtensionMapping(t *testing.T) {
	r := compiler.NewRegistry()
	c := &fakeCompiler{name: "png", exts: []string{".png"}}
	require.NoError(t, r.Register(c))
	r.Unregister("png")
	assert.Empty(t, r.CompilersFor("png"))
}

func TestContextMainOutput(t *testing.T) {
	ctx := compiler.NewContext(0, "a.png", "/tmp", nil)
	ctx.AddArtifact(typeref.Of(struct{ A int }{}), []byte("1"), false)
	ctx.AddArtifact(typeref.Of(struct{ B int }{}), []byte("2"), true)

	out, ok := ctx.MainOutput()
	require.True(t, ok)
	assert.Equal(t, []byte("2"), out.Data)
}

func TestContextAllocRespectsChunkSize(t *testing.T) {
	ctx := compiler.NewContext(0, "a.png", "/tmp", nil)
	buf, err := ctx.Alloc(16)
	require.NoError(t, err)
	assert.Len(t, buf, 16)
	ctx.Release()
}
