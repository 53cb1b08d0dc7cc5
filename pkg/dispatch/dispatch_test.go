package dispatch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgekit/assetpipe/pkg/artifactstore"
	"github.com/forgekit/assetpipe/pkg/assetdb"
	"github.com/forgekit/assetpipe/pkg/compiler"
	"github.com/forgekit/assetpipe/pkg/depcache"
	"github.com/forgekit/assetpipe/pkg/dispatch"
	"github.com/forgekit/assetpipe/pkg/platform"
	"github.com/forgekit/assetpipe/pkg/typeref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperCompiler struct{}

func (upperCompiler) Name() string                 { return "upper" }
func (upperCompiler) SupportedExtensions() []string { return []string{"txt"} }
func (upperCompiler) OptionsType() typeref.TypeRef  { return typeref.TypeRef{} }
func (upperCompiler) Init(int) error                { return nil }
func (upperCompiler) Destroy()                      {}
func (upperCompiler) Compile(_ int, ctx *compiler.Context) (compiler.Status, error) {
	buf, err := ctx.Alloc(4)
	if err != nil {
		return compiler.StatusFailure, err
	}
	copy(buf, "DONE")
	ctx.AddArtifact(typeref.Of(struct{ Text int }{}), append([]byte(nil), buf...), true)
	return compiler.StatusSuccess, nil
}

func setup(t *testing.T) (*dispatch.Dispatcher, string) {
	t.Helper()
	projectRoot := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "assets.db")
	db, err := assetdb.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := artifactstore.Open(t.TempDir())
	require.NoError(t, err)

	reg := compiler.NewRegistry()
	require.NoError(t, reg.Register(upperCompiler{}))

	d := dispatch.New(db, store, reg, depcache.New(), platform.Current(), projectRoot, t.TempDir(), nil)
	return d, projectRoot
}

func TestImportCompilesAndPersists(t *testing.T) {
	d, root := setup(t)
	source := filepath.Join(root, "readme.txt")
	require.NoError(t, os.WriteFile(source, []byte("hello"), 0o644))

	rec, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("hello")})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Artifacts, 1)
	assert.FileExists(t, source+".asset")
}

func TestImportWithNoCompilerSkipsButDoesNotError(t *testing.T) {
	d, root := setup(t)
	source := filepath.Join(root, "model.fbx")
	require.NoError(t, os.WriteFile(source, []byte("bin"), 0o644))

	rec, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("bin")})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestImportIsIdempotentOnGUID(t *testing.T) {
	d, root := setup(t)
	source := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(source, []byte("v1"), 0o644))

	rec1, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("v1"), SrcMTime: 1})
	require.NoError(t, err)

	rec2, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("v1"), SrcMTime: 1})
	require.NoError(t, err)
	assert.Equal(t, rec1.GUID, rec2.GUID)
}

func TestImportSkipsRecompileWhenHashUnchanged(t *testing.T) {
	d, root := setup(t)
	source := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(source, []byte("v1"), 0o644))

	rec1, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("v1"), SrcMTime: 1})
	require.NoError(t, err)
	artifactHash := rec1.MainArtifact.ContentHash

	rec2, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("v1"), SrcMTime: 2})
	require.NoError(t, err)
	assert.Equal(t, artifactHash, rec2.MainArtifact.ContentHash)
	assert.Equal(t, int64(2), rec2.SrcTimestamp)
}

func TestImportForceRecompilesEvenWithUnchangedHash(t *testing.T) {
	d, root := setup(t)
	source := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(source, []byte("v1"), 0o644))

	rec1, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("v1"), SrcMTime: 1})
	require.NoError(t, err)

	rec2, err := d.Import(dispatch.ImportRequest{Source: source, Content: []byte("v1"), SrcMTime: 1, Force: true})
	require.NoError(t, err)
	assert.Equal(t, rec1.GUID, rec2.GUID)
}
