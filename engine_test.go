package symdex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/symdex/internal/config"
	"github.com/jward/symdex/internal/store"
)

const refSource = `int f(int x) { return x; }
int main(void) {
  int a = f(1);
  return f(a);
}
`

// =============================================================================
// New
// =============================================================================

func TestNew_CreatesStore(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	e := newTestEngine(t, root)

	assert.Equal(t, root, e.Root())
	assert.FileExists(t, filepath.Join(root, ".symdex", masterStoreName))

	n, err := e.Store().Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_CustomStoreDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	newTestEngine(t, root, WithStoreDir("cache"))
	assert.FileExists(t, filepath.Join(root, "cache", masterStoreName))
}

func TestNew_UnwritableRootIsStoreOpenError(t *testing.T) {
	t.Parallel()
	// A regular file where the root should be: the store dir cannot exist.
	root := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	_, err := New(root, WithLogger(discardLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreOpen)
}

func TestNew_InvalidIgnorePattern(t *testing.T) {
	t.Parallel()
	_, err := New(t.TempDir(), WithIgnore("[unclosed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidIgnore)
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Index.StoreDir = "idx"
	cfg.Index.CompilerArgs = "-DX"
	cfg.Index.Extensions = []string{".C"}
	cfg.Workers.Count = 3
	cfg.Workers.Timeout = time.Minute
	cfg.Query.CacheSize = 2

	root := t.TempDir()
	e := newTestEngine(t, root, ConfigOptions(cfg)...)

	assert.Equal(t, filepath.Join(root, "idx"), e.storeDir)
	assert.Equal(t, "-DX", e.compilerArgs)
	assert.Equal(t, map[string]bool{".c": true}, e.extensions)
	assert.Equal(t, 3, e.workers)
	assert.Equal(t, time.Minute, e.timeout)
	assert.Equal(t, 2, e.cacheSize)
}

// =============================================================================
// IndexFile
// =============================================================================

func TestIndexFile_RecordsRows(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.c": refSource})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")

	res, err := e.IndexFile(context.Background(), file, file, "")
	require.NoError(t, err)
	assert.True(t, res.Parsed)
	assert.Positive(t, res.Rows)

	rows, err := e.Store().Files()
	require.NoError(t, err)
	assert.Equal(t, []string{file}, rows)
}

func TestIndexFile_ReplacesPreviousRows(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.c": "int old_name;\n"})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")
	ctx := context.Background()

	_, err := e.IndexFile(ctx, file, file, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(file, []byte("int new_name;\n"), 0o644))
	_, err = e.IndexFile(ctx, file, file, "")
	require.NoError(t, err)

	rows := scanAll(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, "c:@new_name", rows[0].USR)
}

func TestIndexFile_EmptyReparseClearsRows(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.c": "int g;\n"})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")
	ctx := context.Background()

	_, err := e.IndexFile(ctx, file, file, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte("\n"), 0o644))
	_, err = e.IndexFile(ctx, file, file, "")
	require.NoError(t, err)

	assert.Empty(t, scanAll(t, e))
}

func TestIndexFile_ParseFailureKeepsRows(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.c": "int g;\n"})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")
	ctx := context.Background()

	_, err := e.IndexFile(ctx, file, file, "")
	require.NoError(t, err)

	res, err := e.IndexFile(ctx, filepath.Join(root, "missing.c"), file, "")
	require.NoError(t, err)
	assert.False(t, res.Parsed)
	assert.Len(t, scanAll(t, e), 1)
}

func TestIndexFile_UnsavedContents(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"f.c":            "int on_disk;\n",
		"buffer/f.c.tmp": "int in_editor;\n",
	})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")

	_, err := e.IndexFile(context.Background(), filepath.Join(root, "buffer", "f.c.tmp"), file, "")
	require.NoError(t, err)

	rows := scanAll(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, file, rows[0].Filename)
	assert.Equal(t, "c:@in_editor", rows[0].USR)
}

func TestIndexFile_DefaultCompilerArgs(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"inc/util.h": "int helper(void);\n",
		"main.c":     "#include <util.h>\nint main(void) { return helper(); }\n",
	})
	e := newTestEngine(t, root, WithCompilerArgs("-Iinc"))
	file := filepath.Join(root, "main.c")

	_, err := e.IndexFile(context.Background(), file, file, "")
	require.NoError(t, err)

	rows, err := store.Collect(e.Store().Lookup("c:@F@helper"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Function, rows[0].Type)
	assert.Equal(t, 2, rows[0].Line)
}

func TestIndexFile_RelativePathsShareRowsWithAbsolute(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"src/f.c": "int g;\n"})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "src", "f.c")
	ctx := context.Background()

	_, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	_, err = e.IndexFile(ctx, "src/f.c", "src/../src/f.c", "")
	require.NoError(t, err)

	rows := scanAll(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, file, rows[0].Filename)

	require.NoError(t, e.DropFile("src/f.c"))
	assert.Empty(t, scanAll(t, e))
}

// =============================================================================
// Drop
// =============================================================================

func TestDropFile(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n", "b.c": "int b;\n"})
	e := newTestEngine(t, root)
	ctx := context.Background()
	a, b := filepath.Join(root, "a.c"), filepath.Join(root, "b.c")

	for _, f := range []string{a, b} {
		_, err := e.IndexFile(ctx, f, f, "")
		require.NoError(t, err)
	}
	require.NoError(t, e.DropFile(a))

	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Equal(t, []string{b}, files)
}

func TestDropAll_ThenScanEmpty(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.c": refSource})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")

	_, err := e.IndexFile(context.Background(), file, file, "")
	require.NoError(t, err)
	require.NotEmpty(t, scanAll(t, e))

	require.NoError(t, e.DropAll())
	assert.Empty(t, scanAll(t, e))
}

func TestDrop_VisibleToOtherStore(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"f.c": "int g;\n"})
	e := newTestEngine(t, root)
	file := filepath.Join(root, "f.c")

	_, err := e.IndexFile(context.Background(), file, file, "")
	require.NoError(t, err)
	require.NoError(t, e.DropAll())

	other, err := New(root, WithLogger(discardLogger()))
	require.NoError(t, err)
	defer other.Close()
	n, err := other.Store().Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}
