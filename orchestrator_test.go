package symdex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/symdex/internal/store"
)

// =============================================================================
// Partition
// =============================================================================

func TestPartition_Coverage(t *testing.T) {
	t.Parallel()
	for n := 0; n <= 23; n++ {
		files := make([]string, n)
		for i := range files {
			files[i] = fmt.Sprintf("f%02d.c", i)
		}
		for workers := 1; workers <= 9; workers++ {
			chunks := Partition(files, workers)

			var union []string
			size := (n + workers - 1) / workers
			for i, c := range chunks {
				require.NotEmpty(t, c, "n=%d workers=%d chunk=%d", n, workers, i)
				if i < len(chunks)-1 {
					assert.Len(t, c, size)
				}
				union = append(union, c...)
			}
			assert.LessOrEqual(t, len(chunks), workers)
			if n == 0 {
				assert.Empty(t, union)
			} else {
				assert.Equal(t, files, union, "n=%d workers=%d", n, workers)
			}
		}
	}
}

func TestPartition_ChunksDoNotAlias(t *testing.T) {
	t.Parallel()
	files := []string{"a", "b", "c", "d"}
	chunks := Partition(files, 2)
	chunks[0] = append(chunks[0], "x")
	assert.Equal(t, []string{"a", "b", "c", "d"}, files)
}

func TestPartition_ZeroWorkers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, [][]string{{"a", "b"}}, Partition([]string{"a", "b"}, 0))
}

// =============================================================================
// Discovery
// =============================================================================

func TestDiscover_FiltersAndSorts(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"src/b.cpp":          "",
		"src/a.c":            "",
		"include/x.HPP":      "",
		"README.md":          "",
		".hidden/h.c":        "",
		"build/gen.c":        "",
		"third_party/t.h":    "",
		"src/gen/skip.gen.h": "",
	})
	e := newTestEngine(t, root, WithIgnore(".*/**", "build/**", "third_party/**", "**/*.gen.h"))

	files, err := e.discover()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "include", "x.HPP"),
		filepath.Join(root, "src", "a.c"),
		filepath.Join(root, "src", "b.cpp"),
	}, files)
}

func TestDiscover_HiddenDirectoriesFollowIgnoreList(t *testing.T) {
	t.Parallel()
	tree := map[string]string{
		".hidden/h.c":    "",
		"src/.cache/c.c": "",
		"src/a.c":        "",
	}

	root := writeTree(t, tree)
	files, err := newTestEngine(t, root).discover()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "src", "a.c")}, files)

	root = writeTree(t, tree)
	files, err = newTestEngine(t, root, WithIgnore()).discover()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, ".hidden", "h.c"),
		filepath.Join(root, "src", ".cache", "c.c"),
		filepath.Join(root, "src", "a.c"),
	}, files)
}

func TestDiscover_SkipsStoreDir(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"cache/stray.c": "", "a.c": ""})
	e := newTestEngine(t, root, WithStoreDir("cache"), WithIgnore())

	files, err := e.discover()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.c")}, files)
}

// =============================================================================
// IndexDirectory
// =============================================================================

func TestIndexDirectory_MacroAcrossFiles(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"a.cpp": "#define M 42\n",
		"b.cpp": "#include \"a.cpp\"\nint b = M;\n",
	})
	// Real worker processes: the test binary re-executed.
	e := newTestEngine(t, root, WithLauncher(testLauncher()), WithWorkers(2))
	ctx := context.Background()

	res, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Chunks)
	assert.Zero(t, res.FailedWorkers)

	a := filepath.Join(root, "a.cpp")
	refs, err := e.Query().ReferencesAt(ctx, a, "", 1, 9)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, a, refs[0].Filename)
	assert.Equal(t, 1, refs[0].Line)
	assert.Equal(t, filepath.Join(root, "b.cpp"), refs[1].Filename)
	assert.Equal(t, 2, refs[1].Line)
	for _, r := range refs {
		assert.Equal(t, Macro, r.Type)
		assert.Equal(t, "c:@macro@M", r.USR)
	}
}

func TestIndexDirectory_InProcessMatchesSingleFile(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"a.c":     "struct p { int x; };\nint get(struct p *v) { return v->x; }\n",
		"b.c":     "int counter;\nvoid bump(void) { counter++; }\n",
		"sub/c.h": "#define LIMIT 3\ntypedef int count_t;\n",
	}
	ctx := context.Background()

	dirRoot := writeTree(t, files)
	dir := newTestEngine(t, dirRoot, WithWorkers(3))
	res, err := dir.IndexDirectory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 3, res.Chunks)
	assert.Positive(t, res.RowsMerged)
	assert.NotEmpty(t, res.RunID)

	fileRoot := writeTree(t, files)
	single := newTestEngine(t, fileRoot)
	for name := range files {
		p := filepath.Join(fileRoot, name)
		_, err := single.IndexFile(ctx, p, p, "")
		require.NoError(t, err)
	}

	strip := func(rows []Symbol, root string) []Symbol {
		out := make([]Symbol, len(rows))
		for i, r := range rows {
			r.Filename, _ = filepath.Rel(root, r.Filename)
			out[i] = r
		}
		return out
	}
	got := strip(scanAll(t, dir), dirRoot)
	want := strip(scanAll(t, single), fileRoot)
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, res.RowsMerged)
}

func TestIndexDirectory_RemovesWorkerStores(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n", "b.c": "int b;\n"})
	e := newTestEngine(t, root, WithWorkers(2))

	_, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(e.storeDir, "worker-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestIndexDirectory_SkipsWhenAlreadyIndexed(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	launcher := &countingLauncher{next: &InProcessLauncher{Logger: discardLogger()}}
	e := newTestEngine(t, root, WithLauncher(launcher))
	ctx := context.Background()

	res, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	res, err = e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 1, launcher.count())

	// A drop re-arms directory indexing.
	require.NoError(t, e.DropFile(filepath.Join(root, "a.c")))
	res, err = e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, launcher.count())
}

func TestIndexDirectory_MarkerSurvivesReopen(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	e := newTestEngine(t, root)
	_, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	reopened := newTestEngine(t, root)
	indexed, err := reopened.Indexed()
	require.NoError(t, err)
	assert.True(t, indexed)
}

func TestIndexDirectory_DropAllReArms(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	e := newTestEngine(t, root)
	ctx := context.Background()

	_, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	require.NoError(t, e.DropAll())
	assert.Empty(t, scanAll(t, e))

	res, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, scanAll(t, e))
}

func TestIndexDirectory_FailedWorkerIsPartial(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n", "b.c": "int b;\n"})
	launcher := &failingLauncher{
		fail: 0,
		next: &InProcessLauncher{Logger: discardLogger()},
	}
	e := newTestEngine(t, root, WithLauncher(launcher), WithWorkers(2))

	res, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedWorkers)

	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.c")}, files)
}

func TestIndexDirectory_RepassReplacesChangedFiles(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int old_a;\n", "b.c": "int b;\n"})
	e := newTestEngine(t, root, WithWorkers(2))
	ctx := context.Background()
	a, b := filepath.Join(root, "a.c"), filepath.Join(root, "b.c")

	_, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(a, []byte("int new_a;\n"), 0o644))
	require.NoError(t, e.DropFile(b))
	res, err := e.IndexDirectory(ctx, "")
	require.NoError(t, err)
	require.False(t, res.Skipped)

	var usrs []string
	for _, sym := range scanAll(t, e) {
		if sym.Filename == a {
			usrs = append(usrs, sym.USR)
		}
	}
	assert.Equal(t, []string{"c:@new_a"}, usrs)
	n, err := e.Store().Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIndexDirectory_UnreadableFailedStoreIsSkipped(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n", "b.c": "int b;\n"})
	launcher := &corruptLauncher{
		chunk: 0,
		err:   errors.New("worker crashed"),
		next:  &InProcessLauncher{Logger: discardLogger()},
	}
	e := newTestEngine(t, root, WithLauncher(launcher), WithWorkers(2))

	res, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedWorkers)

	files, err := e.Store().Files()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b.c")}, files)
	indexed, err := e.Indexed()
	require.NoError(t, err)
	assert.True(t, indexed)
}

func TestIndexDirectory_MergeFailureRollsBack(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int kept;\n", "b.c": "int b;\n"})
	launcher := &corruptLauncher{
		chunk: 1,
		next:  &InProcessLauncher{Logger: discardLogger()},
	}
	e := newTestEngine(t, root, WithLauncher(launcher), WithWorkers(2))
	ctx := context.Background()
	a := filepath.Join(root, "a.c")

	_, err := e.IndexFile(ctx, a, a, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a, []byte("int changed;\n"), 0o644))

	_, err = e.IndexDirectory(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrMergeSource)

	rows := scanAll(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, "c:@kept", rows[0].USR)
	indexed, err := e.Indexed()
	require.NoError(t, err)
	assert.False(t, indexed)

	// Later writes must not carry the discarded merge along.
	require.NoError(t, e.DropFile(filepath.Join(root, "b.c")))
	rows = scanAll(t, e)
	require.Len(t, rows, 1)
	assert.Equal(t, "c:@kept", rows[0].USR)
}

func TestIndexDirectory_WorkerTimeout(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	e := newTestEngine(t, root, WithLauncher(blockingLauncher{}), WithWorkerTimeout(50*time.Millisecond))

	res, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedWorkers)
	assert.Empty(t, scanAll(t, e))
}

func TestIndexDirectory_CrashedWorkerProcess(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	launcher := testLauncher()
	launcher.Path = filepath.Join(t.TempDir(), "no-such-binary")
	e := newTestEngine(t, root, WithLauncher(launcher))

	res, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedWorkers)
	assert.Zero(t, res.RowsMerged)
}

func TestIndexDirectory_Canceled(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	e := newTestEngine(t, root, WithLauncher(blockingLauncher{}), WithWorkerTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := e.IndexDirectory(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	indexed, err := e.Indexed()
	require.NoError(t, err)
	assert.False(t, indexed)
}

func TestIndexDirectory_LockHeld(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	e := newTestEngine(t, root)

	other := flock.New(filepath.Join(e.storeDir, lockName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	_, err = e.IndexDirectory(context.Background(), "")
	assert.ErrorIs(t, err, ErrIndexInProgress)
}

func TestIndexDirectory_Progress(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "", "b.c": "", "c.c": ""})
	var (
		mu    sync.Mutex
		calls [][2]int
	)
	e := newTestEngine(t, root, WithWorkers(2), WithProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, [2]int{done, total})
	}))

	_, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.Equal(t, [2]int{3, 3}, calls[len(calls)-1])
}

func TestIndexDirectory_EmptyTree(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, t.TempDir())

	res, err := e.IndexDirectory(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.Zero(t, res.Chunks)

	indexed, err := e.Indexed()
	require.NoError(t, err)
	assert.True(t, indexed)
}

// =============================================================================
// Worker
// =============================================================================

func TestServeWorker_BadJob(t *testing.T) {
	t.Parallel()
	err := ServeWorker(context.Background(), strings.NewReader("{"), nil, discardLogger())
	require.Error(t, err)

	err = ServeWorker(context.Background(), strings.NewReader(`{"files":["x.c"]}`), nil, discardLogger())
	require.Error(t, err)
}

func TestInProcessLauncher_WritesPrivateStore(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.c": "int a;\n"})
	storePath := filepath.Join(t.TempDir(), "w.db")

	err := (&InProcessLauncher{Logger: discardLogger()}).Launch(context.Background(), WorkerJob{
		Root:      root,
		StorePath: storePath,
		Files:     []string{filepath.Join(root, "a.c")},
	})
	require.NoError(t, err)

	s, err := store.NewStore(storePath)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// Launchers
// =============================================================================

type countingLauncher struct {
	mu   sync.Mutex
	n    int
	next WorkerLauncher
}

func (l *countingLauncher) Launch(ctx context.Context, job WorkerJob) error {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
	return l.next.Launch(ctx, job)
}

func (l *countingLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// failingLauncher fails one chunk without creating its store.
type failingLauncher struct {
	fail int
	next WorkerLauncher
}

func (l *failingLauncher) Launch(ctx context.Context, job WorkerJob) error {
	if job.Chunk == l.fail {
		return errors.New("worker crashed")
	}
	return l.next.Launch(ctx, job)
}

// corruptLauncher leaves a store that is not a database for one chunk
// and reports err for it.
type corruptLauncher struct {
	chunk int
	err   error
	next  WorkerLauncher
}

func (l *corruptLauncher) Launch(ctx context.Context, job WorkerJob) error {
	if job.Chunk != l.chunk {
		return l.next.Launch(ctx, job)
	}
	if err := os.WriteFile(job.StorePath, []byte("not a database"), 0o644); err != nil {
		return err
	}
	return l.err
}

// blockingLauncher never finishes on its own.
type blockingLauncher struct{}

func (blockingLauncher) Launch(ctx context.Context, _ WorkerJob) error {
	<-ctx.Done()
	return ctx.Err()
}
