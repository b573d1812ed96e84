package symdex

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jward/symdex/internal/parser"
)

// workerEnv turns the test binary into a directory worker, so tests can
// exercise real process isolation without a separate build.
const workerEnv = "SYMDEX_TEST_WORKER"

func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		if err := ServeWorker(context.Background(), os.Stdin, parser.NewTreeSitter(), logger); err != nil {
			logger.Error("worker failed", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	goleak.VerifyTestMain(m)
}

// testLauncher re-executes the test binary as a worker process.
func testLauncher() *ProcessLauncher {
	return &ProcessLauncher{
		Path:   os.Args[0],
		Env:    append(os.Environ(), workerEnv+"=1"),
		Stderr: io.Discard,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTree creates files under a fresh temp root and returns the root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func newTestEngine(t *testing.T, root string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithLauncher(&InProcessLauncher{Logger: discardLogger()}),
	}, opts...)
	e, err := New(root, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func scanAll(t *testing.T, e *Engine) []Symbol {
	t.Helper()
	var rows []Symbol
	for sym, err := range e.Store().Scan() {
		require.NoError(t, err)
		rows = append(rows, sym)
	}
	return rows
}
