package symdex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jward/symdex/internal/store"
)

// ErrIndexInProgress is returned when another directory pass holds the
// project's index lock.
var ErrIndexInProgress = errors.New("directory indexing already in progress")

const lockName = "index.lock"

// DirectoryResult summarizes one IndexDirectory call.
type DirectoryResult struct {
	RunID         string        `json:"run_id"`
	Root          string        `json:"root"`
	Skipped       bool          `json:"skipped"`
	Files         int           `json:"files"`
	Chunks        int           `json:"chunks"`
	FailedWorkers int           `json:"failed_workers"`
	RowsMerged    int           `json:"rows_merged"`
	Duration      time.Duration `json:"duration"`
}

// IndexDirectory indexes every C/C++ file under the project root. Files
// are split into one chunk per worker and each chunk is indexed by its own
// worker into a private store; once every worker has exited the private
// stores are merged into the master store one at a time and removed.
//
// A completed pass is recorded in the master store, and later calls are
// no-ops until DropFile or DropAll clears the record. A worker that fails
// or times out is logged and counted, and its files are left out.
func (e *Engine) IndexDirectory(ctx context.Context, compilerArgs string) (*DirectoryResult, error) {
	start := time.Now()
	res := &DirectoryResult{RunID: uuid.NewString(), Root: e.root}
	logger := e.logger.With("run", res.RunID)

	lock := flock.New(filepath.Join(e.storeDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("symdex: index lock: %w", err)
	}
	if !locked {
		return nil, ErrIndexInProgress
	}
	defer lock.Unlock()

	indexed, err := e.Indexed()
	if err != nil {
		return nil, err
	}
	if indexed {
		res.Skipped = true
		res.Duration = time.Since(start)
		logger.Info("orchestrator.skip", "root", e.root)
		return res, nil
	}

	files, err := e.discover()
	if err != nil {
		return nil, fmt.Errorf("symdex: %w", err)
	}
	chunks := Partition(files, e.workers)
	res.Files, res.Chunks = len(files), len(chunks)
	logger.Info("orchestrator.start", "root", e.root, "files", len(files), "chunks", len(chunks))

	jobs := make([]WorkerJob, len(chunks))
	for i, chunk := range chunks {
		jobs[i] = WorkerJob{
			RunID:        res.RunID,
			Chunk:        i,
			Root:         e.root,
			StorePath:    filepath.Join(e.storeDir, "worker-"+uuid.NewString()+".db"),
			CompilerArgs: e.args(compilerArgs),
			Files:        chunk,
		}
	}
	// Worker stores go even when a merge fails part way.
	defer func() {
		for _, job := range jobs {
			removeStore(job.StorePath)
		}
	}()

	launchErrs := e.runWorkers(ctx, jobs, len(files))
	for _, err := range launchErrs {
		if err != nil {
			res.FailedWorkers++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("symdex: index directory: %w", err)
	}

	merged, err := e.merge(jobs, launchErrs)
	res.RowsMerged = merged
	if err != nil {
		return nil, fmt.Errorf("symdex: %w", err)
	}

	res.Duration = time.Since(start)
	logger.Info("orchestrator.done",
		"files", res.Files,
		"chunks", res.Chunks,
		"failed_workers", res.FailedWorkers,
		"rows", res.RowsMerged,
		"duration", res.Duration,
	)
	return res, nil
}

// runWorkers launches every job concurrently and blocks until all have
// exited. The returned slice holds each job's launch error, nil on success.
func (e *Engine) runWorkers(ctx context.Context, jobs []WorkerJob, total int) []error {
	var (
		mu   sync.Mutex
		done int
	)
	errs := make([]error, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			jobCtx := ctx
			if e.timeout > 0 {
				var cancel context.CancelFunc
				jobCtx, cancel = context.WithTimeout(ctx, e.timeout)
				defer cancel()
			}
			err := e.launcher.Launch(jobCtx, job)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[i] = err
				e.logger.Error("orchestrator.worker_failed",
					"run", job.RunID,
					"chunk", job.Chunk,
					"files", len(job.Files),
					"error", err,
				)
			}
			done += len(job.Files)
			if e.progress != nil {
				e.progress(done, total)
			}
			// Failures are partial coverage, not a reason to stop siblings.
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// merge folds every worker store into the master store sequentially and
// flushes once at the end, together with the completion marker. Files of
// a successful worker have their previous rows replaced. A failed worker
// only replaces the files it finished, and a store it left unreadable is
// skipped. Any other failure discards the whole merge.
func (e *Engine) merge(jobs []WorkerJob, launchErrs []error) (total int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if err != nil {
			if rbErr := e.store.Rollback(); rbErr != nil {
				e.logger.Error("orchestrator.rollback", "error", rbErr)
			}
		}
	}()

	for i, job := range jobs {
		if _, err := os.Stat(job.StorePath); err != nil {
			// The worker died before creating its store.
			continue
		}
		failed := launchErrs[i] != nil
		n, err := e.mergeOne(job, failed)
		total += n
		if err == nil {
			continue
		}
		if failed && errors.Is(err, store.ErrMergeSource) {
			e.logger.Error("orchestrator.merge_skipped",
				"run", job.RunID,
				"chunk", job.Chunk,
				"error", err,
			)
			continue
		}
		return total, err
	}
	if err := e.store.SetMetadata(directoryIndexedKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return total, fmt.Errorf("merge: %w", err)
	}
	if err := e.store.Flush(); err != nil {
		return total, fmt.Errorf("merge: %w", err)
	}
	e.units.Purge()
	return total, nil
}

// mergeOne merges one worker store. Problems with the worker store itself
// are reported as store.ErrMergeSource and leave the master untouched.
func (e *Engine) mergeOne(job WorkerJob, failed bool) (int, error) {
	src, err := store.NewStore(job.StorePath)
	if err != nil {
		return 0, fmt.Errorf("merge chunk %d: %w: %w", job.Chunk, store.ErrMergeSource, err)
	}
	defer src.Close()
	if err := src.Initialize(); err != nil {
		return 0, fmt.Errorf("merge chunk %d: %w: %w", job.Chunk, store.ErrMergeSource, err)
	}

	replace := job.Files
	if failed {
		// Rows are flushed per file, so every file present is complete.
		if replace, err = src.Files(); err != nil {
			return 0, fmt.Errorf("merge chunk %d: %w: %w", job.Chunk, store.ErrMergeSource, err)
		}
	}
	n, err := e.store.MergeFrom(src, replace...)
	if err != nil {
		return n, fmt.Errorf("merge chunk %d: %w", job.Chunk, err)
	}
	e.logger.Debug("orchestrator.merge", "run", job.RunID, "chunk", job.Chunk, "rows", n, "replaced", len(replace))
	return n, nil
}

// removeStore deletes a SQLite file together with its WAL companions.
func removeStore(path string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
}

// Partition splits files into contiguous chunks of ceil(len(files)/n)
// files, preserving order. The last chunk may be shorter; no chunk is
// empty. n below one is treated as one.
func Partition(files []string, n int) [][]string {
	if len(files) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	size := (len(files) + n - 1) / n
	chunks := make([][]string, 0, n)
	for i := 0; i < len(files); i += size {
		end := min(i+size, len(files))
		chunks = append(chunks, files[i:end:end])
	}
	return chunks
}

// discover walks the root for files with an indexed extension, skipping
// the store directory and ignored paths. Hidden directories are only
// skipped through the default ignore patterns. The result is sorted.
func (e *Engine) discover() ([]string, error) {
	var files []string
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == e.root {
				return err
			}
			e.logger.Warn("orchestrator.walk", "path", path, "error", err)
			return nil
		}
		rel, _ := filepath.Rel(e.root, path)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if path == e.root {
				return nil
			}
			if path == e.storeDir || e.ignored(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || e.ignored(rel) {
			return nil
		}
		if e.extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ignored reports whether rel matches an ignore pattern. Directories are
// passed with a trailing slash so "build/**" prunes build/ itself.
func (e *Engine) ignored(rel string) bool {
	for _, g := range e.ignoreGlobs {
		if g.Match(rel) || g.Match(strings.TrimSuffix(rel, "/")) {
			return true
		}
	}
	return false
}
