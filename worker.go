package symdex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/jward/symdex/internal/indexer"
	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

// WorkerJob is one chunk of a directory pass, sent to a worker as JSON.
type WorkerJob struct {
	RunID        string   `json:"run_id"`
	Chunk        int      `json:"chunk"`
	Root         string   `json:"root"`
	StorePath    string   `json:"store_path"`
	CompilerArgs string   `json:"compiler_args"`
	Files        []string `json:"files"`
}

// WorkerLauncher runs one WorkerJob to completion. The job's store must
// be flushed and closed by the time Launch returns.
type WorkerLauncher interface {
	Launch(ctx context.Context, job WorkerJob) error
}

// ProcessLauncher runs each job in a fresh OS process, so every worker
// starts with its own parser state. The child receives the job on stdin
// and must hand it to ServeWorker.
type ProcessLauncher struct {
	// Path is the executable. Empty means the running binary.
	Path string
	// Args are passed to the executable, e.g. a "worker" subcommand.
	Args []string
	// Env, when non-nil, replaces the inherited environment.
	Env []string
	// Stderr receives the worker's logs. Nil means os.Stderr.
	Stderr io.Writer
	// WaitDelay bounds how long Launch waits for I/O after the process
	// is killed on cancellation.
	WaitDelay time.Duration
}

// NewProcessLauncher returns a launcher that re-executes the running
// binary with a "worker" argument followed by extra.
func NewProcessLauncher(extra ...string) *ProcessLauncher {
	return &ProcessLauncher{
		Args:      append([]string{"worker"}, extra...),
		WaitDelay: 5 * time.Second,
	}
}

// Launch implements WorkerLauncher.
func (l *ProcessLauncher) Launch(ctx context.Context, job WorkerJob) error {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("worker %d: locate executable: %w", job.Chunk, err)
		}
		path = exe
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("worker %d: encode job: %w", job.Chunk, err)
	}

	cmd := exec.CommandContext(ctx, path, l.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = io.Discard
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if l.Env != nil {
		cmd.Env = l.Env
	}
	cmd.WaitDelay = l.WaitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("worker %d: %w: %w", job.Chunk, ctxErr, err)
		}
		return fmt.Errorf("worker %d: %w", job.Chunk, err)
	}
	return nil
}

// InProcessLauncher runs jobs on goroutines of the calling process. It
// gives up process isolation and is meant for embedding and tests; each
// job still gets its own parser and store.
type InProcessLauncher struct {
	NewParser func() parser.Parser
	Logger    *slog.Logger
}

// Launch implements WorkerLauncher.
func (l *InProcessLauncher) Launch(ctx context.Context, job WorkerJob) error {
	newParser := l.NewParser
	if newParser == nil {
		newParser = func() parser.Parser { return parser.NewTreeSitter() }
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return runJob(ctx, job, newParser(), logger)
}

// ServeWorker is the worker-side entry point: it decodes a WorkerJob from
// r and indexes every file of the chunk into the job's private store.
func ServeWorker(ctx context.Context, r io.Reader, p parser.Parser, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var job WorkerJob
	if err := json.NewDecoder(r).Decode(&job); err != nil {
		return fmt.Errorf("worker: decode job: %w", err)
	}
	return runJob(ctx, job, p, logger)
}

func runJob(ctx context.Context, job WorkerJob, p parser.Parser, logger *slog.Logger) (err error) {
	if job.StorePath == "" {
		return errors.New("worker: job has no store path")
	}
	logger = logger.With("run", job.RunID, "chunk", job.Chunk)
	start := time.Now()

	s, err := store.NewStore(job.StorePath)
	if err != nil {
		return fmt.Errorf("worker %d: %w", job.Chunk, err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("worker %d: %w", job.Chunk, cerr)
		}
	}()
	if err := s.Initialize(); err != nil {
		return fmt.Errorf("worker %d: %w", job.Chunk, err)
	}

	rows, parsed := 0, 0
	for _, file := range job.Files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("worker %d: %w", job.Chunk, err)
		}
		res, err := indexer.IndexFile(ctx, p, job.Root, file, file, job.CompilerArgs, s, logger)
		if err != nil {
			return fmt.Errorf("worker %d: %w", job.Chunk, err)
		}
		rows += res.Rows
		if res.Parsed {
			parsed++
		}
	}

	logger.Info("worker.done",
		"files", len(job.Files),
		"parsed", parsed,
		"rows", rows,
		"duration", time.Since(start),
	)
	return nil
}
