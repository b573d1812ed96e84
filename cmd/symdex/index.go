package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jward/symdex"
	"github.com/jward/symdex/internal/parser"
)

var (
	flagForce        bool
	flagInProcess    bool
	flagNoProgress   bool
	flagCompilerArgs string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index every C/C++ file under the project root",
	Long: "Partitions the project's C/C++ files across worker processes, indexes each chunk into a private store and merges the results into the project's symbol store. " +
		"A project is indexed once; use --force or drop to index it again.",
	Args: cobra.NoArgs,
	RunE: runIndex,
}

var indexFileCmd = &cobra.Command{
	Use:   "index-file <file> [contents]",
	Short: "Re-index one file",
	Long:  "Replaces the rows recorded for <file> with a fresh parse. When [contents] is given it is parsed instead, e.g. an unsaved editor buffer, while rows are still recorded under <file>.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runIndexFile,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "drop the existing index and reindex from scratch")
	indexCmd.Flags().BoolVar(&flagInProcess, "in-process", false, "run workers as goroutines instead of processes")
	indexCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "disable the progress bar")

	for _, c := range []*cobra.Command{indexCmd, indexFileCmd, watchCmd} {
		c.Flags().StringVar(&flagCompilerArgs, "compiler-args", "", "compiler flags, e.g. \"-Iinclude -DDEBUG\" (default: index.compiler_args)")
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	var opts []symdex.Option
	if !flagNoProgress && flagFormat == "text" {
		opts = append(opts, symdex.WithProgress(newProgress()))
	}
	if flagInProcess {
		opts = append(opts, symdex.WithLauncher(&symdex.InProcessLauncher{
			NewParser: func() parser.Parser { return parser.NewTreeSitter() },
			Logger:    logger,
		}))
	}
	e, err := openEngine(opts...)
	if err != nil {
		return outputError("index", err)
	}
	defer e.Close()

	if flagForce {
		if err := e.DropAll(); err != nil {
			return outputError("index", fmt.Errorf("clearing index for --force: %w", err))
		}
		fmt.Fprintf(os.Stderr, "Cleared index: %s\n", e.Root())
	}

	res, err := e.IndexDirectory(cmd.Context(), flagCompilerArgs)
	if err != nil {
		return outputError("index", err)
	}
	return outputResult(CLIResult{
		Command: "index",
		Results: CLIIndexSummary{
			Root:          res.Root,
			RunID:         res.RunID,
			Skipped:       res.Skipped,
			Files:         res.Files,
			Chunks:        res.Chunks,
			FailedWorkers: res.FailedWorkers,
			Rows:          res.RowsMerged,
			DurationMS:    res.Duration.Milliseconds(),
		},
	})
}

func runIndexFile(cmd *cobra.Command, args []string) error {
	display, err := resolveFilePath(args[0])
	if err != nil {
		return outputError("index-file", err)
	}
	contents := display
	if len(args) > 1 {
		if contents, err = resolveFilePath(args[1]); err != nil {
			return outputError("index-file", err)
		}
	}

	e, err := openEngine()
	if err != nil {
		return outputError("index-file", err)
	}
	defer e.Close()

	res, err := e.IndexFile(cmd.Context(), contents, display, flagCompilerArgs)
	if err != nil {
		return outputError("index-file", err)
	}
	if !res.Parsed {
		return outputError("index-file", fmt.Errorf("parsing %s failed; index unchanged", display))
	}
	return outputResult(CLIResult{
		Command: "index-file",
		Results: CLIIndexSummary{
			Root:       e.Root(),
			Files:      1,
			Rows:       res.Rows,
			DurationMS: res.Duration.Milliseconds(),
		},
	})
}

// newProgress returns a ProgressFunc drawing a bar on stderr. The bar is
// created on the first report, once the file count is known.
func newProgress() symdex.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Indexing files"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		_ = bar.Set(done)
	}
}
