package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/symdex"
	"github.com/jward/symdex/internal/config"
)

var (
	flagRoot     string
	flagFormat   string
	flagLogLevel string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// Set by PersistentPreRunE for every command.
var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "symdex",
	Short:         "C/C++ symbol indexer",
	Long:          "Symdex indexes C and C++ sources into a SQLite symbol store and answers go-to-definition and find-all-references queries against it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup()
	},
	// No Run: prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "project root (default: enclosing git repository or the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(indexFileCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(workerCmd)
}

// setup loads the project configuration and builds the logger.
func setup() error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err = config.Load(root)
	if err != nil {
		return err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	logger, err = newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// projectRoot resolves --root, falling back to the repository enclosing
// the working directory.
func projectRoot() (string, error) {
	if flagRoot != "" {
		return resolveTargetDir([]string{flagRoot})
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	return findRepoRoot(cwd), nil
}

// engineOptions returns the Engine options for the loaded configuration.
// Directory workers re-execute this binary against the same root and log
// level, so their logs match the parent's.
func engineOptions(root string) []symdex.Option {
	opts := symdex.ConfigOptions(cfg)
	return append(opts,
		symdex.WithLogger(logger),
		symdex.WithLauncher(symdex.NewProcessLauncher("--root", root, "--log-level", cfg.Log.Level)),
	)
}

// openEngine opens the Engine for the project root.
func openEngine(extra ...symdex.Option) (*symdex.Engine, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	e, err := symdex.New(root, append(engineOptions(root), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return e, nil
}

// resolveTargetDir returns the absolute path of the directory named by
// args[0], or the working directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding .git.
			return startDir
		}
		dir = parent
	}
}
