package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/symdex"
)

var flagWatchIndex bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-index C/C++ files as they change",
	Long:  "Watches the project root and re-indexes saved C/C++ files, dropping the rows of deleted or renamed ones, until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchIndex, "index", false, "index the project before watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runner, err := loadHook()
	if err != nil {
		return outputError("watch", err)
	}
	root, err := projectRoot()
	if err != nil {
		return outputError("watch", err)
	}

	var hookErr error
	d := symdex.NewDispatcher(hookCallback(ctx, runner, nil, &hookErr), logger, engineOptions(root)...)
	defer d.Close()

	if flagWatchIndex {
		if err := d.Dispatch(ctx, symdex.Request{Op: symdex.OpIndexDirectory, Args: []string{root, flagCompilerArgs}}); err != nil {
			return outputError("watch", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return outputError("watch", fmt.Errorf("creating watcher: %w", err))
	}
	defer fsw.Close()

	w := newFileWatcher(root, d, logger)
	w.add = fsw.Add
	if err := w.addTree(root); err != nil {
		return outputError("watch", err)
	}
	logger.Info("watch.start", "root", root)

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch.stop", "root", root)
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			// Failures are logged by the dispatcher; keep watching.
			_ = w.handle(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch.error", "error", err)
		}
	}
}

// fileWatcher turns file system events into dispatcher requests.
type fileWatcher struct {
	root       string
	storeDir   string
	extensions map[string]bool
	dispatcher *symdex.Dispatcher
	logger     *slog.Logger
	// add registers a directory with the underlying watcher.
	add func(string) error
}

func newFileWatcher(root string, d *symdex.Dispatcher, logger *slog.Logger) *fileWatcher {
	exts := make(map[string]bool, len(cfg.Index.Extensions))
	for _, ext := range cfg.Index.Extensions {
		exts[strings.ToLower(ext)] = true
	}
	storeDir := cfg.Index.StoreDir
	if !filepath.IsAbs(storeDir) {
		storeDir = filepath.Join(root, storeDir)
	}
	return &fileWatcher{
		root:       root,
		storeDir:   storeDir,
		extensions: exts,
		dispatcher: d,
		logger:     logger,
		add:        func(string) error { return nil },
	}
}

// addTree registers dir and its subdirectories, skipping hidden
// directories and the store directory.
func (w *fileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("watch.walk", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && (strings.HasPrefix(d.Name(), ".") || path == w.storeDir) {
			return filepath.SkipDir
		}
		if err := w.add(path); err != nil {
			w.logger.Warn("watch.add", "path", path, "error", err)
		}
		return nil
	})
}

// handle re-indexes written or created sources and drops removed or
// renamed ones. New directories are watched too.
func (w *fileWatcher) handle(ctx context.Context, event fsnotify.Event) error {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return w.addTree(event.Name)
		}
	}
	if !w.extensions[strings.ToLower(filepath.Ext(event.Name))] {
		return nil
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return w.dispatcher.Dispatch(ctx, symdex.Request{
			Op:   symdex.OpDropFile,
			Args: []string{w.root, event.Name},
		})
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		return w.dispatcher.Dispatch(ctx, symdex.Request{
			Op:   symdex.OpIndexFile,
			Args: []string{w.root, event.Name, event.Name, flagCompilerArgs},
		})
	}
	return nil
}
