package symdex

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/symdex/internal/config"
	"github.com/jward/symdex/internal/indexer"
	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

const (
	// masterStoreName is the master store's file name inside the store dir.
	masterStoreName = "symbols.db"

	// directoryIndexedKey marks a completed directory pass. Its presence
	// makes IndexDirectory a no-op until a drop clears it.
	directoryIndexedKey = "directory_indexed_at"
)

// Engine owns one project's master store and parser. Its methods are safe
// for concurrent use; parsing and store access are serialized because the
// parser is not reentrant.
type Engine struct {
	root     string
	storeDir string
	store    *store.Store
	logger   *slog.Logger

	mu     sync.Mutex
	parser parser.Parser
	units  *lru.Cache[string, cachedUnit]

	compilerArgs string
	extensions   map[string]bool
	ignore       []string
	ignoreGlobs  []glob.Glob
	workers      int
	timeout      time.Duration
	cacheSize    int
	launcher     WorkerLauncher
	progress     ProgressFunc
}

// ProgressFunc reports directory indexing progress as files whose worker
// has finished, out of the files discovered.
type ProgressFunc func(done, total int)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithParser replaces the tree-sitter parser used for single-file
// indexing and queries. Directory workers construct their own.
func WithParser(p parser.Parser) Option {
	return func(e *Engine) {
		e.parser = p
	}
}

// WithStoreDir sets where the master and worker stores live. Relative
// paths are resolved against the project root.
func WithStoreDir(dir string) Option {
	return func(e *Engine) {
		e.storeDir = dir
	}
}

// WithCompilerArgs sets the flags used when a call passes none.
func WithCompilerArgs(args string) Option {
	return func(e *Engine) {
		e.compilerArgs = args
	}
}

// WithExtensions restricts directory discovery to the given suffixes.
func WithExtensions(exts ...string) Option {
	return func(e *Engine) {
		e.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			e.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithIgnore sets glob patterns, relative to the root with '/' separators,
// of files and directories directory discovery skips.
func WithIgnore(patterns ...string) Option {
	return func(e *Engine) {
		e.ignore = patterns
	}
}

// WithWorkers sets the number of directory workers. Zero or less means one
// per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithWorkerTimeout bounds each directory worker. Zero disables the bound.
func WithWorkerTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithCacheSize sets how many parsed translation units queries keep.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithLauncher sets how directory workers are started. Defaults to
// re-executing the running binary.
func WithLauncher(l WorkerLauncher) Option {
	return func(e *Engine) {
		e.launcher = l
	}
}

// WithProgress registers a directory indexing progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// ConfigOptions converts a loaded configuration into Engine options.
func ConfigOptions(cfg *config.Config) []Option {
	return []Option{
		WithStoreDir(cfg.Index.StoreDir),
		WithCompilerArgs(cfg.Index.CompilerArgs),
		WithExtensions(cfg.Index.Extensions...),
		WithIgnore(cfg.Index.Ignore...),
		WithWorkers(cfg.Workers.Count),
		WithWorkerTimeout(cfg.Workers.Timeout),
		WithCacheSize(cfg.Query.CacheSize),
	}
}

// New opens (creating if needed) the master store for the project at root.
// A store that cannot be opened or created yields an error wrapping
// ErrStoreOpen.
func New(root string, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("symdex: resolve root: %w", err)
	}
	d := config.Default()
	e := &Engine{
		root:      abs,
		storeDir:  d.Index.StoreDir,
		logger:    slog.Default(),
		ignore:    d.Index.Ignore,
		timeout:   d.Workers.Timeout,
		cacheSize: d.Query.CacheSize,
	}
	WithExtensions(d.Index.Extensions...)(e)
	for _, opt := range opts {
		opt(e)
	}

	if !filepath.IsAbs(e.storeDir) {
		e.storeDir = filepath.Join(e.root, e.storeDir)
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.cacheSize <= 0 {
		e.cacheSize = d.Query.CacheSize
	}
	if e.parser == nil {
		e.parser = parser.NewTreeSitter()
	}
	if e.launcher == nil {
		e.launcher = NewProcessLauncher()
	}
	if e.ignoreGlobs, err = config.CompileIgnore(e.ignore); err != nil {
		return nil, fmt.Errorf("symdex: %w", err)
	}
	if e.units, err = lru.New[string, cachedUnit](e.cacheSize); err != nil {
		return nil, fmt.Errorf("symdex: tree cache: %w", err)
	}

	if err := os.MkdirAll(e.storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("symdex: %w %s: %w", store.ErrStoreOpen, e.storeDir, err)
	}
	s, err := store.NewStore(filepath.Join(e.storeDir, masterStoreName))
	if err != nil {
		return nil, fmt.Errorf("symdex: %w", err)
	}
	if err := s.Initialize(); err != nil {
		s.Close()
		return nil, fmt.Errorf("symdex: %w: %w", store.ErrStoreOpen, err)
	}
	e.store = s
	return e, nil
}

// Close releases the master store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.units.Purge()
	return e.store.Close()
}

// Root returns the absolute project root.
func (e *Engine) Root() string {
	return e.root
}

// Store returns the master store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// path makes a caller-supplied filename absolute and clean so that every
// row of one file carries the same name. Relative names are taken to be
// relative to the project root.
func (e *Engine) path(name string) string {
	if name == "" {
		return ""
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(e.root, name)
	}
	return filepath.Clean(name)
}

func (e *Engine) args(compilerArgs string) string {
	if compilerArgs == "" {
		return e.compilerArgs
	}
	return compilerArgs
}

// IndexFile re-indexes one file into the master store: its previous rows
// are replaced by the rows of a fresh parse. contentsPath is read while
// rows are recorded under displayPath, so unsaved editor buffers can be
// indexed. Relative paths are resolved against the project root. A file
// that fails to parse is logged and leaves the store unchanged.
func (e *Engine) IndexFile(ctx context.Context, contentsPath, displayPath, compilerArgs string) (IndexResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	contentsPath, displayPath = e.path(contentsPath), e.path(displayPath)

	sink := &replacingSink{store: e.store, file: displayPath}
	res, err := indexer.IndexFile(ctx, e.parser, e.root, contentsPath, displayPath, e.args(compilerArgs), sink, e.logger)
	if err != nil {
		return res, fmt.Errorf("symdex: %w", err)
	}
	e.units.Remove(displayPath)
	return res, nil
}

// DropFile removes every row recorded for filename and clears the
// directory marker so the next IndexDirectory runs again. A relative
// filename is resolved against the project root.
func (e *Engine) DropFile(filename string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	filename = e.path(filename)

	if err := e.store.DeleteByFile(filename); err != nil {
		return fmt.Errorf("symdex: drop %s: %w", filename, err)
	}
	if err := e.store.DeleteMetadata(directoryIndexedKey); err != nil {
		return fmt.Errorf("symdex: drop %s: %w", filename, err)
	}
	if err := e.store.Flush(); err != nil {
		return fmt.Errorf("symdex: drop %s: %w", filename, err)
	}
	e.units.Remove(filename)
	e.logger.Info("engine.drop_file", "file", filename)
	return nil
}

// DropAll removes every row and the directory marker.
func (e *Engine) DropAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.DeleteAll(); err != nil {
		return fmt.Errorf("symdex: drop all: %w", err)
	}
	if err := e.store.DeleteMetadata(directoryIndexedKey); err != nil {
		return fmt.Errorf("symdex: drop all: %w", err)
	}
	if err := e.store.Flush(); err != nil {
		return fmt.Errorf("symdex: drop all: %w", err)
	}
	e.units.Purge()
	e.logger.Info("engine.drop_all", "root", e.root)
	return nil
}

// Indexed reports whether a directory pass has completed since the last
// drop.
func (e *Engine) Indexed() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.store.GetMetadata(directoryIndexedKey)
	if err != nil {
		return false, fmt.Errorf("symdex: %w", err)
	}
	return v != "", nil
}

// replacingSink deletes a file's previous rows before its first new row,
// or at flush when the fresh parse produced none. A parse failure calls
// neither method, so the store is left untouched.
type replacingSink struct {
	store   *store.Store
	file    string
	cleared bool
}

func (r *replacingSink) clear() error {
	if r.cleared {
		return nil
	}
	r.cleared = true
	return r.store.DeleteByFile(r.file)
}

func (r *replacingSink) Insert(sym store.Symbol) error {
	if err := r.clear(); err != nil {
		return err
	}
	return r.store.Insert(sym)
}

func (r *replacingSink) Flush() error {
	if err := r.clear(); err != nil {
		return err
	}
	return r.store.Flush()
}
