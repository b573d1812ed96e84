package symdex

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jward/symdex/internal/indexer"
	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

// QueryBuilder answers position queries against an Engine's master store.
type QueryBuilder struct {
	engine *Engine
}

// Query returns a QueryBuilder bound to the Engine.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{engine: e}
}

// cachedUnit is a parsed file kept for repeated queries.
type cachedUnit struct {
	tu      *parser.TranslationUnit
	args    string
	modTime time.Time
}

// DefinitionAt returns where the entity at (line, col) of file is defined,
// or nil when nothing resolves. It never touches the store.
func (q *QueryBuilder) DefinitionAt(ctx context.Context, file, compilerArgs string, line, col int) (*Location, error) {
	e := q.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	tu, err := e.unit(ctx, file, compilerArgs)
	if err != nil {
		return nil, fmt.Errorf("definition at: %w", err)
	}
	def := tu.DefinitionAt(line, col)
	if def == nil {
		return nil, nil
	}
	loc := def.Location
	return &loc, nil
}

// ReferencesAt returns every indexed row, across the whole project, that
// shares the canonical USR of the entity at (line, col) of file. The
// result is empty when no cursor resolves there or its kind is not
// indexed.
func (q *QueryBuilder) ReferencesAt(ctx context.Context, file, compilerArgs string, line, col int) ([]Symbol, error) {
	e := q.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	tu, err := e.unit(ctx, file, compilerArgs)
	if err != nil {
		return nil, fmt.Errorf("references at: %w", err)
	}
	refs := []Symbol{}
	c := tu.CursorAt(line, col)
	if c == nil {
		return refs, nil
	}
	if _, ok := indexer.Classify(c); !ok {
		return refs, nil
	}
	usr := c.CanonicalUSR()
	if usr == "" {
		return refs, nil
	}
	rows, err := store.Collect(e.store.Lookup(usr))
	if err != nil {
		return nil, fmt.Errorf("references at: %w", err)
	}
	refs = append(refs, rows...)

	e.logger.Debug("query.references",
		"file", file,
		"usr", usr,
		"rows", len(refs),
		"duration", time.Since(start),
	)
	return refs, nil
}

// unit returns a parsed translation unit for file, reusing the cached one
// while the compiler args and the file's modification time are unchanged.
// Caller holds e.mu.
func (e *Engine) unit(ctx context.Context, file, compilerArgs string) (*parser.TranslationUnit, error) {
	file = e.path(file)
	args := e.args(compilerArgs)
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if cu, ok := e.units.Get(file); ok && cu.args == args && cu.modTime.Equal(info.ModTime()) {
		return cu.tu, nil
	}
	tu, err := e.parser.Parse(ctx, file, file, args, e.root)
	if err != nil {
		return nil, err
	}
	e.units.Add(file, cachedUnit{tu: tu, args: args, modTime: info.ModTime()})
	return tu, nil
}
