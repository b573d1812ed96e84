// Package indexer extracts symbol rows from a single translation unit.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

// Sink receives symbol rows. *store.Store satisfies it.
type Sink interface {
	Insert(sym store.Symbol) error
	Flush() error
}

// Result summarizes one IndexFile call.
type Result struct {
	File        string
	Rows        int
	Diagnostics int
	Parsed      bool
	Duration    time.Duration
}

// IndexFile parses contentsPath and records every classified cursor that
// belongs to the main file under displayPath, then flushes the sink.
//
// A file that fails to parse is logged and skipped: the sink is left
// untouched and no error is returned. Errors come only from the sink and
// from ctx being done.
func IndexFile(ctx context.Context, p parser.Parser, projectRoot, contentsPath, displayPath, compilerArgs string, sink Sink, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	res := Result{File: displayPath}

	tu, err := p.Parse(ctx, contentsPath, displayPath, compilerArgs, projectRoot)
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Duration = time.Since(start)
		return res, fmt.Errorf("index %s: %w", displayPath, ctxErr)
	}
	if err != nil || tu == nil {
		res.Duration = time.Since(start)
		logger.Warn("index.parse_failed", "file", displayPath, "error", err, "duration", res.Duration)
		return res, nil
	}
	res.Parsed = true
	res.Diagnostics = tu.Diagnostics()

	var insertErr error
	parser.Traverse(tu.Cursor(), func(c, _ *parser.Cursor) parser.ChildVisit {
		// Cursors contributed by includes are pruned with their subtree.
		if c.Location.File != tu.Spelling() {
			return parser.Continue
		}
		typ, ok := Classify(c)
		if !ok {
			return parser.Recurse
		}
		usr := c.CanonicalUSR()
		if usr == "" {
			return parser.Recurse
		}
		if err := sink.Insert(store.Symbol{
			Filename: tu.Spelling(),
			USR:      usr,
			Line:     c.Location.Line,
			Column:   c.Location.Column,
			Type:     typ,
		}); err != nil {
			insertErr = err
			return parser.Break
		}
		res.Rows++
		return parser.Recurse
	})
	if insertErr != nil {
		return res, fmt.Errorf("index %s: %w", displayPath, insertErr)
	}
	if err := sink.Flush(); err != nil {
		return res, fmt.Errorf("index %s: %w", displayPath, err)
	}

	res.Duration = time.Since(start)
	logger.Debug("index.file",
		"file", displayPath,
		"rows", res.Rows,
		"diagnostics", res.Diagnostics,
		"duration", res.Duration,
	)
	return res, nil
}
