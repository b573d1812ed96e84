package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
)

const defaultMaxIncludeDepth = 32

// TreeSitter is a Parser built on tree-sitter's C and C++ grammars. It
// performs no preprocessing beyond following #include and tracking
// #define/#undef, so both branches of a conditional are seen.
//
// A TreeSitter holds no parse state between calls.
type TreeSitter struct {
	maxIncludeDepth int
}

// NewTreeSitter returns a tree-sitter backed Parser.
func NewTreeSitter() *TreeSitter {
	return &TreeSitter{maxIncludeDepth: defaultMaxIncludeDepth}
}

// Parse implements Parser.
func (t *TreeSitter) Parse(ctx context.Context, contentsPath, displayPath, compilerArgs, projectRoot string) (*TranslationUnit, error) {
	flags := ParseFlags(compilerArgs, projectRoot)
	dialect := DialectFor(displayPath, flags)

	b := newBuilder(ctx, dialect, flags, projectRoot, t.maxIncludeDepth)
	root := &Cursor{}
	b.stack = []*Cursor{root}
	b.seen[canonicalPath(contentsPath)] = true
	b.seen[canonicalPath(displayPath)] = true
	for name := range flags.Defines {
		b.macros[name] = &Cursor{
			Kind:         KindMacroDefinition,
			Spelling:     name,
			USR:          usrMacro(name),
			Location:     Location{File: "<command line>"},
			IsDefinition: true,
		}
	}

	if err := b.parseFile(contentsPath, displayPath, filepath.Dir(displayPath)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", displayPath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", displayPath, err)
	}
	return NewTranslationUnit(displayPath, root, b.diagnostics), nil
}

// parseFile parses path and walks it with cursors attributed to display.
// dir is where quoted includes are looked up first.
func (b *builder) parseFile(path, display, dir string) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(grammarFor(b.dialect))

	tree, err := p.ParseCtx(b.ctx, nil, src)
	if err != nil {
		return err
	}
	defer tree.Close()

	savedFile, savedDir, savedSrc := b.file, b.dir, b.src
	b.file, b.dir, b.src = display, dir, src
	b.depth++
	before := b.diagnostics
	root := tree.RootNode()
	b.walkChildren(root)
	if root.HasError() && b.diagnostics == before {
		// Only MISSING nodes, which the walk does not visit.
		b.diagnostics++
	}
	b.depth--
	b.file, b.dir, b.src = savedFile, savedDir, savedSrc
	return nil
}

// resolveInclude searches for an included file the way a compiler driver
// does: the includer's directory and -iquote dirs for quoted names, then
// -I and -isystem dirs, then the project root.
func (b *builder) resolveInclude(name string, quoted bool) (string, bool) {
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}
	var dirs []string
	if quoted {
		dirs = append(dirs, b.dir)
		dirs = append(dirs, b.flags.QuoteDirs...)
	}
	dirs = append(dirs, b.flags.IncludeDirs...)
	dirs = append(dirs, b.flags.SystemDirs...)
	if b.root != "" {
		dirs = append(dirs, b.root)
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
