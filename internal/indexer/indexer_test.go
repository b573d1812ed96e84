package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

// memSink collects rows in memory.
type memSink struct {
	rows    []store.Symbol
	flushes int
	failOn  int
}

func (m *memSink) Insert(sym store.Symbol) error {
	if m.failOn > 0 && len(m.rows)+1 == m.failOn {
		return errors.New("sink full")
	}
	m.rows = append(m.rows, sym)
	return nil
}

func (m *memSink) Flush() error {
	m.flushes++
	return nil
}

// fakeParser returns a fixed translation unit or error.
type fakeParser struct {
	tu  *parser.TranslationUnit
	err error
}

func (f fakeParser) Parse(context.Context, string, string, string, string) (*parser.TranslationUnit, error) {
	return f.tu, f.err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// =============================================================================
// Classify
// =============================================================================

func TestClassify_Declarations(t *testing.T) {
	t.Parallel()
	cases := map[parser.Kind]store.SymbolType{
		parser.KindFunctionDecl:     store.Function,
		parser.KindCXXMethod:        store.Function,
		parser.KindConstructor:      store.Function,
		parser.KindDestructor:       store.Function,
		parser.KindStructDecl:       store.UserDefinedType,
		parser.KindClassDecl:        store.UserDefinedType,
		parser.KindUnionDecl:        store.UserDefinedType,
		parser.KindEnumDecl:         store.UserDefinedType,
		parser.KindEnumConstantDecl: store.UserDefinedType,
		parser.KindTypedefDecl:      store.UserDefinedType,
		parser.KindTypeAliasDecl:    store.UserDefinedType,
		parser.KindVarDecl:          store.Variable,
		parser.KindParmDecl:         store.Variable,
		parser.KindFieldDecl:        store.Variable,
		parser.KindMacroDefinition:  store.Macro,
	}
	for kind, want := range cases {
		got, ok := Classify(&parser.Cursor{Kind: kind})
		require.True(t, ok, kind)
		assert.Equal(t, want, got, kind)
	}
}

func TestClassify_ReferencesFollowTarget(t *testing.T) {
	t.Parallel()
	fn := &parser.Cursor{Kind: parser.KindFunctionDecl}
	field := &parser.Cursor{Kind: parser.KindFieldDecl}
	rec := &parser.Cursor{Kind: parser.KindStructDecl}

	got, ok := Classify(&parser.Cursor{Kind: parser.KindCallExpr, Referenced: fn})
	require.True(t, ok)
	assert.Equal(t, store.Function, got)

	got, ok = Classify(&parser.Cursor{Kind: parser.KindMemberRefExpr, Referenced: field})
	require.True(t, ok)
	assert.Equal(t, store.Variable, got)

	got, ok = Classify(&parser.Cursor{Kind: parser.KindTypeRef, Referenced: rec})
	require.True(t, ok)
	assert.Equal(t, store.UserDefinedType, got)

	// A DeclRefExpr naming a function is a Function reference.
	got, ok = Classify(&parser.Cursor{Kind: parser.KindDeclRefExpr, Referenced: fn})
	require.True(t, ok)
	assert.Equal(t, store.Function, got)
}

func TestClassify_MacroInstantiation(t *testing.T) {
	t.Parallel()
	got, ok := Classify(&parser.Cursor{Kind: parser.KindMacroInstantiation})
	require.True(t, ok)
	assert.Equal(t, store.Macro, got)
}

func TestClassify_Unclassified(t *testing.T) {
	t.Parallel()
	for _, c := range []*parser.Cursor{
		{Kind: parser.KindNamespace},
		{Kind: parser.KindInclusionDirective},
		{Kind: parser.KindTranslationUnit},
		{Kind: parser.KindDeclRefExpr},
		{Kind: parser.KindTypeRef, Referenced: &parser.Cursor{Kind: parser.KindNamespace}},
	} {
		_, ok := Classify(c)
		assert.False(t, ok, c.Kind)
	}
}

// =============================================================================
// IndexFile with synthetic translation units
// =============================================================================

func syntheticTU() *parser.TranslationUnit {
	decl := &parser.Cursor{
		Kind: parser.KindFunctionDecl, Spelling: "f", USR: "c:@F@f", IsDefinition: true,
		Location: parser.Location{File: "main.c", Line: 3, Column: 5},
	}
	call := &parser.Cursor{
		Kind: parser.KindCallExpr, Spelling: "f", Referenced: decl,
		Location: parser.Location{File: "main.c", Line: 4, Column: 12},
	}
	decl.Children = []*parser.Cursor{call}
	header := &parser.Cursor{
		Kind: parser.KindStructDecl, Spelling: "s", USR: "c:@S@s",
		Location: parser.Location{File: "s.h", Line: 1, Column: 8},
		Children: []*parser.Cursor{{
			Kind: parser.KindFieldDecl, Spelling: "m", USR: "c:@S@s@FI@m",
			Location: parser.Location{File: "s.h", Line: 1, Column: 16},
		}},
	}
	ns := &parser.Cursor{Kind: parser.KindInclusionDirective, Location: parser.Location{File: "main.c", Line: 1, Column: 1}}
	return parser.NewTranslationUnit("main.c", &parser.Cursor{Children: []*parser.Cursor{ns, header, decl}}, 2)
}

func TestIndexFile_Synthetic(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	res, err := IndexFile(context.Background(), fakeParser{tu: syntheticTU()}, "", "main.c", "main.c", "", sink, nil)
	require.NoError(t, err)

	assert.True(t, res.Parsed)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, res.Diagnostics)
	assert.Equal(t, 1, sink.flushes)
	assert.Equal(t, []store.Symbol{
		{Filename: "main.c", USR: "c:@F@f", Line: 3, Column: 5, Type: store.Function},
		{Filename: "main.c", USR: "c:@F@f", Line: 4, Column: 12, Type: store.Function},
	}, sink.rows)
}

func TestIndexFile_ParseFailureLeavesSinkUntouched(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	res, err := IndexFile(context.Background(), fakeParser{err: errors.New("boom")}, "", "x.c", "x.c", "", sink, nil)
	require.NoError(t, err)
	assert.False(t, res.Parsed)
	assert.Empty(t, sink.rows)
	assert.Zero(t, sink.flushes)
}

func TestIndexFile_CanceledContextIsAnError(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &memSink{}
	res, err := IndexFile(ctx, fakeParser{err: ctx.Err()}, "", "x.c", "x.c", "", sink, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Parsed)
	assert.Zero(t, sink.flushes)
}

func TestIndexFile_SinkErrorPropagates(t *testing.T) {
	t.Parallel()
	sink := &memSink{failOn: 2}
	_, err := IndexFile(context.Background(), fakeParser{tu: syntheticTU()}, "", "main.c", "main.c", "", sink, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink full")
	assert.Len(t, sink.rows, 1)
	assert.Zero(t, sink.flushes)
}

// =============================================================================
// IndexFile with the tree-sitter parser and a real store
// =============================================================================

func TestIndexFile_ExcludesIncludedRows(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "point.h", "struct point { int x; int y; };\n")
	main := writeFile(t, dir, "main.c", "#include \"point.h\"\nint norm(struct point p) { return p.x; }\n")

	s, err := store.NewStore(filepath.Join(dir, "symbols.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Initialize())

	res, err := IndexFile(context.Background(), parser.NewTreeSitter(), dir, main, main, "", s, nil)
	require.NoError(t, err)
	require.True(t, res.Parsed)

	rows, err := store.Collect(s.Scan())
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Equal(t, main, r.Filename)
	}

	files, err := s.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{main}, files)

	// The field reference is recorded under the header's field USR.
	fieldRefs, err := store.Collect(s.Lookup("c:@S@point@FI@x"))
	require.NoError(t, err)
	require.Len(t, fieldRefs, 1)
	assert.Equal(t, store.Variable, fieldRefs[0].Type)
	assert.Equal(t, 2, fieldRefs[0].Line)
}

func TestIndexFile_AllCategories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	main := writeFile(t, dir, "all.c", "#define ONE 1\nstruct s { int v; };\nint g = ONE;\nint f(struct s *p) { return p->v + g; }\n")

	sink := &memSink{}
	_, err := IndexFile(context.Background(), parser.NewTreeSitter(), dir, main, main, "", sink, nil)
	require.NoError(t, err)

	seen := map[store.SymbolType]bool{}
	for _, r := range sink.rows {
		seen[r.Type] = true
		assert.NotEmpty(t, r.USR)
		assert.Positive(t, r.Line)
		assert.Positive(t, r.Column)
	}
	assert.True(t, seen[store.Function])
	assert.True(t, seen[store.Variable])
	assert.True(t, seen[store.UserDefinedType])
	assert.True(t, seen[store.Macro])
}

func TestIndexFile_MissingFileIsSkipped(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	res, err := IndexFile(context.Background(), parser.NewTreeSitter(), "", "/nonexistent/x.c", "/nonexistent/x.c", "", sink, nil)
	require.NoError(t, err)
	assert.False(t, res.Parsed)
	assert.Empty(t, sink.rows)
}
