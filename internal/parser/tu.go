package parser

import "context"

// Parser produces translation units. Implementations need not be safe for
// concurrent use.
type Parser interface {
	// Parse reads contentsPath and attributes its main-file cursors to
	// displayPath. compilerArgs is the caller's opaque flag string.
	Parse(ctx context.Context, contentsPath, displayPath, compilerArgs, projectRoot string) (*TranslationUnit, error)
}

// TranslationUnit is a parsed main file together with every header it
// pulled in.
type TranslationUnit struct {
	spelling    string
	root        *Cursor
	diagnostics int
}

// NewTranslationUnit wraps a cursor tree. spelling is the main file's
// display path; root's Children are the unit's top-level cursors.
func NewTranslationUnit(spelling string, root *Cursor, diagnostics int) *TranslationUnit {
	if root == nil {
		root = &Cursor{}
	}
	root.Kind = KindTranslationUnit
	root.Spelling = spelling
	root.Location = Location{File: spelling}
	return &TranslationUnit{spelling: spelling, root: root, diagnostics: diagnostics}
}

// Spelling returns the main file's display path.
func (tu *TranslationUnit) Spelling() string { return tu.spelling }

// Cursor returns the root cursor.
func (tu *TranslationUnit) Cursor() *Cursor { return tu.root }

// Diagnostics returns the number of problems found while parsing:
// syntax errors and unresolved includes.
func (tu *TranslationUnit) Diagnostics() int { return tu.diagnostics }

// CursorAt returns the innermost main-file cursor whose name token covers
// line:col, or nil.
func (tu *TranslationUnit) CursorAt(line, col int) *Cursor {
	var found *Cursor
	Traverse(tu.root, func(c, _ *Cursor) ChildVisit {
		if c.Location.File != tu.spelling {
			return Continue
		}
		if c.Contains(line, col) {
			found = c
		}
		return Recurse
	})
	return found
}

// DefinitionAt resolves the entity under line:col and returns the cursor
// that defines it anywhere in the unit, headers included. It returns nil
// when the position names nothing or the definition is not visible to
// this unit.
func (tu *TranslationUnit) DefinitionAt(line, col int) *Cursor {
	c := tu.CursorAt(line, col)
	if c == nil {
		return nil
	}
	if c.Referenced == nil && c.IsDefinition {
		return c
	}
	usr := c.CanonicalUSR()
	if usr == "" {
		return nil
	}
	var def *Cursor
	Traverse(tu.root, func(d, _ *Cursor) ChildVisit {
		if d.USR == usr && d.IsDefinition && !d.Kind.IsReference() {
			def = d
			return Break
		}
		return Recurse
	})
	return def
}
