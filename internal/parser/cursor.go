package parser

// Kind is the semantic kind of a cursor. The names follow libclang's
// CXCursorKind spelling so logs stay familiar to C/C++ tooling users.
type Kind string

const (
	KindTranslationUnit    Kind = "TranslationUnit"
	KindFunctionDecl       Kind = "FunctionDecl"
	KindCXXMethod          Kind = "CXXMethod"
	KindConstructor        Kind = "Constructor"
	KindDestructor         Kind = "Destructor"
	KindClassDecl          Kind = "ClassDecl"
	KindStructDecl         Kind = "StructDecl"
	KindUnionDecl          Kind = "UnionDecl"
	KindEnumDecl           Kind = "EnumDecl"
	KindEnumConstantDecl   Kind = "EnumConstantDecl"
	KindTypedefDecl        Kind = "TypedefDecl"
	KindTypeAliasDecl      Kind = "TypeAliasDecl"
	KindVarDecl            Kind = "VarDecl"
	KindParmDecl           Kind = "ParmDecl"
	KindFieldDecl          Kind = "FieldDecl"
	KindNamespace          Kind = "Namespace"
	KindTemplateTypeParam  Kind = "TemplateTypeParameter"
	KindInclusionDirective Kind = "InclusionDirective"
	KindMacroDefinition    Kind = "MacroDefinition"
	KindMacroInstantiation Kind = "MacroInstantiation"
	KindDeclRefExpr        Kind = "DeclRefExpr"
	KindMemberRefExpr      Kind = "MemberRefExpr"
	KindTypeRef            Kind = "TypeRef"
	KindCallExpr           Kind = "CallExpr"
)

// IsReference reports whether cursors of this kind point at another
// declaration through Cursor.Referenced.
func (k Kind) IsReference() bool {
	switch k {
	case KindDeclRefExpr, KindMemberRefExpr, KindTypeRef, KindCallExpr, KindMacroInstantiation:
		return true
	}
	return false
}

// Location is a 1-based source position.
type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Cursor is one node of a translation unit's semantic tree.
type Cursor struct {
	Kind     Kind
	Spelling string
	USR      string
	Location Location
	// EndColumn is the exclusive end column of the cursor's name token on
	// Location.Line.
	EndColumn    int
	IsDefinition bool
	// Referenced is the declaration a reference cursor points at. Nil for
	// declarations.
	Referenced *Cursor
	Children   []*Cursor
}

// CanonicalUSR returns the referenced declaration's USR for reference
// cursors and the cursor's own USR otherwise.
func (c *Cursor) CanonicalUSR() string {
	if c.Referenced != nil && c.Referenced.USR != "" {
		return c.Referenced.USR
	}
	return c.USR
}

// Contains reports whether line:col falls inside the cursor's name token.
func (c *Cursor) Contains(line, col int) bool {
	return c.Location.Line == line && c.Location.Column <= col && col < c.EndColumn
}

// ChildVisit tells Traverse how to continue after visiting a cursor.
type ChildVisit int

const (
	// Break stops the traversal.
	Break ChildVisit = iota
	// Continue moves on to the next sibling without visiting children.
	Continue
	// Recurse visits the cursor's children before its next sibling.
	Recurse
)

// Visitor is called for every cursor Traverse reaches.
type Visitor func(c, parent *Cursor) ChildVisit

// Traverse walks the descendants of root depth-first. The root itself is
// not passed to visit.
func Traverse(root *Cursor, visit Visitor) {
	traverse(root, visit)
}

func traverse(parent *Cursor, visit Visitor) bool {
	for _, c := range parent.Children {
		switch visit(c, parent) {
		case Break:
			return false
		case Recurse:
			if !traverse(c, visit) {
				return false
			}
		}
	}
	return true
}
