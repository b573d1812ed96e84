package parser

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// builder turns tree-sitter syntax trees into a cursor tree. One builder
// serves a whole translation unit; included files are walked with the
// same scopes and macro table.
type builder struct {
	ctx      context.Context
	dialect  Dialect
	flags    Flags
	root     string
	maxDepth int

	global      *scope
	macros      map[string]*Cursor
	records     []*record
	seen        map[string]bool
	depth       int
	diagnostics int

	// Per-file state, swapped while an include is walked.
	file string
	dir  string
	src  []byte

	scope   *scope
	stack   []*Cursor
	thisRec *record
}

// declSpec carries the storage and placement facts of a declaration.
type declSpec struct {
	field  bool
	static bool
	extern bool
}

func newBuilder(ctx context.Context, dialect Dialect, flags Flags, root string, maxDepth int) *builder {
	global := newScope(scopeFile, nil, usrRoot)
	return &builder{
		ctx:      ctx,
		dialect:  dialect,
		flags:    flags,
		root:     root,
		maxDepth: maxDepth,
		global:   global,
		scope:    global,
		macros:   map[string]*Cursor{},
		seen:     map[string]bool{},
	}
}

// ---------------------------------------------------------------------------
// Cursor plumbing
// ---------------------------------------------------------------------------

func (b *builder) text(n *sitter.Node) string { return n.Content(b.src) }

func (b *builder) loc(n *sitter.Node) Location {
	p := n.StartPoint()
	return Location{File: b.file, Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

// newCursor creates a cursor spanning n and appends it to the current
// container.
func (b *builder) newCursor(kind Kind, n *sitter.Node, name string) *Cursor {
	loc := b.loc(n)
	end := loc.Column + len(name)
	if e := n.EndPoint(); int(e.Row)+1 == loc.Line {
		end = int(e.Column) + 1
	}
	c := &Cursor{Kind: kind, Spelling: name, Location: loc, EndColumn: end}
	top := b.stack[len(b.stack)-1]
	top.Children = append(top.Children, c)
	return c
}

func (b *builder) reference(kind Kind, n *sitter.Node, name string, target *Cursor) *Cursor {
	c := b.newCursor(kind, n, name)
	c.Referenced = target
	return c
}

func (b *builder) push(c *Cursor) { b.stack = append(b.stack, c) }
func (b *builder) pop()           { b.stack = b.stack[:len(b.stack)-1] }

// ---------------------------------------------------------------------------
// Walk
// ---------------------------------------------------------------------------

func (b *builder) walkChildren(n *sitter.Node) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		b.walk(n.NamedChild(i))
	}
}

// walkExcept walks every named child of n not stored under field.
func (b *builder) walkExcept(n *sitter.Node, field string) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() || n.FieldNameForChild(i) == field {
			continue
		}
		b.walk(child)
	}
}

func (b *builder) walk(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "ERROR":
		b.diagnostics++
		b.walkChildren(n)

	case "comment", "string_literal", "raw_string_literal", "concatenated_string",
		"char_literal", "number_literal", "system_lib_string", "primitive_type",
		"preproc_arg", "field_identifier", "namespace_identifier",
		"statement_identifier", "this", "destructor_name", "operator_name",
		"access_specifier", "friend_declaration":

	case "preproc_include":
		b.include(n)
	case "preproc_def", "preproc_function_def":
		b.macroDefinition(n)
	case "preproc_call":
		b.preprocCall(n)
	case "preproc_ifdef", "preproc_elifdef":
		b.walkExcept(n, "name")
	case "preproc_if", "preproc_elif":
		b.walkExcept(n, "condition")

	case "function_definition":
		if body := b.functionHead(n); body != nil {
			body()
		}
	case "declaration", "field_declaration":
		b.declaration(n)
	case "parameter_declaration", "optional_parameter_declaration":
		b.parameter(n)
	case "type_definition":
		b.typedef(n)
	case "alias_declaration":
		b.alias(n)
	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		b.recordSpecifier(n, "")
	case "namespace_definition":
		b.namespace(n)
	case "namespace_alias_definition":
		b.namespaceAlias(n)
	case "using_declaration":
		b.using(n)
	case "template_declaration":
		b.template(n)

	case "compound_statement", "for_statement", "if_statement", "while_statement",
		"do_statement", "switch_statement", "catch_clause", "lambda_expression":
		b.block(n)
	case "for_range_loop":
		b.rangeLoop(n)

	case "identifier":
		b.identifier(n, false)
	case "type_identifier":
		b.typeIdentifier(n)
	case "qualified_identifier":
		b.qualified(n, KindDeclRefExpr)
	case "field_expression":
		b.fieldExpression(n, false)
	case "call_expression":
		b.exprRecord(n)
	case "field_designator":
		b.designator(n)

	default:
		b.walkChildren(n)
	}
}

func (b *builder) block(n *sitter.Node) {
	saved := b.scope
	b.scope = newScope(scopeBlock, b.scope, "")
	b.walkChildren(n)
	b.scope = saved
}

func (b *builder) rangeLoop(n *sitter.Node) {
	saved := b.scope
	b.scope = newScope(scopeBlock, b.scope, "")
	rec := b.typeSpecifier(n.ChildByFieldName("type"))
	if name, _ := b.unwrap(n.ChildByFieldName("declarator")); name != nil {
		b.variable(name, rec, declSpec{}, true)
	}
	b.walk(n.ChildByFieldName("right"))
	b.walk(n.ChildByFieldName("body"))
	b.scope = saved
}

// ---------------------------------------------------------------------------
// Preprocessor
// ---------------------------------------------------------------------------

func (b *builder) include(n *sitter.Node) {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	raw := b.text(pathNode)
	quoted := strings.HasPrefix(raw, `"`)
	name := strings.Trim(raw, `"<>`)
	b.newCursor(KindInclusionDirective, pathNode, name)

	resolved, ok := b.resolveInclude(name, quoted)
	if !ok {
		b.diagnostics++
		return
	}
	key := canonicalPath(resolved)
	if b.seen[key] {
		return
	}
	if b.depth >= b.maxDepth {
		b.diagnostics++
		return
	}
	b.seen[key] = true
	if err := b.parseFile(resolved, resolved, filepath.Dir(resolved)); err != nil {
		b.diagnostics++
	}
}

func (b *builder) macroDefinition(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := b.text(nameNode)
	c := b.newCursor(KindMacroDefinition, nameNode, name)
	c.USR = usrMacro(name)
	c.IsDefinition = true
	b.macros[name] = c
}

func (b *builder) preprocCall(n *sitter.Node) {
	directive := n.ChildByFieldName("directive")
	arg := n.ChildByFieldName("argument")
	if directive == nil || arg == nil {
		return
	}
	if strings.TrimSpace(b.text(directive)) == "#undef" {
		delete(b.macros, strings.TrimSpace(b.text(arg)))
	}
}

func (b *builder) macroUse(n *sitter.Node, name string) bool {
	def, ok := b.macros[name]
	if !ok {
		return false
	}
	b.reference(KindMacroInstantiation, n, name, def)
	return true
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (b *builder) hasStorage(n *sitter.Node, class string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "storage_class_specifier" && b.text(c) == class {
			return true
		}
	}
	return false
}

func (b *builder) declaration(n *sitter.Node) {
	spec := declSpec{
		field:  n.Type() == "field_declaration",
		static: b.hasStorage(n, "static"),
		extern: b.hasStorage(n, "extern"),
	}
	rec := b.typeSpecifier(n.ChildByFieldName("type"))
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			continue
		}
		switch n.FieldNameForChild(i) {
		case "type":
		case "declarator":
			b.declarator(child, rec, spec)
		default:
			switch child.Type() {
			case "storage_class_specifier", "type_qualifier", "virtual", "explicit_function_specifier":
			default:
				b.walk(child)
			}
		}
	}
}

func (b *builder) declarator(d *sitter.Node, rec *record, spec declSpec) {
	var value *sitter.Node
	if d.Type() == "init_declarator" {
		value = d.ChildByFieldName("value")
		d = d.ChildByFieldName("declarator")
	}
	name, fn := b.unwrap(d)
	switch {
	case name == nil:
	case fn != nil:
		cur, body, _ := b.function(name, fn, rec, spec, false)
		b.push(cur)
		saved := b.scope
		b.scope = body
		b.walk(fn.ChildByFieldName("parameters"))
		b.scope = saved
		b.pop()
	default:
		b.variable(name, rec, spec, value != nil)
	}
	b.walk(value)
}

// unwrap peels pointer, reference, array and init wrappers off a
// declarator. It returns the name node and, for function declarators, the
// innermost function_declarator. Array sizes are walked on the way.
func (b *builder) unwrap(d *sitter.Node) (name, fn *sitter.Node) {
	for d != nil {
		switch d.Type() {
		case "function_declarator":
			if fn == nil {
				fn = d
			}
			d = d.ChildByFieldName("declarator")
		case "init_declarator":
			d = d.ChildByFieldName("declarator")
		case "pointer_declarator":
			// A pointer around a function declarator is a function pointer.
			fn = nil
			d = d.ChildByFieldName("declarator")
		case "array_declarator":
			b.walk(d.ChildByFieldName("size"))
			d = d.ChildByFieldName("declarator")
		case "reference_declarator", "parenthesized_declarator", "attributed_declarator":
			if d.NamedChildCount() == 0 {
				return nil, fn
			}
			if d.Type() == "attributed_declarator" {
				d = d.NamedChild(0)
			} else {
				d = d.NamedChild(int(d.NamedChildCount()) - 1)
			}
		case "identifier", "field_identifier", "type_identifier", "qualified_identifier",
			"destructor_name", "operator_name", "template_function":
			return d, fn
		default:
			return nil, fn
		}
	}
	return nil, fn
}

// declaredName is the bare name a declarator introduces, without side
// effects.
func (b *builder) declaredName(d *sitter.Node) string {
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier", "type_identifier":
			return b.text(d)
		case "pointer_declarator", "array_declarator", "function_declarator", "init_declarator":
			d = d.ChildByFieldName("declarator")
		case "parenthesized_declarator", "reference_declarator":
			if d.NamedChildCount() == 0 {
				return ""
			}
			d = d.NamedChild(int(d.NamedChildCount()) - 1)
		default:
			return ""
		}
	}
	return ""
}

func (b *builder) variable(nameNode *sitter.Node, rec *record, spec declSpec, hasInit bool) *Cursor {
	sc := b.scope.target()
	if nameNode.Type() == "qualified_identifier" {
		qs, last := b.resolveQualifiedScope(nameNode)
		if last == nil {
			return nil
		}
		if qs != nil {
			sc = qs
		}
		nameNode = last
	}
	name := b.text(nameNode)
	loc := b.loc(nameNode)

	kind := KindVarDecl
	var usr string
	def := !(spec.extern && !hasInit)
	switch {
	case sc.kind == scopeRecord && spec.field && !spec.static:
		kind = KindFieldDecl
		usr = usrField(sc.prefix, name)
	case sc.kind == scopeRecord:
		usr = usrGlobal(sc.prefix, name)
		def = !spec.field
	case sc.kind == scopeBlock && !spec.extern:
		usr = usrLocal(b.root, loc, sc.owner, name)
	case spec.static:
		usr = usrGlobal(b.internalPrefix(sc), name)
	default:
		usr = usrGlobal(sc.declPrefix(), name)
	}

	c := b.newCursor(kind, nameNode, name)
	c.USR = usr
	c.IsDefinition = def
	b.declare(sc.values, name, &symbol{cursor: c, rec: rec})
	return c
}

// declare registers sym unless an earlier declaration of the same entity
// is already visible under name.
func (b *builder) declare(table map[string]*symbol, name string, sym *symbol) *symbol {
	if prev, ok := table[name]; ok && prev.cursor.USR == sym.cursor.USR {
		if prev.rec == nil {
			prev.rec = sym.rec
		}
		return prev
	}
	table[name] = sym
	return sym
}

func (b *builder) internalPrefix(sc *scope) string {
	return usrInternal(b.root, b.file) + strings.TrimPrefix(sc.declPrefix(), usrRoot)
}

func (b *builder) parameter(n *sitter.Node) {
	rec := b.typeSpecifier(n.ChildByFieldName("type"))
	if name, _ := b.unwrap(n.ChildByFieldName("declarator")); name != nil && name.Type() == "identifier" {
		nm := b.text(name)
		c := b.newCursor(KindParmDecl, name, nm)
		c.USR = usrLocal(b.root, c.Location, b.scope.owner, nm)
		c.IsDefinition = true
		b.scope.values[nm] = &symbol{cursor: c, rec: rec}
	}
	b.walk(n.ChildByFieldName("default_value"))
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// functionHead declares the function a function_definition introduces and
// returns a closure that walks its parameters and body. Record bodies run
// the closures after every member is declared.
func (b *builder) functionHead(n *sitter.Node) func() {
	spec := declSpec{static: b.hasStorage(n, "static")}
	retRec := b.typeSpecifier(n.ChildByFieldName("type"))
	body := n.ChildByFieldName("body")
	name, fn := b.unwrap(n.ChildByFieldName("declarator"))
	if name == nil || fn == nil {
		return func() { b.walk(body) }
	}
	cur, fnScope, rec := b.function(name, fn, retRec, spec, true)
	return func() {
		b.push(cur)
		savedScope, savedThis := b.scope, b.thisRec
		b.scope, b.thisRec = fnScope, rec
		b.walk(fn.ChildByFieldName("parameters"))
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "field_initializer_list" {
				b.fieldInitializers(c, rec)
			}
		}
		b.walkChildren(body)
		b.scope, b.thisRec = savedScope, savedThis
		b.pop()
	}
}

// function declares a function or method named by nameNode. It returns the
// declaration cursor, the scope its parameters and body live in, and the
// record it is a member of.
func (b *builder) function(nameNode, fnDecl *sitter.Node, retRec *record, spec declSpec, def bool) (*Cursor, *scope, *record) {
	sc := b.scope.target()
	parent := b.scope
	if nameNode.Type() == "qualified_identifier" {
		qs, last := b.resolveQualifiedScope(nameNode)
		if last == nil {
			last = nameNode
		}
		if qs != nil {
			sc, parent = qs, qs
		}
		nameNode = last
	}
	if nameNode.Type() == "template_function" && nameNode.ChildByFieldName("name") != nil {
		b.walk(nameNode.ChildByFieldName("arguments"))
		nameNode = nameNode.ChildByFieldName("name")
	}
	name := b.text(nameNode)

	var rec *record
	kind := KindFunctionDecl
	if sc.kind == scopeRecord && sc.rec != nil {
		rec = sc.rec
		switch {
		case nameNode.Type() == "destructor_name":
			kind = KindDestructor
		case name == rec.name:
			kind = KindConstructor
		default:
			kind = KindCXXMethod
		}
	}

	prefix := sc.declPrefix()
	if rec == nil && spec.static {
		prefix = b.internalPrefix(sc)
	}
	usr := usrFunction(prefix, name)

	c := b.newCursor(kind, nameNode, name)
	c.USR = usr
	c.IsDefinition = def
	b.declare(sc.values, name, &symbol{cursor: c, rec: retRec})

	body := newScope(scopeBlock, parent, "")
	body.owner = usr[strings.Index(usr, "@"):]
	return c, body, rec
}

func (b *builder) fieldInitializers(list *sitter.Node, rec *record) {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		init := list.NamedChild(i)
		if init.Type() != "field_initializer" || init.NamedChildCount() == 0 {
			b.walk(init)
			continue
		}
		target := init.NamedChild(0)
		switch target.Type() {
		case "field_identifier":
			name := b.text(target)
			if rec != nil {
				if sym := rec.member(name); sym != nil {
					b.reference(KindMemberRefExpr, target, name, sym.cursor)
				}
			}
		default:
			b.walk(target)
		}
		for j := 1; j < int(init.NamedChildCount()); j++ {
			b.walk(init.NamedChild(j))
		}
	}
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// typeSpecifier walks a type and returns the record it names, following
// typedefs.
func (b *builder) typeSpecifier(n *sitter.Node) *record {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		return b.recordSpecifier(n, "")
	case "type_identifier":
		if sym := b.typeIdentifier(n); sym != nil {
			return sym.rec
		}
	case "qualified_identifier":
		if sym := b.qualified(n, KindTypeRef); sym != nil {
			return sym.rec
		}
	case "template_type":
		b.walk(n.ChildByFieldName("arguments"))
		if name := n.ChildByFieldName("name"); name != nil {
			return b.typeSpecifier(name)
		}
	default:
		b.walk(n)
	}
	return nil
}

func (b *builder) typeIdentifier(n *sitter.Node) *symbol {
	name := b.text(n)
	if b.macroUse(n, name) {
		return nil
	}
	sym := b.scope.lookupType(name)
	if sym == nil {
		return nil
	}
	b.reference(KindTypeRef, n, name, sym.cursor)
	return sym
}

func recordKind(nodeType string) Kind {
	switch nodeType {
	case "union_specifier":
		return KindUnionDecl
	case "enum_specifier":
		return KindEnumDecl
	case "class_specifier":
		return KindClassDecl
	}
	return KindStructDecl
}

// recordSpecifier handles struct, class, union and enum specifiers:
// definitions, forward declarations and plain references.
func (b *builder) recordSpecifier(n *sitter.Node, typedefName string) *record {
	kind := recordKind(n.Type())
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	sc := b.scope.target()

	if nameNode != nil && nameNode.Type() == "qualified_identifier" {
		qs, last := b.resolveQualifiedScope(nameNode)
		if qs != nil {
			sc = qs
		}
		nameNode = last
	}
	name := ""
	if nameNode != nil {
		name = b.text(nameNode)
	}

	if body == nil {
		if name == "" {
			return nil
		}
		if b.isForwardDeclaration(n) {
			sym := sc.tags[name]
			if sym == nil {
				sym = b.newRecord(sc, kind, name, nil)
			}
			c := b.newCursor(kind, nameNode, name)
			c.USR = sym.cursor.USR
			if sym.cursor.Location.File == "" {
				sym.cursor = c
			}
			return sym.rec
		}
		sym := b.scope.lookupTag(name)
		if sym == nil {
			sym = b.newRecord(sc, kind, name, nil)
		}
		b.reference(KindTypeRef, nameNode, name, sym.cursor)
		return sym.rec
	}

	var c *Cursor
	if nameNode != nil {
		c = b.newCursor(kind, nameNode, name)
	} else {
		c = b.newCursor(kind, n.Child(0), "")
	}
	c.IsDefinition = true

	sym := sc.tags[name]
	if name == "" || sym == nil {
		sym = b.newRecord(sc, kind, name, c)
		if name == "" {
			sym.cursor.USR = usrAnonRecord(sc.declPrefix(), kind, typedefName, b.root, c.Location)
			sym.rec.scope.prefix = sym.cursor.USR
		}
	} else {
		c.USR = sym.cursor.USR
		sym.cursor = c
	}
	rec := sym.rec
	c.USR = rec.scope.prefix
	// Members see template parameters and the enclosing lexical scope.
	rec.scope.parent = b.scope

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if clause := n.NamedChild(i); clause.Type() == "base_class_clause" {
			b.baseClasses(clause, rec)
		}
	}

	b.push(c)
	saved := b.scope
	b.scope = rec.scope
	if kind == KindEnumDecl {
		b.enumerators(body, rec, sc, b.isScopedEnum(n))
	} else {
		b.recordBody(body)
	}
	b.scope = saved
	b.pop()
	return rec
}

// newRecord registers a record named name in sc. decl may be nil for a
// record only referenced so far; a detached cursor stands in for it.
func (b *builder) newRecord(sc *scope, kind Kind, name string, decl *Cursor) *symbol {
	usr := usrRecord(sc.declPrefix(), kind, name)
	if decl == nil {
		decl = &Cursor{Kind: kind, Spelling: name}
	}
	decl.USR = usr
	rec := &record{name: name}
	sym := &symbol{cursor: decl, rec: rec}
	rec.sym = sym
	rec.scope = newScope(scopeRecord, sc, usr)
	rec.scope.rec = rec
	if name != "" {
		sc.tags[name] = sym
		if b.dialect == DialectCXX {
			sc.types[name] = sym
		}
	}
	b.records = append(b.records, rec)
	return sym
}

func (b *builder) isForwardDeclaration(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "declaration", "field_declaration":
	default:
		return false
	}
	for i := 0; i < int(parent.ChildCount()); i++ {
		if parent.FieldNameForChild(i) == "declarator" {
			return false
		}
	}
	return true
}

func (b *builder) isScopedEnum(n *sitter.Node) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.Child(i).Type() {
		case "class", "struct":
			return true
		}
	}
	return false
}

func (b *builder) baseClasses(clause *sitter.Node, rec *record) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "type_identifier", "qualified_identifier", "template_type":
			if base := b.typeSpecifier(child); base != nil && base != rec {
				rec.bases = append(rec.bases, base)
			}
		default:
			b.walk(child)
		}
	}
}

func (b *builder) recordBody(body *sitter.Node) {
	var bodies []func()
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "function_definition" {
			if fn := b.functionHead(child); fn != nil {
				bodies = append(bodies, fn)
			}
			continue
		}
		b.walk(child)
	}
	for _, fn := range bodies {
		fn()
	}
}

// enumerators declares enum constants in the enum's scope and, for
// unscoped enums, in the enclosing scope too.
func (b *builder) enumerators(body *sitter.Node, rec *record, outer *scope, scoped bool) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		e := body.NamedChild(i)
		if e.Type() != "enumerator" {
			b.walk(e)
			continue
		}
		nameNode := e.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		b.walk(e.ChildByFieldName("value"))
		name := b.text(nameNode)
		c := b.newCursor(KindEnumConstantDecl, nameNode, name)
		c.USR = usrEnumConstant(rec.scope.prefix, name)
		c.IsDefinition = true
		sym := &symbol{cursor: c}
		rec.scope.values[name] = sym
		if !scoped {
			outer.values[name] = sym
		}
	}
}

func (b *builder) typedef(n *sitter.Node) {
	typeNode := n.ChildByFieldName("type")
	var decls []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == "declarator" {
			decls = append(decls, n.Child(i))
		}
	}

	var rec *record
	switch {
	case typeNode == nil:
	case strings.HasSuffix(typeNode.Type(), "_specifier") && typeNode.ChildByFieldName("body") != nil:
		first := ""
		if len(decls) > 0 {
			first = b.declaredName(decls[0])
		}
		rec = b.recordSpecifier(typeNode, first)
	default:
		rec = b.typeSpecifier(typeNode)
	}

	sc := b.scope.target()
	for _, d := range decls {
		name, fn := b.unwrap(d)
		if name == nil {
			continue
		}
		nm := b.text(name)
		c := b.newCursor(KindTypedefDecl, name, nm)
		c.USR = usrTypedef(sc.declPrefix(), nm)
		c.IsDefinition = true
		if fn != nil {
			saved := b.scope
			b.scope = newScope(scopeBlock, b.scope, "")
			b.push(c)
			b.walk(fn.ChildByFieldName("parameters"))
			b.pop()
			b.scope = saved
		}
		sc.types[nm] = &symbol{cursor: c, rec: rec}
	}
}

func (b *builder) alias(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	var rec *record
	if td := n.ChildByFieldName("type"); td != nil {
		rec = b.typeSpecifier(td.ChildByFieldName("type"))
		b.walk(td.ChildByFieldName("declarator"))
	}
	if nameNode == nil {
		return
	}
	sc := b.scope.target()
	name := b.text(nameNode)
	c := b.newCursor(KindTypeAliasDecl, nameNode, name)
	c.USR = usrTypedef(sc.declPrefix(), name)
	c.IsDefinition = true
	sc.types[name] = &symbol{cursor: c, rec: rec}
}

func (b *builder) template(n *sitter.Node) {
	saved := b.scope
	b.scope = newScope(scopeTemplate, b.scope, "")
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "type_parameter_declaration", "variadic_type_parameter_declaration", "optional_type_parameter_declaration":
				nameNode := p.ChildByFieldName("name")
				if nameNode == nil {
					for j := 0; j < int(p.NamedChildCount()); j++ {
						if p.NamedChild(j).Type() == "type_identifier" {
							nameNode = p.NamedChild(j)
							break
						}
					}
				}
				if nameNode == nil {
					continue
				}
				name := b.text(nameNode)
				c := b.newCursor(KindTemplateTypeParam, nameNode, name)
				c.USR = usrLocal(b.root, c.Location, b.scope.owner, name)
				c.IsDefinition = true
				b.scope.types[name] = &symbol{cursor: c}
				b.walk(p.ChildByFieldName("default_type"))
			default:
				b.walk(p)
			}
		}
	}
	b.walkExcept(n, "parameters")
	b.scope = saved
}

// ---------------------------------------------------------------------------
// Namespaces
// ---------------------------------------------------------------------------

func (b *builder) namespace(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	names := []string{""}
	if nameNode != nil {
		names = strings.Split(b.text(nameNode), "::")
	}
	saved := b.scope
	for _, name := range names {
		name = strings.TrimSpace(name)
		sc := b.scope.target()
		ns, ok := sc.namespaces[name]
		if !ok {
			ns = newScope(scopeNamespace, sc, usrNamespace(sc.prefix, name))
			sc.namespaces[name] = ns
			if name == "" {
				sc.usings = append(sc.usings, ns)
			}
		}
		b.scope = ns
	}

	var c *Cursor
	if nameNode != nil {
		c = b.newCursor(KindNamespace, nameNode, names[len(names)-1])
	} else {
		c = b.newCursor(KindNamespace, n.Child(0), "")
	}
	c.USR = b.scope.prefix
	c.IsDefinition = true

	b.push(c)
	b.walkChildren(n.ChildByFieldName("body"))
	b.pop()
	b.scope = saved
}

// namespaceByPath resolves "a::b::c" starting from the current scope.
func (b *builder) namespaceByPath(path string) *scope {
	parts := strings.Split(strings.TrimPrefix(path, "::"), "::")
	ns := b.scope.lookupNamespace(strings.TrimSpace(parts[0]))
	for _, p := range parts[1:] {
		if ns == nil {
			return nil
		}
		ns = ns.namespaces[strings.TrimSpace(p)]
	}
	return ns
}

func (b *builder) namespaceAlias(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil || n.NamedChildCount() < 2 {
		return
	}
	target := n.NamedChild(int(n.NamedChildCount()) - 1)
	if ns := b.namespaceByPath(b.text(target)); ns != nil {
		b.scope.target().namespaces[b.text(nameNode)] = ns
	}
}

func (b *builder) using(n *sitter.Node) {
	isNamespace := false
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == "namespace" {
			isNamespace = true
		}
	}
	if n.NamedChildCount() == 0 {
		return
	}
	target := n.NamedChild(int(n.NamedChildCount()) - 1)
	if isNamespace {
		if ns := b.namespaceByPath(b.text(target)); ns != nil {
			b.scope.usings = append(b.scope.usings, ns)
		}
		return
	}
	if target.Type() != "qualified_identifier" {
		return
	}
	sc, last := b.resolveQualifiedScope(target)
	if sc == nil || last == nil {
		return
	}
	name := b.text(last)
	if sym := sc.localValue(name); sym != nil {
		b.scope.values[name] = sym
		b.reference(KindDeclRefExpr, last, name, sym.cursor)
	} else if sym := sc.localType(name); sym != nil {
		b.scope.types[name] = sym
		b.reference(KindTypeRef, last, name, sym.cursor)
	}
}

// resolveQualifiedScope walks the scope part of a qualified name and
// returns the scope it designates together with the final name node. The
// scope is nil when a qualifier cannot be resolved.
func (b *builder) resolveQualifiedScope(n *sitter.Node) (*scope, *sitter.Node) {
	sc := b.scope
	first := true
	for n != nil && n.Type() == "qualified_identifier" {
		scopeNode := n.ChildByFieldName("scope")
		next := n.ChildByFieldName("name")
		if scopeNode == nil {
			sc = b.global
		} else if sc != nil {
			sc = b.enterScope(sc, scopeNode, first)
		}
		first = false
		n = next
	}
	return sc, n
}

func (b *builder) enterScope(from *scope, scopeNode *sitter.Node, chain bool) *scope {
	nameNode := scopeNode
	if scopeNode.Type() == "template_type" {
		b.walk(scopeNode.ChildByFieldName("arguments"))
		nameNode = scopeNode.ChildByFieldName("name")
	}
	if nameNode == nil {
		return nil
	}
	name := b.text(nameNode)
	for sc := from; sc != nil; sc = sc.parent {
		if ns, ok := sc.namespaces[name]; ok {
			return ns
		}
		if sym := sc.localType(name); sym != nil && sym.rec != nil {
			b.reference(KindTypeRef, nameNode, name, sym.cursor)
			return sym.rec.scope
		}
		for _, u := range sc.usings {
			if ns, ok := u.namespaces[name]; ok {
				return ns
			}
		}
		if !chain {
			break
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func isFunction(k Kind) bool {
	switch k {
	case KindFunctionDecl, KindCXXMethod, KindConstructor, KindDestructor:
		return true
	}
	return false
}

// identifier resolves a name used in an expression. call marks the callee
// position of a call expression.
func (b *builder) identifier(n *sitter.Node, call bool) *symbol {
	name := b.text(n)
	if b.macroUse(n, name) {
		return nil
	}
	if sym := b.scope.lookupValue(name); sym != nil {
		kind := KindDeclRefExpr
		switch {
		case call && isFunction(sym.cursor.Kind):
			kind = KindCallExpr
		case sym.cursor.Kind == KindFieldDecl:
			kind = KindMemberRefExpr
		}
		b.reference(kind, n, name, sym.cursor)
		return sym
	}
	if sym := b.scope.lookupType(name); sym != nil {
		b.reference(KindTypeRef, n, name, sym.cursor)
		return sym
	}
	return nil
}

// qualified resolves ns::name or Rec::name. kind is the cursor kind to
// emit for value names: DeclRefExpr, CallExpr, or TypeRef for type
// positions.
func (b *builder) qualified(n *sitter.Node, kind Kind) *symbol {
	sc, last := b.resolveQualifiedScope(n)
	if last == nil {
		return nil
	}
	nameNode := last
	if last.Type() == "template_function" || last.Type() == "template_type" {
		b.walk(last.ChildByFieldName("arguments"))
		nameNode = last.ChildByFieldName("name")
	}
	if sc == nil || nameNode == nil {
		return nil
	}
	name := b.text(nameNode)
	if kind != KindTypeRef {
		if sym := sc.localValue(name); sym != nil {
			switch {
			case kind == KindCallExpr && !isFunction(sym.cursor.Kind):
				kind = KindDeclRefExpr
			case kind == KindDeclRefExpr && sym.cursor.Kind == KindFieldDecl:
				kind = KindMemberRefExpr
			}
			b.reference(kind, nameNode, name, sym.cursor)
			return sym
		}
	}
	if sym := sc.localType(name); sym != nil {
		b.reference(KindTypeRef, nameNode, name, sym.cursor)
		return sym
	}
	return nil
}

func (b *builder) fieldExpression(n *sitter.Node, call bool) *symbol {
	rec := b.exprRecord(n.ChildByFieldName("argument"))
	field := n.ChildByFieldName("field")
	if field == nil {
		return nil
	}
	if inner := field.ChildByFieldName("name"); inner != nil {
		b.walk(field.ChildByFieldName("arguments"))
		field = inner
	}
	name := b.text(field)
	var sym *symbol
	if rec != nil {
		sym = rec.member(name)
	}
	if sym == nil {
		sym = b.memberByName(name)
	}
	if sym == nil {
		return nil
	}
	kind := KindMemberRefExpr
	if call && isFunction(sym.cursor.Kind) {
		kind = KindCallExpr
	}
	b.reference(kind, field, name, sym.cursor)
	return sym
}

// exprRecord walks an expression and returns the record type it
// evaluates to, when that can be told.
func (b *builder) exprRecord(e *sitter.Node) *record {
	if e == nil {
		return nil
	}
	switch e.Type() {
	case "identifier":
		if sym := b.identifier(e, false); sym != nil {
			return sym.rec
		}
	case "this":
		return b.thisRec
	case "field_expression":
		if sym := b.fieldExpression(e, false); sym != nil {
			return sym.rec
		}
	case "qualified_identifier":
		if sym := b.qualified(e, KindDeclRefExpr); sym != nil {
			return sym.rec
		}
	case "call_expression":
		fn := e.ChildByFieldName("function")
		var sym *symbol
		switch {
		case fn == nil:
		case fn.Type() == "identifier":
			sym = b.identifier(fn, true)
		case fn.Type() == "field_expression":
			sym = b.fieldExpression(fn, true)
		case fn.Type() == "qualified_identifier":
			sym = b.qualified(fn, KindCallExpr)
		case fn.Type() == "template_function":
			b.walk(fn.ChildByFieldName("arguments"))
			if name := fn.ChildByFieldName("name"); name != nil {
				sym = b.identifier(name, true)
			}
		default:
			b.walk(fn)
		}
		b.walk(e.ChildByFieldName("arguments"))
		if sym != nil {
			return sym.rec
		}
	case "parenthesized_expression":
		if e.NamedChildCount() > 0 {
			return b.exprRecord(e.NamedChild(0))
		}
	case "pointer_expression":
		return b.exprRecord(e.ChildByFieldName("argument"))
	case "subscript_expression":
		rec := b.exprRecord(e.ChildByFieldName("argument"))
		b.walkExcept(e, "argument")
		return rec
	case "cast_expression":
		var rec *record
		if td := e.ChildByFieldName("type"); td != nil {
			rec = b.typeSpecifier(td.ChildByFieldName("type"))
			b.walk(td.ChildByFieldName("declarator"))
		}
		b.walk(e.ChildByFieldName("value"))
		return rec
	default:
		b.walk(e)
	}
	return nil
}

// memberByName finds a member by name when its record cannot be
// determined. Ambiguous names resolve to nothing.
func (b *builder) memberByName(name string) *symbol {
	var found *symbol
	for _, rec := range b.records {
		sym, ok := rec.scope.values[name]
		if !ok {
			continue
		}
		if found != nil && found.cursor.USR != sym.cursor.USR {
			return nil
		}
		found = sym
	}
	return found
}

func (b *builder) designator(n *sitter.Node) {
	if n.NamedChildCount() == 0 {
		return
	}
	field := n.NamedChild(0)
	name := b.text(field)
	if sym := b.memberByName(name); sym != nil {
		b.reference(KindMemberRefExpr, field, name, sym.cursor)
	}
}
