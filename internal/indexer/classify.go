package indexer

import (
	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

// kindCategory maps declaration kinds to symbol categories. Kinds absent
// from the table are not indexed.
var kindCategory = map[parser.Kind]store.SymbolType{
	parser.KindFunctionDecl: store.Function,
	parser.KindCXXMethod:    store.Function,
	parser.KindConstructor:  store.Function,
	parser.KindDestructor:   store.Function,

	parser.KindClassDecl:        store.UserDefinedType,
	parser.KindStructDecl:       store.UserDefinedType,
	parser.KindUnionDecl:        store.UserDefinedType,
	parser.KindEnumDecl:         store.UserDefinedType,
	parser.KindEnumConstantDecl: store.UserDefinedType,
	parser.KindTypedefDecl:      store.UserDefinedType,
	parser.KindTypeAliasDecl:    store.UserDefinedType,

	parser.KindVarDecl:   store.Variable,
	parser.KindParmDecl:  store.Variable,
	parser.KindFieldDecl: store.Variable,

	parser.KindMacroDefinition:    store.Macro,
	parser.KindMacroInstantiation: store.Macro,
}

// Classify returns the symbol category of c. Reference cursors other than
// macro instantiations take the category of the declaration they point
// at, so a call site and its function land in the same category.
func Classify(c *parser.Cursor) (store.SymbolType, bool) {
	kind := c.Kind
	if kind != parser.KindMacroInstantiation && kind.IsReference() {
		if c.Referenced == nil {
			return 0, false
		}
		kind = c.Referenced.Kind
	}
	t, ok := kindCategory[kind]
	return t, ok
}
