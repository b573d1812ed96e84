package symdex

import (
	"github.com/jward/symdex/internal/indexer"
	"github.com/jward/symdex/internal/parser"
	"github.com/jward/symdex/internal/store"
)

// Public aliases for internal types that appear in the Engine and
// Dispatcher APIs. External consumers use these names; no conversion is
// needed.

type Store = store.Store
type Symbol = store.Symbol
type SymbolType = store.SymbolType
type Location = parser.Location
type Parser = parser.Parser
type IndexResult = indexer.Result

const (
	Function        = store.Function
	Variable        = store.Variable
	UserDefinedType = store.UserDefinedType
	Macro           = store.Macro
)

// ErrStoreOpen is returned when a store cannot be opened or created.
var ErrStoreOpen = store.ErrStoreOpen
